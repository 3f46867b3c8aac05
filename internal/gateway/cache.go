package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/redis"
)

// QuoteCache keeps the last good quote per symbol for breaker fallback
// ⭐ SSOT: the gateway's stale-data store
//
// Memory is authoritative; an optional Redis layer shares quotes across processes.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]contracts.MarketQuote
	ttl    time.Duration
	clock  clock.Clock
	remote *redis.Cache
	logger *logger.Logger
}

// NewQuoteCache creates a cache that serves quotes up to ttl old
func NewQuoteCache(ttl time.Duration, clk clock.Clock, log *logger.Logger) *QuoteCache {
	if clk == nil {
		clk = clock.Real{}
	}
	return &QuoteCache{
		quotes: make(map[string]contracts.MarketQuote),
		ttl:    ttl,
		clock:  clk,
		logger: log.Module("quote_cache"),
	}
}

// WithRedis adds a shared second layer
func (c *QuoteCache) WithRedis(remote *redis.Cache) *QuoteCache {
	c.remote = remote
	return c
}

// Put stores a live quote. Older quotes never replace newer ones.
func (c *QuoteCache) Put(ctx context.Context, q contracts.MarketQuote) bool {
	c.mu.Lock()
	existing, exists := c.quotes[q.Symbol]
	if exists && q.FetchedAt.Before(existing.FetchedAt) {
		c.mu.Unlock()
		c.logger.WithFields(map[string]interface{}{
			"symbol":   q.Symbol,
			"new_time": q.FetchedAt,
			"old_time": existing.FetchedAt,
		}).Debug("Rejected older quote")
		return false
	}
	c.quotes[q.Symbol] = q
	c.mu.Unlock()

	if c.remote != nil {
		if err := c.remote.Set(ctx, redis.QuoteKey(q.Symbol), q, c.ttl); err != nil {
			c.logger.WithError(err).WithSymbol(q.Symbol).Warn("Failed to write quote to redis")
		}
	}
	return true
}

// Get returns a non-expired quote marked as cached
func (c *QuoteCache) Get(ctx context.Context, symbol string) (contracts.MarketQuote, bool) {
	c.mu.RLock()
	q, ok := c.quotes[symbol]
	c.mu.RUnlock()

	if !ok && c.remote != nil {
		found, err := c.remote.Get(ctx, redis.QuoteKey(symbol), &q)
		if err != nil {
			c.logger.WithError(err).WithSymbol(symbol).Warn("Failed to read quote from redis")
		}
		ok = found
	}
	if !ok || c.expired(q) {
		return contracts.MarketQuote{}, false
	}

	q.Provenance = contracts.ProvenanceCached
	return q, true
}

// Latest returns the newest quote regardless of TTL (fundamentals outlive prices)
func (c *QuoteCache) Latest(symbol string) (contracts.MarketQuote, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	q, ok := c.quotes[symbol]
	if ok {
		q.Provenance = contracts.ProvenanceCached
	}
	return q, ok
}

// Len returns the number of symbols held in memory
func (c *QuoteCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.quotes)
}

func (c *QuoteCache) expired(q contracts.MarketQuote) bool {
	return c.ttl > 0 && c.clock.Now().Sub(q.FetchedAt) > c.ttl
}
