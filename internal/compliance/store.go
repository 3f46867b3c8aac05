package compliance

import (
	"context"
	"sync"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
	"github.com/wonny/aegis-signals/pkg/redis"
)

// Store is the compliance record cache.
// ⭐ SSOT: the in-process map is authoritative; Redis only shares records across processes
type Store struct {
	mu      sync.RWMutex
	records map[string]contracts.ComplianceRecord
	clock   clock.Clock
	remote  *redis.Cache
	logger  *logger.Logger
}

// NewStore creates an empty record store
func NewStore(clk clock.Clock, log *logger.Logger) *Store {
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		records: make(map[string]contracts.ComplianceRecord),
		clock:   clk,
		logger:  log,
	}
}

// WithRedis adds a shared Redis layer
func (s *Store) WithRedis(c *redis.Cache) *Store {
	s.remote = c
	return s
}

// Get returns a non-expired record
func (s *Store) Get(ctx context.Context, symbol string) (contracts.ComplianceRecord, bool) {
	now := s.clock.Now()

	s.mu.RLock()
	rec, ok := s.records[symbol]
	s.mu.RUnlock()
	if ok && !rec.Expired(now) {
		return rec, true
	}

	if s.remote == nil {
		return contracts.ComplianceRecord{}, false
	}

	var remote contracts.ComplianceRecord
	found, err := s.remote.Get(ctx, redis.ComplianceKey(symbol), &remote)
	if err != nil {
		s.logger.WithError(err).WithSymbol(symbol).Warn("Compliance redis read failed")
		return contracts.ComplianceRecord{}, false
	}
	if !found || remote.Expired(now) {
		return contracts.ComplianceRecord{}, false
	}

	// Another process may have refreshed a record that expired here
	s.mu.Lock()
	if cur, exists := s.records[symbol]; !exists || cur.Expired(now) {
		s.records[symbol] = remote
	}
	s.mu.Unlock()

	return remote, true
}

// Put stores a record (last writer wins)
func (s *Store) Put(ctx context.Context, rec contracts.ComplianceRecord) {
	s.mu.Lock()
	s.records[rec.Symbol] = rec
	s.mu.Unlock()

	if s.remote == nil {
		return
	}
	ttl := rec.ExpiresAt.Sub(s.clock.Now())
	if ttl <= 0 {
		return
	}
	if err := s.remote.Set(ctx, redis.ComplianceKey(rec.Symbol), rec, ttl); err != nil {
		s.logger.WithError(err).WithSymbol(rec.Symbol).Warn("Compliance redis write failed")
	}
}

// Delete evicts a record from both layers
func (s *Store) Delete(ctx context.Context, symbol string) {
	s.mu.Lock()
	delete(s.records, symbol)
	s.mu.Unlock()

	if s.remote == nil {
		return
	}
	if err := s.remote.Delete(ctx, redis.ComplianceKey(symbol)); err != nil {
		s.logger.WithError(err).WithSymbol(symbol).Warn("Compliance redis delete failed")
	}
}

// Len returns the number of in-process records, expired included
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Prune drops expired in-process records and returns how many were removed.
// Redis entries expire on their own TTL.
func (s *Store) Prune() int {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for sym, rec := range s.records {
		if rec.Expired(now) {
			delete(s.records, sym)
			removed++
		}
	}
	return removed
}
