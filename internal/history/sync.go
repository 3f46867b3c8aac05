package history

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Source serves daily bars from upstream
type Source interface {
	FetchHistory(ctx context.Context, symbol string, from, to time.Time) ([]contracts.Bar, error)
}

// SyncResult is one symbol's sync outcome
type SyncResult struct {
	Symbol string `json:"symbol"`
	Bars   int    `json:"bars"`
	Error  string `json:"error,omitempty"`
}

// Syncer copies upstream history into a BarRepository
type Syncer struct {
	source  Source
	repo    contracts.BarRepository
	workers int
	logger  *logger.Logger
}

// NewSyncer creates a syncer with the given concurrency
func NewSyncer(source Source, repo contracts.BarRepository, workers int, log *logger.Logger) *Syncer {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Syncer{
		source:  source,
		repo:    repo,
		workers: workers,
		logger:  log.Module("history"),
	}
}

// Sync fetches and stores bars for every symbol.
// Per-symbol failures are reported in the results; only cancellation returns an error.
func (s *Syncer) Sync(ctx context.Context, symbols []string, from, to time.Time) ([]SyncResult, error) {
	start := time.Now()
	s.logger.WithFields(map[string]interface{}{
		"symbols": len(symbols),
		"from":    from.Format("2006-01-02"),
		"to":      to.Format("2006-01-02"),
		"workers": s.workers,
	}).Info("Starting history sync")

	var mu sync.Mutex
	results := make([]SyncResult, 0, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, sym := range symbols {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := s.syncOne(gctx, sym, from, to)
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].Symbol < results[j].Symbol })

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	s.logger.WithFields(map[string]interface{}{
		"synced":  len(results) - failed,
		"failed":  failed,
		"elapsed": time.Since(start).String(),
	}).Info("History sync completed")

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

func (s *Syncer) syncOne(ctx context.Context, symbol string, from, to time.Time) SyncResult {
	bars, err := s.source.FetchHistory(ctx, symbol, from, to)
	if err != nil {
		s.logger.WithError(err).WithSymbol(symbol).Warn("History fetch failed")
		return SyncResult{Symbol: symbol, Error: err.Error()}
	}
	if err := s.repo.SaveBars(ctx, symbol, bars); err != nil {
		s.logger.WithError(err).WithSymbol(symbol).Warn("History save failed")
		return SyncResult{Symbol: symbol, Error: fmt.Sprintf("save: %v", err)}
	}
	return SyncResult{Symbol: symbol, Bars: len(bars)}
}
