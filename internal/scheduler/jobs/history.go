package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/aegis-signals/internal/history"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Syncer copies upstream bars into storage
type Syncer interface {
	Sync(ctx context.Context, symbols []string, from, to time.Time) ([]history.SyncResult, error)
}

// HistorySyncJob refreshes the trailing daily bars every weekday
type HistorySyncJob struct {
	syncer   Syncer
	universe pipeline.UniverseSource
	days     int
	clock    clock.Clock
	logger   *logger.Logger
}

// NewHistorySyncJob creates a history sync job covering the last days calendar days
func NewHistorySyncJob(syncer Syncer, universe pipeline.UniverseSource, days int, clk clock.Clock, log *logger.Logger) *HistorySyncJob {
	if days < 1 {
		days = 5
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &HistorySyncJob{syncer: syncer, universe: universe, days: days, clock: clk, logger: log}
}

// Name returns the job name
func (j *HistorySyncJob) Name() string {
	return "history_sync"
}

// Schedule returns the cron schedule (4 PM on weekdays, before signal generation)
func (j *HistorySyncJob) Schedule() string {
	return "0 0 16 * * MON-FRI"
}

// Run executes the sync. It fails only when every symbol failed.
func (j *HistorySyncJob) Run(ctx context.Context) error {
	u, err := j.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	to := j.clock.Now()
	from := to.AddDate(0, 0, -j.days)

	results, err := j.syncer.Sync(ctx, u.Symbols(), from, to)
	if err != nil {
		return fmt.Errorf("sync history: %w", err)
	}

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if len(results) > 0 && failed == len(results) {
		return fmt.Errorf("history sync failed for all %d symbols", failed)
	}
	return nil
}
