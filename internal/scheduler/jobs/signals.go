package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Runner executes one pipeline pass
type Runner interface {
	Run(ctx context.Context, cfg pipeline.RunConfig) (*contracts.RunSummary, error)
}

// SignalJob generates consensus signals after the close
// ⭐ SSOT: the signal generation schedule lives in this job only
type SignalJob struct {
	runner   Runner
	universe pipeline.UniverseSource
	schedule string
	logger   *logger.Logger
}

// NewSignalJob creates a signal generation job. An empty schedule uses the default.
func NewSignalJob(runner Runner, universe pipeline.UniverseSource, schedule string, log *logger.Logger) *SignalJob {
	if schedule == "" {
		schedule = "0 30 16 * * MON-FRI" // 4:30 PM on weekdays
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SignalJob{runner: runner, universe: universe, schedule: schedule, logger: log}
}

// Name returns the job name
func (j *SignalJob) Name() string {
	return "signal_generation"
}

// Schedule returns the cron schedule
func (j *SignalJob) Schedule() string {
	return j.schedule
}

// Run loads the universe and runs the pipeline. A degraded run still succeeds.
func (j *SignalJob) Run(ctx context.Context) error {
	u, err := j.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	summary, err := j.runner.Run(ctx, pipeline.RunConfig{Universe: u})
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}
	if summary.Cancelled {
		return context.Canceled
	}

	j.logger.WithFields(map[string]interface{}{
		"run_id":   summary.RunID,
		"signals":  len(summary.Signals),
		"excluded": len(summary.Excluded),
		"degraded": summary.Degraded,
	}).Info("Scheduled signal generation completed")
	return nil
}
