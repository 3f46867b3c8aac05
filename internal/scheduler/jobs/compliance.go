package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Refresher is the resolver surface used by the refresh job
type Refresher interface {
	Register(instruments ...contracts.Instrument)
	Invalidate(ctx context.Context, symbol string)
	ResolveUniverse(ctx context.Context, symbols []string) (*compliance.UniverseResult, error)
}

// ComplianceRefreshJob re-resolves the whole universe, ignoring cached records
type ComplianceRefreshJob struct {
	resolver Refresher
	universe pipeline.UniverseSource
	logger   *logger.Logger
}

// NewComplianceRefreshJob creates the weekly refresh job
func NewComplianceRefreshJob(resolver Refresher, universe pipeline.UniverseSource, log *logger.Logger) *ComplianceRefreshJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ComplianceRefreshJob{resolver: resolver, universe: universe, logger: log}
}

// Name returns the job name
func (j *ComplianceRefreshJob) Name() string {
	return "compliance_refresh"
}

// Schedule returns the cron schedule (Saturday 6 AM)
func (j *ComplianceRefreshJob) Schedule() string {
	return "0 0 6 * * SAT"
}

// Run invalidates every record then resolves the universe in one batch
func (j *ComplianceRefreshJob) Run(ctx context.Context) error {
	u, err := j.universe.Universe(ctx)
	if err != nil {
		return fmt.Errorf("load universe: %w", err)
	}

	symbols := u.Symbols()
	j.resolver.Register(u.Instruments...)
	for _, sym := range symbols {
		j.resolver.Invalidate(ctx, sym)
	}

	res, err := j.resolver.ResolveUniverse(ctx, symbols)
	if err != nil {
		return fmt.Errorf("resolve universe: %w", err)
	}
	if res.Cancelled {
		return context.Canceled
	}

	review := 0
	for _, rec := range res.Records {
		if rec.ReviewRequired {
			review++
		}
	}
	j.logger.WithFields(map[string]interface{}{
		"resolved": len(res.Records),
		"eligible": len(res.Eligible()),
		"review":   review,
		"degraded": res.Degraded,
	}).Info("Compliance refresh completed")
	return nil
}

// ComplianceCleanupJob drops expired records from the in-process compliance store
type ComplianceCleanupJob struct {
	store  *compliance.Store
	logger *logger.Logger
}

// NewComplianceCleanupJob creates a new cleanup job
func NewComplianceCleanupJob(store *compliance.Store, log *logger.Logger) *ComplianceCleanupJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ComplianceCleanupJob{store: store, logger: log}
}

// Name returns the job name
func (j *ComplianceCleanupJob) Name() string {
	return "compliance_cleanup"
}

// Schedule returns the cron schedule (hourly)
func (j *ComplianceCleanupJob) Schedule() string {
	return "0 0 * * * *"
}

// Run executes the cleanup
func (j *ComplianceCleanupJob) Run(_ context.Context) error {
	if removed := j.store.Prune(); removed > 0 {
		j.logger.WithField("removed", removed).Info("Compliance cleanup completed")
	}
	return nil
}
