package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/history"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/clock"
	"github.com/wonny/aegis-signals/pkg/logger"
)

var now = time.Date(2024, 3, 4, 16, 0, 0, 0, time.UTC)

func testUniverse() pipeline.StaticUniverse {
	return pipeline.StaticUniverse{Date: now, Instruments: []contracts.Instrument{
		{Symbol: "A", Tradable: true},
		{Symbol: "B", Tradable: true},
	}}
}

type fakeRunner struct {
	got     pipeline.RunConfig
	summary *contracts.RunSummary
	err     error
}

func (f *fakeRunner) Run(_ context.Context, cfg pipeline.RunConfig) (*contracts.RunSummary, error) {
	f.got = cfg
	return f.summary, f.err
}

func TestSignalJob(t *testing.T) {
	r := &fakeRunner{summary: &contracts.RunSummary{RunID: "x", Degraded: true}}
	job := NewSignalJob(r, testUniverse(), "", logger.Nop())

	assert.Equal(t, "signal_generation", job.Name())
	assert.Equal(t, "0 30 16 * * MON-FRI", job.Schedule())
	require.NoError(t, job.Run(context.Background()), "degraded runs succeed")
	assert.Equal(t, 2, r.got.Universe.Count())

	r.summary = &contracts.RunSummary{Cancelled: true}
	assert.ErrorIs(t, job.Run(context.Background()), context.Canceled)

	r.err = errors.New("boom")
	assert.ErrorContains(t, job.Run(context.Background()), "boom")
}

type fakeRefresher struct {
	registered  int
	invalidated []string
	records     map[string]contracts.ComplianceRecord
}

func (f *fakeRefresher) Register(instruments ...contracts.Instrument) {
	f.registered += len(instruments)
}

func (f *fakeRefresher) Invalidate(_ context.Context, symbol string) {
	f.invalidated = append(f.invalidated, symbol)
}

func (f *fakeRefresher) ResolveUniverse(_ context.Context, symbols []string) (*compliance.UniverseResult, error) {
	return &compliance.UniverseResult{Records: f.records}, nil
}

func TestComplianceRefreshJob(t *testing.T) {
	f := &fakeRefresher{records: map[string]contracts.ComplianceRecord{
		"A": {Symbol: "A", Status: contracts.StatusCompliant},
		"B": {Symbol: "B", Status: contracts.StatusUnknown, ReviewRequired: true},
	}}
	job := NewComplianceRefreshJob(f, testUniverse(), logger.Nop())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"A", "B"}, f.invalidated)
	assert.Equal(t, 2, f.registered)
}

func TestComplianceCleanupJob(t *testing.T) {
	clk := clock.NewManual(now)
	store := compliance.NewStore(clk, logger.Nop())
	store.Put(context.Background(), contracts.ComplianceRecord{Symbol: "A", ExpiresAt: now.Add(time.Minute)})

	clk.Advance(time.Hour)
	require.NoError(t, NewComplianceCleanupJob(store, nil).Run(context.Background()))
	assert.Zero(t, store.Len())
}

type fakeSyncer struct {
	from, to time.Time
	results  []history.SyncResult
}

func (f *fakeSyncer) Sync(_ context.Context, symbols []string, from, to time.Time) ([]history.SyncResult, error) {
	f.from, f.to = from, to
	return f.results, nil
}

func TestHistorySyncJob(t *testing.T) {
	s := &fakeSyncer{results: []history.SyncResult{{Symbol: "A", Bars: 5}, {Symbol: "B", Error: "down"}}}
	job := NewHistorySyncJob(s, testUniverse(), 7, clock.NewManual(now), logger.Nop())

	require.NoError(t, job.Run(context.Background()), "partial failure is tolerated")
	assert.Equal(t, now.AddDate(0, 0, -7), s.from)
	assert.Equal(t, now, s.to)

	s.results = []history.SyncResult{{Symbol: "A", Error: "down"}, {Symbol: "B", Error: "down"}}
	assert.Error(t, job.Run(context.Background()))
}
