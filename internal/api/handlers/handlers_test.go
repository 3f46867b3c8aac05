package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/internal/scheduler"
	"github.com/wonny/aegis-signals/pkg/logger"
)

var day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func testUniverse() pipeline.StaticUniverse {
	return pipeline.StaticUniverse{
		Date: day,
		Instruments: []contracts.Instrument{
			{Symbol: "AAPL", Name: "Apple", Tradable: true},
			{Symbol: "MSFT", Name: "Microsoft", Tradable: true},
		},
	}
}

type fakeRunner struct {
	got contracts.Universe
	dry bool
	err error
}

func (f *fakeRunner) Run(_ context.Context, cfg pipeline.RunConfig) (*contracts.RunSummary, error) {
	f.got = cfg.Universe
	f.dry = cfg.DryRun
	if f.err != nil {
		return nil, f.err
	}
	return &contracts.RunSummary{RunID: "run-1", Signals: []contracts.ConsensusSignal{{Symbol: "AAPL", Direction: contracts.DirectionBuy}}}, nil
}

type fakeSignalRepo struct {
	signals []contracts.ConsensusSignal
	since   time.Time
}

func (f *fakeSignalRepo) SaveSignals(_ context.Context, s []contracts.ConsensusSignal) error {
	f.signals = append(f.signals, s...)
	return nil
}

func (f *fakeSignalRepo) SignalsSince(_ context.Context, symbol string, since time.Time) ([]contracts.ConsensusSignal, error) {
	f.since = since
	var out []contracts.ConsensusSignal
	for _, s := range f.signals {
		if s.Symbol == symbol {
			out = append(out, s)
		}
	}
	return out, nil
}

func do(t *testing.T, h http.HandlerFunc, method, path, pattern, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc(pattern, h).Methods(method)

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest))
}

func TestSignalHandler_Generate(t *testing.T) {
	runner := &fakeRunner{}
	h := NewSignalHandler(runner, testUniverse(), nil, logger.Nop())

	rec := do(t, h.Generate, "POST", "/api/signals/generate", "/api/signals/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"AAPL", "MSFT"}, runner.got.Symbols())

	var summary contracts.RunSummary
	decode(t, rec, &summary)
	assert.Equal(t, "run-1", summary.RunID)
	assert.Len(t, summary.Signals, 1)
}

func TestSignalHandler_GenerateSubset(t *testing.T) {
	runner := &fakeRunner{}
	h := NewSignalHandler(runner, testUniverse(), nil, logger.Nop())

	rec := do(t, h.Generate, "POST", "/api/signals/generate", "/api/signals/generate",
		`{"symbols":["msft"," nvda ","MSFT"],"dry_run":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.True(t, runner.dry)
	assert.Equal(t, []string{"MSFT", "NVDA"}, runner.got.Symbols())
	msft, _ := runner.got.Lookup("MSFT")
	assert.Equal(t, "Microsoft", msft.Name)
	nvda, _ := runner.got.Lookup("NVDA")
	assert.True(t, nvda.Tradable)
}

func TestSignalHandler_GenerateRejectsBadBody(t *testing.T) {
	h := NewSignalHandler(&fakeRunner{}, testUniverse(), nil, logger.Nop())

	rec := do(t, h.Generate, "POST", "/api/signals/generate", "/api/signals/generate", `{"symbols":[""]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_REQUIRED")

	rec = do(t, h.Generate, "POST", "/api/signals/generate", "/api/signals/generate", `{"unknown":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_BODY")
}

func TestSignalHandler_GenerateFailure(t *testing.T) {
	h := NewSignalHandler(&fakeRunner{err: errors.New("boom")}, testUniverse(), nil, logger.Nop())

	rec := do(t, h.Generate, "POST", "/api/signals/generate", "/api/signals/generate", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSignalHandler_History(t *testing.T) {
	repo := &fakeSignalRepo{signals: []contracts.ConsensusSignal{
		{Symbol: "AAPL", Direction: contracts.DirectionBuy},
		{Symbol: "MSFT", Direction: contracts.DirectionSell},
	}}
	h := NewSignalHandler(&fakeRunner{}, testUniverse(), repo, logger.Nop())

	rec := do(t, h.History, "GET", "/api/signals/aapl?since=2024-01-02", "/api/signals/{symbol}", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Symbol  string                      `json:"symbol"`
		Since   string                      `json:"since"`
		Signals []contracts.ConsensusSignal `json:"signals"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "AAPL", body.Symbol)
	assert.Equal(t, "2024-01-02", body.Since)
	require.Len(t, body.Signals, 1)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), repo.since)

	rec = do(t, h.History, "GET", "/api/signals/AAPL?since=yesterday", "/api/signals/{symbol}", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h.History, "GET", "/api/signals/TSLA", "/api/signals/{symbol}", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"signals":[]`)
}

func TestSignalHandler_HistoryWithoutStorage(t *testing.T) {
	h := NewSignalHandler(&fakeRunner{}, testUniverse(), nil, logger.Nop())

	rec := do(t, h.History, "GET", "/api/signals/AAPL", "/api/signals/{symbol}", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type fakeResolver struct {
	registered []string
	force      bool
	err        error
}

func (f *fakeResolver) Register(instruments ...contracts.Instrument) {
	for _, inst := range instruments {
		f.registered = append(f.registered, inst.Symbol)
	}
}

func (f *fakeResolver) Resolve(_ context.Context, symbol string, opts compliance.Options) (contracts.ComplianceRecord, error) {
	f.force = opts.ForceRefresh
	if f.err != nil {
		return contracts.ComplianceRecord{}, f.err
	}
	return contracts.ComplianceRecord{Symbol: symbol, Status: contracts.StatusCompliant, Confidence: contracts.ConfidenceHigh, ResolvedBy: contracts.TierProvider}, nil
}

func (f *fakeResolver) ResolveUniverse(_ context.Context, symbols []string) (*compliance.UniverseResult, error) {
	out := &compliance.UniverseResult{Records: map[string]contracts.ComplianceRecord{}}
	for _, sym := range symbols {
		status := contracts.StatusCompliant
		if sym == "BRKB" {
			status = contracts.StatusNonCompliant
		}
		out.Records[sym] = contracts.ComplianceRecord{Symbol: sym, Status: status}
	}
	return out, nil
}

func TestComplianceHandler_Get(t *testing.T) {
	res := &fakeResolver{}
	h := NewComplianceHandler(res, testUniverse(), logger.Nop())

	rec := do(t, h.Get, "GET", "/api/compliance/aapl?refresh=true", "/api/compliance/{symbol}", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var record contracts.ComplianceRecord
	decode(t, rec, &record)
	assert.Equal(t, "AAPL", record.Symbol)
	assert.Equal(t, contracts.StatusCompliant, record.Status)
	assert.True(t, res.force)
	assert.Equal(t, []string{"AAPL", "MSFT"}, res.registered)
}

func TestComplianceHandler_GetFailure(t *testing.T) {
	h := NewComplianceHandler(&fakeResolver{err: errors.New("store down")}, nil, logger.Nop())

	rec := do(t, h.Get, "GET", "/api/compliance/AAPL", "/api/compliance/{symbol}", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestComplianceHandler_Resolve(t *testing.T) {
	h := NewComplianceHandler(&fakeResolver{}, nil, logger.Nop())

	rec := do(t, h.Resolve, "POST", "/api/compliance/resolve", "/api/compliance/resolve", `{"symbols":["aapl","BRKB"]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Records  map[string]contracts.ComplianceRecord `json:"records"`
		Eligible []string                              `json:"eligible"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Records, 2)
	assert.Equal(t, []string{"AAPL"}, body.Eligible)
}

func TestComplianceHandler_ResolveValidation(t *testing.T) {
	h := NewComplianceHandler(&fakeResolver{}, nil, logger.Nop())

	tests := []struct {
		name string
		body string
		code string
	}{
		{"missing symbols", `{}`, "ERR_REQUIRED"},
		{"empty list", `{"symbols":[]}`, "ERR_MIN"},
		{"blank symbol", `{"symbols":["AAPL",""]}`, "ERR_REQUIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h.Resolve, "POST", "/api/compliance/resolve", "/api/compliance/resolve", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.code)
		})
	}
}

type fakeBacktester struct {
	universe contracts.Universe
	r        contracts.DateRange
	cfg      backtest.Config
	err      error
}

func (f *fakeBacktester) Run(_ context.Context, _ []contracts.StrategyAdapter, u contracts.Universe, r contracts.DateRange, cfg backtest.Config) (*contracts.BacktestReport, error) {
	f.universe = u
	f.r = r
	f.cfg = cfg
	report := &contracts.BacktestReport{From: r.From.Format("2006-01-02"), To: r.To.Format("2006-01-02"), Instruments: u.Count()}
	return report, f.err
}

func TestBacktestHandler_Run(t *testing.T) {
	bt := &fakeBacktester{}
	h := NewBacktestHandler(bt, nil, testUniverse(), backtest.DefaultConfig(), logger.Nop())

	rec := do(t, h.Run, "POST", "/api/backtest/run", "/api/backtest/run",
		`{"from":"2023-01-02","to":"2023-12-29","symbols":["AAPL"],"max_holding_days":5}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var report contracts.BacktestReport
	decode(t, rec, &report)
	assert.Equal(t, "2023-01-02", report.From)
	assert.Equal(t, 1, report.Instruments)
	assert.Equal(t, 5, bt.cfg.MaxHoldingDays)
	assert.Equal(t, backtest.DefaultConfig().Commission, bt.cfg.Commission)
}

func TestBacktestHandler_Validation(t *testing.T) {
	h := NewBacktestHandler(&fakeBacktester{}, nil, testUniverse(), backtest.DefaultConfig(), logger.Nop())

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing dates", `{}`, "ERR_REQUIRED"},
		{"bad date", `{"from":"01/02/2023","to":"2023-12-29"}`, "ERR_DATETIME"},
		{"holding too long", `{"from":"2023-01-02","to":"2023-12-29","max_holding_days":900}`, "ERR_LTE"},
		{"reversed range", `{"from":"2023-12-29","to":"2023-01-02"}`, "must not be after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h.Run, "POST", "/api/backtest/run", "/api/backtest/run", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestBacktestHandler_NoUsableData(t *testing.T) {
	h := NewBacktestHandler(&fakeBacktester{err: backtest.ErrNoUsableData}, nil, testUniverse(), backtest.DefaultConfig(), logger.Nop())

	rec := do(t, h.Run, "POST", "/api/backtest/run", "/api/backtest/run", `{"from":"2023-01-02","to":"2023-12-29"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "no usable historical data")
}

type fakeBreaker struct{}

func (fakeBreaker) BreakerState() contracts.CircuitBreakerState {
	return contracts.CircuitBreakerState{Provider: "marketdata", State: contracts.BreakerOpen, ConsecutiveFailures: 3}
}

func TestGatewayHandler_Breaker(t *testing.T) {
	h := NewGatewayHandler(fakeBreaker{})

	rec := do(t, h.Breaker, "GET", "/api/gateway/breaker", "/api/gateway/breaker", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var state contracts.CircuitBreakerState
	decode(t, rec, &state)
	assert.Equal(t, contracts.BreakerOpen, state.State)
	assert.Equal(t, uint32(3), state.ConsecutiveFailures)
}

type fakeJobs struct {
	ran []string
}

func (f *fakeJobs) GetJobStats() map[string]scheduler.JobStats {
	return map[string]scheduler.JobStats{"signal_generation": {JobName: "signal_generation", TotalRuns: 2}}
}

func (f *fakeJobs) RunJob(name string) error {
	if name != "signal_generation" {
		return fmt.Errorf("job %s not found", name)
	}
	f.ran = append(f.ran, name)
	return nil
}

func TestSchedulerHandler(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewSchedulerHandler(jobs, logger.Nop())

	rec := do(t, h.Jobs, "GET", "/api/scheduler/jobs", "/api/scheduler/jobs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_runs":2`)

	rec = do(t, h.Trigger, "POST", "/api/scheduler/jobs/signal_generation/run", "/api/scheduler/jobs/{name}/run", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"signal_generation"}, jobs.ran)

	rec = do(t, h.Trigger, "POST", "/api/scheduler/jobs/nope/run", "/api/scheduler/jobs/{name}/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
