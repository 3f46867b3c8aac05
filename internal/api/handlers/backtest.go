package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/wonny/aegis-signals/internal/backtest"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// BacktestRunner replays strategies over history
type BacktestRunner interface {
	Run(ctx context.Context, strategies []contracts.StrategyAdapter, universe contracts.Universe, r contracts.DateRange, cfg backtest.Config) (*contracts.BacktestReport, error)
}

// BacktestHandler serves backtest runs
type BacktestHandler struct {
	runner     BacktestRunner
	strategies []contracts.StrategyAdapter
	universe   pipeline.UniverseSource
	base       backtest.Config
	logger     *logger.Logger
}

// NewBacktestHandler creates a backtest handler
func NewBacktestHandler(runner BacktestRunner, strategies []contracts.StrategyAdapter, universe pipeline.UniverseSource, base backtest.Config, log *logger.Logger) *BacktestHandler {
	return &BacktestHandler{runner: runner, strategies: strategies, universe: universe, base: base, logger: log}
}

// RunRequest selects the range and optional overrides
type RunRequest struct {
	From           string   `json:"from" validate:"required,datetime=2006-01-02"`
	To             string   `json:"to" validate:"required,datetime=2006-01-02"`
	Symbols        []string `json:"symbols" validate:"omitempty,max=500,dive,required"`
	MaxHoldingDays int      `json:"max_holding_days" validate:"omitempty,gte=1,lte=250"`
}

// Run executes a backtest synchronously
// POST /api/backtest/run
func (h *BacktestHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondInvalid(w, errs)
		return
	}

	from, _ := time.Parse("2006-01-02", req.From)
	to, _ := time.Parse("2006-01-02", req.To)
	dr := contracts.DateRange{From: from, To: to}
	if !dr.Valid() {
		respondError(w, http.StatusBadRequest, "'from' must not be after 'to'")
		return
	}

	u, err := h.universe.Universe(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load universe")
		respondError(w, http.StatusInternalServerError, "Failed to load universe")
		return
	}
	if len(req.Symbols) > 0 {
		u = subset(u, req.Symbols)
	}

	cfg := h.base
	if req.MaxHoldingDays > 0 {
		cfg.MaxHoldingDays = req.MaxHoldingDays
	}

	report, err := h.runner.Run(r.Context(), h.strategies, u, dr, cfg)
	switch {
	case errors.Is(err, backtest.ErrNoUsableData):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	case err != nil:
		h.logger.WithError(err).Error("Backtest failed")
		respondError(w, http.StatusInternalServerError, "Backtest failed")
		return
	}

	respondJSON(w, http.StatusOK, report)
}
