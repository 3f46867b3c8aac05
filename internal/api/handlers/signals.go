package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// SignalRunner runs one pipeline pass
type SignalRunner interface {
	Run(ctx context.Context, cfg pipeline.RunConfig) (*contracts.RunSummary, error)
}

// SignalHandler serves signal generation and signal history
type SignalHandler struct {
	runner   SignalRunner
	universe pipeline.UniverseSource
	signals  contracts.SignalRepository
	logger   *logger.Logger
}

// NewSignalHandler creates a signal handler. repo may be nil when no database is configured.
func NewSignalHandler(runner SignalRunner, universe pipeline.UniverseSource, repo contracts.SignalRepository, log *logger.Logger) *SignalHandler {
	return &SignalHandler{runner: runner, universe: universe, signals: repo, logger: log}
}

// GenerateRequest restricts a run to a subset of symbols
type GenerateRequest struct {
	Symbols []string `json:"symbols" validate:"omitempty,max=500,dive,required"`
	DryRun  bool     `json:"dry_run"`
}

// Generate runs the pipeline synchronously
// POST /api/signals/generate
func (h *SignalHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondInvalid(w, errs)
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

	summary, err := h.runner.Run(r.Context(), pipeline.RunConfig{Universe: u, DryRun: req.DryRun})
	if err != nil {
		h.logger.WithError(err).Error("Signal generation failed")
		respondError(w, http.StatusInternalServerError, "Signal generation failed")
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// History returns stored signals for a symbol
// GET /api/signals/{symbol}?since=YYYY-MM-DD
func (h *SignalHandler) History(w http.ResponseWriter, r *http.Request) {
	if h.signals == nil {
		respondError(w, http.StatusServiceUnavailable, "Signal storage is not configured")
		return
	}

	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	since := time.Now().AddDate(0, 0, -30)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'since' date format (expected YYYY-MM-DD)")
			return
		}
		since = parsed
	}

	signals, err := h.signals.SignalsSince(r.Context(), symbol, since)
	if err != nil {
		h.logger.WithError(err).WithSymbol(symbol).Error("Failed to load signals")
		respondError(w, http.StatusInternalServerError, "Failed to load signals")
		return
	}
	if signals == nil {
		signals = []contracts.ConsensusSignal{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"since":   since.Format("2006-01-02"),
		"signals": signals,
	})
}

// subset keeps the requested symbols in request order.
// Symbols outside the universe are treated as plain tradable instruments.
func subset(u contracts.Universe, symbols []string) contracts.Universe {
	out := contracts.Universe{Date: u.Date}
	seen := make(map[string]struct{}, len(symbols))
	for _, raw := range symbols {
		sym := strings.ToUpper(strings.TrimSpace(raw))
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}

		inst, ok := u.Lookup(sym)
		if !ok {
			inst = contracts.Instrument{Symbol: sym, Tradable: true}
		}
		out.Instruments = append(out.Instruments, inst)
	}
	return out
}
