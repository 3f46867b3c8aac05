package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signals/internal/compliance"
	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/pipeline"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// ComplianceResolver is the resolver surface exposed over HTTP
type ComplianceResolver interface {
	Register(instruments ...contracts.Instrument)
	Resolve(ctx context.Context, symbol string, opts compliance.Options) (contracts.ComplianceRecord, error)
	ResolveUniverse(ctx context.Context, symbols []string) (*compliance.UniverseResult, error)
}

// ComplianceHandler serves compliance lookups
type ComplianceHandler struct {
	resolver ComplianceResolver
	universe pipeline.UniverseSource
	logger   *logger.Logger
}

// NewComplianceHandler creates a compliance handler.
// When universe is set its instrument metadata is registered before each lookup.
func NewComplianceHandler(resolver ComplianceResolver, universe pipeline.UniverseSource, log *logger.Logger) *ComplianceHandler {
	return &ComplianceHandler{resolver: resolver, universe: universe, logger: log}
}

// Get resolves one symbol
// GET /api/compliance/{symbol}?refresh=true
func (h *ComplianceHandler) Get(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(mux.Vars(r)["symbol"])
	h.register(r.Context())

	rec, err := h.resolver.Resolve(r.Context(), symbol, compliance.Options{
		ForceRefresh: r.URL.Query().Get("refresh") == "true",
	})
	if err != nil {
		h.logger.WithError(err).WithSymbol(symbol).Error("Compliance resolution failed")
		respondError(w, http.StatusInternalServerError, "Compliance resolution failed")
		return
	}

	respondJSON(w, http.StatusOK, rec)
}

// ResolveRequest lists the symbols to resolve
type ResolveRequest struct {
	Symbols []string `json:"symbols" validate:"required,min=1,max=500,dive,required"`
}

// ResolveResponse is the bulk result
type ResolveResponse struct {
	*compliance.UniverseResult
	Eligible []string `json:"eligible"`
}

// Resolve resolves many symbols in one batch
// POST /api/compliance/resolve
func (h *ComplianceHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if errs := decodeAndValidate(r, &req); errs != nil {
		respondInvalid(w, errs)
		return
	}
	for i, s := range req.Symbols {
		req.Symbols[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	h.register(r.Context())

	res, err := h.resolver.ResolveUniverse(r.Context(), req.Symbols)
	if err != nil {
		h.logger.WithError(err).Error("Bulk compliance resolution failed")
		respondError(w, http.StatusInternalServerError, "Compliance resolution failed")
		return
	}

	respondJSON(w, http.StatusOK, ResolveResponse{UniverseResult: res, Eligible: res.Eligible()})
}

func (h *ComplianceHandler) register(ctx context.Context) {
	if h.universe == nil {
		return
	}
	u, err := h.universe.Universe(ctx)
	if err != nil {
		h.logger.WithError(err).Warn("Universe unavailable, resolving without instrument metadata")
		return
	}
	h.resolver.Register(u.Instruments...)
}
