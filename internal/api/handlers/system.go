package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signals/internal/contracts"
	"github.com/wonny/aegis-signals/internal/scheduler"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// BreakerSource exposes the gateway circuit breaker
type BreakerSource interface {
	BreakerState() contracts.CircuitBreakerState
}

// GatewayHandler serves gateway diagnostics
type GatewayHandler struct {
	breaker BreakerSource
}

// NewGatewayHandler creates a gateway handler
func NewGatewayHandler(breaker BreakerSource) *GatewayHandler {
	return &GatewayHandler{breaker: breaker}
}

// Breaker returns the breaker state
// GET /api/gateway/breaker
func (h *GatewayHandler) Breaker(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.breaker.BreakerState())
}

// JobController is the scheduler surface exposed over HTTP
type JobController interface {
	GetJobStats() map[string]scheduler.JobStats
	RunJob(name string) error
}

// SchedulerHandler serves job stats and manual triggers
type SchedulerHandler struct {
	jobs   JobController
	logger *logger.Logger
}

// NewSchedulerHandler creates a scheduler handler
func NewSchedulerHandler(jobs JobController, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{jobs: jobs, logger: log}
}

// Jobs lists job statistics
// GET /api/scheduler/jobs
func (h *SchedulerHandler) Jobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

// Trigger runs a job now in the background
// POST /api/scheduler/jobs/{name}/run
func (h *SchedulerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.jobs.RunJob(name); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	h.logger.WithJob(name).Info("Job triggered via API")
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "job": name})
}
