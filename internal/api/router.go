package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/aegis-signals/internal/api/handlers"
	"github.com/wonny/aegis-signals/pkg/logger"
)

// Handlers groups everything the router can serve.
// Nil members leave their routes unregistered.
type Handlers struct {
	Signals    *handlers.SignalHandler
	Compliance *handlers.ComplianceHandler
	Backtest   *handlers.BacktestHandler
	Gateway    *handlers.GatewayHandler
	Scheduler  *handlers.SchedulerHandler
	Metrics    http.Handler
	Stream     http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: routes are declared in this function only
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}
	if h.Stream != nil {
		r.Handle("/ws/signals", h.Stream).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	if h.Signals != nil {
		api.HandleFunc("/signals/generate", h.Signals.Generate).Methods("POST")
		api.HandleFunc("/signals/{symbol}", h.Signals.History).Methods("GET")
	}
	if h.Backtest != nil {
		api.HandleFunc("/backtest/run", h.Backtest.Run).Methods("POST")
	}
	if h.Compliance != nil {
		api.HandleFunc("/compliance/resolve", h.Compliance.Resolve).Methods("POST")
		api.HandleFunc("/compliance/{symbol}", h.Compliance.Get).Methods("GET")
	}
	if h.Gateway != nil {
		api.HandleFunc("/gateway/breaker", h.Gateway.Breaker).Methods("GET")
	}
	if h.Scheduler != nil {
		api.HandleFunc("/scheduler/jobs", h.Scheduler.Jobs).Methods("GET")
		api.HandleFunc("/scheduler/jobs/{name}/run", h.Scheduler.Trigger).Methods("POST")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": "aegis-signals-api",
	})
}

// statusRecorder captures the response code for request logs.
// Websocket upgrades bypass it because they need http.Hijacker.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Unwrap() http.ResponseWriter {
	return s.ResponseWriter
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Websocket upgrades need the raw writer
			if r.Header.Get("Upgrade") == "websocket" {
				next.ServeHTTP(w, r)
				return
			}

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
