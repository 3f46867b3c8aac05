package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/internal/api"
	"github.com/wonny/aegis-signals/internal/api/handlers"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the API server",
	Long: `Starts the REST API server.

Endpoints:
  GET  /health                         - Health check
  GET  /metrics                        - Prometheus metrics
  GET  /ws/signals                     - Live consensus signal stream
  POST /api/signals/generate           - Run the pipeline now
  GET  /api/signals/{symbol}           - Stored signals for a symbol
  POST /api/backtest/run               - Replay strategies over history
  GET  /api/compliance/{symbol}        - Resolve one instrument
  POST /api/compliance/resolve         - Resolve many instruments
  GET  /api/gateway/breaker            - Provider circuit breaker state
  GET  /api/scheduler/jobs             - Job statistics (--with-scheduler)
  POST /api/scheduler/jobs/{name}/run  - Trigger a job (--with-scheduler)

Example:
  go run ./cmd/quant api
  go run ./cmd/quant api --port 8080 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "run the job scheduler in the same process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Signals API Server ===")

	// 1. Wire the engine
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	// 2. Create handlers
	h := api.Handlers{
		Signals:    handlers.NewSignalHandler(a.pipeline, a.universe, a.signals, a.log),
		Compliance: handlers.NewComplianceHandler(a.resolver, a.universe, a.log),
		Backtest:   handlers.NewBacktestHandler(a.backtest, a.registry.Adapters(), a.universe, a.btConfig, a.log),
		Gateway:    handlers.NewGatewayHandler(a.gateway),
		Stream:     a.hub,
	}
	if a.metrics != nil {
		h.Metrics = a.metrics.Handler()
	}

	// 3. Optional in-process scheduler
	if apiWithScheduler {
		sched, err := a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
		h.Scheduler = handlers.NewSchedulerHandler(sched, a.log)
	}

	// 4. Create router and server
	router := api.NewRouter(h, a.log)
	server := api.New(a.cfg, a.log, router)
	server.OnShutdown(a.hub.Close)

	// 5. Serve until interrupted
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n✅ Server running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	return server.Run(ctx)
}
