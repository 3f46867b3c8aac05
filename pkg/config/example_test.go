package config_test

import (
	"fmt"

	"github.com/wonny/aegis-signals/pkg/config"
)

// Load reads the environment (and .env) once at startup; components take
// the sub-config they need.
func ExampleLoad() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("config: %v\n", err)
		return
	}

	g := cfg.Gateway
	fmt.Printf("gateway: %d workers, batches of %d, breaker after %d failures\n",
		g.Workers, g.BatchSize, g.FailureThreshold)
	fmt.Printf("compliance TTLs: %s / %s / %s\n",
		cfg.Compliance.PrimaryTTL, cfg.Compliance.FallbackTTL, cfg.Compliance.UnknownTTL)
	fmt.Printf("database configured: %v\n", cfg.Database.Enabled())
}
