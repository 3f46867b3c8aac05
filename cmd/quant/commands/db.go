package commands

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/aegis-signals/pkg/config"
	"github.com/wonny/aegis-signals/pkg/database"
	"github.com/wonny/aegis-signals/pkg/redis"
)

// dbCmd groups PostgreSQL tooling
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "PostgreSQL tooling",
	Long: `Checks the database connection and applies the schema.

Example:
  go run ./cmd/quant db check
  go run ./cmd/quant db migrate`,
}

var (
	dbCheckCmd = &cobra.Command{
		Use:   "check",
		Short: "Test PostgreSQL (and Redis, when enabled) connectivity",
		RunE:  runDBCheck,
	}

	dbMigrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Create the market and signals tables",
		RunE:  runDBMigrate,
	}
)

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbCheckCmd)
	dbCmd.AddCommand(dbMigrateCmd)
}

func connectDB() (*config.Config, *database.DB, error) {
	fmt.Println("Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Failed to load config: %w", err)
	}
	fmt.Printf("✅ Config loaded (ENV: %s)\n", cfg.Env)
	fmt.Printf("   Database URL: %s\n\n", maskPassword(cfg.Database.URL))

	fmt.Println("Connecting to database...")
	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Failed to connect to database: %w", err)
	}
	fmt.Println("✅ Database connection established")
	return cfg, db, nil
}

func runDBCheck(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Aegis Signals Database Check ===")

	cfg, db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := db.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("❌ Health check failed: %w", err)
	}

	fmt.Println("✅ Health Check Results:")
	fmt.Printf("   Healthy: %v\n", status.Healthy)
	fmt.Printf("   Response Time: %v\n", status.ResponseTime)
	fmt.Printf("   Timestamp: %v\n\n", status.Timestamp.Format(time.RFC3339))

	fmt.Println("📊 Connection Pool Statistics:")
	fmt.Printf("   Max Connections: %d\n", status.Stats.MaxConns)
	fmt.Printf("   Total Connections: %d\n", status.Stats.TotalConns)
	fmt.Printf("   Acquired Connections: %d\n", status.Stats.AcquiredConns)
	fmt.Printf("   Idle Connections: %d\n", status.Stats.IdleConns)
	fmt.Printf("   Acquire Count: %d\n", status.Stats.AcquireCount)

	if !cfg.Redis.Enabled {
		fmt.Println("\nRedis: disabled (REDIS_ENABLED=false)")
		return nil
	}
	rc, err := redis.New(cfg)
	if err != nil {
		return fmt.Errorf("❌ Redis check failed: %w", err)
	}
	defer rc.Close()
	fmt.Printf("\n✅ Redis reachable at %s:%s\n", cfg.Redis.Host, cfg.Redis.Port)

	return nil
}

func runDBMigrate(cmd *cobra.Command, args []string) error {
	_, db, err := connectDB()
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("❌ Migration failed: %w", err)
	}
	PrintSuccess("Schema is up to date")
	return nil
}

// maskPassword hides the password in a database URL for display
func maskPassword(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
