package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Storage
	Database DatabaseConfig
	Redis    RedisConfig

	// Upstream market data provider
	Provider ProviderConfig

	// Signal pipeline
	Gateway    GatewayConfig
	Compliance ComplianceConfig
	Backtest   BacktestConfig

	// Signal sinks
	Kafka KafkaConfig

	// Strategy set and universe (YAML)
	StrategyConfigPath string
	UniversePath       string
	HistoryDays        int

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// ProviderConfig holds the upstream quote provider settings
type ProviderConfig struct {
	Name           string
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Burst          int
}

// GatewayConfig holds DataAcquisitionGateway tuning
type GatewayConfig struct {
	BatchSize           int
	Workers             int
	DelayBetweenItems   time.Duration
	DelayBetweenBatches time.Duration
	CallTimeout         time.Duration
	RetryAttempts       int
	RetryBackoff        time.Duration
	RateLimitDelay      time.Duration
	FailureThreshold    int
	BreakerCooldown     time.Duration
	QuoteCacheTTL       time.Duration
}

// ComplianceConfig holds ComplianceResolver tuning
type ComplianceConfig struct {
	PrimaryTTL    time.Duration
	FallbackTTL   time.Duration
	UnknownTTL    time.Duration
	Concurrency   int
	OverridesPath string
}

// BacktestConfig holds default backtest parameters
type BacktestConfig struct {
	MaxHoldingDays int
	MinHistoryBars int
	Workers        int
}

// KafkaConfig holds the Kafka signal sink settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
	Enabled bool
}

// Load reads configuration from environment variables
// ⭐ SSOT: the only caller of os.Getenv()
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 25),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 5),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Provider: ProviderConfig{
			Name:           getEnv("PROVIDER_NAME", "marketdata"),
			BaseURL:        getEnv("PROVIDER_BASE_URL", "https://api.marketdata.example.com"),
			APIKey:         getEnv("PROVIDER_API_KEY", ""),
			RequestsPerSec: getEnvAsFloat("PROVIDER_RPS", 5),
			Burst:          getEnvAsInt("PROVIDER_BURST", 1),
		},

		Gateway: GatewayConfig{
			BatchSize:           getEnvAsInt("GATEWAY_BATCH_SIZE", 10),
			Workers:             getEnvAsInt("GATEWAY_WORKERS", 3),
			DelayBetweenItems:   getEnvAsDuration("GATEWAY_DELAY_ITEMS", "200ms"),
			DelayBetweenBatches: getEnvAsDuration("GATEWAY_DELAY_BATCHES", "2s"),
			CallTimeout:         getEnvAsDuration("GATEWAY_CALL_TIMEOUT", "10s"),
			RetryAttempts:       getEnvAsInt("GATEWAY_RETRY_ATTEMPTS", 1),
			RetryBackoff:        getEnvAsDuration("GATEWAY_RETRY_BACKOFF", "500ms"),
			RateLimitDelay:      getEnvAsDuration("GATEWAY_RATE_LIMIT_DELAY", "60s"),
			FailureThreshold:    getEnvAsInt("GATEWAY_FAILURE_THRESHOLD", 3),
			BreakerCooldown:     getEnvAsDuration("GATEWAY_BREAKER_COOLDOWN", "5m"),
			QuoteCacheTTL:       getEnvAsDuration("GATEWAY_QUOTE_CACHE_TTL", "24h"),
		},

		Compliance: ComplianceConfig{
			PrimaryTTL:    getEnvAsDuration("COMPLIANCE_TTL", "2160h"), // 90 days
			FallbackTTL:   getEnvAsDuration("COMPLIANCE_FALLBACK_TTL", "168h"),
			UnknownTTL:    getEnvAsDuration("COMPLIANCE_UNKNOWN_TTL", "24h"),
			Concurrency:   getEnvAsInt("COMPLIANCE_CONCURRENCY", 8),
			OverridesPath: getEnv("COMPLIANCE_OVERRIDES", ""),
		},

		Backtest: BacktestConfig{
			MaxHoldingDays: getEnvAsInt("BACKTEST_MAX_HOLDING_DAYS", 20),
			MinHistoryBars: getEnvAsInt("BACKTEST_MIN_HISTORY_BARS", 60),
			Workers:        getEnvAsInt("BACKTEST_WORKERS", 4),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", ""),
			Topic:   getEnv("KAFKA_SIGNAL_TOPIC", "consensus-signals"),
			Enabled: getEnvAsBool("KAFKA_ENABLED", false),
		},

		StrategyConfigPath: getEnv("STRATEGY_CONFIG", "config/strategy/signal_set.yaml"),
		UniversePath:       getEnv("UNIVERSE_FILE", "config/universe.yaml"),
		HistoryDays:        getEnvAsInt("HISTORY_DAYS", 365),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate fails fast on values the pipeline cannot run with
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	g := c.Gateway
	if g.BatchSize < 1 {
		return fmt.Errorf("GATEWAY_BATCH_SIZE must be >= 1, got %d", g.BatchSize)
	}
	if g.Workers < 1 {
		return fmt.Errorf("GATEWAY_WORKERS must be >= 1, got %d", g.Workers)
	}
	if g.FailureThreshold < 1 {
		return fmt.Errorf("GATEWAY_FAILURE_THRESHOLD must be >= 1, got %d", g.FailureThreshold)
	}
	if g.RetryAttempts < 0 {
		return fmt.Errorf("GATEWAY_RETRY_ATTEMPTS must be >= 0, got %d", g.RetryAttempts)
	}
	if g.CallTimeout <= 0 {
		return fmt.Errorf("GATEWAY_CALL_TIMEOUT must be positive")
	}

	cc := c.Compliance
	if cc.PrimaryTTL <= 0 || cc.FallbackTTL <= 0 || cc.UnknownTTL <= 0 {
		return fmt.Errorf("compliance TTLs must be positive")
	}
	if cc.FallbackTTL > cc.PrimaryTTL {
		return fmt.Errorf("COMPLIANCE_FALLBACK_TTL (%s) must not exceed COMPLIANCE_TTL (%s)", cc.FallbackTTL, cc.PrimaryTTL)
	}
	if cc.Concurrency < 1 {
		return fmt.Errorf("COMPLIANCE_CONCURRENCY must be >= 1")
	}

	if c.Backtest.MaxHoldingDays < 1 {
		return fmt.Errorf("BACKTEST_MAX_HOLDING_DAYS must be >= 1")
	}
	if c.Backtest.Workers < 1 {
		return fmt.Errorf("BACKTEST_WORKERS must be >= 1")
	}

	if c.HistoryDays < 1 {
		return fmt.Errorf("HISTORY_DAYS must be >= 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED=true")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

func getEnvAsList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
