package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/paykit-wallet/paykitd/pkg/validation"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

type Config struct {
	Development bool
	// API configuration
	APIPort int
	// Database configuration
	DatabaseDriver   string
	PostgresUser     string
	PostgresPassword string
	PostgresHost     string
	PostgresPort     int
	PostgresDB       string
	SQLitePath       string

	// Identity of this wallet in the directory
	OwnerPubkey string

	// Directory configuration. An empty HomeserverURL uses an in-process directory.
	HomeserverURL      string
	HomeserverSession  string
	DirectoryTimeout   time.Duration
	DirectoryRateLimit float64

	// Noise endpoint republished at startup. An empty NoiseHost skips it.
	NoiseHost string
	NoisePort int

	// Payment service configuration
	PaymentServiceURL string
	PaymentTimeout    time.Duration

	// Auto-pay defaults
	DefaultDailyLimitSats    uint64
	DefaultRequestExpiryDays int

	// Background jobs, cron expressions. Empty disables the job.
	DiscoverySchedule string
	CleanupSchedule   string
}

// LoadConfig loads the configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Development:      getEnvAsBool("DEVELOPMENT", false),
		APIPort:          getEnvAsInt("API_PORT", 6532),
		DatabaseDriver:   getEnv("DATABASE_DRIVER", DriverSQLite),
		PostgresUser:     getEnv("POSTGRES_USER", "postgres"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "password"),
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnvAsInt("POSTGRES_PORT", 5432),
		PostgresDB:       getEnv("POSTGRES_DB", "paykit"),
		SQLitePath:       getEnv("SQLITE_PATH", "paykit.db"),

		OwnerPubkey: getEnv("OWNER_PUBKEY", ""),

		HomeserverURL:      getEnv("HOMESERVER_URL", ""),
		HomeserverSession:  getEnv("HOMESERVER_SESSION", ""),
		DirectoryTimeout:   getEnvAsDuration("DIRECTORY_TIMEOUT", 10*time.Second),
		DirectoryRateLimit: getEnvAsFloat("DIRECTORY_RATE_LIMIT", 5),

		NoiseHost: getEnv("NOISE_HOST", ""),
		NoisePort: getEnvAsInt("NOISE_PORT", 9735),

		PaymentServiceURL: getEnv("PAYMENT_SERVICE_URL", "http://localhost:8080"),
		PaymentTimeout:    getEnvAsDuration("PAYMENT_TIMEOUT", 60*time.Second),

		DefaultDailyLimitSats:    getEnvAsUint64("DEFAULT_DAILY_LIMIT_SATS", 100_000),
		DefaultRequestExpiryDays: getEnvAsInt("DEFAULT_REQUEST_EXPIRY_DAYS", 7),

		DiscoverySchedule: getEnv("DISCOVERY_SCHEDULE", "@every 5m"),
		CleanupSchedule:   getEnv("CLEANUP_SCHEDULE", "@hourly"),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are properly set
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.PostgresDB == "" {
			return fmt.Errorf("POSTGRES_DB is required")
		}
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown DATABASE_DRIVER %q", c.DatabaseDriver)
	}

	// The owner may be unset; identity-dependent operations then fail with ErrNoIdentity.
	if c.OwnerPubkey != "" {
		pk, err := validation.ValidateAndNormalizePubkey(c.OwnerPubkey)
		if err != nil {
			return fmt.Errorf("invalid OWNER_PUBKEY: %w", err)
		}
		c.OwnerPubkey = pk
	}

	if c.PaymentServiceURL == "" {
		return fmt.Errorf("PAYMENT_SERVICE_URL is required")
	}

	if c.NoiseHost != "" && (c.NoisePort <= 0 || c.NoisePort > 65535) {
		return fmt.Errorf("NOISE_PORT must be between 1 and 65535")
	}

	if c.DefaultRequestExpiryDays < 0 {
		return fmt.Errorf("DEFAULT_REQUEST_EXPIRY_DAYS must not be negative")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, expr := range map[string]string{"DISCOVERY_SCHEDULE": c.DiscoverySchedule, "CLEANUP_SCHEDULE": c.CleanupSchedule} {
		if expr == "" {
			continue
		}
		if _, err := parser.Parse(expr); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// Helper functions to read environment variables
func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsUint64(name string, defaultValue uint64) uint64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseUint(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsFloat(name string, defaultValue float64) float64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsBool(name string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvAsDuration(name string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := time.ParseDuration(valueStr); err == nil {
			return value
		}
	}
	return defaultValue
}
