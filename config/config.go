// Package config loads server settings from the environment. A .env file in
// the working directory is read first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ShahFaisal5714/agro-crm-nexus/ledger"
	"github.com/ShahFaisal5714/agro-crm-nexus/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port string

	// Database
	DBDriver    string
	DBPath      string
	DatabaseURL string

	// Auth
	JWTSecret    string
	AuthDisabled bool
	DevUser      string

	// Ledger behavior
	AllowOverpayment       bool
	AtomicCashMirror       bool
	EmitSupplierCreditCash bool

	ReconcileInterval time.Duration
	CORSOrigins       []string

	// Logging
	LogLevel      string
	LogFormat     string
	LogTimeFormat string
	LogOutput     string
}

// Load reads the environment. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	c := &Config{
		Port:          getEnv("PORT", "8080"),
		DBDriver:      getEnv("DB_DRIVER", DriverSQLite),
		DBPath:        getEnv("DB_PATH", "ledger.db"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		JWTSecret:     getEnv("JWT_SECRET", ""),
		DevUser:       getEnv("DEV_USER", "dev-user"),
		CORSOrigins:   splitList(getEnv("CORS_ORIGINS", "")),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
		LogTimeFormat: getEnv("LOG_TIME_FORMAT", time.RFC3339),
		LogOutput:     getEnv("LOG_OUTPUT", "stdout"),
	}

	var err error
	if c.AuthDisabled, err = getBool("AUTH_DISABLED", false); err != nil {
		return nil, err
	}
	if c.AllowOverpayment, err = getBool("ALLOW_OVERPAYMENT", false); err != nil {
		return nil, err
	}
	if c.AtomicCashMirror, err = getBool("ATOMIC_CASH_MIRROR", false); err != nil {
		return nil, err
	}
	if c.EmitSupplierCreditCash, err = getBool("EMIT_SUPPLIER_CREDIT_CASH", true); err != nil {
		return nil, err
	}
	if c.ReconcileInterval, err = getDuration("RECONCILE_INTERVAL", time.Hour); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return c, nil
}

// Validate checks settings that flags may also have changed.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for sqlite")
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	if !c.AuthDisabled && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required unless AUTH_DISABLED=true")
	}
	if c.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative")
	}
	return nil
}

func (c *Config) GetLoggerConfig() logger.LogConfig {
	return logger.LogConfig{
		Level:      c.LogLevel,
		Format:     c.LogFormat,
		TimeFormat: c.LogTimeFormat,
		Output:     c.LogOutput,
	}
}

// LedgerOptions maps the behavior toggles onto ledger.Options.
func (c *Config) LedgerOptions() ledger.Options {
	opts := ledger.DefaultOptions()
	opts.AllowOverpayment = c.AllowOverpayment
	opts.AtomicCashMirror = c.AtomicCashMirror
	opts.EmitSupplierCreditCash = c.EmitSupplierCreditCash
	return opts
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
