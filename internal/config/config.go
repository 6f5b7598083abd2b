// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrMissingCredentials is returned when the ratings source credentials are not set
var ErrMissingCredentials = errors.New("missing credentials")

// Config holds application configuration
type Config struct {
	DataDir string // Base directory for the order journal (always absolute)

	ChaikinEmail    string
	ChaikinPassword string
	ChaikinBaseURL  string
	IBGatewayURL    string // Websocket bridge in front of TWS
	YahooBaseURL    string

	ReportPath string // Rebalance plan CSV
	PolicyPath string // Optional watchlist policy YAML

	LogLevel          string
	Port              int
	DevMode           bool
	DryRun            bool   // Compute and reconcile, but never submit
	RebalanceSchedule string // Cron expression for server mode, empty disables

	PositionsTimeout  time.Duration
	OrdersTimeout     time.Duration
	ConnectTimeout    time.Duration
	PriceFetchWorkers int

	JournalRetentionDays int // Final orders older than this are pruned, 0 keeps everything
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("REBALANCER_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	cfg := &Config{
		DataDir:           absDataDir,
		ChaikinEmail:      getEnv("CHAIKIN_EMAIL", ""),
		ChaikinPassword:   getEnv("CHAIKIN_PASSWORD", ""),
		ChaikinBaseURL:    getEnv("CHAIKIN_BASE_URL", "https://members.chaikinanalytics.com"),
		IBGatewayURL:      getEnv("IB_GATEWAY_URL", "ws://127.0.0.1:7496/ws"),
		YahooBaseURL:      getEnv("YAHOO_BASE_URL", "https://query1.finance.yahoo.com"),
		ReportPath:        getEnv("REPORT_PATH", "rebalance.csv"),
		PolicyPath:        getEnv("POLICY_PATH", ""),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		Port:              getEnvAsInt("GO_PORT", 8001),
		DevMode:           getEnvAsBool("DEV_MODE", false),
		DryRun:            getEnvAsBool("DRY_RUN", false),
		RebalanceSchedule: getEnv("REBALANCE_SCHEDULE", ""),
		PositionsTimeout:  getEnvAsSeconds("POSITIONS_TIMEOUT_SEC", 30),
		OrdersTimeout:     getEnvAsSeconds("ORDERS_TIMEOUT_SEC", 60),
		ConnectTimeout:    getEnvAsSeconds("CONNECT_TIMEOUT_SEC", 5),
		PriceFetchWorkers: getEnvAsInt("PRICE_FETCH_WORKERS", 4),

		JournalRetentionDays: getEnvAsInt("JOURNAL_RETENTION_DAYS", 90),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.ChaikinEmail == "" {
		return fmt.Errorf("%w: CHAIKIN_EMAIL environment variable is not set", ErrMissingCredentials)
	}
	if c.ChaikinPassword == "" {
		return fmt.Errorf("%w: CHAIKIN_PASSWORD environment variable is not set", ErrMissingCredentials)
	}
	if c.PositionsTimeout <= 0 || c.OrdersTimeout <= 0 || c.ConnectTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.PriceFetchWorkers < 1 {
		return fmt.Errorf("PRICE_FETCH_WORKERS must be at least 1, got %d", c.PriceFetchWorkers)
	}
	if c.JournalRetentionDays < 0 {
		return fmt.Errorf("JOURNAL_RETENTION_DAYS must not be negative, got %d", c.JournalRetentionDays)
	}
	return nil
}

// EnsureDataDir creates the data directory if needed
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsSeconds(key string, defaultSeconds int) time.Duration {
	return time.Duration(getEnvAsInt(key, defaultSeconds)) * time.Second
}
