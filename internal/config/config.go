// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for all databases (always absolute)
	Port     int
	DevMode  bool
	LogLevel string

	// Portfolio parameters
	PortfolioValue  float64 // Total capital in INR
	RiskPctPerTrade float64 // Risk budget per trade as a fraction (0.015 = 1.5%)
	MaxPositions    int
	MaxSectorPct    float64
	CashReservePct  float64 // Target cash reserve under RISK_ON

	// Market data provider
	InstrumentsURL   string // NSE instruments dump (gzip JSON)
	MTFURL           string // MTF-eligible instruments dump (gzip JSON)
	QuotesBaseURL    string // Daily OHLCV endpoint base
	FetchDelayMS     int    // Minimum inter-call delay per provider connection
	FetchConcurrency int    // Bounded fan-out for per-symbol batches

	// Fundamentals provider (optional, monthly refresh)
	FMPAPIKey string

	// Scheduler (cron expressions, IST)
	PipelineSchedule     string
	GapCheckSchedule     string
	SummarySchedule      string
	ExpirySchedule       string
	FundamentalsSchedule string

	// Off-site backup (optional)
	BackupEnabled bool
	BackupBucket  string
	BackupPrefix  string
	BackupRegion  string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("LOOKOUT_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:  absDataDir,
		Port:     getEnvAsInt("LOOKOUT_PORT", 8010),
		DevMode:  getEnvAsBool("DEV_MODE", false),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		PortfolioValue:  getEnvAsFloat("PORTFOLIO_VALUE", 1000000), // Rs.10 Lakhs
		RiskPctPerTrade: getEnvAsFloat("RISK_PCT_PER_TRADE", 0.015),
		MaxPositions:    getEnvAsInt("MAX_POSITIONS", 12),
		MaxSectorPct:    getEnvAsFloat("MAX_SECTOR_PCT", 0.25),
		CashReservePct:  getEnvAsFloat("CASH_RESERVE_PCT", 0.30),

		InstrumentsURL:   getEnv("INSTRUMENTS_URL", "https://assets.upstox.com/market-quote/instruments/exchange/NSE.json.gz"),
		MTFURL:           getEnv("MTF_URL", "https://assets.upstox.com/market-quote/instruments/exchange/MTF.json.gz"),
		QuotesBaseURL:    getEnv("QUOTES_BASE_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
		FetchDelayMS:     getEnvAsInt("FETCH_DELAY_MS", 300),
		FetchConcurrency: getEnvAsInt("FETCH_CONCURRENCY", 8),

		FMPAPIKey: getEnv("FMP_API_KEY", ""),

		PipelineSchedule:     getEnv("PIPELINE_SCHEDULE", "0 9 * * 6"),      // Saturday 09:00
		GapCheckSchedule:     getEnv("GAP_CHECK_SCHEDULE", "45 8 * * 1"),    // Monday 08:45 pre-market
		SummarySchedule:      getEnv("SUMMARY_SCHEDULE", "0 16 * * 5"),      // Friday 16:00 post-close
		ExpirySchedule:       getEnv("EXPIRY_SCHEDULE", "0 7 * * *"),        // Daily sweep
		FundamentalsSchedule: getEnv("FUNDAMENTALS_SCHEDULE", "0 10 1 * *"), // Monthly refresh

		BackupEnabled: getEnvAsBool("BACKUP_ENABLED", false),
		BackupBucket:  getEnv("BACKUP_S3_BUCKET", ""),
		BackupPrefix:  getEnv("BACKUP_S3_PREFIX", "recommendations"),
		BackupRegion:  getEnv("BACKUP_S3_REGION", "ap-south-1"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and sane
func (c *Config) Validate() error {
	if c.PortfolioValue <= 0 {
		return fmt.Errorf("PORTFOLIO_VALUE must be positive, got %f", c.PortfolioValue)
	}
	if c.RiskPctPerTrade <= 0 || c.RiskPctPerTrade > 0.05 {
		return fmt.Errorf("RISK_PCT_PER_TRADE must be in (0, 0.05], got %f", c.RiskPctPerTrade)
	}
	if c.MaxPositions < 1 {
		return fmt.Errorf("MAX_POSITIONS must be at least 1, got %d", c.MaxPositions)
	}
	if c.CashReservePct < 0 || c.CashReservePct >= 1 {
		return fmt.Errorf("CASH_RESERVE_PCT must be in [0, 1), got %f", c.CashReservePct)
	}
	if c.BackupEnabled && c.BackupBucket == "" {
		return fmt.Errorf("BACKUP_S3_BUCKET required when BACKUP_ENABLED=true")
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

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
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
