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

// Config holds all configuration for the application.
// Load is the only place environment variables are read.
type Config struct {
	// Server
	Port        string
	Env         string // development, staging, production
	CORSOrigins []string

	Database DatabaseConfig
	Redis    RedisConfig
	OpenAlgo OpenAlgoConfig
	Scanner  ScannerConfig
	Schedule ScheduleConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// OpenAlgoConfig holds the market data API configuration.
type OpenAlgoConfig struct {
	Host      string
	APIKey    string
	RateLimit int // requests per second
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// ScannerConfig holds execution engine settings.
type ScannerConfig struct {
	Workers         int
	MaxSteps        int // per-symbol Starlark step budget, 0 = unlimited
	Parallel        bool
	DefaultExchange string
	TestSymbols     []string
}

// ScheduleConfig holds scheduler settings.
type ScheduleConfig struct {
	Timezone            string
	ResultRetentionDays int
}

// Load reads configuration from the environment, after loading the first
// .env file found.
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", "*"),

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

		OpenAlgo: OpenAlgoConfig{
			Host:      strings.TrimRight(getEnv("OPENALGO_HOST", "http://127.0.0.1:5000"), "/"),
			APIKey:    getEnv("OPENALGO_API_KEY", ""),
			RateLimit: getEnvAsInt("OPENALGO_RATE_LIMIT", 10),
			Timeout:   getEnvAsDuration("OPENALGO_TIMEOUT", "30s"),
			CacheTTL:  getEnvAsDuration("SERIES_CACHE_TTL", "5m"),
		},

		Scanner: ScannerConfig{
			Workers:         getEnvAsInt("SCANNER_WORKERS", 5),
			MaxSteps:        getEnvAsInt("SCANNER_MAX_STEPS", 50_000_000),
			Parallel:        getEnvAsBool("SCANNER_PARALLEL", false),
			DefaultExchange: getEnv("SCANNER_DEFAULT_EXCHANGE", "NSE"),
			TestSymbols:     getEnvAsList("SCANNER_TEST_SYMBOLS", "RELIANCE,TCS,INFY"),
		},

		Schedule: ScheduleConfig{
			Timezone:            getEnv("SCHEDULE_TIMEZONE", "Asia/Kolkata"),
			ResultRetentionDays: getEnvAsInt("RESULT_RETENTION_DAYS", 30),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// RequireDatabase reports an error when no database is configured. Commands
// that persist scanners, watchlists or history call it before connecting.
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("SCANNER_WORKERS must be at least 1")
	}
	if c.Scanner.MaxSteps < 0 {
		return fmt.Errorf("SCANNER_MAX_STEPS must not be negative")
	}
	if c.OpenAlgo.RateLimit < 1 {
		return fmt.Errorf("OPENALGO_RATE_LIMIT must be at least 1")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("SCHEDULE_TIMEZONE: %w", err)
	}
	return nil
}

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
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key, defaultValue string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, defaultValue), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
