package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ConfigurationError reports an invalid or missing setting. It is fatal at
// startup only; nothing constructs it after LoadConfig returns.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

// Config holds all settings for the data monitor. It is constructed once in
// main and passed by reference into the fetcher and scheduler.
type Config struct {
	// Polygon.io API
	PolygonAPIKey  string
	PolygonBaseURL string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Data fetching
	DefaultTickers       []string
	FetchIntervalMinutes int
	MaxRetries           int
	RetryDelay           time.Duration
	DaysBackInitial      int

	// Feature toggles
	EnableRealtime         bool
	EnableDailyAggregates  bool
	EnableMinuteAggregates bool
	EnableTrades           bool
	EnableQuotes           bool

	// Rate limiting
	RequestsPerMinute int

	// Audit log retention
	AuditRetentionDays int

	// DailyFetchTime is the wall-clock time (UTC, "HH:MM") for the daily
	// aggregate refresh, after US market close.
	DailyFetchTime string

	Port        string
	LogLevel    string
	Environment string
}

// LoadConfig loads environment variables and validates them.
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found, using environment variables")
	}

	cfg := &Config{
		PolygonAPIKey:  getEnv("POLYGON_API_KEY", ""),
		PolygonBaseURL: getEnv("POLYGON_BASE_URL", "https://api.polygon.io"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "marketdata"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		DefaultTickers:       parseTickers(getEnv("DEFAULT_TICKERS", "AAPL,GOOGL,MSFT,TSLA,AMZN")),
		FetchIntervalMinutes: getEnvInt("FETCH_INTERVAL_MINUTES", 15),
		MaxRetries:           getEnvInt("MAX_RETRIES", 3),
		RetryDelay:           time.Duration(getEnvInt("RETRY_DELAY_SECONDS", 30)) * time.Second,
		DaysBackInitial:      getEnvInt("DAYS_BACK_INITIAL", 30),

		EnableRealtime:         getEnvBool("ENABLE_REALTIME", true),
		EnableDailyAggregates:  getEnvBool("ENABLE_DAILY_AGGREGATES", true),
		EnableMinuteAggregates: getEnvBool("ENABLE_MINUTE_AGGREGATES", false),
		EnableTrades:           getEnvBool("ENABLE_TRADES", false),
		EnableQuotes:           getEnvBool("ENABLE_QUOTES", false),

		RequestsPerMinute:  getEnvInt("REQUESTS_PER_MINUTE", 5),
		AuditRetentionDays: getEnvInt("AUDIT_RETENTION_DAYS", 30),
		DailyFetchTime:     getEnv("DAILY_FETCH_TIME", "22:00"),

		Port:        getEnv("PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Environment: getEnv("ENVIRONMENT", "development"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings. Failures here abort startup.
func (c *Config) Validate() error {
	if c.PolygonAPIKey == "" {
		return &ConfigurationError{Field: "POLYGON_API_KEY", Reason: "is required"}
	}
	if len(c.DefaultTickers) == 0 {
		return &ConfigurationError{Field: "DEFAULT_TICKERS", Reason: "must contain at least one ticker"}
	}
	if c.FetchIntervalMinutes < 1 {
		return &ConfigurationError{Field: "FETCH_INTERVAL_MINUTES", Reason: "must be at least 1"}
	}
	if c.RequestsPerMinute < 1 {
		return &ConfigurationError{Field: "REQUESTS_PER_MINUTE", Reason: "must be at least 1"}
	}
	if c.MaxRetries < 1 {
		return &ConfigurationError{Field: "MAX_RETRIES", Reason: "must be at least 1"}
	}
	if _, _, err := ParseClock(c.DailyFetchTime); err != nil {
		return &ConfigurationError{Field: "DAILY_FETCH_TIME", Reason: "must be in HH:MM format"}
	}
	return nil
}

// AuditRetention returns the audit-log retention window as a duration.
func (c *Config) AuditRetention() time.Duration {
	return time.Duration(c.AuditRetentionDays) * 24 * time.Hour
}

// InitDB opens the PostgreSQL connection and verifies it with a ping.
func InitDB(cfg *Config, log *logrus.Logger) (*gorm.DB, error) {
	log.WithFields(logrus.Fields{
		"host":   cfg.DBHost,
		"port":   cfg.DBPort,
		"dbname": cfg.DBName,
	}).Info("Connecting to database")

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode,
	)

	logLevel := gormlogger.Info
	if cfg.Environment == "production" {
		logLevel = gormlogger.Error
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Info("Database connection verified")
	return db, nil
}

// ParseClock parses "HH:MM" into hour and minute.
func ParseClock(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	min, err := strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, min, nil
}

// parseTickers splits a comma-separated ticker list, trimming and upper-casing
// each symbol.
func parseTickers(s string) []string {
	var tickers []string
	for _, t := range strings.Split(s, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			tickers = append(tickers, t)
		}
	}
	return tickers
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.EqualFold(value, "true")
}
