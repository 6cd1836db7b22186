package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "test-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, "test-key", cfg.PolygonAPIKey)
	require.Equal(t, "https://api.polygon.io", cfg.PolygonBaseURL)
	require.Equal(t, []string{"AAPL", "GOOGL", "MSFT", "TSLA", "AMZN"}, cfg.DefaultTickers)
	require.Equal(t, 15, cfg.FetchIntervalMinutes)
	require.Equal(t, 3, cfg.MaxRetries)
	require.Equal(t, 30*time.Second, cfg.RetryDelay)
	require.Equal(t, 30, cfg.DaysBackInitial)
	require.Equal(t, 5, cfg.RequestsPerMinute)
	require.Equal(t, 30, cfg.AuditRetentionDays)
	require.Equal(t, "22:00", cfg.DailyFetchTime)
	require.True(t, cfg.EnableRealtime)
	require.True(t, cfg.EnableDailyAggregates)
	require.False(t, cfg.EnableMinuteAggregates)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("POLYGON_API_KEY", "key")
	t.Setenv("DEFAULT_TICKERS", " aapl, msft ,")
	t.Setenv("REQUESTS_PER_MINUTE", "10")
	t.Setenv("RETRY_DELAY_SECONDS", "5")
	t.Setenv("ENABLE_REALTIME", "false")
	t.Setenv("DAILY_FETCH_TIME", "21:30")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Equal(t, []string{"AAPL", "MSFT"}, cfg.DefaultTickers)
	require.Equal(t, 10, cfg.RequestsPerMinute)
	require.Equal(t, 5*time.Second, cfg.RetryDelay)
	require.False(t, cfg.EnableRealtime)
	require.Equal(t, "21:30", cfg.DailyFetchTime)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			PolygonAPIKey:        "key",
			DefaultTickers:       []string{"AAPL"},
			FetchIntervalMinutes: 15,
			RequestsPerMinute:    5,
			MaxRetries:           3,
			DailyFetchTime:       "22:00",
		}
	}

	t.Run("valid config passes", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"missing api key", func(c *Config) { c.PolygonAPIKey = "" }, "POLYGON_API_KEY"},
		{"no tickers", func(c *Config) { c.DefaultTickers = nil }, "DEFAULT_TICKERS"},
		{"bad fetch interval", func(c *Config) { c.FetchIntervalMinutes = 0 }, "FETCH_INTERVAL_MINUTES"},
		{"bad rpm", func(c *Config) { c.RequestsPerMinute = 0 }, "REQUESTS_PER_MINUTE"},
		{"zero retries", func(c *Config) { c.MaxRetries = 0 }, "MAX_RETRIES"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "MAX_RETRIES"},
		{"bad daily time", func(c *Config) { c.DailyFetchTime = "25:99" }, "DAILY_FETCH_TIME"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)

			var cfgErr *ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			require.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		min     int
		wantErr bool
	}{
		{"22:00", 22, 0, false},
		{"09:30", 9, 30, false},
		{"0:05", 0, 5, false},
		{"24:00", 0, 0, true},
		{"12:60", 0, 0, true},
		{"noon", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			hour, min, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.hour, hour)
			require.Equal(t, tt.min, min)
		})
	}
}

func TestAuditRetention(t *testing.T) {
	cfg := &Config{AuditRetentionDays: 30}
	require.Equal(t, 30*24*time.Hour, cfg.AuditRetention())
}
