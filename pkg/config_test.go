package pkg

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"RUN_MODE", "SOURCE_URL", "COUNTRIES_FILTER", "FETCH_TIMEOUT", "FETCH_RETRIES",
	"FETCH_RETRY_DELAY", "STORE_BACKEND", "DATABASE_DSN", "SCHEDULE_INTERVAL", "SCHEDULE_START",
	"BIND_ADDR", "CHART_TITLE", "LOG_LEVEL", "LOG_PRETTY", "ARANGO_ENDPOINT", "ARANGO_USER_NAME",
	"ARANGO_PASS", "ARANGO_CERTIFICATE", "ARANGO_DATABASE",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, RunModeService, cfg.RunMode)
	assert.Equal(t, DefaultSourceURL, cfg.SourceURL)
	assert.Empty(t, cfg.CountriesFilter)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.EqualValues(t, 3, cfg.FetchRetries)
	assert.Equal(t, 30*time.Second, cfg.FetchRetryDelay)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "percentages.db", cfg.DatabaseDSN)
	assert.Equal(t, 12*time.Hour, cfg.ScheduleInterval)
	assert.Equal(t, ":8080", cfg.BindAddr)
	assert.Equal(t, DefaultChartTitle, cfg.ChartTitle)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)

	schedule, err := cfg.Schedule()
	require.NoError(t, err)
	assert.True(t, schedule.StartAt.IsZero())
	assert.Equal(t, 12*time.Hour, schedule.Interval)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("COUNTRIES_FILTER", "ISR,USA,FRA,ESP")
	t.Setenv("FETCH_RETRIES", "5")
	t.Setenv("FETCH_RETRY_DELAY", "2s")
	t.Setenv("SCHEDULE_INTERVAL", "6h")
	t.Setenv("SCHEDULE_START", "2021-09-01T06:00:00Z")
	t.Setenv("RUN_MODE", RunModeLambda)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ISR", "USA", "FRA", "ESP"}, cfg.CountriesFilter)
	assert.Equal(t, RunModeLambda, cfg.RunMode)

	api := cfg.ApiMetadata()
	assert.Equal(t, &ApiMetadata{
		URL:             DefaultSourceURL,
		CountriesFilter: []string{"ISR", "USA", "FRA", "ESP"},
		Timeout:         60 * time.Second,
		Retries:         5,
		RetryDelay:      2 * time.Second,
	}, api)

	schedule, err := cfg.Schedule()
	require.NoError(t, err)
	assert.Equal(t, Schedule{Interval: 6 * time.Hour, StartAt: time.Date(2021, 9, 1, 6, 0, 0, 0, time.UTC)}, schedule)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	clearConfigEnv(t)
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("STORE_BACKEND=postgres\nDATABASE_DSN=host=localhost dbname=vaccinations\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("STORE_BACKEND")
		_ = os.Unsetenv("DATABASE_DSN")
	})

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"), envFile)
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, "host=localhost dbname=vaccinations", cfg.DatabaseDSN)
}

func TestConfigValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			RunMode:          RunModeService,
			StoreBackend:     BackendSQLite,
			DatabaseDSN:      "percentages.db",
			ScheduleInterval: time.Hour,
		}
	}
	tests := map[string]func(cfg *Config){
		"unknown run mode":  func(cfg *Config) { cfg.RunMode = "daemon" },
		"unknown backend":   func(cfg *Config) { cfg.StoreBackend = "mysql" },
		"missing dsn":       func(cfg *Config) { cfg.DatabaseDSN = "" },
		"zero interval":     func(cfg *Config) { cfg.ScheduleInterval = 0 },
		"bad start time":    func(cfg *Config) { cfg.ScheduleStart = "tomorrow" },
		"incomplete arango": func(cfg *Config) { cfg.StoreBackend = BackendArango; cfg.Endpoint = "https://localhost:8529" },
	}
	require.NoError(t, valid().Validate())
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := valid()
	cfg.StoreBackend = BackendArango
	cfg.ArangoConfig = ArangoConfig{
		Endpoint:    "https://localhost:8529",
		Username:    "root",
		Password:    "secret",
		Certificate: "Y2VydA==",
		Database:    "vaccinations",
	}
	assert.NoError(t, cfg.Validate())
}

func TestSetupLogging(t *testing.T) {
	assert.NoError(t, SetupLogging("debug", false))
	assert.NoError(t, SetupLogging("info", false))
	assert.Error(t, SetupLogging("loud", false))
}
