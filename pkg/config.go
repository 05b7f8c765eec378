package pkg

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	RunModeService = "service"
	RunModeOnce    = "once"
	RunModeLambda  = "lambda"

	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendArango   = "arango"
)

type ArangoConfig struct {
	Endpoint    string `envconfig:"ARANGO_ENDPOINT"`
	Username    string `envconfig:"ARANGO_USER_NAME"`
	Password    string `envconfig:"ARANGO_PASS" json:"-"`
	Certificate string `envconfig:"ARANGO_CERTIFICATE" json:"-"`
	Database    string `envconfig:"ARANGO_DATABASE"`
}

type Config struct {
	RunMode          string        `envconfig:"RUN_MODE" default:"service"`
	SourceURL        string        `envconfig:"SOURCE_URL" default:"https://raw.githubusercontent.com/owid/covid-19-data/master/public/data/latest/owid-covid-latest.json"`
	CountriesFilter  []string      `envconfig:"COUNTRIES_FILTER"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"60s"`
	FetchRetries     uint64        `envconfig:"FETCH_RETRIES" default:"3"`
	FetchRetryDelay  time.Duration `envconfig:"FETCH_RETRY_DELAY" default:"30s"`
	StoreBackend     string        `envconfig:"STORE_BACKEND" default:"sqlite"`
	DatabaseDSN      string        `envconfig:"DATABASE_DSN" default:"percentages.db" json:"-"`
	ScheduleInterval time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"12h"`
	ScheduleStart    string        `envconfig:"SCHEDULE_START"`
	BindAddr         string        `envconfig:"BIND_ADDR" default:":8080"`
	ChartTitle       string        `envconfig:"CHART_TITLE" default:"Vaccination Rate Per Country"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty        bool          `envconfig:"LOG_PRETTY"`
	ArangoConfig
}

// LoadConfig reads the configuration from the environment, after loading envFiles
// into it when they exist.
func LoadConfig(envFiles ...string) (*Config, error) {
	for _, envFile := range envFiles {
		if _, err := os.Stat(envFile); err != nil {
			continue
		}
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed loading %s: %w", envFile, err)
		}
	}
	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed reading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	switch cfg.RunMode {
	case RunModeService, RunModeOnce, RunModeLambda:
	default:
		return fmt.Errorf("unknown run mode %q", cfg.RunMode)
	}
	switch cfg.StoreBackend {
	case BackendSQLite, BackendPostgres:
		if cfg.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN must be provided")
		}
	case BackendArango:
		a := cfg.ArangoConfig
		if a.Endpoint == "" || a.Username == "" || a.Password == "" || a.Certificate == "" || a.Database == "" {
			return errors.New("ARANGO_ENDPOINT, ARANGO_USER_NAME, ARANGO_PASS, ARANGO_CERTIFICATE AND ARANGO_DATABASE must be provided")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StoreBackend)
	}
	if cfg.ScheduleInterval <= 0 {
		return errors.New("SCHEDULE_INTERVAL must be positive")
	}
	if _, err := cfg.Schedule(); err != nil {
		return err
	}
	return nil
}

// Schedule parses SCHEDULE_START (RFC 3339) into a run schedule.
func (cfg *Config) Schedule() (Schedule, error) {
	schedule := Schedule{Interval: cfg.ScheduleInterval}
	if cfg.ScheduleStart == "" {
		return schedule, nil
	}
	start, err := time.Parse(time.RFC3339, cfg.ScheduleStart)
	if err != nil {
		return schedule, fmt.Errorf("invalid SCHEDULE_START %q: %w", cfg.ScheduleStart, err)
	}
	schedule.StartAt = start
	return schedule, nil
}

func (cfg *Config) ApiMetadata() *ApiMetadata {
	return &ApiMetadata{
		URL:             cfg.SourceURL,
		CountriesFilter: cfg.CountriesFilter,
		Timeout:         cfg.FetchTimeout,
		Retries:         cfg.FetchRetries,
		RetryDelay:      cfg.FetchRetryDelay,
	}
}
