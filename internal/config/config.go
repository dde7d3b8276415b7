package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends selectable via store.backend.
const (
	BackendCSV      = "csv"
	BackendPostgres = "postgres"
)

// APIConfig holds settings for the yield data endpoint.
type APIConfig struct {
	// BaseURL is the endpoint serving daily yield candles.
	BaseURL string `mapstructure:"base_url"`

	// ProdCode identifies the instrument, e.g. "US10YR.OTC".
	ProdCode string `mapstructure:"prod_code"`

	// Params are extra query parameters passed through verbatim.
	Params map[string]string `mapstructure:"params"`

	// Timeout bounds a single HTTP request.
	Timeout time.Duration `mapstructure:"timeout"`

	// MaxRetries is the number of HTTP-level retries inside one fetch.
	// 0 means a strict single attempt per date.
	MaxRetries int `mapstructure:"max_retries"`

	// RateLimit is the request budget in requests/second shared by all
	// workers. 0 disables rate limiting.
	RateLimit float64 `mapstructure:"rate_limit"`
}

// StoreConfig selects and configures the destination store.
type StoreConfig struct {
	Backend     string `mapstructure:"backend"`
	PostgresDSN string `mapstructure:"postgres_dsn"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// MetricsConfig holds Prometheus exposition settings. Port 0 disables the
// metrics endpoint.
type MetricsConfig struct {
	Port int `mapstructure:"port"`
}

// Config holds all configuration for the crawler.
type Config struct {
	// SaveFp is the CSV destination path (store.backend = csv).
	SaveFp string `mapstructure:"save_fp"`

	// NumCrawler is the number of concurrent fetch workers.
	NumCrawler int `mapstructure:"num_crawler"`

	// Force refetches dates that are already persisted.
	Force bool `mapstructure:"force"`

	API     APIConfig     `mapstructure:"api"`
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads configuration from an optional YAML file and environment
// variables, applies defaults, and validates the result. Environment
// variables take precedence over config file values.
//
// When path is empty the file is searched as "config.yaml" in ".",
// "./config" and "$HOME/.us10yr-crawler"; a missing file is fine. An
// explicit path that cannot be read is an error.
//
// Recognized environment variables:
//   - US10YR_SAVE_FP, US10YR_NUM_CRAWLER, US10YR_FORCE
//   - US10YR_API_BASE_URL, US10YR_API_PROD_CODE, US10YR_API_TIMEOUT,
//     US10YR_API_MAX_RETRIES, US10YR_API_RATE_LIMIT
//   - US10YR_STORE_BACKEND, US10YR_POSTGRES_DSN
//   - US10YR_LOG_LEVEL, US10YR_LOG_PRETTY, US10YR_METRICS_PORT
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults for everything optional
	v.SetDefault("save_fp", "data/us10yr.csv")
	v.SetDefault("num_crawler", 4)
	v.SetDefault("force", false)
	v.SetDefault("api.prod_code", "US10YR.OTC")
	v.SetDefault("api.timeout", 15*time.Second)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.rate_limit", 4.0)
	v.SetDefault("store.backend", BackendCSV)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("metrics.port", 0)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.us10yr-crawler")

		// Read config file (ignore if not found)
		_ = v.ReadInConfig()
	}

	// Bind environment variables
	v.BindEnv("save_fp", "US10YR_SAVE_FP")
	v.BindEnv("num_crawler", "US10YR_NUM_CRAWLER")
	v.BindEnv("force", "US10YR_FORCE")
	v.BindEnv("api.base_url", "US10YR_API_BASE_URL")
	v.BindEnv("api.prod_code", "US10YR_API_PROD_CODE")
	v.BindEnv("api.timeout", "US10YR_API_TIMEOUT")
	v.BindEnv("api.max_retries", "US10YR_API_MAX_RETRIES")
	v.BindEnv("api.rate_limit", "US10YR_API_RATE_LIMIT")
	v.BindEnv("store.backend", "US10YR_STORE_BACKEND")
	v.BindEnv("store.postgres_dsn", "US10YR_POSTGRES_DSN")
	v.BindEnv("log.level", "US10YR_LOG_LEVEL")
	v.BindEnv("log.pretty", "US10YR_LOG_PRETTY")
	v.BindEnv("metrics.port", "US10YR_METRICS_PORT")

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var problems []string

	if c.NumCrawler < 1 {
		problems = append(problems, "num_crawler must be >= 1")
	}
	if c.API.BaseURL == "" {
		problems = append(problems, "api.base_url is required (or US10YR_API_BASE_URL)")
	}
	if c.API.Timeout <= 0 {
		problems = append(problems, "api.timeout must be positive")
	}
	if c.API.MaxRetries < 0 {
		problems = append(problems, "api.max_retries must be >= 0")
	}
	if c.API.RateLimit < 0 {
		problems = append(problems, "api.rate_limit must be >= 0")
	}

	switch c.Store.Backend {
	case BackendCSV:
		if c.SaveFp == "" {
			problems = append(problems, "save_fp is required for the csv backend")
		}
	case BackendPostgres:
		if c.Store.PostgresDSN == "" {
			problems = append(problems, "store.postgres_dsn is required for the postgres backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.backend must be %q or %q, got %q",
			BackendCSV, BackendPostgres, c.Store.Backend))
	}

	if c.Metrics.Port < 0 || c.Metrics.Port > 65535 {
		problems = append(problems, "metrics.port must be between 0 and 65535")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}

	return nil
}
