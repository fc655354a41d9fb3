package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Endpoints EndpointsConfig `yaml:"endpoints"`
	Sync      SyncConfig      `yaml:"sync"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	Symbol  string `yaml:"symbol"`
}

// EndpointsConfig holds the transport addresses the core consumes: two
// streaming endpoints and one REST base for the pull/command surface.
type EndpointsConfig struct {
	MarketWSURL     string `yaml:"market_ws_url"`
	ExecutionsWSURL string `yaml:"executions_ws_url"`
	RestBaseURL     string `yaml:"rest_base_url"`
}

type SyncConfig struct {
	ReconnectDelay        Duration `yaml:"reconnect_delay"`
	SummaryPollInterval   Duration `yaml:"summary_poll_interval"`
	OrdersPollInterval    Duration `yaml:"orders_poll_interval"`
	PositionsPollInterval Duration `yaml:"positions_poll_interval"`
	ProbeInterval         Duration `yaml:"probe_interval"`
	RequestTimeout        Duration `yaml:"request_timeout"`
	SubmitRatePerSec      float64  `yaml:"submit_rate_per_sec"`
	SubmitBurst           int      `yaml:"submit_burst"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

type MetricsConfig struct {
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
	Report     ReportConfig     `yaml:"report"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
}

type ReportConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Interval Duration `yaml:"interval"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Config{}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)
	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Sync.ReconnectDelay <= 0 {
		cfg.Sync.ReconnectDelay = Duration(3 * time.Second)
	}
	if cfg.Sync.SummaryPollInterval <= 0 {
		cfg.Sync.SummaryPollInterval = Duration(2 * time.Second)
	}
	if cfg.Sync.OrdersPollInterval <= 0 {
		cfg.Sync.OrdersPollInterval = Duration(10 * time.Second)
	}
	if cfg.Sync.PositionsPollInterval <= 0 {
		cfg.Sync.PositionsPollInterval = Duration(15 * time.Second)
	}
	if cfg.Sync.ProbeInterval <= 0 {
		cfg.Sync.ProbeInterval = Duration(5 * time.Second)
	}
	if cfg.Sync.RequestTimeout <= 0 {
		cfg.Sync.RequestTimeout = Duration(10 * time.Second)
	}
	if cfg.Sync.SubmitRatePerSec <= 0 {
		cfg.Sync.SubmitRatePerSec = 5
	}
	if cfg.Sync.SubmitBurst <= 0 {
		cfg.Sync.SubmitBurst = 5
	}
	if cfg.Metrics.Report.Interval <= 0 {
		cfg.Metrics.Report.Interval = Duration(30 * time.Second)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MARKET_WS_URL"); v != "" {
		cfg.Endpoints.MarketWSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("EXECUTIONS_WS_URL"); v != "" {
		cfg.Endpoints.ExecutionsWSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("REST_BASE_URL"); v != "" {
		cfg.Endpoints.RestBaseURL = strings.TrimSpace(v)
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.App.Version == "" {
		return fmt.Errorf("app.version is required")
	}

	if cfg.App.Symbol == "" {
		return fmt.Errorf("app.symbol is required")
	}

	if cfg.Endpoints.MarketWSURL == "" {
		return fmt.Errorf("endpoints.market_ws_url is required")
	}

	if cfg.Endpoints.ExecutionsWSURL == "" {
		return fmt.Errorf("endpoints.executions_ws_url is required")
	}

	if cfg.Endpoints.RestBaseURL == "" {
		return fmt.Errorf("endpoints.rest_base_url is required")
	}

	for _, ep := range []string{cfg.Endpoints.MarketWSURL, cfg.Endpoints.ExecutionsWSURL} {
		if !strings.HasPrefix(ep, "ws://") && !strings.HasPrefix(ep, "wss://") {
			return fmt.Errorf("streaming endpoint '%s' must use ws:// or wss://", ep)
		}
	}

	if !strings.HasPrefix(cfg.Endpoints.RestBaseURL, "http://") && !strings.HasPrefix(cfg.Endpoints.RestBaseURL, "https://") {
		return fmt.Errorf("endpoints.rest_base_url '%s' must use http:// or https://", cfg.Endpoints.RestBaseURL)
	}

	return nil
}
