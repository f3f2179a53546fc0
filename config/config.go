package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// MaxFetchTimeout is the hard upper bound on a single upstream request.
const MaxFetchTimeout = 10 * time.Second

// DefaultTopN bounds the candidates kept by the ranked adapters (bitget, mexc).
const DefaultTopN = 10

type Config struct {
	Fundingflow FundingflowConfig `yaml:"fundingflow"`
	Logging     LoggingConfig     `yaml:"logging"`
	Fetcher     FetcherConfig     `yaml:"fetcher"`
	Exchanges   ExchangesConfig   `yaml:"exchanges"`
	Server      ServerConfig      `yaml:"server"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

type FundingflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// FetcherConfig shapes the shared HTTP client used by every adapter.
type FetcherConfig struct {
	Timeout         time.Duration `yaml:"timeout"`
	UserAgent       string        `yaml:"user_agent"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxConnsPerHost int           `yaml:"max_conns_per_host"`
	IdleConnTimeout time.Duration `yaml:"idle_conn_timeout"`
}

type ExchangesConfig struct {
	Binance ExchangeConfig `yaml:"binance"`
	Bybit   ExchangeConfig `yaml:"bybit"`
	Bitget  ExchangeConfig `yaml:"bitget"`
	Okx     ExchangeConfig `yaml:"okx"`
	Mexc    ExchangeConfig `yaml:"mexc"`
}

// ExchangeConfig holds the per-upstream knobs. RequestsPerSecond of zero
// disables client-side limiting for that exchange.
type ExchangeConfig struct {
	Enabled           bool    `yaml:"enabled"`
	BaseURL           string  `yaml:"base_url"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	TopN              int     `yaml:"top_n,omitempty"`
}

type ServerConfig struct {
	Enabled          bool            `yaml:"enabled"`
	Address          string          `yaml:"address"`
	DefaultExchanges map[string]bool `yaml:"default_exchanges"`
	History          int             `yaml:"history"`
	ResourceInterval time.Duration   `yaml:"resource_interval"`
}

type RefreshConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Schedule  string          `yaml:"schedule"`
	Exchanges map[string]bool `yaml:"exchanges"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

// S3Config controls the parquet archive of background snapshots.
type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Compression     string `yaml:"compression"`
	Workers         int    `yaml:"workers"`
	QueueSize       int    `yaml:"queue_size"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	Dashboard       string `yaml:"dashboard"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Fetcher: FetcherConfig{
			Timeout:         MaxFetchTimeout,
			UserAgent:       "FundingFlow/1.0",
			MaxIdleConns:    20,
			MaxConnsPerHost: 4,
			IdleConnTimeout: 90 * time.Second,
		},
		Exchanges: ExchangesConfig{
			Binance: ExchangeConfig{Enabled: true, BaseURL: "https://fapi.binance.com", RequestsPerSecond: 5, Burst: 5},
			Bybit:   ExchangeConfig{Enabled: true, BaseURL: "https://api.bybit.com", RequestsPerSecond: 5, Burst: 5},
			Bitget:  ExchangeConfig{Enabled: true, BaseURL: "https://api.bitget.com", RequestsPerSecond: 10, Burst: 5, TopN: DefaultTopN},
			Okx:     ExchangeConfig{Enabled: true, BaseURL: "https://www.okx.com", RequestsPerSecond: 5, Burst: 5},
			Mexc:    ExchangeConfig{Enabled: true, BaseURL: "https://contract.mexc.com", RequestsPerSecond: 5, Burst: 5, TopN: DefaultTopN},
		},
		Server: ServerConfig{
			Enabled:          true,
			Address:          "0.0.0.0:3011",
			History:          200,
			ResourceInterval: 5 * time.Second,
		},
		Refresh: RefreshConfig{
			Schedule: "@every 30s",
		},
		Storage: StorageConfig{
			S3: S3Config{
				Prefix:      "funding_rates",
				Compression: "snappy",
				Workers:     2,
				QueueSize:   64,
			},
		},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{
				Namespace: "FundingFlow",
				Dashboard: "FundingFlow",
			},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if config.Exchanges.Bitget.TopN <= 0 {
		config.Exchanges.Bitget.TopN = DefaultTopN
	}
	if config.Exchanges.Mexc.TopN <= 0 {
		config.Exchanges.Mexc.TopN = DefaultTopN
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = strings.TrimSpace(v)
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" && cfg.Storage.S3.Region == "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
	}

	// Override CloudWatch settings from environment variables if available
	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Metrics.CloudWatch.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Metrics.CloudWatch.SecretAccessKey = strings.TrimSpace(v)
		}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fundingflow.Name == "" {
		return fmt.Errorf("fundingflow.name is required")
	}

	if cfg.Fundingflow.Version == "" {
		return fmt.Errorf("fundingflow.version is required")
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be greater than 0")
	}
	if cfg.Fetcher.Timeout > MaxFetchTimeout {
		return fmt.Errorf("fetcher.timeout must not exceed %s", MaxFetchTimeout)
	}

	for name, ex := range cfg.Exchanges.byName() {
		if ex.TopN > DefaultTopN {
			return fmt.Errorf("exchanges.%s.top_n must not exceed %d", name, DefaultTopN)
		}
		if !ex.Enabled {
			continue
		}
		if err := validateBaseURL(ex.BaseURL); err != nil {
			return fmt.Errorf("exchanges.%s.base_url: %w", name, err)
		}
		if ex.RequestsPerSecond < 0 {
			return fmt.Errorf("exchanges.%s.requests_per_second must not be negative", name)
		}
		if ex.RequestsPerSecond > 0 && ex.Burst <= 0 {
			return fmt.Errorf("exchanges.%s.burst must be greater than 0 when rate limiting is enabled", name)
		}
	}

	if cfg.Refresh.Enabled {
		if _, err := cron.ParseStandard(cfg.Refresh.Schedule); err != nil {
			return fmt.Errorf("refresh.schedule '%s' is invalid: %w", cfg.Refresh.Schedule, err)
		}
	}

	if cfg.Storage.S3.Enabled {
		s3 := cfg.Storage.S3
		if s3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 storage is enabled")
		}
		if !cfg.Refresh.Enabled {
			return fmt.Errorf("storage.s3 requires refresh.enabled")
		}
		switch strings.ToLower(s3.Compression) {
		case "", "snappy", "gzip", "none":
		default:
			return fmt.Errorf("storage.s3.compression '%s' is not supported", s3.Compression)
		}
		if (s3.AccessKeyID == "") != (s3.SecretAccessKey == "") {
			return fmt.Errorf("storage.s3.access_key_id and storage.s3.secret_access_key must be set together")
		}
	}

	if cfg.Metrics.CloudWatch.Enabled {
		if cfg.Metrics.CloudWatch.Namespace == "" {
			return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
		}
		if (cfg.Metrics.CloudWatch.AccessKeyID == "") != (cfg.Metrics.CloudWatch.SecretAccessKey == "") {
			return fmt.Errorf("metrics.cloudwatch.access_key_id and metrics.cloudwatch.secret_access_key must be set together")
		}
	}

	return nil
}

func validateBaseURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme '%s'", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// byName indexes the per-exchange blocks by their configuration key.
func (e ExchangesConfig) byName() map[string]ExchangeConfig {
	return map[string]ExchangeConfig{
		"binance": e.Binance,
		"bybit":   e.Bybit,
		"bitget":  e.Bitget,
		"okx":     e.Okx,
		"mexc":    e.Mexc,
	}
}
