// Package config loads service configuration from defaults, an optional
// YAML file and environment overrides, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"strategy-backtester/services/arrowpipeline"
	"strategy-backtester/services/clickhouse"
	"strategy-backtester/services/engine"
	"strategy-backtester/services/marketdata"
)

// Provider names accepted in DataConfig.Provider.
const (
	ProviderCSV        = "csv"
	ProviderClickHouse = "clickhouse"
)

type ServerConfig struct {
	HTTPPort       int           `yaml:"http_port"`
	GRPCPort       int           `yaml:"grpc_port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ShutdownGrace  time.Duration `yaml:"shutdown_grace"`
}

type DataConfig struct {
	Provider string                   `yaml:"provider"`
	CSVDir   string                   `yaml:"csv_dir"`
	Fetcher  marketdata.FetcherConfig `yaml:"fetcher"`
}

type Config struct {
	Environment string               `yaml:"environment"`
	Server      ServerConfig         `yaml:"server"`
	Engine      engine.Config        `yaml:"engine"`
	Data        DataConfig           `yaml:"data"`
	ClickHouse  clickhouse.Config    `yaml:"clickhouse"`
	Arrow       arrowpipeline.Config `yaml:"arrow"`
}

func Default() *Config {
	return &Config{
		Environment: "dev",
		Server: ServerConfig{
			HTTPPort:       8080,
			GRPCPort:       9091,
			RequestTimeout: 30 * time.Second,
			ShutdownGrace:  10 * time.Second,
		},
		Engine: engine.DefaultConfig(),
		Data: DataConfig{
			Provider: ProviderCSV,
			CSVDir:   "data",
			Fetcher:  marketdata.DefaultFetcherConfig(),
		},
		ClickHouse: clickhouse.Config{
			DSN:         "clickhouse://localhost:9000",
			Database:    "backtest",
			Table:       "daily_bars",
			DialTimeout: 10 * time.Second,
		},
		Arrow: arrowpipeline.Config{BatchSize: 4096},
	}
}

// Load builds the configuration. An empty path skips the file stage.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("BACKTEST_ENV", &c.Environment)
	str("BACKTEST_PROVIDER", &c.Data.Provider)
	str("BACKTEST_CSV_DIR", &c.Data.CSVDir)
	str("CLICKHOUSE_DSN", &c.ClickHouse.DSN)
	str("CLICKHOUSE_DATABASE", &c.ClickHouse.Database)
	str("CLICKHOUSE_TABLE", &c.ClickHouse.Table)
	if err := num("BACKTEST_HTTP_PORT", &c.Server.HTTPPort); err != nil {
		return err
	}
	if err := num("BACKTEST_GRPC_PORT", &c.Server.GRPCPort); err != nil {
		return err
	}
	if v, ok := lookup("BACKTEST_REQUEST_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BACKTEST_REQUEST_TIMEOUT: %w", err)
		}
		c.Server.RequestTimeout = d
	}
	c.Data.Provider = strings.ToLower(c.Data.Provider)
	return nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if !validPort(c.Server.HTTPPort) {
		errs = append(errs, fmt.Errorf("server.http_port %d out of range", c.Server.HTTPPort))
	}
	if !validPort(c.Server.GRPCPort) {
		errs = append(errs, fmt.Errorf("server.grpc_port %d out of range", c.Server.GRPCPort))
	}
	if c.Server.HTTPPort == c.Server.GRPCPort {
		errs = append(errs, errors.New("server.http_port and server.grpc_port must differ"))
	}
	if c.Server.RequestTimeout <= 0 {
		errs = append(errs, errors.New("server.request_timeout must be positive"))
	}
	switch c.Data.Provider {
	case ProviderCSV:
		if c.Data.CSVDir == "" {
			errs = append(errs, errors.New("data.csv_dir is required for the csv provider"))
		}
	case ProviderClickHouse:
		if c.ClickHouse.DSN == "" {
			errs = append(errs, errors.New("clickhouse.dsn is required for the clickhouse provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("data.provider %q is not one of csv, clickhouse", c.Data.Provider))
	}
	if c.Engine.InitialCash < 0 {
		errs = append(errs, errors.New("engine.initial_cash must not be negative"))
	}
	return errors.Join(errs...)
}

func validPort(p int) bool { return p > 0 && p < 65536 }
