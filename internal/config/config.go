// Package config loads the YAML configuration shared by all commands.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when --config is not given
const DefaultPath = "mcp-sentinel.yaml"

// Environment variables that override file values
const (
	EnvDataDir      = "MCP_SENTINEL_DATA_DIR"
	EnvBaseline     = "MCP_SENTINEL_BASELINE"
	EnvSensitivity  = "MCP_SENTINEL_SENSITIVITY"
	EnvKafkaBrokers = "MCP_SENTINEL_KAFKA_BROKERS"
	EnvSecretsDir   = "MCP_SENTINEL_SECRETS_DIR"
)

type Config struct {
	DataDir  string         `yaml:"data_dir"`
	Baseline BaselineConfig `yaml:"baseline"`
	Detector DetectorConfig `yaml:"detector"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Relay    RelayConfig    `yaml:"relay"`
	Alerts   AlertsConfig   `yaml:"alerts"`
}

type BaselineConfig struct {
	Path        string `yaml:"path"`
	SummaryPath string `yaml:"summary_path"`
}

type DetectorConfig struct {
	Sensitivity *float64 `yaml:"sensitivity"`
	MinHistory  *int     `yaml:"min_history"`
	TopK        int      `yaml:"top_k"`
}

type MonitorConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Watch        bool          `yaml:"watch"`
	Replay       bool          `yaml:"replay"`
	HistorySize  int           `yaml:"history_size"`
	HistoryDir   string        `yaml:"history_dir"`
	HistoryDB    string        `yaml:"history_db"`
	MetricsAddr  string        `yaml:"metrics_addr"`
}

type RelayConfig struct {
	LogFile    string `yaml:"log_file"`
	SecretsDir string `yaml:"secrets_dir"`
}

type AlertsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Enabled reports whether alerts should be published to Kafka
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads the config file at path. A missing file at the default path
// yields the defaults; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			cfg := Default()
			applyEnvOverrides(cfg)
			return cfg, validateConfig(cfg)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return LoadFromBytes(data)
}

// LoadFromBytes parses YAML config data
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "./mcp_captured_data"
	}
	if cfg.Baseline.Path == "" {
		cfg.Baseline.Path = "mcp_baseline.json"
	}
	if cfg.Baseline.SummaryPath == "" {
		cfg.Baseline.SummaryPath = "mcp_baseline_summary.json"
	}
	if cfg.Detector.Sensitivity == nil {
		v := 0.7
		cfg.Detector.Sensitivity = &v
	}
	if cfg.Detector.MinHistory == nil {
		v := 3
		cfg.Detector.MinHistory = &v
	}
	if cfg.Detector.TopK == 0 {
		cfg.Detector.TopK = 5
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 500 * time.Millisecond
	}
	if cfg.Monitor.HistorySize == 0 {
		cfg.Monitor.HistorySize = 100
	}
	if cfg.Monitor.HistoryDir == "" {
		cfg.Monitor.HistoryDir = "."
	}
	if cfg.Alerts.Kafka.Topic == "" {
		cfg.Alerts.Kafka.Topic = "mcp-sentinel-alerts"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvBaseline); v != "" {
		cfg.Baseline.Path = v
	}
	if v := os.Getenv(EnvSensitivity); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detector.Sensitivity = &f
		}
	}
	if v := os.Getenv(EnvKafkaBrokers); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Alerts.Kafka.Brokers = brokers
	}
	if v := os.Getenv(EnvSecretsDir); v != "" {
		cfg.Relay.SecretsDir = v
	}
}

func validateConfig(cfg *Config) error {
	if s := *cfg.Detector.Sensitivity; s < 0 || s > 1 {
		return fmt.Errorf("detector.sensitivity must be within [0,1], got %v", s)
	}
	if *cfg.Detector.MinHistory < 0 {
		return fmt.Errorf("detector.min_history must be >= 0")
	}
	if cfg.Detector.TopK < 1 {
		return fmt.Errorf("detector.top_k must be >= 1")
	}
	if cfg.Monitor.PollInterval <= 0 {
		return fmt.Errorf("monitor.poll_interval must be positive")
	}
	if cfg.Monitor.HistorySize < 1 {
		return fmt.Errorf("monitor.history_size must be >= 1")
	}
	return nil
}

// Sensitivity returns the configured detector sensitivity
func (c *Config) Sensitivity() float64 {
	return *c.Detector.Sensitivity
}

// MinHistory returns the configured detector history gate
func (c *Config) MinHistory() int {
	return *c.Detector.MinHistory
}
