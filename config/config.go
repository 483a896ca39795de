// Package config loads engine configuration from YAML with sane defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port              int `yaml:"port"`
	ReadTimeoutMS     int `yaml:"read_timeout_ms"`
	WriteTimeoutMS    int `yaml:"write_timeout_ms"`
	ShutdownTimeoutMS int `yaml:"shutdown_timeout_ms"`
}

// ChainConfig selects the network and contract deployment.
type ChainConfig struct {
	Network          string `yaml:"network"`
	RPCURL           string `yaml:"rpc_url"`
	ChainID          int64  `yaml:"chain_id"`
	AgentRegistry    string `yaml:"agent_registry"`
	CopyVault        string `yaml:"copy_vault"`
	ReputationLimits string `yaml:"reputation_limits"`
}

// OracleConfig tunes the reconciliation loop.
type OracleConfig struct {
	IntervalSecs    int `yaml:"interval_seconds"`
	ScanConcurrency int `yaml:"scan_concurrency"`
}

// ExchangeConfig points at the external exchange API.
type ExchangeConfig struct {
	InfoURL  string `yaml:"info_url"`
	WSURL    string `yaml:"ws_url"`
	EnableWS bool   `yaml:"enable_ws"`
}

// StorageConfig toggles the optional persistence backends.
type StorageConfig struct {
	EnablePostgres bool `yaml:"enable_postgres"`
	EnableRedis    bool `yaml:"enable_redis"`
}

// Config aggregates all engine configuration knobs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Chain    ChainConfig    `yaml:"chain"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Storage  StorageConfig  `yaml:"storage"`
}

// Load reads configuration from disk, falling back to defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	configPath := path
	if configPath == "" {
		configPath = filepath.Join("config", "default.yaml")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, fmt.Errorf("config: unable to read %s: %w", configPath, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: unable to parse %s: %w", configPath, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns baseline configuration values.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:              8082,
			ReadTimeoutMS:     10000,
			WriteTimeoutMS:    10000,
			ShutdownTimeoutMS: 5000,
		},
		Chain: ChainConfig{
			Network: "testnet",
		},
		Oracle: OracleConfig{
			IntervalSecs:    60,
			ScanConcurrency: 4,
		},
		Exchange: ExchangeConfig{
			InfoURL: "https://api.hyperliquid.xyz",
			WSURL:   "wss://api.hyperliquid.xyz/ws",
		},
	}
}

func (c *Config) applyDefaults() {
	def := Default()

	if c.Server.Port == 0 {
		c.Server.Port = def.Server.Port
	}
	if c.Server.ReadTimeoutMS == 0 {
		c.Server.ReadTimeoutMS = def.Server.ReadTimeoutMS
	}
	if c.Server.WriteTimeoutMS == 0 {
		c.Server.WriteTimeoutMS = def.Server.WriteTimeoutMS
	}
	if c.Server.ShutdownTimeoutMS == 0 {
		c.Server.ShutdownTimeoutMS = def.Server.ShutdownTimeoutMS
	}

	if c.Chain.Network == "" {
		c.Chain.Network = def.Chain.Network
	}

	if c.Oracle.IntervalSecs == 0 {
		c.Oracle.IntervalSecs = def.Oracle.IntervalSecs
	}
	if c.Oracle.ScanConcurrency == 0 {
		c.Oracle.ScanConcurrency = def.Oracle.ScanConcurrency
	}

	if c.Exchange.InfoURL == "" {
		c.Exchange.InfoURL = def.Exchange.InfoURL
	}
	if c.Exchange.WSURL == "" {
		c.Exchange.WSURL = def.Exchange.WSURL
	}
}
