package config

import (
	"fmt"
	"os"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/klend-harness/utils"
	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Format   string `yaml:"format"`
	LogDir   string `yaml:"log_dir"`
	Level    string `yaml:"level"`
	Compress bool   `yaml:"compress"`
	Console  bool   `yaml:"console"`
}

func (c *LogConfig) ToLogOption() utils.LogOption {
	return utils.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
		Console:  c.Console,
	}
}

type Config struct {
	Rpc             string    `yaml:"rpc"`
	Ws              string    `yaml:"ws"`
	Key             string    `yaml:"key"`
	AdminKey        string    `yaml:"admin_key"`
	Manifest        string    `yaml:"manifest"`
	Commitment      string    `yaml:"commitment"`
	ConfirmAttempts int       `yaml:"confirm_attempts"`
	ConfirmDelayMs  int       `yaml:"confirm_delay_ms"`
	DBUrl           string    `yaml:"db_url"`
	Log             LogConfig `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Rpc:             "http://127.0.0.1:8899",
		Ws:              "ws://127.0.0.1:8900",
		Manifest:        utils.ManifestFile,
		Commitment:      string(rpc.CommitmentConfirmed),
		ConfirmAttempts: 30,
		ConfirmDelayMs:  500,
		Log: LogConfig{
			Format: "console",
			LogDir: utils.LogPath,
			Level:  "info",
		},
	}
}

// Load reads a YAML config on top of Default.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Rpc == "" {
		return fmt.Errorf("config: rpc endpoint is empty")
	}
	if c.ConfirmAttempts <= 0 {
		return fmt.Errorf("config: confirm_attempts must be positive, got %d", c.ConfirmAttempts)
	}
	switch rpc.CommitmentType(c.Commitment) {
	case rpc.CommitmentProcessed, rpc.CommitmentConfirmed, rpc.CommitmentFinalized:
	default:
		return fmt.Errorf("config: unknown commitment %q", c.Commitment)
	}
	return nil
}

func (c *Config) CommitmentType() rpc.CommitmentType {
	return rpc.CommitmentType(c.Commitment)
}
