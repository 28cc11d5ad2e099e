package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS       NATSConfig       `yaml:"nats"`
	Store      StoreConfig      `yaml:"store"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Gateway    GatewayConfig    `yaml:"gateway"`
	Graph      GraphConfig      `yaml:"graph"`
	Web        WebConfig        `yaml:"web"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Vault      VaultConfig      `yaml:"vault"`
}

type NATSConfig struct {
	Port          int    `yaml:"port"`
	DataDir       string `yaml:"data_dir"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type CheckpointConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type GraphConfig struct {
	MaxConcurrentAgents int `yaml:"max_concurrent_agents"`
	MaxSteps            int `yaml:"max_steps"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PruneCron    string        `yaml:"prune_cron"`
}

type VaultConfig struct {
	Passphrase string `yaml:"passphrase"`
}

func defaults() Config {
	return Config{
		NATS: NATSConfig{
			Port:          4222,
			DataDir:       "data/nats",
			ChannelPrefix: "ogma:",
		},
		Store: StoreConfig{
			Path: "data/ogma.db",
		},
		Checkpoint: CheckpointConfig{
			Enabled:   true,
			Path:      "data/checkpoints.db",
			Retention: 7 * 24 * time.Hour,
		},
		Gateway: GatewayConfig{
			Model:   "claude-sonnet-4-20250514",
			Timeout: 5 * time.Minute,
		},
		Graph: GraphConfig{
			MaxConcurrentAgents: 5,
			MaxSteps:            50,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
			PruneCron:    "0 3 * * *",
		},
	}
}

func Load() (*Config, error) {
	cfg := defaults()

	path := os.Getenv("OGMA_CONFIG")
	if path == "" {
		path = "config/ogma.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file not found, use defaults + env
	} else {
		// Expand environment variables in YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("OGMA_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("OGMA_CHANNEL_PREFIX"); v != "" {
		cfg.NATS.ChannelPrefix = v
	}
	if v := os.Getenv("OGMA_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("OGMA_CHECKPOINT_PATH"); v != "" {
		cfg.Checkpoint.Path = v
	}
	if v := os.Getenv("OGMA_GATEWAY_URL"); v != "" {
		cfg.Gateway.BaseURL = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.Gateway.APIKey = v
	}
	if v := os.Getenv("OGMA_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("OGMA_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("OGMA_VAULT_PASSPHRASE"); v != "" {
		cfg.Vault.Passphrase = v
	}
}
