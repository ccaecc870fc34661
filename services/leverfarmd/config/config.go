package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config captures the runtime settings for the leverage service daemon.
type Config struct {
	ListenAddress string         `yaml:"listen"`
	DataDir       string         `yaml:"data_dir"`
	LogLevel      string         `yaml:"log_level"`
	ModuleConfig  string         `yaml:"module_config"`
	PoolAddress   string         `yaml:"pool_address"`
	PausedModules []string       `yaml:"paused_modules"`
	Workers       []WorkerConfig `yaml:"workers"`
}

// WorkerConfig binds a configured worker address to a strategy
// implementation and its oracle pairs.
type WorkerConfig struct {
	Address     string `yaml:"address"`
	Strategy    string `yaml:"strategy"`
	BaseSymbol  string `yaml:"base_symbol"`
	AssetSymbol string `yaml:"asset_symbol"`
	MaxPriceAge uint64 `yaml:"max_price_age"`
}

// Strategy identifiers accepted in WorkerConfig.
const (
	StrategyVault = "vault"
	StrategyFarm  = "farm"
)

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Normalize trims whitespace and fills defaults.
func (cfg *Config) Normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./leverfarm-data"
	}
	cfg.LogLevel = strings.TrimSpace(cfg.LogLevel)
	cfg.ModuleConfig = strings.TrimSpace(cfg.ModuleConfig)
	cfg.PoolAddress = strings.TrimSpace(cfg.PoolAddress)
	paused := cfg.PausedModules[:0]
	for _, module := range cfg.PausedModules {
		module = strings.ToLower(strings.TrimSpace(module))
		if module != "" {
			paused = append(paused, module)
		}
	}
	cfg.PausedModules = paused
	for i := range cfg.Workers {
		w := &cfg.Workers[i]
		w.Address = strings.TrimSpace(w.Address)
		w.Strategy = strings.ToLower(strings.TrimSpace(w.Strategy))
		w.BaseSymbol = strings.TrimSpace(w.BaseSymbol)
		w.AssetSymbol = strings.TrimSpace(w.AssetSymbol)
		if w.MaxPriceAge == 0 {
			w.MaxPriceAge = 3600
		}
	}
}

// Validate rejects configurations the daemon cannot start with.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if cfg.PoolAddress == "" {
		return fmt.Errorf("pool_address required")
	}
	for _, w := range cfg.Workers {
		if w.Address == "" {
			return fmt.Errorf("worker address required")
		}
		switch w.Strategy {
		case StrategyVault, StrategyFarm:
		default:
			return fmt.Errorf("worker %s: unknown strategy %q", w.Address, w.Strategy)
		}
		if w.BaseSymbol == "" || w.AssetSymbol == "" {
			return fmt.Errorf("worker %s: oracle symbols required", w.Address)
		}
	}
	return nil
}
