// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mtfbot/internal/exchange"
	"mtfbot/internal/order"
	"mtfbot/internal/risk"
	"mtfbot/internal/runner"
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string
	Env         string
	MetricsAddr string
	LogLevel    string
}

// Redis describes the lock store connection. An empty Addr selects the
// in-process memory store.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Lock namespaces the distributed per-symbol locks.
type Lock struct {
	Prefix string `yaml:"prefix"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App       App                   `yaml:"app"`
	Redis     Redis                 `yaml:"redis"`
	Exchange  exchange.Config       `yaml:"exchange"`
	Stream    exchange.StreamConfig `yaml:"stream"`
	Lock      Lock                  `yaml:"lock"`
	Risk      risk.Config           `yaml:"risk"`
	Leverage  risk.LeverageConfig   `yaml:"leverage"`
	Order     order.Config          `yaml:"order"`
	Runner    runner.Config         `yaml:"runner"`
	RulesPath string                `yaml:"rules_path"`
}

// Load reads a YAML file from disk and hydrates a Config struct.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
