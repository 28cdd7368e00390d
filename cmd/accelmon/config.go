package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config drives the watch and read commands. Flags override file values.
type Config struct {
	Adapter    string `yaml:"adapter"`
	Bus        string `yaml:"bus"`
	GobotBus   int    `yaml:"gobot_bus"`
	IntervalMs int    `yaml:"interval_ms"`
	Range      byte   `yaml:"range"`
	Bandwidth  byte   `yaml:"bandwidth"`
}

func defaultConfig() Config {
	return Config{
		Adapter:    "i2c",
		IntervalMs: 300,
	}
}

func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("could not read config file: %w", err)
	}
	if err = yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config file: %w", err)
	}
	return cfg, nil
}

func (c Config) interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}
