package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string        `yaml:"log_level"`
	Server   ServerConfig  `yaml:"server"`
	Gateway  GatewayConfig `yaml:"gateway"`
	News     NewsConfig    `yaml:"news"`
}

func (c *Config) ValidateAndSetup() error {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if err := c.Server.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup server cfg", err)
	}
	if err := c.Gateway.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup gateway cfg", err)
	}
	if err := c.News.Setup(); err != nil {
		return fmt.Errorf("%w: can't setup news cfg", err)
	}

	return nil
}

func Load(filename string) (Config, error) {
	var cfg Config
	input, err := os.ReadFile(filename)
	if err != nil {
		return cfg, fmt.Errorf("%w: can't read file", err)
	}

	if err := yaml.Unmarshal(input, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: can't unmarshal config", err)
	}

	if err := cfg.ValidateAndSetup(); err != nil {
		return cfg, fmt.Errorf("%w: can't setup cfg", err)
	}

	return cfg, nil
}
