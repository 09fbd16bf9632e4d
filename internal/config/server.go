package config

import (
	"fmt"
	"os"
	"strconv"
)

// ServerConfig holds the local HTTP facade settings. The facade API key is a
// secret and only comes from the environment.
type ServerConfig struct {
	Port   string `yaml:"port"`
	APIKey string `yaml:"-"`
}

const _portDefault = "8080"

func (c *ServerConfig) Setup() error {
	if c.Port == "" {
		c.Port = _portDefault
	}
	if p, err := strconv.Atoi(c.Port); err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid server port %q", c.Port)
	}

	c.APIKey = os.Getenv("API_KEY")
	if c.APIKey == "" {
		return fmt.Errorf("empty API_KEY")
	}

	return nil
}
