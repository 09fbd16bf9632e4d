package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// NewsConfig drives the economic-calendar sync worker.
type NewsConfig struct {
	Address        string        `yaml:"address"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	ChaseHorizon   time.Duration `yaml:"chase_horizon"`
	MinRefresh     time.Duration `yaml:"min_refresh"`
	Retention      time.Duration `yaml:"retention"`
	Currencies     []string      `yaml:"currencies"`
	MinImportance  int           `yaml:"min_importance"`
}

const (
	_newsAddressDefault    = "https://economic-calendar.tradingview.com/events"
	_updateIntervalDefault = 4 * time.Hour
	_chaseHorizonDefault   = 4 * time.Hour
	_minRefreshDefault     = 20 * time.Second
	_retentionDefault      = 90 * 24 * time.Hour
)

var _currenciesDefault = []string{"USD", "CAD", "JPY", "EUR", "CHF", "AUD", "NZD", "GBP"}

func (c *NewsConfig) Setup() error {
	if c.Address == "" {
		c.Address = _newsAddressDefault
	}
	if _, err := url.Parse(c.Address); err != nil {
		return fmt.Errorf("%w: invalid news address", err)
	}

	if c.UpdateInterval <= 0 {
		c.UpdateInterval = _updateIntervalDefault
	}
	if c.ChaseHorizon <= 0 {
		c.ChaseHorizon = _chaseHorizonDefault
	}
	if c.MinRefresh <= 0 {
		c.MinRefresh = _minRefreshDefault
	}
	if c.Retention <= 0 {
		c.Retention = _retentionDefault
	}

	if len(c.Currencies) == 0 {
		c.Currencies = _currenciesDefault
	}
	for i := range c.Currencies {
		c.Currencies[i] = strings.ToUpper(strings.TrimSpace(c.Currencies[i]))
	}

	if c.MinImportance < -1 || c.MinImportance > 1 {
		return fmt.Errorf("min_importance must be -1, 0 or 1, got %d", c.MinImportance)
	}

	return nil
}
