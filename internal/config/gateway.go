package config

import (
	"fmt"
	"net/url"
	"os"
	"time"
)

// GatewayConfig holds everything needed to talk to the upstream broker API.
// The developer key is a secret and only comes from the environment.
type GatewayConfig struct {
	DemoBaseURL string `yaml:"demo_base_url"`
	LiveBaseURL string `yaml:"live_base_url"`

	TokenSafetyMargin time.Duration `yaml:"token_safety_margin"`
	AccountCacheTTL   time.Duration `yaml:"account_cache_ttl"`
	RequestTimeout    time.Duration `yaml:"request_timeout"`
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	MaxBarsPerRequest int           `yaml:"max_bars_per_request"`
	DefaultBarCount   int           `yaml:"default_bar_count"`
	DeveloperAPIKey   string        `yaml:"-"`
}

const (
	_demoBaseURLDefault       = "https://demo.tradelocker.com/backend-api"
	_liveBaseURLDefault       = "https://live.tradelocker.com/backend-api"
	_tokenSafetyMarginDefault = time.Minute
	_accountCacheTTLDefault   = 30 * time.Second
	_requestTimeoutDefault    = 30 * time.Second
	_requestsPerMinuteDefault = 240
	_maxBarsPerRequestDefault = 20000
	_defaultBarCountDefault   = 100
)

func (c *GatewayConfig) Setup() error {
	if c.DemoBaseURL == "" {
		c.DemoBaseURL = _demoBaseURLDefault
	}
	if c.LiveBaseURL == "" {
		c.LiveBaseURL = _liveBaseURLDefault
	}
	for _, u := range []string{c.DemoBaseURL, c.LiveBaseURL} {
		if _, err := url.Parse(u); err != nil {
			return fmt.Errorf("%w: invalid base url %q", err, u)
		}
	}

	if c.TokenSafetyMargin <= 0 {
		c.TokenSafetyMargin = _tokenSafetyMarginDefault
	}
	if c.AccountCacheTTL <= 0 {
		c.AccountCacheTTL = _accountCacheTTLDefault
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = _requestTimeoutDefault
	}
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = _requestsPerMinuteDefault
	}
	if c.MaxBarsPerRequest <= 0 || c.MaxBarsPerRequest > _maxBarsPerRequestDefault {
		c.MaxBarsPerRequest = _maxBarsPerRequestDefault
	}
	if c.DefaultBarCount <= 0 {
		c.DefaultBarCount = _defaultBarCountDefault
	}

	c.DeveloperAPIKey = os.Getenv("DEVELOPER_API_KEY")

	return nil
}
