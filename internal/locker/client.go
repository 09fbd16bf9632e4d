// Package locker is the client side of the TradeLocker broker API: token
// lifecycle, account resolution and trade-call composition. All pricing,
// matching and history computation stays upstream; this package only
// composes requests and normalizes replies.
package locker

import (
	"time"

	"go.uber.org/ratelimit"
	"resty.dev/v3"

	"brokergate/internal/config"
	"brokergate/internal/logger"
	"brokergate/internal/model"
)

// Client owns one resty client per broker environment plus a shared
// limiter. Demo and live are distinct upstream deployments with the same
// API surface.
type Client struct {
	demo *resty.Client
	live *resty.Client

	rateLimiter ratelimit.Limiter
	cfg         config.GatewayConfig
	logger      logger.Logger
}

func NewClient(cfg config.GatewayConfig, logger logger.Logger) *Client {
	build := func(baseURL string) *resty.Client {
		c := resty.New().
			SetLogger(logger).
			SetBaseURL(baseURL).
			SetTimeout(cfg.RequestTimeout).
			SetAllowMethodDeletePayload(true).
			SetHeader("accept", "application/json")
		if cfg.DeveloperAPIKey != "" {
			c.SetHeader("developer-api-key", cfg.DeveloperAPIKey)
		}
		return c
	}

	return &Client{
		demo:        build(cfg.DemoBaseURL),
		live:        build(cfg.LiveBaseURL),
		rateLimiter: ratelimit.New(cfg.RequestsPerMinute, ratelimit.Per(time.Minute)),
		cfg:         cfg,
		logger:      logger,
	}
}

func (c *Client) env(environment model.Environment) *resty.Client {
	if environment == model.Live {
		return c.live
	}
	return c.demo
}

// take blocks until the shared upstream rate budget admits one more call.
func (c *Client) take() {
	c.rateLimiter.Take()
}

func (c *Client) Close() error {
	if err := c.demo.Close(); err != nil {
		return err
	}
	return c.live.Close()
}

// envelope is the broker's terse status wrapper: s is "ok" or "error", d
// carries the payload.
type envelope[T any] struct {
	S      string `json:"s"`
	D      T      `json:"d"`
	ErrMsg string `json:"errmsg"`
}

// upstreamFault is the error-side body shape shared by all endpoints.
type upstreamFault struct {
	S       string `json:"s"`
	ErrMsg  string `json:"errmsg"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (f *upstreamFault) text() string {
	switch {
	case f.ErrMsg != "":
		return f.ErrMsg
	case f.Message != "":
		return f.Message
	default:
		return f.Error
	}
}

// upstreamErr converts a non-2xx resty response into an UpstreamError with
// whatever message the broker supplied.
func upstreamErr(resp *resty.Response) error {
	msg := ""
	if fault, ok := resp.Error().(*upstreamFault); ok && fault != nil {
		msg = fault.text()
	}
	return &UpstreamError{StatusCode: resp.StatusCode(), Message: msg}
}
