// Package news mirrors the TradingView economic calendar into postgres and
// keeps the mirror fresh around release times.
package news

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"resty.dev/v3"

	"brokergate/internal/config"
	"brokergate/internal/logger"
	"brokergate/internal/model"
)

// The calendar API filters by country, not currency. EUR maps onto the two
// dominant eurozone calendars.
var _currencyCountries = map[string][]string{
	"USD": {"US"},
	"CAD": {"CA"},
	"JPY": {"JP"},
	"EUR": {"DE", "FR"},
	"CHF": {"CH"},
	"AUD": {"AU"},
	"NZD": {"NZ"},
	"GBP": {"GB"},
}

// CurrenciesToCountries expands currency codes into the country codes the
// calendar API filters on, deduplicated in first-seen order.
func CurrenciesToCountries(currencies []string) []string {
	seen := make(map[string]struct{})
	countries := make([]string, 0, len(currencies))
	for _, cur := range currencies {
		for _, country := range _currencyCountries[strings.ToUpper(strings.TrimSpace(cur))] {
			if _, ok := seen[country]; ok {
				continue
			}
			seen[country] = struct{}{}
			countries = append(countries, country)
		}
	}
	return countries
}

// Client fetches raw calendar events over HTTP.
type Client struct {
	http      *resty.Client
	countries string
	minImp    int
	logger    logger.Logger
}

func NewClient(cfg config.NewsConfig, logger logger.Logger) *Client {
	c := resty.New().
		SetLogger(logger).
		SetBaseURL(cfg.Address).
		SetTimeout(30 * time.Second).
		// The calendar endpoint rejects requests without a TradingView origin.
		SetHeader("Origin", "https://in.tradingview.com")

	return &Client{
		http:      c,
		countries: strings.Join(CurrenciesToCountries(cfg.Currencies), ","),
		minImp:    cfg.MinImportance,
		logger:    logger,
	}
}

func (c *Client) Close() error {
	return c.http.Close()
}

// wireEvent is the calendar's JSON shape. Numeric fields arrive as numbers
// or null and are carried onward as strings, matching how the upstream
// renders them.
type wireEvent struct {
	ID         json.Number  `json:"id"`
	Title      string       `json:"title"`
	Country    string       `json:"country"`
	Indicator  string       `json:"indicator"`
	Category   string       `json:"category"`
	Currency   string       `json:"currency"`
	Importance int          `json:"importance"`
	Date       string       `json:"date"`
	Actual     *json.Number `json:"actual"`
	Previous   *json.Number `json:"previous"`
	Forecast   *json.Number `json:"forecast"`
	Source     string       `json:"source"`
	SourceURL  string       `json:"source_url"`
}

type calendarResponse struct {
	Result []wireEvent `json:"result"`
}

// FetchEvents pulls the calendar window and normalizes it into events ready
// for the mirror. Rows with unparseable timestamps are dropped with a log
// line rather than failing the batch.
func (c *Client) FetchEvents(ctx context.Context, from, to time.Time) ([]model.EconomicEvent, error) {
	var out calendarResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"from":          from.UTC().Format(time.RFC3339),
			"to":            to.UTC().Format(time.RFC3339),
			"countries":     c.countries,
			"minImportance": fmt.Sprintf("%d", c.minImp),
		}).
		SetResult(&out).
		Get("")
	if err != nil {
		return nil, fmt.Errorf("%w: can't fetch economic calendar", err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, fmt.Errorf("economic calendar returned %d", resp.StatusCode())
	}

	events := make([]model.EconomicEvent, 0, len(out.Result))
	for _, w := range out.Result {
		eventTime, perr := time.Parse(time.RFC3339, w.Date)
		if perr != nil {
			c.logger.Warnf("%s: skipping calendar event %s with bad date %q", perr, w.ID.String(), w.Date)
			continue
		}

		events = append(events, model.EconomicEvent{
			EventTypeID: model.EventTypeID(w.Title, w.Country),
			SourceID:    w.ID.String(),
			Title:       w.Title,
			Country:     w.Country,
			Indicator:   w.Indicator,
			Category:    w.Category,
			Currency:    w.Currency,
			Impact:      model.ImportanceToImpact(w.Importance),
			EventTime:   eventTime.UTC(),
			Actual:      numberString(w.Actual),
			Forecast:    numberString(w.Forecast),
			Previous:    numberString(w.Previous),
			Source:      w.Source,
			SourceURL:   w.SourceURL,
		})
	}
	return events, nil
}

func numberString(n *json.Number) *string {
	if n == nil {
		return nil
	}
	s := n.String()
	return &s
}
