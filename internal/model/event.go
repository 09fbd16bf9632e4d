package model

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type Impact string

const (
	ImpactHigh   Impact = "high"
	ImpactMedium Impact = "medium"
	ImpactLow    Impact = "low"
)

// ImportanceToImpact maps the calendar source's numeric importance onto a
// label: >=1 high, 0 medium, anything below low.
func ImportanceToImpact(importance int) Impact {
	switch {
	case importance >= 1:
		return ImpactHigh
	case importance == 0:
		return ImpactMedium
	default:
		return ImpactLow
	}
}

// EconomicEvent is one row of the economic calendar mirror. The natural key
// is (SourceID, EventTime): the source reuses ids for recurring releases.
type EconomicEvent struct {
	ID          int64     `db:"id" json:"id"`
	EventTypeID string    `db:"event_type_id" json:"event_type_id"`
	SourceID    string    `db:"source_id" json:"source_id"`
	Title       string    `db:"title" json:"title"`
	Country     string    `db:"country" json:"country"`
	Indicator   string    `db:"indicator" json:"indicator,omitempty"`
	Category    string    `db:"category" json:"category,omitempty"`
	Currency    string    `db:"currency" json:"currency,omitempty"`
	Impact      Impact    `db:"impact" json:"impact"`
	EventTime   time.Time `db:"event_time" json:"event_time"`
	Actual      *string   `db:"actual" json:"actual"`
	Forecast    *string   `db:"forecast" json:"forecast"`
	Previous    *string   `db:"previous" json:"previous"`
	Source      string    `db:"source" json:"source,omitempty"`
	SourceURL   string    `db:"source_url" json:"source_url,omitempty"`
}

// EventTypeID derives a stable 8-char hex id for an event type, so "CPI" for
// the US resolves to the same id on every occurrence.
func EventTypeID(title, country string) string {
	normalized := strings.ToLower(strings.TrimSpace(title)) + ":" + strings.ToUpper(strings.TrimSpace(country))
	sum := sha256.Sum256([]byte(normalized))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:8])
}
