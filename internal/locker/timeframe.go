package locker

import (
	"strings"
	"time"
)

// Canonical timeframes exposed by the facade, mapped onto the resolutions
// the upstream history endpoint understands.
var _timeframeResolutions = map[string]string{
	"M1":  "1m",
	"M5":  "5m",
	"M15": "15m",
	"M30": "30m",
	"H1":  "1H",
	"H4":  "4H",
	"D1":  "1D",
	"W1":  "1W",
	"MN1": "1M",
}

// Aliases agents and users commonly send.
var _timeframeAliases = map[string]string{
	"1M": "M1", "1MIN": "M1",
	"5M": "M5", "5MIN": "M5",
	"15M": "M15", "15MIN": "M15",
	"30M": "M30", "30MIN": "M30",
	"1H": "H1", "60M": "H1", "60MIN": "H1",
	"4H": "H4", "240M": "H4",
	"1D": "D1", "DAILY": "D1", "DAY": "D1",
	"1W": "W1", "WEEKLY": "W1", "WEEK": "W1",
	"MO": "MN1", "MON": "MN1", "MONTHLY": "MN1", "MONTH": "MN1", "1MN": "MN1",
}

var _barDurations = map[string]time.Duration{
	"1m":  time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1H":  time.Hour,
	"4H":  4 * time.Hour,
	"1D":  24 * time.Hour,
	"1W":  7 * 24 * time.Hour,
	"1M":  30 * 24 * time.Hour,
}

// NormalizeTimeframe maps any accepted spelling onto the canonical form,
// case-insensitively. Unknown input comes back uppercased for the caller's
// error message.
func NormalizeTimeframe(tf string) string {
	up := strings.ToUpper(strings.TrimSpace(tf))
	if up == "" {
		return up
	}
	if _, ok := _timeframeResolutions[up]; ok {
		return up
	}
	if canonical, ok := _timeframeAliases[up]; ok {
		return canonical
	}
	return up
}

// ValidTimeframe reports whether tf is one of the canonical forms.
func ValidTimeframe(tf string) bool {
	_, ok := _timeframeResolutions[tf]
	return ok
}

// Timeframes lists the canonical forms for error messages.
func Timeframes() []string {
	return []string{"M1", "M5", "M15", "M30", "H1", "H4", "D1", "W1", "MN1"}
}

func resolutionFor(tf string) (string, bool) {
	r, ok := _timeframeResolutions[tf]
	return r, ok
}

func barDuration(resolution string) time.Duration {
	if d, ok := _barDurations[resolution]; ok {
		return d
	}
	return time.Minute
}

// historyWindow estimates the from-timestamp for a count-based bar query.
// Continuous instruments get the exact span; everything else trades five
// days out of seven, so the calendar window is widened by 7/5 and padded
// past a weekend when "now" lands on one.
func historyWindow(now time.Time, resolution string, count int, continuous bool) (fromMS, toMS int64) {
	toMS = now.UnixMilli()

	barMS := barDuration(resolution).Milliseconds()
	span := int64(count)*barMS + barMS

	if continuous {
		return toMS - span, toMS
	}

	calendar := span * 7 / 5
	switch now.UTC().Weekday() {
	case time.Saturday:
		calendar += 2 * 24 * time.Hour.Milliseconds()
	case time.Sunday:
		calendar += 3 * 24 * time.Hour.Milliseconds()
	}
	return toMS - calendar, toMS
}
