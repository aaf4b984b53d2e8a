// Package timeleft resolves the many ways auction sites report "time until
// close" into plain seconds. One resolver serves every adapter so a new field
// alias or date layout only has to be added once.
package timeleft

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Direct seconds-remaining fields, tried first.
var directKeys = []string{
	"secondsRemaining", "timeLeftInSeconds", "timeRemaining", "secondsToEnd",
}

// Epoch end-time fields. Values above msThreshold are milliseconds.
var epochKeys = []string{
	"assetAuctionEndDateEpoch", "auctionEndEpoch", "endTimeEpochMs",
	"endEpoch", "endDate", "auctionEndDate",
}

// Display/string end-time fields, tried last.
var stringKeys = []string{
	"assetAuctionEndDate", "endTime", "end_time", "endDateStr",
	"auctionEndDateDisplay",
}

const msThreshold = 10_000_000_000

var layouts = []string{
	"01/02/2006 3:04 PM MST",
	"01/02/2006 15:04 MST",
	"January 2, 2006 3:04 PM MST",
	"Jan 2, 2006 3:04 PM MST",
	time.RFC3339,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05", // naive ISO, assume UTC
}

var parenRe = regexp.MustCompile(`\(([^)]+)\)`)

// Seconds resolves seconds-until-close from a raw source record, evaluated
// against now. Resolution order: direct seconds fields, epoch fields,
// display-date strings. A close time at or before now yields ok=false; the
// result is never negative. The function has no side effects and never
// panics on malformed input.
func Seconds(item map[string]any, now time.Time) (int64, bool) {
	for _, k := range directKeys {
		if v, ok := asFloat(item[k]); ok && v >= 0 {
			return int64(v), true
		}
	}

	nowSecs := float64(now.UnixNano()) / 1e9
	for _, k := range epochKeys {
		v, ok := asFloat(item[k])
		if !ok || v <= 0 {
			continue
		}
		if v > msThreshold {
			v = v / 1000.0
		}
		rem := int64(v - nowSecs)
		if rem > 0 {
			return rem, true
		}
		return 0, false
	}

	for _, k := range stringKeys {
		s, ok := item[k].(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		// Some sites wrap the useful part in parentheses, e.g.
		// "Closes (08/10/2025 10:00 AM CST)".
		if m := parenRe.FindStringSubmatch(s); m != nil {
			s = strings.TrimSpace(m[1])
		}
		end, ok := parseEnd(s)
		if !ok {
			continue
		}
		rem := int64(end.Sub(now).Seconds())
		if rem > 0 {
			return rem, true
		}
		return 0, false
	}

	return 0, false
}

func parseEnd(s string) (time.Time, bool) {
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		// Layouts without zone information parse in UTC already; layouts with
		// an abbreviation the runtime does not know resolve to a zero-offset
		// zone, which we also treat as UTC.
		return t.UTC(), true
	}
	return time.Time{}, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
