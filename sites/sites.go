// Package sites contains one adapter per auction source. Every adapter
// fetches raw records its own way but hands them through the shared money,
// timeleft and target helpers, emitting the canonical models.Listing shape.
package sites

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"

	"truckwatch/models"
	"truckwatch/money"
)

// Source produces normalized listings for one auction site.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Listing, error)
}

// FirstCents tries price keys in order and returns the first parseable
// value, or nil when none of them yields a price.
func FirstCents(item map[string]any, keys ...string) *int64 {
	for _, k := range keys {
		if cents, ok := money.ParseCents(item[k]); ok {
			return &cents
		}
	}
	return nil
}

// DedupeByAssetID drops repeated (site, asset id) pairs within one batch,
// keeping the first occurrence. Sources paginate with overlap, so the same
// live item must not appear twice; asset ids are only unique within a site,
// and two sites handing out the same numeric id must both survive.
func DedupeByAssetID(rows []models.Listing) []models.Listing {
	seen := make(map[string]struct{}, len(rows))
	out := rows[:0]
	for _, r := range rows {
		key := r.Site + "\x00" + r.AssetID
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

var cityStateRe = regexp.MustCompile(`^(.+?),\s*([A-Za-z]{2})$`)

// ParseCityState splits "City, ST" into its parts. Anything else yields
// ("", "") and the caller keeps its defaults.
func ParseCityState(s string) (string, string) {
	m := cityStateRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", ""
	}
	return strings.TrimSpace(m[1]), strings.ToUpper(m[2])
}

// titleOrUntitled trims a display title, falling back to "Untitled".
func titleOrUntitled(s string) string {
	t := strings.TrimSpace(s)
	if t == "" {
		return "Untitled"
	}
	return t
}

// stringField reads a string value out of a raw record, coercing numbers.
func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
