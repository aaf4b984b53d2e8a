package models

import "fmt"

// Listing represents one auction item after source normalization.
// Every adapter emits this shape regardless of what the site calls its fields.
type Listing struct {
	Site    string
	AssetID string
	Title   string
	City    string
	State   string

	// BidCents is nil when the source exposed no parseable price.
	BidCents *int64
	// Secs is seconds until the auction closes. nil when no close time could
	// be parsed; never negative.
	Secs *int64

	URL  string
	Tags []string

	// Target marks a listing the alert engine may consider.
	Target bool
	// Blocked marks a listing the classifier excluded (light-duty or
	// non-matching). A blocked listing is never alerted.
	Blocked bool
	// Engine67 is annotated separately so digests can call out 6.7L engines.
	Engine67 bool
}

// TimeLeft formats the remaining time as "12m 30s", or "N/A" when the close
// time is unknown.
func (l Listing) TimeLeft() string {
	if l.Secs == nil {
		return "N/A"
	}
	return fmt.Sprintf("%dm %ds", *l.Secs/60, *l.Secs%60)
}

// HasTag reports whether the listing carries the given descriptive tag.
func (l Listing) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Cents is a convenience for building optional prices in adapters and tests.
func Cents(v int64) *int64 {
	return &v
}
