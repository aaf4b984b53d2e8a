// Package health sends a periodic heartbeat SMS so a silent crash is
// noticed. Its interval state is persisted separately from the alert cache
// and the digest state.
package health

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"truckwatch/models"
	"truckwatch/money"
)

// Heartbeat tracks when the last heartbeat went out.
type Heartbeat struct {
	StatePath string
}

type state struct {
	LastSentUnix int64 `json:"last_healthcheck_ts"`
}

// ShouldSend reports whether intervalMinutes have passed since the last
// heartbeat. A non-positive interval disables the heartbeat.
func (h Heartbeat) ShouldSend(now time.Time, intervalMinutes int) bool {
	if intervalMinutes <= 0 {
		return false
	}
	return now.Unix()-h.loadState().LastSentUnix >= int64(intervalMinutes)*60
}

// MarkSent records a heartbeat at now. Failures are swallowed; a lost mark
// only means one extra heartbeat.
func (h Heartbeat) MarkSent(now time.Time) {
	data, err := json.MarshalIndent(state{LastSentUnix: now.Unix()}, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(h.StatePath, data, 0o644)
}

func (h Heartbeat) loadState() state {
	var st state
	data, err := os.ReadFile(h.StatePath)
	if err != nil {
		return st
	}
	_ = json.Unmarshal(data, &st)
	return st
}

// ComposeMessage summarises one cycle: listing count plus the first listing
// as a spot check that normalization is still producing sane rows.
func ComposeMessage(rows []models.Listing) string {
	if len(rows) == 0 {
		return "HEALTHCHECK: scraper alive, but 0 listings returned."
	}
	first := rows[0]
	title := first.Title
	if title == "" {
		title = "Untitled"
	}
	city := first.City
	if city == "" {
		city = "Unknown"
	}
	base := fmt.Sprintf("HEALTHCHECK OK: %d listings. First: [%s] %s | %s, %s | %s | %s",
		len(rows), first.Site, title, city, first.State,
		money.FormatDollars(first.BidCents), first.TimeLeft())
	if first.URL != "" {
		return base + "\n" + first.URL
	}
	return base
}
