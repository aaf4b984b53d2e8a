// Package digest batches upcoming target listings into one daily summary
// SMS. Its once-per-day state lives in its own file, independent of the
// per-listing alert cache.
package digest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"truckwatch/config"
	"truckwatch/models"
	"truckwatch/money"
	"truckwatch/notify"
)

// maxChars caps the composed body to keep carriers happy.
const maxChars = 1300

// Digest composes and sends the daily summary.
type Digest struct {
	cfg       *config.Config
	texter    notify.TextSender
	statePath string
	log       *zap.SugaredLogger
}

// New builds the digest against the configured text channel.
func New(cfg *config.Config, texter notify.TextSender, log *zap.SugaredLogger) *Digest {
	return &Digest{cfg: cfg, texter: texter, statePath: cfg.Paths.DigestState, log: log}
}

// Compose builds one compact message for all target listings ending within
// the horizon, soonest first. One line per listing:
//
//	[Site] Title | City, ST | $X | TL=1h 23m
func (d *Digest) Compose(rows []models.Listing) string {
	if len(rows) == 0 {
		return "Daily check: no listings collected."
	}

	horizon := int64(d.cfg.Digest.Hours) * 3600
	var pick []models.Listing
	for _, r := range rows {
		if r.Blocked || !r.Target {
			continue
		}
		if r.Secs == nil || *r.Secs < 0 || *r.Secs > horizon {
			continue
		}
		// Keep even if the price is unknown; it renders as a dash and the
		// operator may still want to watch the lot.
		pick = append(pick, r)
	}
	if len(pick) == 0 {
		return fmt.Sprintf("Daily check: no target trucks in next %dh.", d.cfg.Digest.Hours)
	}

	sort.SliceStable(pick, func(i, j int) bool { return *pick[i].Secs < *pick[j].Secs })

	if len(pick) > d.cfg.Digest.MaxLines {
		pick = pick[:d.cfg.Digest.MaxLines]
	}
	lines := make([]string, 0, len(pick))
	for _, r := range pick {
		site := r.Site
		if site == "" {
			site = "?"
		}
		title := strings.TrimSpace(r.Title)
		if title == "" {
			title = "Untitled"
		}
		if r.Engine67 && !strings.Contains(strings.ToLower(title), "6.7") {
			title += " (6.7L)"
		}
		city := r.City
		if city == "" {
			city = "?"
		}
		lines = append(lines, fmt.Sprintf("[%s] %s | %s, %s | %s | TL=%s",
			site, title, city, r.State, money.FormatDollars(r.BidCents), hoursMinutes(r.Secs)))
	}

	body := "DAILY TRUCK DIGEST\n" + strings.Join(lines, "\n")
	if len(body) > maxChars {
		cut := maxChars
		// Back off to a rune boundary so the cut never leaves invalid UTF-8.
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "…"
	}
	return body
}

// TrySend composes and sends at most once per calendar day, and only after
// the configured local hour has passed. Returns true when a digest was sent
// (or at least attempted and marked).
func (d *Digest) TrySend(rows []models.Listing, now time.Time) bool {
	if !d.ShouldSend(now) {
		return false
	}
	body := d.Compose(rows)
	if err := d.texter.SendText(body); err != nil {
		d.log.Warnw("digest sms failed", "error", err)
	}
	d.markSent(now)
	return true
}

// ShouldSend applies the once-per-day-after-local-hour gate.
func (d *Digest) ShouldSend(now time.Time) bool {
	if !d.cfg.Digest.Enabled || !d.cfg.Digest.SMSEnabled {
		return false
	}
	if now.Hour() < d.cfg.Digest.LocalHour {
		return false
	}
	return d.loadState().LastSentDate != now.Format("2006-01-02")
}

type state struct {
	LastSentDate string `json:"last_sent_date"`
}

func (d *Digest) loadState() state {
	var st state
	data, err := os.ReadFile(d.statePath)
	if err != nil {
		return st
	}
	_ = json.Unmarshal(data, &st)
	return st
}

func (d *Digest) markSent(now time.Time) {
	data, err := json.MarshalIndent(state{LastSentDate: now.Format("2006-01-02")}, "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(d.statePath, data, 0o644); err != nil {
		d.log.Warnw("digest state save failed", "error", err)
	}
}

// hoursMinutes renders seconds as "1h 23m", or "23m" under an hour.
func hoursMinutes(secs *int64) string {
	if secs == nil {
		return "N/A"
	}
	h, m := *secs/3600, (*secs%3600)/60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
