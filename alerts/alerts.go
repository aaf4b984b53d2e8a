// Package alerts is the eligibility engine: it decides, per normalized
// listing, whether to fire an early notice, a final notice, neither or both,
// without ever double-sending within the cache TTL.
package alerts

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"truckwatch/cache"
	"truckwatch/config"
	"truckwatch/models"
	"truckwatch/money"
	"truckwatch/notify"
)

// Engine evaluates listings against the configured thresholds and channels.
type Engine struct {
	cfg       *config.Config
	voice     notify.VoiceCaller
	texter    notify.TextSender
	cachePath string
	log       *zap.SugaredLogger
}

// NewEngine wires the engine to its channels and the cache file it persists
// between marks.
func NewEngine(cfg *config.Config, voice notify.VoiceCaller, texter notify.TextSender, log *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:       cfg,
		voice:     voice,
		texter:    texter,
		cachePath: cfg.Paths.AlertCache,
		log:       log,
	}
}

// Evaluate walks the listings in order and fires early/final notices for
// anything under the price cap inside its time window. It returns the
// soonest strictly-positive seconds-to-close among price-capped target
// listings, which the caller uses to pick the next sleep. ok=false means no
// listing produced a scheduling signal.
//
// A failed dispatch never aborts the pass: the engine logs and moves on to
// the next listing. Cache state is saved immediately after every mark so a
// crash mid-cycle loses at most the in-flight listing.
func (e *Engine) Evaluate(c cache.Cache, listings []models.Listing, alertsEnabled bool) (int64, bool) {
	priceCap := e.cfg.Alerts.PriceCapCents()
	var soonest int64
	haveSoonest := false

	for _, l := range listings {
		// Targeting is enforced here, in a single place.
		if l.Blocked || !l.Target {
			continue
		}

		bid := l.BidCents
		secs := l.Secs

		// A listing already at zero seconds has nothing left to schedule.
		if secs != nil && *secs > 0 && bid != nil && *bid <= priceCap {
			if !haveSoonest || *secs < soonest {
				soonest = *secs
				haveSoonest = true
			}
		}

		e.evaluateEarly(c, l, priceCap, alertsEnabled)
		e.evaluateFinal(c, l, priceCap, alertsEnabled)
	}

	return soonest, haveSoonest
}

// evaluateEarly fires the heads-up notice. The key is marked whether or not
// a channel succeeded: an early notice counts as attempted once composed, so
// transient notify failures do not cause repeats. Delivery is best-effort by
// design; the final phase carries the stronger guarantee.
func (e *Engine) evaluateEarly(c cache.Cache, l models.Listing, priceCap int64, alertsEnabled bool) {
	if e.cfg.Alerts.EarlyWindowSecs <= 0 {
		return
	}
	if l.Secs == nil || *l.Secs <= 0 || l.BidCents == nil {
		return
	}
	if *l.BidCents > priceCap || *l.Secs > e.cfg.Alerts.EarlyWindowSecs {
		return
	}

	key := cache.Key("early", l.Site, l.AssetID)
	if c.IsMarked(key) {
		return
	}

	sayText := e.sayText("Early alert. "+l.Site, l)
	body := e.smsBody(l.Site+" EARLY", l)
	e.log.Infow("early alert", "site", l.Site, "asset", l.AssetID,
		"bid", money.FormatDollars(l.BidCents), "secs", *l.Secs)

	if alertsEnabled && e.cfg.Alerts.SendVoice {
		if err := e.voice.PlaceCall(sayText); err != nil {
			e.log.Warnw("early voice failed", "asset", l.AssetID, "error", err)
		}
	}
	if alertsEnabled && e.cfg.Alerts.SMSEnabled {
		if err := e.texter.SendText(body); err != nil {
			e.log.Warnw("early sms failed", "asset", l.AssetID, "error", err)
		}
	}

	c.Mark(key, cache.Meta{PriceCents: l.BidCents, Secs: l.Secs}, time.Now())
	e.saveCache(c)
}

// evaluateFinal fires the last-chance notice. Unlike early, the key is
// marked only when at least one channel reported success, so a fully failed
// attempt is retried on the next cycle.
func (e *Engine) evaluateFinal(c cache.Cache, l models.Listing, priceCap int64, alertsEnabled bool) {
	if e.cfg.Alerts.FinalWindowSecs <= 0 {
		return
	}
	if l.Secs == nil || *l.Secs <= 0 || l.BidCents == nil {
		return
	}
	if *l.BidCents > priceCap || *l.Secs > e.cfg.Alerts.FinalWindowSecs {
		return
	}

	key := cache.Key("final", l.Site, l.AssetID)
	if c.IsMarked(key) {
		return
	}

	sayText := e.sayText(l.Site+" alert", l)
	body := e.smsBody(l.Site+" ALERT", l)
	e.log.Infow("final alert", "site", l.Site, "asset", l.AssetID,
		"bid", money.FormatDollars(l.BidCents), "secs", *l.Secs)

	delivered := false
	if alertsEnabled && e.cfg.Alerts.SendVoice {
		if err := e.voice.PlaceCall(sayText); err != nil {
			e.log.Warnw("final voice failed", "asset", l.AssetID, "error", err)
		} else {
			delivered = true
		}
	}
	if alertsEnabled && e.cfg.Alerts.SMSEnabled {
		if err := e.texter.SendText(body); err != nil {
			e.log.Warnw("final sms failed", "asset", l.AssetID, "error", err)
		} else {
			delivered = true
		}
	}

	if delivered {
		c.Mark(key, cache.Meta{PriceCents: l.BidCents, Secs: l.Secs, Title: l.Title}, time.Now())
		e.saveCache(c)
	}
}

// sayText builds the spoken notice. When the listing has a link the voice
// message mentions that it was texted.
func (e *Engine) sayText(prefix string, l models.Listing) string {
	mins, rem := int64(0), int64(0)
	if l.Secs != nil {
		mins, rem = *l.Secs/60, *l.Secs%60
	}
	s := fmt.Sprintf("%s. %s. Current bid %s. Time left %d minutes %d seconds.",
		prefix, l.Title, money.FormatDollars(l.BidCents), mins, rem)
	if l.URL != "" {
		s += " I have texted you the link."
	}
	return s
}

// smsBody builds the text notice, with the link on its own line so it stays
// clickable.
func (e *Engine) smsBody(prefix string, l models.Listing) string {
	body := fmt.Sprintf("%s: %s | %s, %s | %s | %s",
		prefix, l.Title, l.City, l.State, money.FormatDollars(l.BidCents), l.TimeLeft())
	if l.URL != "" {
		body += "\n" + l.URL
	}
	return body
}

func (e *Engine) saveCache(c cache.Cache) {
	if err := cache.Save(e.cachePath, c); err != nil {
		// A lost mark only risks one resend within the TTL.
		e.log.Warnw("alert cache save failed", "error", err)
	}
}
