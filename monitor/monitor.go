// Package monitor runs the fetch/evaluate/notify cycle: all sources are
// polled, listings normalized, the alert engine evaluated, and the next
// sleep chosen from how close the nearest auction is.
package monitor

import (
	"context"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"truckwatch/alerts"
	"truckwatch/cache"
	"truckwatch/config"
	"truckwatch/digest"
	"truckwatch/health"
	"truckwatch/models"
	"truckwatch/notify"
	"truckwatch/sites"
	"truckwatch/store"
)

// Cadence thresholds: inside snipeWithin seconds of a close we poll at the
// snipe interval, inside fastWithin at the fast interval, otherwise base.
const (
	snipeWithin = 600
	fastWithin  = 1800
)

// Monitor owns one polling loop over the configured sources.
type Monitor struct {
	cfg       *config.Config
	sources   []sites.Source
	engine    *alerts.Engine
	digest    *digest.Digest
	heartbeat health.Heartbeat
	texter    notify.TextSender
	store     *store.Store
	log       *zap.SugaredLogger
	rng       *rand.Rand

	// AlertsEnabled false turns the engine into a dry run that still marks
	// the cache, used by the -force-alert style test modes and debugging.
	AlertsEnabled bool
}

// New wires the monitor. store may be nil when history is disabled.
func New(cfg *config.Config, sources []sites.Source, engine *alerts.Engine,
	dg *digest.Digest, texter notify.TextSender, st *store.Store, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		cfg:           cfg,
		sources:       sources,
		engine:        engine,
		digest:        dg,
		heartbeat:     health.Heartbeat{StatePath: cfg.Paths.HeartbeatState},
		texter:        texter,
		store:         st,
		log:           log,
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		AlertsEnabled: true,
	}
}

// RunOnce executes a single cycle and returns the collected listings, blocked
// rows already dropped, plus the soonest seconds-to-close signal from the
// alert engine. A source that fails contributes nothing; the cycle itself
// never fails.
func (m *Monitor) RunOnce(ctx context.Context) ([]models.Listing, int64, bool) {
	started := time.Now()
	var rows []models.Listing
	for _, src := range m.sources {
		got, err := src.Fetch(ctx)
		if err != nil {
			m.log.Warnw("source fetch failed", "site", src.Name(), "error", err, "partial", len(got))
		}
		rows = append(rows, got...)
		if ctx.Err() != nil {
			break
		}
	}
	rows = sites.DedupeByAssetID(rows)

	c := cache.Load(m.cfg.Paths.AlertCache, time.Now())
	soonest, haveSoonest := m.engine.Evaluate(c, rows, m.AlertsEnabled)

	if m.store != nil && len(rows) > 0 {
		if err := m.store.RecordCycle(ctx, rows, started); err != nil {
			m.log.Warnw("history record failed", "error", err)
		}
	}

	// History keeps everything; the digest and heartbeat only ever see
	// unblocked rows.
	kept := rows[:0]
	for _, r := range rows {
		if r.Blocked {
			continue
		}
		kept = append(kept, r)
	}

	m.log.Infow("cycle done", "listings", len(kept), "blocked", len(rows)-len(kept),
		"elapsed", time.Since(started).Round(time.Millisecond),
		"soonest_secs", soonest, "have_soonest", haveSoonest)
	return kept, soonest, haveSoonest
}

// Run loops RunOnce until the context is cancelled, sending the daily digest
// and the heartbeat from inside the loop.
func (m *Monitor) Run(ctx context.Context) error {
	for {
		rows, soonest, haveSoonest := m.RunOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		now := time.Now()
		if m.digest.TrySend(rows, now) {
			m.log.Infow("daily digest sent")
		}
		m.maybeHeartbeat(rows, now)

		if m.store != nil {
			if n, err := m.store.PruneOlderThan(ctx, now.Add(-7*24*time.Hour)); err != nil {
				m.log.Warnw("history prune failed", "error", err)
			} else if n > 0 {
				m.log.Debugw("history pruned", "rows", n)
			}
		}

		sleep := m.nextSleep(soonest, haveSoonest)
		m.log.Infow("sleeping", "duration", sleep.Round(time.Second))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (m *Monitor) maybeHeartbeat(rows []models.Listing, now time.Time) {
	if !m.cfg.Heartbeat.Enabled {
		return
	}
	if !m.heartbeat.ShouldSend(now, m.cfg.Heartbeat.IntervalMinutes) {
		return
	}
	if err := m.texter.SendText(health.ComposeMessage(rows)); err != nil {
		m.log.Warnw("heartbeat sms failed", "error", err)
		return
	}
	m.heartbeat.MarkSent(now)
	m.log.Infow("heartbeat sent", "listings", len(rows))
}

// nextSleep picks the polling cadence from the nearest close, then jitters it
// by up to ten percent so cycles do not land on a fixed grid.
func (m *Monitor) nextSleep(soonest int64, haveSoonest bool) time.Duration {
	secs := m.cfg.Sleep.BaseSecs
	if haveSoonest {
		switch {
		case soonest <= snipeWithin:
			secs = m.cfg.Sleep.SnipeSecs
		case soonest <= fastWithin:
			secs = m.cfg.Sleep.FastSecs
		}
	}
	if secs < 1 {
		secs = 1
	}
	base := time.Duration(secs) * time.Second
	jitter := time.Duration(m.rng.Float64() * 0.1 * float64(base))
	return base + jitter
}
