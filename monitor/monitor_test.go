package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"truckwatch/alerts"
	"truckwatch/config"
	"truckwatch/digest"
	"truckwatch/models"
	"truckwatch/sites"
)

type fakeSource struct {
	name string
	rows []models.Listing
	err  error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(_ context.Context) ([]models.Listing, error) {
	return f.rows, f.err
}

type fakeTexter struct {
	sent []string
}

func (f *fakeTexter) SendText(body string) error {
	f.sent = append(f.sent, body)
	return nil
}

type fakeVoice struct {
	calls int
}

func (f *fakeVoice) PlaceCall(string) error {
	f.calls++
	return nil
}

func testMonitor(t *testing.T, srcs ...sites.Source) (*Monitor, *fakeTexter, *fakeVoice, *config.Config) {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()
	cfg.Paths.AlertCache = filepath.Join(dir, "cache.json")
	cfg.Paths.DigestState = filepath.Join(dir, "digest.json")
	cfg.Paths.HeartbeatState = filepath.Join(dir, "health.json")

	texter := &fakeTexter{}
	voice := &fakeVoice{}
	engine := alerts.NewEngine(cfg, voice, texter, zap.NewNop().Sugar())
	dg := digest.New(cfg, texter, zap.NewNop().Sugar())
	return New(cfg, srcs, engine, dg, texter, nil, zap.NewNop().Sugar()), texter, voice, cfg
}

func truckRow(id string, secs int64) models.Listing {
	bid := int64(250000)
	return models.Listing{
		Site: "GovDeals", AssetID: id, Title: "Dump truck",
		BidCents: &bid, Secs: &secs, Target: true,
	}
}

func TestRunOnceCollectsAndDedupes(t *testing.T) {
	a := &fakeSource{name: "A", rows: []models.Listing{truckRow("1", 7200), truckRow("2", 900)}}
	b := &fakeSource{name: "B", rows: []models.Listing{truckRow("1", 7200)}}
	m, _, _, _ := testMonitor(t, a, b)

	rows, soonest, ok := m.RunOnce(context.Background())
	assert.Len(t, rows, 2)
	require.True(t, ok)
	assert.Equal(t, int64(900), soonest)
}

func TestRunOnceKeepsSameAssetIDAcrossSites(t *testing.T) {
	bid := int64(250000)
	secs := int64(120)
	gov := truckRow("123", 120)
	prox := models.Listing{
		Site: "Proxibid", AssetID: "123", Title: "Bucket truck",
		BidCents: &bid, Secs: &secs, Target: true,
	}
	a := &fakeSource{name: "A", rows: []models.Listing{gov}}
	b := &fakeSource{name: "B", rows: []models.Listing{prox}}
	m, _, voice, _ := testMonitor(t, a, b)

	rows, soonest, ok := m.RunOnce(context.Background())
	require.Len(t, rows, 2, "ids colliding across sites must both survive")
	require.True(t, ok)
	assert.Equal(t, int64(120), soonest)
	assert.Equal(t, 2, voice.calls, "both listings are in the final window")
}

func TestRunOnceDropsBlockedRows(t *testing.T) {
	blocked := truckRow("b", 3600)
	blocked.Target = false
	blocked.Blocked = true
	src := &fakeSource{name: "A", rows: []models.Listing{blocked, truckRow("ok", 3600)}}
	m, _, _, _ := testMonitor(t, src)

	rows, _, _ := m.RunOnce(context.Background())
	require.Len(t, rows, 1, "blocked rows never reach the digest or heartbeat")
	assert.Equal(t, "ok", rows[0].AssetID)
}

func TestRunOnceToleratesSourceFailure(t *testing.T) {
	bad := &fakeSource{name: "Bad", err: errors.New("site down")}
	good := &fakeSource{name: "Good", rows: []models.Listing{truckRow("1", 3600)}}
	m, _, _, _ := testMonitor(t, bad, good)

	rows, _, ok := m.RunOnce(context.Background())
	assert.Len(t, rows, 1)
	assert.True(t, ok)
}

func TestNextSleepCadence(t *testing.T) {
	m, _, _, cfg := testMonitor(t)

	base := time.Duration(cfg.Sleep.BaseSecs) * time.Second
	fast := time.Duration(cfg.Sleep.FastSecs) * time.Second
	snipe := time.Duration(cfg.Sleep.SnipeSecs) * time.Second

	within := func(d, want time.Duration) bool {
		return d >= want && d <= want+want/10
	}

	assert.True(t, within(m.nextSleep(0, false), base), "no signal uses base")
	assert.True(t, within(m.nextSleep(7200, true), base))
	assert.True(t, within(m.nextSleep(1800, true), fast))
	assert.True(t, within(m.nextSleep(600, true), snipe))
	assert.True(t, within(m.nextSleep(30, true), snipe))
}

func TestHeartbeatSendsAndMarks(t *testing.T) {
	m, texter, _, cfg := testMonitor(t)
	cfg.Heartbeat.Enabled = true
	cfg.Heartbeat.IntervalMinutes = 60

	now := time.Now()
	m.maybeHeartbeat(nil, now)
	require.Len(t, texter.sent, 1)
	assert.Contains(t, texter.sent[0], "HEALTHCHECK")

	m.maybeHeartbeat(nil, now.Add(time.Minute))
	assert.Len(t, texter.sent, 1, "interval not yet elapsed")
}

func TestHeartbeatDisabled(t *testing.T) {
	m, texter, _, cfg := testMonitor(t)
	cfg.Heartbeat.Enabled = false
	m.maybeHeartbeat(nil, time.Now())
	assert.Empty(t, texter.sent)
}
