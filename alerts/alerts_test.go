package alerts

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"truckwatch/cache"
	"truckwatch/config"
	"truckwatch/models"
)

type fakeVoice struct {
	err   error
	calls []string
}

func (f *fakeVoice) PlaceCall(sayText string) error {
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sayText)
	return nil
}

type fakeTexter struct {
	err  error
	sent []string
}

func (f *fakeTexter) SendText(body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Alerts.PriceCapDollars = 5000
	cfg.Alerts.FinalWindowSecs = 600
	cfg.Alerts.EarlyWindowSecs = 0
	cfg.Alerts.SendVoice = true
	cfg.Alerts.SMSEnabled = true
	cfg.Paths.AlertCache = filepath.Join(t.TempDir(), "cache.json")
	return cfg
}

func listing(site, id string, bidCents, secs int64) models.Listing {
	return models.Listing{
		Site:     site,
		AssetID:  id,
		Title:    "2006 International 4300 Dump Truck",
		City:     "Austin",
		State:    "TX",
		BidCents: &bidCents,
		Secs:     &secs,
		URL:      "https://example.com/asset/" + id,
		Target:   true,
	}
}

func TestFinalAlertFiresOnceWithinTTL(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	rows := []models.Listing{listing("GovDeals", "123", 450000, 120)}

	e.Evaluate(c, rows, true)
	require.Len(t, voice.calls, 1)
	require.Len(t, texter.sent, 1)
	assert.Contains(t, texter.sent[0], "GovDeals ALERT")
	assert.Contains(t, texter.sent[0], "https://example.com/asset/123")

	// Same cycle again: the mark suppresses a repeat.
	e.Evaluate(c, rows, true)
	assert.Len(t, voice.calls, 1)
	assert.Len(t, texter.sent, 1)
}

func TestFinalAlertSkipsOutOfWindowOrOverCap(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	rows := []models.Listing{
		listing("GovDeals", "far", 450000, 7200),  // outside the window
		listing("GovDeals", "rich", 900000, 120),  // over the cap
		listing("GovDeals", "closed", 450000, 0),  // already at zero
	}
	e.Evaluate(c, rows, true)
	assert.Empty(t, voice.calls)
	assert.Empty(t, texter.sent)
}

func TestUnknownPriceNeverAlerts(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	secs := int64(120)
	row := models.Listing{
		Site: "GovDeals", AssetID: "nobid", Title: "Dump Truck",
		Secs: &secs, Target: true,
	}
	c := cache.Cache{}
	e.Evaluate(c, []models.Listing{row}, true)
	assert.Empty(t, voice.calls)
	assert.Empty(t, texter.sent)
	assert.False(t, c.IsMarked(cache.Key("final", "GovDeals", "nobid")))
}

func TestBlockedAndNonTargetListingsAreSkipped(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	blocked := listing("GovDeals", "b1", 450000, 120)
	blocked.Blocked = true
	nonTarget := listing("GovDeals", "n1", 450000, 120)
	nonTarget.Target = false

	c := cache.Cache{}
	e.Evaluate(c, []models.Listing{blocked, nonTarget}, true)
	assert.Empty(t, voice.calls)
	assert.Empty(t, texter.sent)
}

func TestFinalFailureIsRetriedNextCycle(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{err: errors.New("twilio down")}
	texter := &fakeTexter{err: errors.New("carrier down")}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	rows := []models.Listing{listing("GovDeals", "123", 450000, 120)}
	e.Evaluate(c, rows, true)
	assert.False(t, c.IsMarked(cache.Key("final", "GovDeals", "123")),
		"a fully failed final must not be marked")

	// Channels recover; the next cycle delivers and marks.
	voice.err = nil
	texter.err = nil
	e.Evaluate(c, rows, true)
	assert.Len(t, voice.calls, 1)
	assert.True(t, c.IsMarked(cache.Key("final", "GovDeals", "123")))
}

func TestEarlyMarksEvenWhenChannelsFail(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerts.EarlyWindowSecs = 3600
	cfg.Alerts.FinalWindowSecs = 0
	voice := &fakeVoice{err: errors.New("twilio down")}
	texter := &fakeTexter{err: errors.New("carrier down")}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	rows := []models.Listing{listing("GovDeals", "123", 450000, 1800)}
	e.Evaluate(c, rows, true)
	assert.True(t, c.IsMarked(cache.Key("early", "GovDeals", "123")),
		"an early notice counts as attempted once composed")

	voice.err = nil
	texter.err = nil
	e.Evaluate(c, rows, true)
	assert.Empty(t, voice.calls, "early never repeats within the TTL")
}

func TestEarlyAndFinalAreIndependentPhases(t *testing.T) {
	cfg := testConfig(t)
	cfg.Alerts.EarlyWindowSecs = 3600
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	// Inside both windows: one early and one final fire in the same pass.
	e.Evaluate(c, []models.Listing{listing("GovDeals", "123", 450000, 120)}, true)
	assert.True(t, c.IsMarked(cache.Key("early", "GovDeals", "123")))
	assert.True(t, c.IsMarked(cache.Key("final", "GovDeals", "123")))
	assert.Len(t, voice.calls, 2)
}

func TestAlertsDisabledSendsNothing(t *testing.T) {
	cfg := testConfig(t)
	voice := &fakeVoice{}
	texter := &fakeTexter{}
	e := NewEngine(cfg, voice, texter, zap.NewNop().Sugar())

	c := cache.Cache{}
	e.Evaluate(c, []models.Listing{listing("GovDeals", "123", 450000, 120)}, false)
	assert.Empty(t, voice.calls)
	assert.Empty(t, texter.sent)
}

func TestEvaluateReturnsSoonestEligibleSecs(t *testing.T) {
	cfg := testConfig(t)
	e := NewEngine(cfg, &fakeVoice{}, &fakeTexter{}, zap.NewNop().Sugar())

	rows := []models.Listing{
		listing("GovDeals", "a", 450000, 7200),
		listing("Proxibid", "b", 120000, 900),
		listing("ReneBates", "c", 900000, 60), // over the cap, ignored
	}
	soonest, ok := e.Evaluate(cache.Cache{}, rows, true)
	require.True(t, ok)
	assert.Equal(t, int64(900), soonest)

	_, ok = e.Evaluate(cache.Cache{}, nil, true)
	assert.False(t, ok)
}
