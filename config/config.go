// Package config loads the process-wide configuration exactly once: defaults,
// then an optional YAML file, then environment overrides (with .env support).
// The resulting Config is immutable; components receive it by reference and
// never mutate it.
package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface for one run.
type Config struct {
	Debug bool `yaml:"debug"`

	Alerts    AlertsConfig    `yaml:"alerts"`
	Sleep     SleepConfig     `yaml:"sleep"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Digest    DigestConfig    `yaml:"digest"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Sites     SitesConfig     `yaml:"sites"`
	Paths     PathsConfig     `yaml:"paths"`
	Web       WebConfig       `yaml:"web"`
}

// AlertsConfig holds the per-listing alert thresholds and channel toggles.
type AlertsConfig struct {
	// PriceCapDollars is what the operator writes; the engine works in cents.
	PriceCapDollars float64 `yaml:"price_cap_dollars"`
	// FinalWindowSecs is the last-chance window. <= 0 disables final alerts.
	FinalWindowSecs int64 `yaml:"final_window_secs"`
	// EarlyWindowSecs is the heads-up window. <= 0 disables early alerts.
	EarlyWindowSecs int64 `yaml:"early_window_secs"`
	SendVoice       bool  `yaml:"send_voice"`
	// SMSEnabled gates per-listing SMS only; the digest has its own toggle.
	SMSEnabled bool `yaml:"sms_enabled"`
}

// PriceCapCents converts the configured dollar cap to cents.
func (a AlertsConfig) PriceCapCents() int64 {
	return int64(math.Round(a.PriceCapDollars * 100))
}

// SleepConfig drives the adaptive sleep between cycles.
type SleepConfig struct {
	BaseSecs  int `yaml:"base_secs"`
	FastSecs  int `yaml:"fast_secs"`
	SnipeSecs int `yaml:"snipe_secs"`
}

// TwilioConfig carries Twilio credentials and routing.
type TwilioConfig struct {
	SID          string `yaml:"sid"`
	Token        string `yaml:"token"`
	From         string `yaml:"from"`
	To           string `yaml:"to"`
	MessagingSID string `yaml:"messaging_sid"`
}

// Configured reports whether Twilio can actually be used.
func (t TwilioConfig) Configured() bool {
	return t.SID != "" && t.Token != ""
}

// TelegramConfig enables the optional Telegram text channel.
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
}

// Configured reports whether the Telegram channel can be used.
func (t TelegramConfig) Configured() bool {
	return t.BotToken != "" && t.ChatID != 0
}

// DigestConfig controls the daily summary SMS.
type DigestConfig struct {
	Enabled    bool `yaml:"enabled"`
	SMSEnabled bool `yaml:"sms_enabled"`
	// LocalHour: send after this local hour has passed.
	LocalHour int `yaml:"local_hour"`
	// Hours is the look-ahead horizon for listed closings.
	Hours    int `yaml:"hours"`
	MaxLines int `yaml:"max_lines"`
}

// HeartbeatConfig controls the periodic "still alive" SMS.
type HeartbeatConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
}

// SitesConfig holds per-source fetch knobs.
type SitesConfig struct {
	GovDeals  GovDealsConfig  `yaml:"govdeals"`
	Proxibid  ProxibidConfig  `yaml:"proxibid"`
	ReneBates ReneBatesConfig `yaml:"renebates"`
}

// GovDealsConfig tunes the GovDeals search API adapter.
type GovDealsConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Pages         int     `yaml:"pages"`
	PageDelaySecs float64 `yaml:"page_delay_secs"`
	// APIKey and SubscriptionKey are sent as x-api-key and
	// ocp-apim-subscription-key when set; the endpoint currently answers
	// without them but is fronted by APIM and may start requiring them.
	APIKey          string `yaml:"api_key"`
	SubscriptionKey string `yaml:"subscription_key"`
}

// ProxibidConfig tunes the Proxibid lot-items adapter.
type ProxibidConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Pages         int     `yaml:"pages"`
	PageDelaySecs float64 `yaml:"page_delay_secs"`
	CategoryID    string  `yaml:"category_id"`
}

// ReneBatesConfig tunes the ReneBates event crawl.
type ReneBatesConfig struct {
	Enabled       bool    `yaml:"enabled"`
	Pages         int     `yaml:"pages"`
	PageDelaySecs float64 `yaml:"page_delay_secs"`
	BudgetSecs    float64 `yaml:"budget_secs"`
	IndexURL      string  `yaml:"index_url"`
}

// PathsConfig locates the state files and the history database.
type PathsConfig struct {
	AlertCache     string `yaml:"alert_cache"`
	DigestState    string `yaml:"digest_state"`
	HeartbeatState string `yaml:"heartbeat_state"`
	ReneBatesState string `yaml:"renebates_state"`
	HistoryDB      string `yaml:"history_db"`
}

// WebConfig configures the dashboard server.
type WebConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration, matching the documented
// defaults of every knob.
func Default() *Config {
	return &Config{
		Alerts: AlertsConfig{
			PriceCapDollars: 5000,
			FinalWindowSecs: 600,
			EarlyWindowSecs: 0,
			SendVoice:       true,
			SMSEnabled:      false,
		},
		Sleep: SleepConfig{BaseSecs: 600, FastSecs: 120, SnipeSecs: 45},
		Digest: DigestConfig{
			Enabled:    true,
			SMSEnabled: true,
			LocalHour:  9,
			Hours:      48,
			MaxLines:   10,
		},
		Heartbeat: HeartbeatConfig{Enabled: true, IntervalMinutes: 24 * 60},
		Sites: SitesConfig{
			GovDeals:  GovDealsConfig{Enabled: true, Pages: 5, PageDelaySecs: 6.0},
			Proxibid:  ProxibidConfig{Enabled: true, Pages: 1, PageDelaySecs: 4.0, CategoryID: "3817"},
			ReneBates: ReneBatesConfig{Enabled: true, Pages: 2, PageDelaySecs: 1.0, BudgetSecs: 12, IndexURL: "https://renebates.com/a_main.php"},
		},
		Paths: PathsConfig{
			AlertCache:     ".alert_cache.json",
			DigestState:    ".digest_state.json",
			HeartbeatState: ".health_state.json",
			ReneBatesState: ".renebates_state.json",
			HistoryDB:      "truckwatch.db",
		},
		Web: WebConfig{Addr: ":8080"},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if it
// exists) and environment overrides. envPath points at an optional .env file.
func Load(path, envPath string) (*Config, error) {
	if envPath != "" {
		// Missing .env is fine; real env vars still apply.
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays the environment variable names the original deployment
// already uses, so an existing .env keeps working.
func (c *Config) applyEnv() {
	c.Debug = envBool("DEBUG", c.Debug)

	c.Alerts.PriceCapDollars = envDollars("ALERT_PRICE_DOLLARS", c.Alerts.PriceCapDollars)
	c.Alerts.FinalWindowSecs = envInt64("ALERT_TIME_SECS", c.Alerts.FinalWindowSecs)
	c.Alerts.EarlyWindowSecs = envInt64("EARLY_TIME_SECS", c.Alerts.EarlyWindowSecs)
	c.Alerts.SendVoice = envBool("SEND_VOICE", c.Alerts.SendVoice)
	c.Alerts.SMSEnabled = envBool("ALERTS_SMS_ENABLED", c.Alerts.SMSEnabled)

	c.Sleep.BaseSecs = envInt("BASE_SLEEP", c.Sleep.BaseSecs)
	c.Sleep.FastSecs = envInt("FAST_SLEEP", c.Sleep.FastSecs)
	c.Sleep.SnipeSecs = envInt("SNIPE_SLEEP", c.Sleep.SnipeSecs)

	c.Twilio.SID = envStr("TWILIO_SID", c.Twilio.SID)
	c.Twilio.Token = envStr("TWILIO_TOKEN", c.Twilio.Token)
	c.Twilio.From = envStr("TWILIO_FROM", c.Twilio.From)
	c.Twilio.To = envStr("ALERT_TO", c.Twilio.To)
	c.Twilio.MessagingSID = envStr("TWILIO_MESSAGING_SID", c.Twilio.MessagingSID)

	c.Telegram.BotToken = envStr("TELEGRAM_BOT_TOKEN", c.Telegram.BotToken)
	c.Telegram.ChatID = envInt64("TELEGRAM_CHAT_ID", c.Telegram.ChatID)

	c.Digest.Enabled = envBool("DIGEST_ENABLED", c.Digest.Enabled)
	c.Digest.SMSEnabled = envBool("DIGEST_SMS_ENABLED", c.Digest.SMSEnabled)
	c.Digest.LocalHour = envInt("DIGEST_LOCAL_HOUR", c.Digest.LocalHour)
	c.Digest.Hours = envInt("DIGEST_HOURS", c.Digest.Hours)
	c.Digest.MaxLines = envInt("DIGEST_MAX_LINES", c.Digest.MaxLines)

	c.Heartbeat.Enabled = envBool("HEALTHCHECK_ENABLED", c.Heartbeat.Enabled)
	c.Heartbeat.IntervalMinutes = envInt("HEALTHCHECK_MINUTES", c.Heartbeat.IntervalMinutes)

	c.Sites.GovDeals.APIKey = envStr("GOVDEALS_API_KEY", c.Sites.GovDeals.APIKey)
	c.Sites.GovDeals.SubscriptionKey = envStr("GOVDEALS_SUBSCRIPTION_KEY", c.Sites.GovDeals.SubscriptionKey)

	c.Sites.ReneBates.Pages = envInt("RENEBATES_PAGES", c.Sites.ReneBates.Pages)
	c.Sites.ReneBates.PageDelaySecs = envFloat("RENEBATES_DELAY_SECS", c.Sites.ReneBates.PageDelaySecs)
	c.Sites.ReneBates.BudgetSecs = envFloat("RENEBATES_BUDGET_SECS", c.Sites.ReneBates.BudgetSecs)
	c.Sites.ReneBates.IndexURL = envStr("RENEBATES_INDEX_URL", c.Sites.ReneBates.IndexURL)
}

func envStr(name, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(name)); v != "" {
		return v
	}
	return fallback
}

func envBool(name string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	if v == "" {
		return fallback
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func envInt(name string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64(name string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(name string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// envDollars accepts "$5,000" style values for the price cap.
func envDollars(name string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return fallback
	}
	v = strings.ReplaceAll(strings.ReplaceAll(v, "$", ""), ",", "")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
