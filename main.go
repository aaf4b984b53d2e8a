package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"truckwatch/alerts"
	"truckwatch/cache"
	"truckwatch/config"
	"truckwatch/digest"
	"truckwatch/models"
	"truckwatch/monitor"
	"truckwatch/notify"
	"truckwatch/sites"
	"truckwatch/store"
	"truckwatch/web"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	envPath := flag.String("env", "", "Path to .env file (default: ./.env if present)")
	once := flag.Bool("once", false, "Run a single fetch/evaluate cycle and exit")
	serve := flag.Bool("serve", false, "Also serve the web dashboard while monitoring")
	noAlerts := flag.Bool("no-alerts", false, "Dry run: evaluate and log but never call or text")
	digestNow := flag.Bool("digest-now", false, "Fetch once, send the digest immediately, then exit")
	smsTest := flag.Bool("sms-test", false, "Send a test SMS through the configured channels and exit")
	voiceTest := flag.Bool("voice-test", false, "Place a test voice call and exit")
	forceAlert := flag.Bool("force-alert", false, "Fire the alert pipeline on a synthetic listing and exit")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath, *envPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v\n", err)
	}

	logger := buildLogger(cfg.Debug)
	defer logger.Sync()
	sugar := logger.Sugar()

	if *printConfig {
		redacted := *cfg
		if redacted.Twilio.Token != "" {
			redacted.Twilio.Token = "***"
		}
		if redacted.Telegram.BotToken != "" {
			redacted.Telegram.BotToken = "***"
		}
		out, err := yaml.Marshal(&redacted)
		if err != nil {
			sugar.Fatalw("marshal config", "error", err)
		}
		fmt.Print(string(out))
		return
	}

	voice, texter := buildChannels(cfg, sugar)

	switch {
	case *smsTest:
		body := fmt.Sprintf("truckwatch test SMS at %s", time.Now().Format("15:04:05"))
		if err := texter.SendText(body); err != nil {
			sugar.Fatalw("test sms failed", "error", err)
		}
		sugar.Infow("test sms sent")
		return
	case *voiceTest:
		if err := voice.PlaceCall("This is a truckwatch test call. Goodbye."); err != nil {
			sugar.Fatalw("test call failed", "error", err)
		}
		sugar.Infow("test call placed")
		return
	case *forceAlert:
		runForceAlert(cfg, voice, texter, sugar)
		return
	}

	engine := alerts.NewEngine(cfg, voice, texter, sugar)
	dg := digest.New(cfg, texter, sugar)
	sources := buildSources(cfg, sugar)

	var st *store.Store
	if cfg.Paths.HistoryDB != "" {
		st, err = store.Open(cfg.Paths.HistoryDB)
		if err != nil {
			sugar.Warnw("history store unavailable, continuing without it",
				"path", cfg.Paths.HistoryDB, "error", err)
		} else {
			defer st.Close()
		}
	}

	mon := monitor.New(cfg, sources, engine, dg, texter, st, sugar)
	mon.AlertsEnabled = !*noAlerts

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *digestNow {
		rows, _, _ := mon.RunOnce(ctx)
		body := dg.Compose(rows)
		if err := texter.SendText(body); err != nil {
			sugar.Fatalw("digest send failed", "error", err)
		}
		sugar.Infow("digest sent", "chars", len(body))
		return
	}

	if *once {
		mon.RunOnce(ctx)
		return
	}

	if *serve && st != nil {
		srv := web.New(st, cfg.Web.Addr, sugar)
		go func() {
			if err := srv.Run(ctx); err != nil {
				sugar.Errorw("dashboard stopped", "error", err)
			}
		}()
	} else if *serve {
		sugar.Warnw("dashboard requested but history store is unavailable")
	}

	sugar.Infow("monitor starting",
		"sources", len(sources),
		"price_cap", cfg.Alerts.PriceCapDollars,
		"final_window_secs", cfg.Alerts.FinalWindowSecs,
		"early_window_secs", cfg.Alerts.EarlyWindowSecs,
		"alerts_enabled", mon.AlertsEnabled)
	if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Fatalw("monitor stopped", "error", err)
	}
	sugar.Infow("shutdown complete")
}

func buildLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to build logger: %v\n", err)
	}
	return logger
}

// buildChannels picks real channels when credentials are configured, and the
// console dry-run channel otherwise. Telegram, when configured, rides along
// as an extra text channel.
func buildChannels(cfg *config.Config, sugar *zap.SugaredLogger) (notify.VoiceCaller, notify.TextSender) {
	console := notify.Console{Log: sugar}

	var voice notify.VoiceCaller = console
	var texters []notify.TextSender

	if cfg.Twilio.Configured() {
		tw, err := notify.NewTwilio(cfg.Twilio)
		if err != nil {
			sugar.Warnw("twilio init failed, using console", "error", err)
		} else {
			voice = tw
			texters = append(texters, tw)
		}
	}
	if cfg.Telegram.Configured() {
		tg, err := notify.NewTelegram(cfg.Telegram)
		if err != nil {
			sugar.Warnw("telegram init failed", "error", err)
		} else {
			texters = append(texters, tg)
		}
	}
	if len(texters) == 0 {
		sugar.Infow("no notification credentials configured, running in dry-run mode")
		return voice, console
	}
	return voice, notify.Multi{Senders: texters}
}

func buildSources(cfg *config.Config, sugar *zap.SugaredLogger) []sites.Source {
	var out []sites.Source
	if cfg.Sites.GovDeals.Enabled {
		out = append(out, sites.NewGovDeals(cfg.Sites.GovDeals, sugar))
	}
	if cfg.Sites.Proxibid.Enabled {
		out = append(out, sites.NewProxibid(cfg.Sites.Proxibid, sugar))
	}
	if cfg.Sites.ReneBates.Enabled {
		out = append(out, sites.NewReneBates(cfg.Sites.ReneBates, cfg.Paths.ReneBatesState, sugar))
	}
	return out
}

// runForceAlert pushes a synthetic in-window listing through the real engine
// so the whole call/text path can be verified end to end.
func runForceAlert(cfg *config.Config, voice notify.VoiceCaller, texter notify.TextSender, sugar *zap.SugaredLogger) {
	engine := alerts.NewEngine(cfg, voice, texter, sugar)
	bid := int64(123400)
	secs := int64(90)
	row := models.Listing{
		Site:     "Test",
		AssetID:  fmt.Sprintf("force-%d", time.Now().Unix()),
		Title:    "2008 Ford F-750 Bucket Truck (test)",
		City:     "Dallas",
		State:    "TX",
		BidCents: &bid,
		Secs:     &secs,
		URL:      "https://example.com/asset/test",
		Tags:     []string{"bucket"},
		Target:   true,
	}
	c := cache.Load(cfg.Paths.AlertCache, time.Now())
	engine.Evaluate(c, []models.Listing{row}, true)
	sugar.Infow("forced alert evaluated", "asset", row.AssetID)
}
