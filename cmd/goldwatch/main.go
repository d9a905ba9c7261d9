// Goldwatch - gold signal and decision service
//
// Polls a gold-price and macro-indicator provider, derives a probabilistic
// up/down forecast, turns it into a fee-aware BUY/SELL/HOLD recommendation
// against the configured portfolio and tracks forecast reliability over
// time. State is exposed over a JSON API, SSE and websocket streams, with
// optional Redis mirroring and Telegram alerts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumlabs/goldwatch/internal/cache"
	"github.com/aurumlabs/goldwatch/internal/config"
	"github.com/aurumlabs/goldwatch/internal/database"
	"github.com/aurumlabs/goldwatch/internal/engine"
	"github.com/aurumlabs/goldwatch/internal/goldapi"
	"github.com/aurumlabs/goldwatch/internal/logring"
	"github.com/aurumlabs/goldwatch/internal/notify"
	"github.com/aurumlabs/goldwatch/internal/server"
)

const version = "1.2.0"

func main() {
	ring := logring.New(200)
	log.Logger = log.Output(zerolog.MultiLevelWriter(
		zerolog.ConsoleWriter{Out: os.Stderr},
		ring,
	))
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Info().Str("version", version).Msg("🏅 Goldwatch starting")

	// Persistence is required; running without history would silently skew
	// every momentum and reliability figure.
	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	settings := cfg.Settings
	if stored, ok, err := db.LoadSettings(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load settings")
	} else if ok {
		settings = stored
	}
	profile := cfg.Profile
	if stored, ok, err := db.LoadProfile(); err != nil {
		log.Fatal().Err(err).Msg("Failed to load profile")
	} else if ok {
		profile = stored
	}

	source := goldapi.NewClient(cfg.QuoteURL, cfg.IndicatorsURL)
	eng, err := engine.New(source, db, engine.Options{
		Settings: settings,
		Profile:  profile,
		Logs:     ring,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	retentionMs := int64(settings.HistoryRetentionHours * 3_600_000)
	since := time.Now().UnixMilli() - retentionMs
	snaps, err := db.QuerySnapshots(since, settings.MaxInMemoryPoints)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load history")
	}
	eng.SeedHistory(snaps)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RedisAddr != "" {
		mirror, err := cache.NewMirror(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, eng)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect redis mirror")
		}
		go mirror.Run(ctx)
	}

	if cfg.TelegramToken != "" && cfg.TelegramChatID != 0 {
		notifier, err := notify.New(cfg.TelegramToken, cfg.TelegramChatID, eng)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect telegram")
		}
		go notifier.Run(ctx)
	}

	go eng.Run(ctx)

	srv := server.New(cfg.HTTPAddr, eng, db)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
	log.Info().Msg("Goldwatch stopped")
}
