// goldcli runs a single tick against the live feed and prints the resulting
// signal, zones, decision and reliability summary, then exits. Useful for
// cron-style checks without the long-running service.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/aurumlabs/goldwatch/internal/config"
	"github.com/aurumlabs/goldwatch/internal/database"
	"github.com/aurumlabs/goldwatch/internal/engine"
	"github.com/aurumlabs/goldwatch/internal/goldapi"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	db, err := database.New(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}

	settings := cfg.Settings
	if stored, ok, err := db.LoadSettings(); err == nil && ok {
		settings = stored
	}
	profile := cfg.Profile
	if stored, ok, err := db.LoadProfile(); err == nil && ok {
		profile = stored
	}

	source := goldapi.NewClient(cfg.QuoteURL, cfg.IndicatorsURL)
	eng, err := engine.New(source, db, engine.Options{Settings: settings, Profile: profile})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build engine")
	}

	since := time.Now().UnixMilli() - int64(settings.HistoryRetentionHours*3_600_000)
	if snaps, err := db.QuerySnapshots(since, settings.MaxInMemoryPoints); err == nil {
		eng.SeedHistory(snaps)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := eng.Tick(ctx); err != nil {
		log.Fatal().Err(err).Msg("Tick failed")
	}

	st := eng.GetState()
	if st.Signal == nil || st.Decision == nil || st.Zones == nil {
		log.Fatal().Msg("No signal produced")
	}

	fmt.Printf("price        %.2f\n", st.Signal.Price)
	fmt.Printf("p(up)        %.3f\n", st.Signal.PUp)
	fmt.Printf("confidence   %.3f (coverage %.2f, freshness %.2f)\n",
		st.Signal.Confidence, st.Signal.Coverage, st.Signal.Freshness)
	fmt.Printf("zone up      %.2f .. %.2f\n", st.Zones.UpLow, st.Zones.UpHigh)
	fmt.Printf("zone down    %.2f .. %.2f\n", st.Zones.DownLow, st.Zones.DownHigh)
	fmt.Printf("expected     %.2f\n", st.Zones.ExpectedStop)
	fmt.Printf("action       %s (%s)\n", st.Decision.Action, st.Decision.Reason)
	fmt.Printf("edges        buy %.3f%%  sell %.3f%%\n", st.Decision.BuyEdgePct, st.Decision.SellEdgePct)
	if st.Metrics.HitRate != nil && st.Metrics.MeanBrier != nil {
		fmt.Printf("reliability  %d resolved, hit-rate %.3f, brier %.4f\n",
			st.Metrics.Total, *st.Metrics.HitRate, *st.Metrics.MeanBrier)
	} else {
		fmt.Printf("reliability  no resolved predictions yet (%d pending)\n", st.PendingPredictions)
	}
}
