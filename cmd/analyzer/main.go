// Command analyzer produces one prediction for a symbol and prints the
// result as JSON. Usage: analyzer SYMBOL [SYMBOL...]
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/champion"
	"github.com/seestox/predictor/internal/config"
	"github.com/seestox/predictor/internal/events"
	"github.com/seestox/predictor/internal/logger"
	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/internal/predict"
	"github.com/seestox/predictor/internal/priceclient"
	"github.com/seestox/predictor/internal/store"
	"github.com/seestox/predictor/models"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger.Init("analyzer", cfg.LogLevel, true)

	symbols := os.Args[1:]
	if len(symbols) == 0 {
		symbols = cfg.Symbols
	}
	if len(symbols) == 0 {
		fmt.Fprintln(os.Stderr, "usage: analyzer SYMBOL [SYMBOL...] (or set SYMBOLS)")
		os.Exit(2)
	}

	recordStore, err := buildStore(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("record store init failed")
	}

	prices := priceclient.NewClient(cfg.PriceBaseURL, cfg.PriceAPIKey, time.Duration(cfg.RequestTimeout)*time.Second)
	signals := priceclient.NewDerivedSignals(prices, cfg.HistoryPeriod)
	registry := ml.NewRegistry(filepath.Join(cfg.DataDir, "models"))
	rangeSel := champion.NewRangeSelector(filepath.Join(cfg.DataDir, "range_champion.json"))
	confSel := champion.NewConfidenceSelector(filepath.Join(cfg.DataDir, "confidence_champions"))
	publisher := events.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)

	service := predict.New(recordStore, prices, signals, registry, rangeSel, confSel, publisher, cfg.HistoryPeriod)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")

	exitCode := 0
	for _, symbol := range symbols {
		result, err := service.Analyze(ctx, symbol, models.ModeUser)
		if err != nil {
			log.Error().Err(err).Str("symbol", symbol).Msg("analysis failed")
			exitCode = 1
			continue
		}
		if err := encoder.Encode(result); err != nil {
			log.Error().Err(err).Msg("result encode failed")
			exitCode = 1
		}
	}

	publisher.Close()
	os.Exit(exitCode)
}

func buildStore(cfg *config.Config) (models.RecordStore, error) {
	if cfg.StoreBackend == "postgres" && cfg.PostgresDSN != "" {
		return store.NewPostgresStore(cfg.PostgresDSN)
	}
	return store.NewJSONStore(store.DefaultCandidates(cfg.HistoryPath, cfg.DataDir)...), nil
}
