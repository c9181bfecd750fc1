// Command scheduler produces the day's AUTO predictions for the configured
// symbols, runs the learning cycle on an interval and serves Prometheus
// metrics. One pass runs immediately at startup so a restarted process never
// waits a day to catch up.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/champion"
	"github.com/seestox/predictor/internal/config"
	"github.com/seestox/predictor/internal/evaluator"
	"github.com/seestox/predictor/internal/events"
	"github.com/seestox/predictor/internal/logger"
	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/internal/pipeline"
	"github.com/seestox/predictor/internal/predict"
	"github.com/seestox/predictor/internal/priceclient"
	"github.com/seestox/predictor/internal/store"
	"github.com/seestox/predictor/models"
)

const cycleInterval = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	logger.Init("scheduler", cfg.LogLevel, false)

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
	defer publisher.Close()

	service := predict.New(recordStore, prices, signals, registry, rangeSel, confSel, publisher, cfg.HistoryPeriod)
	auto := predict.NewAutoRunner(service, filepath.Join(cfg.DataDir, "auto_prediction_report.jsonl"))
	if len(cfg.Symbols) == 0 {
		log.Warn().Msg("SYMBOLS not configured, auto predictions disabled")
	}

	cycle := pipeline.New(
		recordStore,
		evaluator.New(recordStore, prices),
		registry,
		rangeSel,
		confSel,
		publisher,
		filepath.Join(cfg.DataDir, "models"),
		filepath.Join(cfg.DataDir, "cycle_reports.jsonl"),
		cfg.Symbols,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go serveMetrics(cfg.MetricsAddr)

	log.Info().
		Str("metrics_addr", cfg.MetricsAddr).
		Bool("events_enabled", publisher.Enabled()).
		Dur("interval", cycleInterval).
		Msg("scheduler started")

	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	runCycle(ctx, auto, cycle, cfg.Symbols)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler shutting down")
			return
		case <-ticker.C:
			runCycle(ctx, auto, cycle, cfg.Symbols)
		}
	}
}

// runCycle produces the day's AUTO predictions for the symbol universe, then
// runs the learning cycle over the accumulated history.
func runCycle(ctx context.Context, auto *predict.AutoRunner, cycle *pipeline.Cycle, symbols []string) {
	if len(symbols) > 0 {
		autoReport := auto.Run(ctx, symbols)
		log.Info().
			Int("succeeded", autoReport.Succeeded).
			Int("failed", autoReport.Failed).
			Msg("auto predictions finished")
	}
	report := cycle.Run(ctx)
	log.Info().Str("status", report.Status).Msg("cycle finished")
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("metrics server stopped")
	}
}

func buildStore(cfg *config.Config) (models.RecordStore, error) {
	if cfg.StoreBackend == "postgres" && cfg.PostgresDSN != "" {
		return store.NewPostgresStore(cfg.PostgresDSN)
	}
	return store.NewJSONStore(store.DefaultCandidates(cfg.HistoryPath, cfg.DataDir)...), nil
}
