// Package evaluator resolves pending predictions against realized closes
// (T+1) and writes the outcome back to the record store exactly once.
package evaluator

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/metrics"
	"github.com/seestox/predictor/models"
)

// Report summarizes one evaluation pass. Per-record failures are collected
// here instead of aborting the batch.
type Report struct {
	Status       string            `json:"status"`
	Total        int               `json:"total"`
	EvaluatedNow int               `json:"evaluated_now"`
	Skipped      int               `json:"skipped"`
	Errors       map[string]string `json:"errors,omitempty"`
}

// Evaluator scores pending predictions against the price collaborator.
type Evaluator struct {
	store  models.RecordStore
	prices models.PriceHistory
	now    func() time.Time
	logger zerolog.Logger
}

// New wires an evaluator to its store and price source.
func New(store models.RecordStore, prices models.PriceHistory) *Evaluator {
	return &Evaluator{
		store:  store,
		prices: prices,
		now:    time.Now,
		logger: log.With().Str("component", "outcome_evaluator").Logger(),
	}
}

// Run evaluates every eligible pending record. Records whose next-session
// close is not available yet are skipped and retried next cycle; a single
// record's failure never aborts the pass.
func (e *Evaluator) Run(ctx context.Context) Report {
	report := Report{Status: "OK", Errors: map[string]string{}}

	pending, err := e.store.Pending()
	if err != nil {
		e.logger.Error().Err(err).Msg("loading pending predictions failed")
		report.Status = "FAILED"
		report.Errors["store"] = err.Error()
		return report
	}
	report.Total = len(pending)

	for _, record := range pending {
		after, err := time.Parse("2006-01-02", record.Date)
		if err != nil {
			report.Skipped++
			metrics.EvaluationSkips.WithLabelValues("bad_date").Inc()
			continue
		}

		actualClose, ok, err := e.prices.GetActualClose(ctx, record.Symbol, after)
		if err != nil {
			e.logger.Warn().Err(err).Str("symbol", record.Symbol).Str("id", record.ID).
				Msg("close resolution failed")
			report.Errors[record.Symbol] = err.Error()
			report.Skipped++
			metrics.EvaluationSkips.WithLabelValues("close_fetch_failed").Inc()
			continue
		}
		if !ok {
			report.Skipped++
			metrics.EvaluationSkips.WithLabelValues("close_not_available").Inc()
			continue
		}

		result, rangeError := Classify(*record.ExpectedRange, actualClose)
		eval := models.Evaluation{
			ActualClose: round2(actualClose),
			RangeError:  round2(rangeError),
			Result:      result,
			EvaluatedOn: e.now().Format(time.RFC3339),
		}

		if err := e.store.MarkEvaluated(record.ID, eval); err != nil {
			e.logger.Error().Err(err).Str("id", record.ID).Msg("evaluation write failed")
			report.Errors[record.Symbol] = err.Error()
			continue
		}

		report.EvaluatedNow++
		metrics.RecordsEvaluated.WithLabelValues(result).Inc()
	}

	e.logger.Info().
		Int("total", report.Total).
		Int("evaluated_now", report.EvaluatedNow).
		Int("skipped", report.Skipped).
		Msg("evaluation pass complete")
	return report
}

// Classify tags an actual close against the predicted band. The error is 0
// inside the band, otherwise the distance outside the violated bound.
func Classify(expected models.ExpectedRange, actualClose float64) (string, float64) {
	switch {
	case expected.Low <= actualClose && actualClose <= expected.High:
		return models.ResultInsideRange, 0
	case actualClose > expected.High:
		return models.ResultAboveRange, actualClose - expected.High
	default:
		return models.ResultBelowRange, expected.Low - actualClose
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
