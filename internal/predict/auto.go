package predict

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/seestox/predictor/internal/logger"
	"github.com/seestox/predictor/models"
)

// AutoRunner produces the unattended daily predictions that feed the
// learning loop. Without it the evaluator has nothing to score on a fresh
// deployment until somebody runs manual analyses.
type AutoRunner struct {
	service    *Service
	reportPath string
	now        func() time.Time
	logger     zerolog.Logger
}

// AutoReport summarizes one auto-prediction pass over the symbol universe.
type AutoReport struct {
	StartedOn  string            `json:"started_on"`
	FinishedOn string            `json:"finished_on"`
	Requested  int               `json:"requested"`
	Succeeded  int               `json:"succeeded"`
	Failed     int               `json:"failed"`
	Errors     map[string]string `json:"errors,omitempty"`
}

// NewAutoRunner wires an auto-prediction pass over the given service.
// An empty reportPath disables report persistence.
func NewAutoRunner(service *Service, reportPath string) *AutoRunner {
	return &AutoRunner{
		service:    service,
		reportPath: reportPath,
		now:        time.Now,
		logger:     logger.Component("auto_predictor"),
	}
}

// Run analyzes every symbol in AUTO mode. Per-symbol failures are recorded
// in the report; one bad symbol never stops the pass.
func (r *AutoRunner) Run(ctx context.Context, symbols []string) AutoReport {
	report := AutoReport{
		StartedOn: r.now().Format(time.RFC3339),
		Requested: len(symbols),
	}

	for _, symbol := range symbols {
		if _, err := r.service.Analyze(ctx, symbol, models.ModeAuto); err != nil {
			r.logger.Warn().Err(err).Str("symbol", symbol).Msg("auto prediction failed")
			if report.Errors == nil {
				report.Errors = make(map[string]string)
			}
			report.Errors[symbol] = err.Error()
			report.Failed++
			continue
		}
		report.Succeeded++
	}
	report.FinishedOn = r.now().Format(time.RFC3339)

	if err := r.appendReport(report); err != nil {
		r.logger.Error().Err(err).Msg("auto prediction report write failed")
	}
	r.logger.Info().
		Int("succeeded", report.Succeeded).
		Int("failed", report.Failed).
		Msg("auto prediction pass complete")
	return report
}

// appendReport writes the report as one JSON line so history accumulates.
func (r *AutoRunner) appendReport(report AutoReport) error {
	if r.reportPath == "" {
		return nil
	}
	if dir := filepath.Dir(r.reportPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.PersistenceError{Op: "create report dir", Err: err}
		}
	}
	line, err := json.Marshal(report)
	if err != nil {
		return &models.PersistenceError{Op: "encode auto prediction report", Err: err}
	}

	f, err := os.OpenFile(r.reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &models.PersistenceError{Op: "open auto prediction report", Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return &models.PersistenceError{Op: "append auto prediction report", Err: err}
	}
	return nil
}
