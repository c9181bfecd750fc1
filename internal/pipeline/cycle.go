// Package pipeline runs the daily learning cycle: score pending
// predictions, rebuild the training set, retrain the range models and
// re-run both champion selections. Stages degrade independently; a cycle
// with no new data is a normal outcome, not a failure.
package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/bias"
	"github.com/seestox/predictor/internal/champion"
	"github.com/seestox/predictor/internal/dataset"
	"github.com/seestox/predictor/internal/evaluator"
	"github.com/seestox/predictor/internal/events"
	"github.com/seestox/predictor/internal/features"
	"github.com/seestox/predictor/internal/metrics"
	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/models"
)

// Stage names, in execution order.
const (
	StageEvaluate           = "evaluate_outcomes"
	StageAggregate          = "aggregate_errors"
	StageDataset            = "build_dataset"
	StageTrain              = "train_models"
	StageRangeChampion      = "select_range_champion"
	StageConfidenceChampion = "select_confidence_champions"
)

// Stage statuses.
const (
	StageOK      = "OK"
	StageSkipped = "SKIPPED"
	StageFailed  = "FAILED"
)

// StageResult records one stage's outcome for the cycle report.
type StageResult struct {
	Stage  string                 `json:"stage"`
	Status string                 `json:"status"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// Report is the persisted record of one cycle run.
type Report struct {
	StartedOn  string        `json:"started_on"`
	FinishedOn string        `json:"finished_on"`
	Status     string        `json:"status"`
	Stages     []StageResult `json:"stages"`
}

// Cycle owns the collaborators of the daily learning loop.
type Cycle struct {
	store      models.RecordStore
	evaluator  *evaluator.Evaluator
	registry   *ml.Registry
	rangeSel   *champion.RangeSelector
	confSel    *champion.ConfidenceSelector
	publisher  *events.Publisher
	modelDir   string
	reportPath string
	symbols    []string
	now        func() time.Time
	logger     zerolog.Logger
}

// New wires a learning cycle. symbols lists the universe for per-symbol
// confidence selection; empty means "every symbol seen in history".
func New(
	store models.RecordStore,
	eval *evaluator.Evaluator,
	registry *ml.Registry,
	rangeSel *champion.RangeSelector,
	confSel *champion.ConfidenceSelector,
	publisher *events.Publisher,
	modelDir, reportPath string,
	symbols []string,
) *Cycle {
	return &Cycle{
		store:      store,
		evaluator:  eval,
		registry:   registry,
		rangeSel:   rangeSel,
		confSel:    confSel,
		publisher:  publisher,
		modelDir:   modelDir,
		reportPath: reportPath,
		symbols:    symbols,
		now:        time.Now,
		logger:     log.With().Str("component", "learning_cycle").Logger(),
	}
}

// Run executes one full cycle and persists the report. Stage failures are
// isolated: a broken training stage still leaves outcomes evaluated, and
// champion selection falls back to whatever models are already persisted.
func (c *Cycle) Run(ctx context.Context) Report {
	report := Report{
		StartedOn: c.now().Format(time.RFC3339),
		Status:    "OK",
	}

	// Stage 1: resolve pending predictions against realized closes.
	evalReport := c.evaluator.Run(ctx)
	report.Stages = append(report.Stages, stageFromEvaluation(evalReport))
	if evalReport.EvaluatedNow > 0 {
		c.publisher.Publish(ctx, events.TypeOutcomeEvaluated, "", evalReport)
	}

	records, err := c.store.All()
	if err != nil {
		c.logger.Error().Err(err).Msg("history unavailable, aborting cycle")
		report.Status = "FAILED"
		report.Stages = append(report.Stages, StageResult{
			Stage:  StageAggregate,
			Status: StageFailed,
			Detail: map[string]interface{}{"error": err.Error()},
		})
		c.finish(ctx, &report)
		return report
	}

	// Stage 2: per-symbol error rollup (feeds the bias learner at inference
	// time; recomputed here so the report carries fresh numbers).
	stats := bias.Aggregate(records, "")
	report.Stages = append(report.Stages, StageResult{
		Stage:  StageAggregate,
		Status: StageOK,
		Detail: map[string]interface{}{"symbols": len(stats)},
	})

	// Stage 3+4: dataset and training.
	trained := c.runTraining(records, &report)

	// Stage 5: range champion over the scorecard.
	c.runRangeSelection(ctx, trained, records, &report)

	// Stage 6: per-symbol confidence champions.
	c.runConfidenceSelection(ctx, records, &report)

	c.finish(ctx, &report)
	return report
}

// runTraining builds the dataset, fits the variants and persists them.
// Returns the freshly trained set, or nil when training was skipped.
func (c *Cycle) runTraining(records []models.PredictionRecord, report *Report) map[string]*ml.LinearModel {
	d := dataset.Build(records)
	datasetStage := StageResult{
		Stage:  StageDataset,
		Status: StageOK,
		Detail: map[string]interface{}{
			"total":   d.Total,
			"used":    d.Len(),
			"skipped": d.Skipped,
		},
	}
	if d.Empty() {
		datasetStage.Status = StageSkipped
		report.Stages = append(report.Stages, datasetStage,
			StageResult{Stage: StageTrain, Status: StageSkipped,
				Detail: map[string]interface{}{"reason": "dataset below minimum"}})
		c.setStageGauges(report)
		return nil
	}
	report.Stages = append(report.Stages, datasetStage)

	result := ml.Train(d)
	if result.Status != ml.StatusTrained {
		report.Stages = append(report.Stages, StageResult{
			Stage:  StageTrain,
			Status: StageSkipped,
			Detail: map[string]interface{}{"reason": result.Status, "samples": result.Samples},
		})
		return nil
	}

	if err := ml.SaveModels(c.modelDir, result.Models, result.Samples, features.VectorSize, features.EncodingVersion); err != nil {
		c.logger.Error().Err(err).Msg("model persistence failed")
		report.Stages = append(report.Stages, StageResult{
			Stage:  StageTrain,
			Status: StageFailed,
			Detail: map[string]interface{}{"error": err.Error()},
		})
		return nil
	}
	if err := c.registry.Refresh(); err != nil {
		c.logger.Warn().Err(err).Msg("model registry refresh failed")
	}

	report.Stages = append(report.Stages, StageResult{
		Stage:  StageTrain,
		Status: StageOK,
		Detail: map[string]interface{}{"samples": result.Samples, "models": len(result.Models)},
	})
	return result.Models
}

func (c *Cycle) runRangeSelection(ctx context.Context, trained map[string]*ml.LinearModel, records []models.PredictionRecord, report *Report) {
	d := dataset.Build(records)

	available := trained
	if available == nil {
		available = c.registry.All()
	}
	scorecard := ml.Evaluate(available, d)

	champ, err := c.rangeSel.Select(scorecard, available, records)
	stage := StageResult{
		Stage:  StageRangeChampion,
		Status: StageOK,
		Detail: map[string]interface{}{"status": champ.Status},
	}
	switch {
	case err != nil:
		stage.Status = StageFailed
		stage.Detail["error"] = err.Error()
	case champ.Status == models.ChampionStatusSelected:
		stage.Detail["champion_low"] = champ.ChampionLow
		stage.Detail["champion_high"] = champ.ChampionHigh
		stage.Detail["mae"] = champ.MAE
		metrics.ChampionScore.WithLabelValues("range").Set(champ.HitRate*100 - champ.MAE)
		c.publisher.Publish(ctx, events.TypeChampionChanged, "", champ)
	case champ.Status == models.ChampionStatusNoData || champ.Status == models.ChampionStatusNoModels:
		stage.Status = StageSkipped
	}
	report.Stages = append(report.Stages, stage)
}

func (c *Cycle) runConfidenceSelection(ctx context.Context, records []models.PredictionRecord, report *Report) {
	symbols := c.symbols
	if len(symbols) == 0 {
		symbols = symbolsInHistory(records)
	}

	detail := make(map[string]interface{}, len(symbols))
	status := StageOK
	for _, symbol := range symbols {
		champ, err := c.confSel.Select(symbol, records)
		if err != nil {
			c.logger.Error().Err(err).Str("symbol", symbol).Msg("confidence selection failed")
			detail[symbol] = "error: " + err.Error()
			status = StageFailed
			continue
		}
		detail[symbol] = champ.Status
		if champ.Status == models.ChampionStatusActive {
			metrics.ChampionScore.WithLabelValues("confidence").Set(champ.Score)
			c.publisher.Publish(ctx, events.TypeChampionChanged, symbol, champ)
		}
	}
	if len(symbols) == 0 {
		status = StageSkipped
	}

	report.Stages = append(report.Stages, StageResult{
		Stage:  StageConfidenceChampion,
		Status: status,
		Detail: detail,
	})
}

// finish stamps, persists and publishes the cycle report.
func (c *Cycle) finish(ctx context.Context, report *Report) {
	report.FinishedOn = c.now().Format(time.RFC3339)
	for _, stage := range report.Stages {
		if stage.Status == StageFailed {
			report.Status = "FAILED"
			break
		}
	}
	c.setStageGauges(report)
	metrics.CycleRuns.WithLabelValues(report.Status).Inc()

	if err := c.appendReport(report); err != nil {
		c.logger.Error().Err(err).Msg("cycle report write failed")
	}
	c.publisher.Publish(ctx, events.TypeCycleCompleted, "", report)

	c.logger.Info().
		Str("status", report.Status).
		Int("stages", len(report.Stages)).
		Msg("learning cycle complete")
}

func (c *Cycle) setStageGauges(report *Report) {
	for _, stage := range report.Stages {
		v := 0.0
		if stage.Status == StageOK {
			v = 1
		}
		metrics.StageStatus.WithLabelValues(stage.Stage).Set(v)
	}
}

// appendReport writes the report as one JSON line so history accumulates.
func (c *Cycle) appendReport(report *Report) error {
	if dir := filepath.Dir(c.reportPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.PersistenceError{Op: "create report dir", Err: err}
		}
	}
	line, err := json.Marshal(report)
	if err != nil {
		return &models.PersistenceError{Op: "encode cycle report", Err: err}
	}

	f, err := os.OpenFile(c.reportPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return &models.PersistenceError{Op: "open cycle report", Err: err}
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return &models.PersistenceError{Op: "append cycle report", Err: err}
	}
	return nil
}

func stageFromEvaluation(r evaluator.Report) StageResult {
	stage := StageResult{
		Stage:  StageEvaluate,
		Status: StageOK,
		Detail: map[string]interface{}{
			"total":         r.Total,
			"evaluated_now": r.EvaluatedNow,
			"skipped":       r.Skipped,
		},
	}
	if r.Status != "OK" {
		stage.Status = StageFailed
	}
	if len(r.Errors) > 0 {
		stage.Detail["errors"] = r.Errors
	}
	return stage
}

func symbolsInHistory(records []models.PredictionRecord) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.Symbol != "" && !seen[r.Symbol] {
			seen[r.Symbol] = true
			out = append(out, r.Symbol)
		}
	}
	return out
}
