// Package metrics exposes Prometheus metrics for the learning pipeline.
//
//   - predictor_cycle_runs_total{status}        – daily cycle completions
//   - predictor_cycle_stage_status{stage}       – last status per stage (1=ok)
//   - predictor_records_evaluated_total{result} – evaluator outcomes
//   - predictor_evaluation_skips_total{reason}  – evaluator skips
//   - predictor_predictions_total{mode}         – live predictions served
//   - predictor_champion_score{kind}            – current champion score
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	CycleRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_cycle_runs_total",
			Help: "Daily learning cycles by final status",
		},
		[]string{"status"},
	)

	StageStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "predictor_cycle_stage_status",
			Help: "Last cycle stage outcome (1 ok, 0 failed/skipped)",
		},
		[]string{"stage"},
	)

	RecordsEvaluated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_records_evaluated_total",
			Help: "Prediction records resolved by the outcome evaluator",
		},
		[]string{"result"},
	)

	EvaluationSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_evaluation_skips_total",
			Help: "Records skipped by the outcome evaluator",
		},
		[]string{"reason"},
	)

	Predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "predictor_predictions_total",
			Help: "Live predictions served",
		},
		[]string{"mode"},
	)

	ChampionScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "predictor_champion_score",
			Help: "Current champion composite score (kind: range|confidence)",
		},
		[]string{"kind"},
	)
)

func init() {
	prometheus.MustRegister(CycleRuns, StageStatus, RecordsEvaluated, EvaluationSkips, Predictions, ChampionScore)
}
