// Package dataset turns evaluated prediction records into aligned training
// arrays for the expected-range regressors.
package dataset

import (
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/features"
	"github.com/seestox/predictor/models"
)

// MinRecords is the minimum number of usable rows; below it the builder
// returns an empty dataset and the caller skips training for the cycle.
const MinRecords = 5

// Skip reasons tracked for observability.
const (
	SkipNotEvaluated       = "missing_evaluated"
	SkipMissingRange       = "missing_expected_range"
	SkipMissingActualClose = "missing_actual_close"
	SkipMissingContext     = "missing_context_price"
	SkipNonPositiveWidth   = "range_width_non_positive"
)

// Dataset holds the aligned feature and target arrays. ExpectedLows/Highs
// and ActualCloses ride along so the evaluator can reconstruct predicted
// ranges per validation sample when scoring hit-rate.
type Dataset struct {
	X             [][]float64
	YLow          []float64
	YHigh         []float64
	ExpectedLows  []float64
	ExpectedHighs []float64
	ActualCloses  []float64

	Total   int            // records scanned
	Skipped map[string]int // per-reason skip counts
}

// Len returns the number of usable rows.
func (d *Dataset) Len() int { return len(d.X) }

// Empty reports whether the dataset fell below the minimum record count.
func (d *Dataset) Empty() bool { return len(d.X) == 0 }

// Build scans records with strict filters and emits one row per accepted
// record: feature vector, low/high target errors and the originals needed
// for hit-rate reconstruction. Fewer than MinRecords survivors yields an
// empty dataset, never an error.
func Build(records []models.PredictionRecord) *Dataset {
	d := &Dataset{
		Total:   len(records),
		Skipped: make(map[string]int),
	}

	for _, r := range records {
		if !r.Evaluated {
			d.Skipped[SkipNotEvaluated]++
			continue
		}
		if r.ExpectedRange == nil || !r.ExpectedRange.Valid() {
			d.Skipped[SkipMissingRange]++
			continue
		}
		if r.ActualClose == nil {
			d.Skipped[SkipMissingActualClose]++
			continue
		}
		if r.Context == nil || r.Context.Price <= 0 {
			d.Skipped[SkipMissingContext]++
			continue
		}

		width := r.ExpectedRange.Width()
		if width <= 0 {
			d.Skipped[SkipNonPositiveWidth]++
			continue
		}

		actual := *r.ActualClose
		d.X = append(d.X, features.Encode(*r.Context, width))
		d.YLow = append(d.YLow, actual-r.ExpectedRange.Low)
		d.YHigh = append(d.YHigh, actual-r.ExpectedRange.High)
		d.ExpectedLows = append(d.ExpectedLows, r.ExpectedRange.Low)
		d.ExpectedHighs = append(d.ExpectedHighs, r.ExpectedRange.High)
		d.ActualCloses = append(d.ActualCloses, actual)
	}

	log.Debug().
		Str("component", "dataset_builder").
		Int("total", d.Total).
		Int("used", d.Len()).
		Interface("skipped", d.Skipped).
		Msg("expected range dataset built")

	if d.Len() < MinRecords {
		d.X, d.YLow, d.YHigh = nil, nil, nil
		d.ExpectedLows, d.ExpectedHighs, d.ActualCloses = nil, nil, nil
	}
	return d
}
