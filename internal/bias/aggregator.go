// Package bias learns systematic range errors from evaluated history and
// applies safety-capped adjustments on top of the rule-based range.
package bias

import (
	"github.com/seestox/predictor/models"
)

// MinSamples is the floor below which a symbol's stats are not usable.
const MinSamples = 5

// Aggregate rolls up range errors per symbol across evaluated records.
// Pass an empty symbol to aggregate every symbol at once.
func Aggregate(records []models.PredictionRecord, symbol string) map[string]models.SymbolErrorStats {
	type rollup struct {
		count       int
		totalError  float64
		upperBreaks int
		lowerBreaks int
		insideHits  int
	}
	acc := make(map[string]*rollup)

	for _, r := range records {
		if !r.Evaluated || r.RangeError == nil || r.Symbol == "" {
			continue
		}
		if symbol != "" && r.Symbol != symbol {
			continue
		}

		s := acc[r.Symbol]
		if s == nil {
			s = &rollup{}
			acc[r.Symbol] = s
		}
		s.count++
		s.totalError += *r.RangeError

		switch r.Result {
		case models.ResultAboveRange:
			s.upperBreaks++
		case models.ResultBelowRange:
			s.lowerBreaks++
		case models.ResultInsideRange:
			s.insideHits++
		}
	}

	out := make(map[string]models.SymbolErrorStats, len(acc))
	for sym, s := range acc {
		if s.count == 0 {
			continue
		}
		n := float64(s.count)
		out[sym] = models.SymbolErrorStats{
			Symbol:    sym,
			Samples:   s.count,
			AvgError:  s.totalError / n,
			UpperBias: float64(s.upperBreaks) / n,
			LowerBias: float64(s.lowerBreaks) / n,
			HitRate:   float64(s.insideHits) / n,
		}
	}
	return out
}
