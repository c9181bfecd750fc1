package bias

import (
	"github.com/seestox/predictor/models"
)

// Adjustment directions.
const (
	DirectionExpandUp   = "EXPAND_UP"
	DirectionExpandDown = "EXPAND_DOWN"
	DirectionTighten    = "TIGHTEN"
	DirectionNeutral    = "NEUTRAL"
)

// Learner statuses.
const (
	StatusReady            = "READY"
	StatusInsufficientData = "INSUFFICIENT_DATA"
)

const (
	oneSidedBiasThreshold = 0.6
	tightenHitRate        = 0.7

	expandWeight  = 0.6
	tightenWeight = 0.3
	neutralWeight = 0.1
)

// Signal is a safe adjustment hint derived from aggregated errors. The
// suggested magnitude is unscaled; the adjuster caps it before applying.
type Signal struct {
	Status    string  `json:"status"`
	Samples   int     `json:"samples"`
	AvgError  float64 `json:"avg_error"`
	Direction string  `json:"direction"`
	Suggested float64 `json:"suggested_adjustment"`
}

// Learn derives the bias direction and suggested magnitude for a symbol from
// its aggregated error stats.
func Learn(stats map[string]models.SymbolErrorStats, symbol string) Signal {
	s, ok := stats[symbol]
	if !ok || s.Samples < MinSamples {
		return Signal{Status: StatusInsufficientData, Direction: DirectionNeutral}
	}

	sig := Signal{
		Status:   StatusReady,
		Samples:  s.Samples,
		AvgError: s.AvgError,
	}

	switch {
	case s.UpperBias > oneSidedBiasThreshold:
		sig.Direction = DirectionExpandUp
		sig.Suggested = s.AvgError * expandWeight
	case s.LowerBias > oneSidedBiasThreshold:
		sig.Direction = DirectionExpandDown
		sig.Suggested = s.AvgError * expandWeight
	case s.HitRate > tightenHitRate:
		sig.Direction = DirectionTighten
		sig.Suggested = s.AvgError * tightenWeight
	default:
		sig.Direction = DirectionNeutral
		sig.Suggested = s.AvgError * neutralWeight
	}
	return sig
}
