// Package rangecalc produces the rule-based expected price range from OHLC
// history: a volatility-aware band of ATR multiples around the current price.
package rangecalc

import (
	"math"

	"github.com/seestox/predictor/models"
)

const (
	atrPeriod = 14

	// Regime thresholds: recent (10 day) return stddev vs long (60 day).
	regimeWindow       = 60
	recentWindow       = 10
	highRegimeRatio    = 1.3
	lowRegimeRatio     = 0.8
	atrFallbackPercent = 0.02

	lowFactor    = 0.8
	normalFactor = 1.0
	highFactor   = 1.2
)

// BaseRange is the rule-based band plus the inputs the rest of the pipeline
// snapshots into the prediction record.
type BaseRange struct {
	Low              float64
	High             float64
	ATR              float64
	Factor           float64
	VolatilityRegime string
}

// Calculate derives the expected range for the next session. It is
// deterministic; the only failure mode is an empty series.
func Calculate(candles []models.Candle, currentPrice float64) (BaseRange, error) {
	if len(candles) == 0 {
		return BaseRange{}, &models.DataError{Msg: "no price data for range calculation"}
	}

	atr := CalculateATR(candles, atrPeriod)
	if atr <= 0 || math.IsNaN(atr) {
		atr = currentPrice * atrFallbackPercent
	}

	regime := DetectVolatilityRegime(closes(candles))

	factor := normalFactor
	switch regime {
	case models.VolatilityLow:
		factor = lowFactor
	case models.VolatilityHigh:
		factor = highFactor
	}

	low := round2(currentPrice - atr*factor)
	high := round2(currentPrice + atr*factor)
	if low <= 0 {
		low = round2(currentPrice * 0.95)
	}

	return BaseRange{
		Low:              low,
		High:             high,
		ATR:              round2(atr),
		Factor:           factor,
		VolatilityRegime: regime,
	}, nil
}

// CalculateATR computes the Average True Range over the trailing period.
// Returns 0 when the series is shorter than period+1 bars.
func CalculateATR(candles []models.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 0
	}

	var trueRanges []float64
	for i := 1; i < len(candles); i++ {
		highLow := candles[i].High - candles[i].Low
		highPrevClose := math.Abs(candles[i].High - candles[i-1].Close)
		lowPrevClose := math.Abs(candles[i].Low - candles[i-1].Close)
		trueRanges = append(trueRanges, math.Max(highLow, math.Max(highPrevClose, lowPrevClose)))
	}

	var sum float64
	for i := len(trueRanges) - period; i < len(trueRanges); i++ {
		sum += trueRanges[i]
	}
	return sum / float64(period)
}

// DetectVolatilityRegime compares the stddev of the most recent 10 daily
// returns against the most recent 60. Short series default to NORMAL.
func DetectVolatilityRegime(close []float64) string {
	if len(close) < regimeWindow {
		return models.VolatilityNormal
	}

	returns := make([]float64, 0, len(close)-1)
	for i := 1; i < len(close); i++ {
		if close[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, (close[i]-close[i-1])/close[i-1])
	}

	long := returns
	if len(long) > regimeWindow {
		long = long[len(long)-regimeWindow:]
	}
	recentVol := stddev(returns[len(returns)-recentWindow:])
	longVol := stddev(long)

	if longVol == 0 {
		return models.VolatilityNormal
	}
	if recentVol > longVol*highRegimeRatio {
		return models.VolatilityHigh
	}
	if recentVol < longVol*lowRegimeRatio {
		return models.VolatilityLow
	}
	return models.VolatilityNormal
}

func closes(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

func stddev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return math.Sqrt(variance / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
