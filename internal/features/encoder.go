// Package features converts the categorical and numeric market context into
// the fixed-order numeric vector consumed by the regressors.
//
// The ordering is versioned: training and live inference MUST use the same
// encoder, otherwise model inputs silently stop lining up with the weights
// they were fitted against.
package features

import "github.com/seestox/predictor/models"

// EncodingVersion changes whenever the vector layout changes. Stored with
// trained model metadata so stale models can be rejected.
const EncodingVersion = 1

// VectorSize is the number of features per sample:
// [price, atr, range_width, trend, sentiment, risk, volatility].
const VectorSize = 7

var trendCodes = map[string]float64{
	models.TrendUp:       1,
	models.TrendSideways: 0,
	models.TrendDown:     -1,
}

var sentimentCodes = map[string]float64{
	models.SentimentPositive:       2,
	models.SentimentPositiveWeak:   1,
	models.SentimentNeutral:        0,
	models.SentimentNegative:       -1,
	models.SentimentNegativeStrong: -2,
}

var riskCodes = map[string]float64{
	models.RiskLow:    0,
	models.RiskMedium: 1,
	models.RiskHigh:   2,
}

var volatilityCodes = map[string]float64{
	models.VolatilityLow:    0,
	models.VolatilityNormal: 1,
	models.VolatilityHigh:   2,
}

// Encode builds the feature vector for a context snapshot and its expected
// range width. Unknown categories fall back to the neutral code.
func Encode(ctx models.ContextSnapshot, rangeWidth float64) []float64 {
	return []float64{
		ctx.Price,
		ctx.ATR,
		rangeWidth,
		code(trendCodes, ctx.Trend, 0),
		code(sentimentCodes, ctx.Sentiment, 0),
		code(riskCodes, ctx.Risk, 1),
		code(volatilityCodes, ctx.VolatilityRegime, 1),
	}
}

func code(table map[string]float64, key string, neutral float64) float64 {
	if v, ok := table[key]; ok {
		return v
	}
	return neutral
}
