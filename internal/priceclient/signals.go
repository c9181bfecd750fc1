package priceclient

import (
	"context"
	"math"

	"github.com/seestox/predictor/models"
)

const (
	fastSMAPeriod = 20
	slowSMAPeriod = 50

	// Trend threshold: fast SMA must diverge from slow by 1% to leave
	// SIDEWAYS.
	trendThreshold = 0.01

	riskWindow = 20
)

// DerivedSignals computes trend/sentiment/risk labels from price action
// when no external signal feed is configured. Sentiment stays NEUTRAL: it
// needs a news source this provider does not have.
type DerivedSignals struct {
	prices models.PriceHistory
	period string
}

// NewDerivedSignals adapts a price source into a signal source.
func NewDerivedSignals(prices models.PriceHistory, period string) *DerivedSignals {
	return &DerivedSignals{prices: prices, period: period}
}

// GetSignalContext labels the current market state for a symbol.
func (d *DerivedSignals) GetSignalContext(ctx context.Context, symbol string) (models.SignalContext, error) {
	candles, err := d.prices.GetPriceHistory(ctx, symbol, d.period)
	if err != nil {
		return models.SignalContext{}, err
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	return models.SignalContext{
		Trend:     trendLabel(closes),
		Sentiment: models.SentimentNeutral,
		Risk:      riskLabel(closes),
	}, nil
}

func trendLabel(closes []float64) string {
	if len(closes) < slowSMAPeriod {
		return models.TrendSideways
	}
	fast := sma(closes, fastSMAPeriod)
	slow := sma(closes, slowSMAPeriod)
	if slow == 0 {
		return models.TrendSideways
	}

	diff := (fast - slow) / slow
	switch {
	case diff > trendThreshold:
		return models.TrendUp
	case diff < -trendThreshold:
		return models.TrendDown
	default:
		return models.TrendSideways
	}
}

// riskLabel buckets annualized daily-return volatility.
func riskLabel(closes []float64) string {
	if len(closes) < riskWindow+1 {
		return models.RiskMedium
	}

	recent := closes[len(closes)-riskWindow-1:]
	var returns []float64
	for i := 1; i < len(recent); i++ {
		if recent[i-1] == 0 {
			continue
		}
		returns = append(returns, (recent[i]-recent[i-1])/recent[i-1])
	}
	if len(returns) == 0 {
		return models.RiskMedium
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	annualized := math.Sqrt(variance/float64(len(returns))) * math.Sqrt(252)

	switch {
	case annualized > 0.40:
		return models.RiskHigh
	case annualized < 0.15:
		return models.RiskLow
	default:
		return models.RiskMedium
	}
}

func sma(closes []float64, period int) float64 {
	window := closes[len(closes)-period:]
	var sum float64
	for _, c := range window {
		sum += c
	}
	return sum / float64(period)
}
