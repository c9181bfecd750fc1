package models

import (
	"time"
)

// Candle represents a single daily price bar.
type Candle struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume,omitempty"`
}

// Prediction modes
const (
	ModeAuto = "AUTO"
	ModeUser = "USER"
)

// Trend labels
const (
	TrendUp       = "UPTREND"
	TrendDown     = "DOWNTREND"
	TrendSideways = "SIDEWAYS"
)

// Sentiment labels (five point scale)
const (
	SentimentPositive       = "POSITIVE"
	SentimentPositiveWeak   = "POSITIVE_WEAK"
	SentimentNeutral        = "NEUTRAL"
	SentimentNegative       = "NEGATIVE"
	SentimentNegativeStrong = "NEGATIVE_STRONG"
)

// Risk labels
const (
	RiskLow    = "LOW"
	RiskMedium = "MEDIUM"
	RiskHigh   = "HIGH"
)

// Volatility regimes
const (
	VolatilityLow    = "LOW"
	VolatilityNormal = "NORMAL"
	VolatilityHigh   = "HIGH"
)

// Canonical evaluation results. Legacy tags (SUCCESS, FAILURE, UPPER_BREAK,
// LOWER_BREAK) are normalized to these at load time by the record store.
const (
	ResultInsideRange = "INSIDE_RANGE"
	ResultAboveRange  = "ABOVE_RANGE"
	ResultBelowRange  = "BELOW_RANGE"
)

// ExpectedRange is the predicted [low, high] price band for the next session.
type ExpectedRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Width returns the band width.
func (r ExpectedRange) Width() float64 { return r.High - r.Low }

// Valid reports whether the band is usable (low strictly below high).
func (r ExpectedRange) Valid() bool { return r.Low < r.High }

// Probabilities holds directional probabilities for the next session.
type Probabilities struct {
	Up       float64 `json:"up"`
	Down     float64 `json:"down"`
	Sideways float64 `json:"sideways"`
}

// SignalContext is the trend/sentiment/risk snapshot supplied by the signal
// collaborator as of "now".
type SignalContext struct {
	Trend     string `json:"trend"`
	Sentiment string `json:"sentiment"`
	Risk      string `json:"risk"`
}

// ContextSnapshot is the full market context frozen into a prediction record.
// The same snapshot drives both dataset building and live feature encoding.
type ContextSnapshot struct {
	Price            float64 `json:"price"`
	ATR              float64 `json:"atr"`
	Trend            string  `json:"trend"`
	Sentiment        string  `json:"sentiment"`
	Risk             string  `json:"risk"`
	VolatilityRegime string  `json:"volatility_regime"`
	MLApplied        bool    `json:"ml_applied"`
	MLReason         string  `json:"ml_reason,omitempty"`
}

// PredictionRecord is one stored analysis result. Creation fields are written
// once by the analysis flow; evaluation fields are written exactly once by the
// outcome evaluator.
type PredictionRecord struct {
	ID            string           `json:"id"`
	Symbol        string           `json:"symbol"`
	Date          string           `json:"date"` // YYYY-MM-DD, prediction day
	Mode          string           `json:"mode"`
	ExpectedRange *ExpectedRange   `json:"expected_range"`
	Probabilities Probabilities    `json:"probabilities"`
	Context       *ContextSnapshot `json:"context,omitempty"`
	CreatedOn     string           `json:"created_on"`

	Evaluated   bool     `json:"evaluated"`
	EvaluatedOn string   `json:"evaluated_on,omitempty"`
	Result      string   `json:"result,omitempty"`
	ActualClose *float64 `json:"actual_close,omitempty"`
	RangeError  *float64 `json:"range_error,omitempty"`
}

// Evaluation is the outcome written back to a record by the evaluator.
type Evaluation struct {
	ActualClose float64
	RangeError  float64
	Result      string
	EvaluatedOn string
}

// Champion statuses shared by both selectors.
const (
	ChampionStatusNoData     = "NO_DATA"
	ChampionStatusNoModels   = "NO_MODELS"
	ChampionStatusNoChampion = "NO_CHAMPION"
	ChampionStatusDisabled   = "DISABLED"
	ChampionStatusActive     = "ACTIVE"
	ChampionStatusSelected   = "CHAMPION_SELECTED"
	ChampionStatusLocked     = "CHAMPION_LOCKED"
)

// RangeChampion is the single global expected-range champion record.
type RangeChampion struct {
	Status       string    `json:"status,omitempty"`
	ChampionLow  string    `json:"champion_low"`
	ChampionHigh string    `json:"champion_high"`
	HitRate      float64   `json:"hit_rate"`
	MAE          float64   `json:"mae"`
	SelectedOn   time.Time `json:"selected_on"`
	LockUntil    time.Time `json:"lock_until"`
	Note         string    `json:"note,omitempty"`
}

// ConfidenceChampion is the per-symbol confidence champion record.
type ConfidenceChampion struct {
	Status      string    `json:"status"`
	Symbol      string    `json:"symbol,omitempty"`
	Score       float64   `json:"score"`
	SuccessRate float64   `json:"success_rate"`
	FailureRate float64   `json:"failure_rate"`
	NeutralRate float64   `json:"neutral_rate"`
	SelectedOn  time.Time `json:"selected_on,omitempty"`
	LockUntil   time.Time `json:"lock_until,omitempty"`
	Note        string    `json:"note,omitempty"`
}

// Confidence verdicts, strongest first.
const (
	VerdictReliable   = "RELIABLE"
	VerdictModerate   = "MODERATE"
	VerdictWeak       = "WEAK"
	VerdictUnreliable = "UNRELIABLE"
)

// SymbolErrorStats is the per-symbol rollup of evaluated range errors that
// feeds bias learning.
type SymbolErrorStats struct {
	Symbol    string  `json:"symbol"`
	Samples   int     `json:"samples"`
	AvgError  float64 `json:"avg_error"`
	UpperBias float64 `json:"upper_bias"`
	LowerBias float64 `json:"lower_bias"`
	HitRate   float64 `json:"hit_rate"`
}
