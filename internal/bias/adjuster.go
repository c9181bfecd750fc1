package bias

import (
	"math"

	"github.com/seestox/predictor/models"
)

// Safety caps relative to the base range width.
const (
	MaxExpansionPct = 0.35
	MaxTightenPct   = 0.25
)

// Adjustment reason tags, kept on every prediction for auditability.
const (
	ReasonRuleOnly   = "RULE_ONLY"
	ReasonExpandUp   = "ML_EXPAND_UP"
	ReasonExpandDown = "ML_EXPAND_DOWN"
	ReasonTighten    = "ML_TIGHTEN"
	ReasonNeutral    = "ML_NEUTRAL"
	ReasonInvalid    = "INVALID_BASE_RANGE"
)

// Adjusted is the bias-adjusted range plus audit metadata.
type Adjusted struct {
	Range     models.ExpectedRange
	MLApplied bool
	Reason    string
}

// Adjust applies the learned bias on top of the rule-based range. The
// adjustment is capped at 35% of the base width for expansion and 25% for
// tightening; the low bound never goes below zero. Insufficient samples or
// an invalid base range return the base unchanged.
func Adjust(base models.ExpectedRange, sig Signal) Adjusted {
	if !base.Valid() {
		return Adjusted{Range: base, Reason: ReasonInvalid}
	}

	out := Adjusted{Range: base, Reason: ReasonRuleOnly}
	if sig.Status != StatusReady || sig.Samples < MinSamples {
		return out
	}

	width := base.Width()
	maxExpand := width * MaxExpansionPct
	maxTighten := width * MaxTightenPct
	suggested := math.Abs(sig.Suggested)

	switch sig.Direction {
	case DirectionExpandUp:
		delta := math.Min(suggested, maxExpand)
		out.Range.High = base.High + delta
		out.MLApplied = true
		out.Reason = ReasonExpandUp

	case DirectionExpandDown:
		delta := math.Min(suggested, maxExpand)
		out.Range.Low = math.Max(base.Low-delta, 0)
		out.MLApplied = true
		out.Reason = ReasonExpandDown

	case DirectionTighten:
		delta := math.Min(suggested, maxTighten)
		out.Range.Low = base.Low + delta
		out.Range.High = base.High - delta
		out.MLApplied = true
		out.Reason = ReasonTighten

	default:
		out.Reason = ReasonNeutral
	}
	return out
}
