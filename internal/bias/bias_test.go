package bias

import (
	"math"
	"testing"

	"github.com/seestox/predictor/models"
)

func evaluated(symbol, result string, rangeErr float64) models.PredictionRecord {
	e := rangeErr
	return models.PredictionRecord{
		Symbol:     symbol,
		Evaluated:  true,
		Result:     result,
		RangeError: &e,
	}
}

func TestAggregate(t *testing.T) {
	records := []models.PredictionRecord{
		evaluated("TSLA", models.ResultAboveRange, 5),
		evaluated("TSLA", models.ResultAboveRange, 3),
		evaluated("TSLA", models.ResultInsideRange, 0),
		evaluated("TSLA", models.ResultBelowRange, 4),
		evaluated("AAPL", models.ResultInsideRange, 0),
		// Unevaluated and errorless records are ignored.
		{Symbol: "TSLA", Evaluated: false},
		{Symbol: "TSLA", Evaluated: true},
	}

	stats := Aggregate(records, "")
	tsla, ok := stats["TSLA"]
	if !ok {
		t.Fatal("missing TSLA stats")
	}
	if tsla.Samples != 4 {
		t.Errorf("samples = %d, want 4", tsla.Samples)
	}
	if math.Abs(tsla.AvgError-3) > 1e-9 {
		t.Errorf("avg error = %v, want 3", tsla.AvgError)
	}
	if math.Abs(tsla.UpperBias-0.5) > 1e-9 {
		t.Errorf("upper bias = %v, want 0.5", tsla.UpperBias)
	}
	if math.Abs(tsla.LowerBias-0.25) > 1e-9 {
		t.Errorf("lower bias = %v, want 0.25", tsla.LowerBias)
	}
	if math.Abs(tsla.HitRate-0.25) > 1e-9 {
		t.Errorf("hit rate = %v, want 0.25", tsla.HitRate)
	}

	filtered := Aggregate(records, "AAPL")
	if _, ok := filtered["TSLA"]; ok {
		t.Error("symbol filter leaked other symbols")
	}
}

func TestLearn(t *testing.T) {
	tests := []struct {
		name          string
		stats         models.SymbolErrorStats
		wantDirection string
		wantSuggested float64
	}{
		{
			name:          "upper bias expands up",
			stats:         models.SymbolErrorStats{Samples: 10, AvgError: 4, UpperBias: 0.8, LowerBias: 0.1, HitRate: 0.1},
			wantDirection: DirectionExpandUp,
			wantSuggested: 2.4,
		},
		{
			name:          "lower bias expands down",
			stats:         models.SymbolErrorStats{Samples: 10, AvgError: 4, UpperBias: 0.1, LowerBias: 0.7, HitRate: 0.2},
			wantDirection: DirectionExpandDown,
			wantSuggested: 2.4,
		},
		{
			name:          "high hit rate tightens",
			stats:         models.SymbolErrorStats{Samples: 10, AvgError: 4, UpperBias: 0.1, LowerBias: 0.1, HitRate: 0.8},
			wantDirection: DirectionTighten,
			wantSuggested: 1.2,
		},
		{
			name:          "mixed outcomes stay neutral",
			stats:         models.SymbolErrorStats{Samples: 10, AvgError: 4, UpperBias: 0.4, LowerBias: 0.3, HitRate: 0.3},
			wantDirection: DirectionNeutral,
			wantSuggested: 0.4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := Learn(map[string]models.SymbolErrorStats{"TSLA": tt.stats}, "TSLA")
			if sig.Status != StatusReady {
				t.Fatalf("status = %s, want READY", sig.Status)
			}
			if sig.Direction != tt.wantDirection {
				t.Errorf("direction = %s, want %s", sig.Direction, tt.wantDirection)
			}
			if math.Abs(sig.Suggested-tt.wantSuggested) > 1e-9 {
				t.Errorf("suggested = %v, want %v", sig.Suggested, tt.wantSuggested)
			}
		})
	}
}

func TestLearnInsufficientSamples(t *testing.T) {
	stats := map[string]models.SymbolErrorStats{
		"TSLA": {Samples: MinSamples - 1, AvgError: 4, UpperBias: 1},
	}
	sig := Learn(stats, "TSLA")
	if sig.Status != StatusInsufficientData {
		t.Errorf("status = %s, want INSUFFICIENT_DATA", sig.Status)
	}
	if sig.Direction != DirectionNeutral {
		t.Errorf("direction = %s, want NEUTRAL", sig.Direction)
	}

	if sig := Learn(stats, "UNKNOWN"); sig.Status != StatusInsufficientData {
		t.Errorf("unknown symbol status = %s, want INSUFFICIENT_DATA", sig.Status)
	}
}

func TestAdjustCaps(t *testing.T) {
	base := models.ExpectedRange{Low: 100, High: 110} // width 10

	tests := []struct {
		name     string
		sig      Signal
		wantLow  float64
		wantHigh float64
		wantML   bool
		wantWhy  string
	}{
		{
			name:     "expand up under cap",
			sig:      Signal{Status: StatusReady, Samples: 10, Direction: DirectionExpandUp, Suggested: 2.4},
			wantLow:  100,
			wantHigh: 112.4,
			wantML:   true,
			wantWhy:  ReasonExpandUp,
		},
		{
			name:     "expand up hits 35 percent cap",
			sig:      Signal{Status: StatusReady, Samples: 10, Direction: DirectionExpandUp, Suggested: 9},
			wantLow:  100,
			wantHigh: 113.5,
			wantML:   true,
			wantWhy:  ReasonExpandUp,
		},
		{
			name:     "expand down hits cap",
			sig:      Signal{Status: StatusReady, Samples: 10, Direction: DirectionExpandDown, Suggested: 50},
			wantLow:  96.5,
			wantHigh: 110,
			wantML:   true,
			wantWhy:  ReasonExpandDown,
		},
		{
			name:     "tighten hits 25 percent cap",
			sig:      Signal{Status: StatusReady, Samples: 10, Direction: DirectionTighten, Suggested: 50},
			wantLow:  102.5,
			wantHigh: 107.5,
			wantML:   true,
			wantWhy:  ReasonTighten,
		},
		{
			name:     "neutral leaves range untouched",
			sig:      Signal{Status: StatusReady, Samples: 10, Direction: DirectionNeutral, Suggested: 0.4},
			wantLow:  100,
			wantHigh: 110,
			wantML:   false,
			wantWhy:  ReasonNeutral,
		},
		{
			name:     "insufficient data is rule only",
			sig:      Signal{Status: StatusInsufficientData, Direction: DirectionNeutral},
			wantLow:  100,
			wantHigh: 110,
			wantML:   false,
			wantWhy:  ReasonRuleOnly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Adjust(base, tt.sig)
			if math.Abs(got.Range.Low-tt.wantLow) > 1e-9 || math.Abs(got.Range.High-tt.wantHigh) > 1e-9 {
				t.Errorf("range = [%v, %v], want [%v, %v]", got.Range.Low, got.Range.High, tt.wantLow, tt.wantHigh)
			}
			if got.MLApplied != tt.wantML {
				t.Errorf("ml applied = %v, want %v", got.MLApplied, tt.wantML)
			}
			if got.Reason != tt.wantWhy {
				t.Errorf("reason = %s, want %s", got.Reason, tt.wantWhy)
			}
			if !got.Range.Valid() {
				t.Error("adjusted range must stay valid")
			}
		})
	}
}

func TestAdjustLowNeverNegative(t *testing.T) {
	base := models.ExpectedRange{Low: 1, High: 21} // width 20, max expand 7
	sig := Signal{Status: StatusReady, Samples: 10, Direction: DirectionExpandDown, Suggested: 7}
	got := Adjust(base, sig)
	if got.Range.Low != 0 {
		t.Errorf("low = %v, want floored at 0", got.Range.Low)
	}
}

func TestAdjustInvalidBase(t *testing.T) {
	base := models.ExpectedRange{Low: 110, High: 100}
	got := Adjust(base, Signal{Status: StatusReady, Samples: 10, Direction: DirectionExpandUp, Suggested: 5})
	if got.MLApplied || got.Reason != ReasonInvalid {
		t.Errorf("invalid base must pass through untouched, got %+v", got)
	}
}
