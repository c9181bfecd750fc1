package ml

import (
	"math"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/dataset"
)

// MinTrainingRecords is the floor below which no models are trained.
const MinTrainingRecords = 15

// Trainer statuses.
const (
	StatusTrained          = "TRAINED"
	StatusInsufficientData = "INSUFFICIENT_DATA"
)

const (
	validationFraction = 0.3
	splitSeed          = 42

	ridgeLambda = 1.0
)

// Model variants. Each trains an independent low/high pair.
var variants = map[string]float64{
	"linear": 0,
	"ridge":  ridgeLambda,
}

// TrainResult carries the production models fitted on the full dataset.
type TrainResult struct {
	Status  string
	Samples int
	Models  map[string]*LinearModel // "<variant>_low" / "<variant>_high"
}

// PairScore is the validation scorecard for one low/high model pair.
type PairScore struct {
	HitRate float64 `json:"hit_rate"`
	MAE     float64 `json:"mae"`
	MAELow  float64 `json:"mae_low"`
	MAEHigh float64 `json:"mae_high"`
}

// Train fits every variant's low and high regressor on the full dataset.
// Variants whose fit fails (singular system) are dropped, not fatal.
func Train(d *dataset.Dataset) TrainResult {
	if d.Empty() || d.Len() < MinTrainingRecords {
		return TrainResult{Status: StatusInsufficientData, Samples: d.Len(), Models: map[string]*LinearModel{}}
	}

	trained := make(map[string]*LinearModel)
	for name, lambda := range variants {
		low, err := Fit(d.X, d.YLow, lambda)
		if err != nil {
			log.Warn().Str("component", "model_trainer").Str("variant", name).Err(err).Msg("low model fit failed")
			continue
		}
		high, err := Fit(d.X, d.YHigh, lambda)
		if err != nil {
			log.Warn().Str("component", "model_trainer").Str("variant", name).Err(err).Msg("high model fit failed")
			continue
		}
		trained[name+"_low"] = low
		trained[name+"_high"] = high
	}

	if len(trained) == 0 {
		return TrainResult{Status: StatusInsufficientData, Samples: d.Len(), Models: trained}
	}
	return TrainResult{Status: StatusTrained, Samples: d.Len(), Models: trained}
}

// Evaluate scores each trained pair on a deterministic 70/30 held-out split.
// Fold models are fitted fresh so the production (full-set) models are never
// mutated by scoring. Per validation sample the predicted range is
// reconstructed as expected_low+predicted_low_error .. expected_high+
// predicted_high_error; a hit is actual close inside that band.
func Evaluate(trained map[string]*LinearModel, d *dataset.Dataset) map[string]PairScore {
	if d.Empty() || len(trained) == 0 {
		return map[string]PairScore{}
	}

	trainIdx, valIdx := split(d.Len())
	if len(valIdx) == 0 {
		return map[string]PairScore{}
	}

	gather := func(idx []int, src []float64) []float64 {
		out := make([]float64, len(idx))
		for i, j := range idx {
			out[i] = src[j]
		}
		return out
	}
	trainX := make([][]float64, len(trainIdx))
	for i, j := range trainIdx {
		trainX[i] = d.X[j]
	}

	scores := make(map[string]PairScore)
	for lowName, prod := range trained {
		if !strings.HasSuffix(lowName, "_low") {
			continue
		}
		pair := strings.TrimSuffix(lowName, "_low")
		highProd, ok := trained[pair+"_high"]
		if !ok {
			continue
		}

		lowFold, errLow := Fit(trainX, gather(trainIdx, d.YLow), prod.Lambda)
		highFold, errHigh := Fit(trainX, gather(trainIdx, d.YHigh), highProd.Lambda)
		if errLow != nil || errHigh != nil {
			continue
		}

		var hits int
		var absLow, absHigh float64
		for _, j := range valIdx {
			predLow, err1 := lowFold.Predict(d.X[j])
			predHigh, err2 := highFold.Predict(d.X[j])
			if err1 != nil || err2 != nil {
				continue
			}

			absLow += math.Abs(d.YLow[j] - predLow)
			absHigh += math.Abs(d.YHigh[j] - predHigh)

			low := d.ExpectedLows[j] + predLow
			high := d.ExpectedHighs[j] + predHigh
			actual := d.ActualCloses[j]
			if low <= actual && actual <= high {
				hits++
			}
		}

		n := float64(len(valIdx))
		maeLow := absLow / n
		maeHigh := absHigh / n
		scores[pair] = PairScore{
			HitRate: float64(hits) / n,
			MAELow:  maeLow,
			MAEHigh: maeHigh,
			MAE:     (maeLow + maeHigh) / 2,
		}
	}
	return scores
}

// split produces the deterministic 70/30 train/validation index split.
func split(n int) (train, val []int) {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	rng := rand.New(rand.NewSource(splitSeed))
	rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

	valSize := int(math.Round(float64(n) * validationFraction))
	if valSize == 0 {
		valSize = 1
	}
	return idx[valSize:], idx[:valSize]
}
