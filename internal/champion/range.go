// Package champion implements the two champion/challenger state machines:
// the single global expected-range champion and the per-symbol confidence
// champions. Both persist to JSON files behind injectable paths and apply
// lock-window hysteresis so a freshly selected champion is not churned by
// noisy challengers.
package champion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/models"
)

// Shared selection thresholds (latest policy variant).
const (
	LockWindow            = 7 * 24 * time.Hour
	MinSamplesForChampion = 50

	// A locked range champion only yields to a challenger with MAE at or
	// below 90% of its own.
	rangeImprovementRatio = 0.9
)

// RangeSelector owns the global expected-range champion record.
type RangeSelector struct {
	path   string
	now    func() time.Time
	logger zerolog.Logger
}

// NewRangeSelector creates a selector persisting to the given file.
func NewRangeSelector(path string) *RangeSelector {
	return &RangeSelector{
		path:   path,
		now:    time.Now,
		logger: log.With().Str("component", "range_champion").Logger(),
	}
}

// Select runs one champion/challenger round over the scorecard. The
// persisted hit-rate is recomputed over all evaluated history, not the
// validation fold, for stability.
func (s *RangeSelector) Select(
	scorecard map[string]ml.PairScore,
	available map[string]*ml.LinearModel,
	records []models.PredictionRecord,
) (models.RangeChampion, error) {
	if len(scorecard) == 0 || len(available) == 0 {
		return models.RangeChampion{
			Status: models.ChampionStatusNoData,
			Note:   "insufficient data or models not loaded",
		}, nil
	}

	bestPair, bestScore, ok := pickBestPair(scorecard, available)
	if !ok {
		return models.RangeChampion{
			Status: models.ChampionStatusNoModels,
			Note:   "expected range models not found",
		}, nil
	}

	hitRate, evaluatedTotal := historicalHitRate(records)
	now := s.now()

	existing, hasExisting := s.load()
	if hasExisting && now.Before(existing.LockUntil) {
		improved := evaluatedTotal >= MinSamplesForChampion &&
			bestScore.MAE <= existing.MAE*rangeImprovementRatio
		if !improved {
			s.logger.Info().
				Int("evaluated_total", evaluatedTotal).
				Float64("challenger_mae", bestScore.MAE).
				Msg("champion lock active, kept existing champion")
			existing.Status = models.ChampionStatusLocked
			return existing, nil
		}
	}

	if hasExisting && evaluatedTotal < MinSamplesForChampion {
		existing.Status = models.ChampionStatusLocked
		return existing, nil
	}

	champ := models.RangeChampion{
		Status:       models.ChampionStatusSelected,
		ChampionLow:  bestPair + "_low",
		ChampionHigh: bestPair + "_high",
		HitRate:      hitRate,
		MAE:          bestScore.MAE,
		SelectedOn:   now,
		LockUntil:    now.Add(LockWindow),
	}

	if err := s.save(champ); err != nil {
		return champ, err
	}

	s.logger.Info().
		Str("pair", bestPair).
		Int("evaluated_total", evaluatedTotal).
		Float64("hit_rate", hitRate).
		Float64("mae", bestScore.MAE).
		Msg("expected range champion selected")
	return champ, nil
}

// Load returns the persisted champion for inference-time use.
func (s *RangeSelector) Load() models.RangeChampion {
	champ, ok := s.load()
	if !ok {
		return models.RangeChampion{
			Status: models.ChampionStatusNoChampion,
			Note:   "champion not selected yet",
		}
	}
	champ.Status = models.ChampionStatusActive
	return champ
}

// pickBestPair scores each candidate pair as hit_rate×100 − MAE with
// tie-breaks: higher score, then higher hit rate, then lower MAE. Pairs
// whose low or high model is not in the registry are not eligible.
func pickBestPair(scorecard map[string]ml.PairScore, available map[string]*ml.LinearModel) (string, ml.PairScore, bool) {
	var bestPair string
	var best ml.PairScore
	bestScore := 0.0
	found := false

	for pair, stats := range scorecard {
		if available[pair+"_low"] == nil || available[pair+"_high"] == nil {
			continue
		}
		score := stats.HitRate*100 - stats.MAE
		better := !found ||
			score > bestScore ||
			(score == bestScore && (stats.HitRate > best.HitRate ||
				(stats.HitRate == best.HitRate && stats.MAE < best.MAE)))
		if better {
			bestPair, best, bestScore, found = pair, stats, score, true
		}
	}
	return bestPair, best, found
}

// historicalHitRate scans all records with a resolvable range and close.
func historicalHitRate(records []models.PredictionRecord) (float64, int) {
	total, inside := 0, 0
	for _, r := range records {
		if r.ExpectedRange == nil || !r.ExpectedRange.Valid() || r.ActualClose == nil {
			continue
		}
		total++
		if r.ExpectedRange.Low <= *r.ActualClose && *r.ActualClose <= r.ExpectedRange.High {
			inside++
		}
	}
	if total == 0 {
		return 0, 0
	}
	return float64(inside) / float64(total), total
}

func (s *RangeSelector) load() (models.RangeChampion, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return models.RangeChampion{}, false
	}
	var champ models.RangeChampion
	if err := json.Unmarshal(data, &champ); err != nil {
		return models.RangeChampion{}, false
	}
	if champ.ChampionLow == "" || champ.ChampionHigh == "" {
		return models.RangeChampion{}, false
	}
	return champ, true
}

func (s *RangeSelector) save(champ models.RangeChampion) error {
	persisted := champ
	persisted.Status = "" // status is derived per call, not stored

	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return &models.PersistenceError{Op: "encode range champion", Err: err}
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.PersistenceError{Op: "save range champion", Err: err}
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &models.PersistenceError{Op: "save range champion", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &models.PersistenceError{Op: "save range champion", Err: err}
	}
	return nil
}
