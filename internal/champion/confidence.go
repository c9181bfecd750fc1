package champion

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/models"
)

// Confidence selection thresholds.
const (
	minTotalSamples    = 30
	minDefiniteSamples = 20
	minChampionScore   = 55

	// Kill switch: failure fraction in the most recent window that forces
	// the champion off regardless of aggregate score.
	killSwitchWindow   = 5
	killSwitchFraction = 0.60

	// A locked confidence champion only yields to a challenger scoring at
	// least 110% of its own score.
	confidenceImprovementRatio = 1.1
)

// Verdict score bands.
const (
	reliableScore = 75
	moderateScore = 65
	weakScore     = 55
)

// ConfidenceSelector owns the per-symbol confidence champion records.
type ConfidenceSelector struct {
	dir    string
	now    func() time.Time
	logger zerolog.Logger
}

// NewConfidenceSelector creates a selector persisting one champion file per
// symbol under dir.
func NewConfidenceSelector(dir string) *ConfidenceSelector {
	return &ConfidenceSelector{
		dir:    dir,
		now:    time.Now,
		logger: log.With().Str("component", "confidence_champion").Logger(),
	}
}

// Select runs one champion/challenger round for a symbol over its evaluated
// records (chronological). Recent failures can veto accumulated history.
func (s *ConfidenceSelector) Select(symbol string, records []models.PredictionRecord) (models.ConfidenceChampion, error) {
	evaluated := filterEvaluated(symbol, records)
	now := s.now()

	existing, hasExisting := s.load(symbol)
	locked := hasExisting && now.Before(existing.LockUntil)

	if locked && len(evaluated) < MinSamplesForChampion {
		s.logger.Info().Str("symbol", symbol).Int("samples", len(evaluated)).
			Msg("confidence champion lock active, kept existing")
		return existing, nil
	}

	if len(evaluated) < minTotalSamples {
		return models.ConfidenceChampion{
			Status: models.ChampionStatusNoData,
			Symbol: symbol,
			Note:   "insufficient data to select champion",
		}, nil
	}

	if recentFailureRate(evaluated, killSwitchWindow) > killSwitchFraction {
		return models.ConfidenceChampion{
			Status: models.ChampionStatusDisabled,
			Symbol: symbol,
			Note:   "high recent failure rate - champion disabled",
		}, nil
	}

	success, failure, neutral := classify(evaluated)
	if success+failure < minDefiniteSamples {
		return models.ConfidenceChampion{
			Status: models.ChampionStatusNoData,
			Symbol: symbol,
			Note:   "not enough definite evaluated samples",
		}, nil
	}

	total := float64(success + failure + neutral)
	successRate := float64(success) / total * 100
	failureRate := float64(failure) / total * 100
	neutralRate := float64(neutral) / total * 100
	score := Score(successRate, failureRate, neutralRate)

	if score < minChampionScore {
		return models.ConfidenceChampion{
			Status: models.ChampionStatusNoChampion,
			Symbol: symbol,
			Score:  score,
			Note:   "champion score below threshold",
		}, nil
	}

	if locked {
		improved := len(evaluated) >= MinSamplesForChampion &&
			score >= existing.Score*confidenceImprovementRatio
		if !improved {
			s.logger.Info().Str("symbol", symbol).Float64("score", score).
				Msg("confidence champion lock prevented switching")
			return existing, nil
		}
	}

	champ := models.ConfidenceChampion{
		Status:      models.ChampionStatusActive,
		Symbol:      symbol,
		Score:       score,
		SuccessRate: successRate,
		FailureRate: failureRate,
		NeutralRate: neutralRate,
		SelectedOn:  now,
		LockUntil:   now.Add(LockWindow),
	}
	if err := s.save(champ); err != nil {
		return champ, err
	}

	s.logger.Info().Str("symbol", symbol).
		Int("success", success).Int("failure", failure).Int("neutral", neutral).
		Float64("score", score).
		Msg("confidence champion selected")
	return champ, nil
}

// Load returns the stored champion for a symbol, or a NO_CHAMPION record.
func (s *ConfidenceSelector) Load(symbol string) models.ConfidenceChampion {
	champ, ok := s.load(symbol)
	if !ok {
		return models.ConfidenceChampion{
			Status: models.ChampionStatusNoChampion,
			Symbol: symbol,
			Note:   "champion not selected yet",
		}
	}
	return champ
}

// Score is the composite confidence formula over rates expressed 0-100.
func Score(successRate, failureRate, neutralRate float64) float64 {
	return successRate*0.7 + neutralRate*0.2 - failureRate*0.5
}

// VerdictForScore maps a champion score onto the confidence verdict.
func VerdictForScore(score float64) string {
	switch {
	case score >= reliableScore:
		return models.VerdictReliable
	case score >= moderateScore:
		return models.VerdictModerate
	case score >= weakScore:
		return models.VerdictWeak
	default:
		return models.VerdictUnreliable
	}
}

func filterEvaluated(symbol string, records []models.PredictionRecord) []models.PredictionRecord {
	var out []models.PredictionRecord
	for _, r := range records {
		if r.Symbol == symbol && r.Evaluated {
			out = append(out, r)
		}
	}
	return out
}

func isSuccessResult(result string) bool {
	return strings.EqualFold(strings.TrimSpace(result), models.ResultInsideRange)
}

func isFailureResult(result string) bool {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case models.ResultAboveRange, models.ResultBelowRange, "FAILURE":
		return true
	}
	return false
}

func classify(records []models.PredictionRecord) (success, failure, neutral int) {
	for _, r := range records {
		switch {
		case isSuccessResult(r.Result):
			success++
		case isFailureResult(r.Result):
			failure++
		default:
			neutral++
		}
	}
	return success, failure, neutral
}

func recentFailureRate(records []models.PredictionRecord, window int) float64 {
	if len(records) == 0 {
		return 0
	}
	recent := records
	if len(recent) > window {
		recent = recent[len(recent)-window:]
	}
	failures := 0
	for _, r := range recent {
		if isFailureResult(r.Result) {
			failures++
		}
	}
	return float64(failures) / float64(len(recent))
}

func (s *ConfidenceSelector) championPath(symbol string) string {
	safe := strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, symbol)
	return filepath.Join(s.dir, safe+".json")
}

func (s *ConfidenceSelector) load(symbol string) (models.ConfidenceChampion, bool) {
	data, err := os.ReadFile(s.championPath(symbol))
	if err != nil {
		return models.ConfidenceChampion{}, false
	}
	var champ models.ConfidenceChampion
	if err := json.Unmarshal(data, &champ); err != nil {
		return models.ConfidenceChampion{}, false
	}
	if champ.Status != models.ChampionStatusActive {
		return models.ConfidenceChampion{}, false
	}
	return champ, true
}

func (s *ConfidenceSelector) save(champ models.ConfidenceChampion) error {
	data, err := json.MarshalIndent(champ, "", "  ")
	if err != nil {
		return &models.PersistenceError{Op: "encode confidence champion", Err: err}
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return &models.PersistenceError{Op: "save confidence champion", Err: err}
	}
	path := s.championPath(champ.Symbol)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &models.PersistenceError{Op: "save confidence champion", Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		return &models.PersistenceError{Op: "save confidence champion", Err: err}
	}
	return nil
}
