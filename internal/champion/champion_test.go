package champion

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/models"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// rangeRecords builds n evaluated records with the requested number of
// inside-range outcomes.
func rangeRecords(n, inside int) []models.PredictionRecord {
	records := make([]models.PredictionRecord, 0, n)
	for i := 0; i < n; i++ {
		close := 100.0
		if i >= inside {
			close = 120 // outside the band
		}
		c := close
		records = append(records, models.PredictionRecord{
			Symbol:        "TSLA",
			Evaluated:     true,
			ExpectedRange: &models.ExpectedRange{Low: 95, High: 105},
			ActualClose:   &c,
		})
	}
	return records
}

func dummyModels(pairs ...string) map[string]*ml.LinearModel {
	out := make(map[string]*ml.LinearModel)
	for _, pair := range pairs {
		out[pair+"_low"] = &ml.LinearModel{Weights: make([]float64, 7)}
		out[pair+"_high"] = &ml.LinearModel{Weights: make([]float64, 7)}
	}
	return out
}

func TestRangeSelectNoData(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))

	champ, err := s.Select(nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusNoData {
		t.Errorf("status = %s, want NO_DATA", champ.Status)
	}
}

func TestRangeSelectNoEligibleModels(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))

	scorecard := map[string]ml.PairScore{"linear": {HitRate: 0.8, MAE: 2}}
	// Registry holds a different pair: nothing eligible.
	champ, err := s.Select(scorecard, dummyModels("ridge"), rangeRecords(60, 48))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusNoModels {
		t.Errorf("status = %s, want NO_MODELS", champ.Status)
	}
}

func TestRangeSelectPicksBestPair(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))
	s.now = fixedClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	scorecard := map[string]ml.PairScore{
		"linear": {HitRate: 0.8, MAE: 2},   // score 78
		"ridge":  {HitRate: 0.8, MAE: 3.5}, // score 76.5
	}
	records := rangeRecords(60, 48)

	champ, err := s.Select(scorecard, dummyModels("linear", "ridge"), records)
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusSelected {
		t.Fatalf("status = %s, want CHAMPION_SELECTED", champ.Status)
	}
	if champ.ChampionLow != "linear_low" || champ.ChampionHigh != "linear_high" {
		t.Errorf("champion = %s/%s, want linear pair", champ.ChampionLow, champ.ChampionHigh)
	}
	// Persisted hit rate comes from full history, not the validation fold.
	if math.Abs(champ.HitRate-0.8) > 1e-9 {
		t.Errorf("hit rate = %v, want 0.8", champ.HitRate)
	}
	if !champ.LockUntil.Equal(champ.SelectedOn.Add(LockWindow)) {
		t.Errorf("lock until = %v, want selected + %v", champ.LockUntil, LockWindow)
	}

	if loaded := s.Load(); loaded.Status != models.ChampionStatusActive {
		t.Errorf("Load status = %s, want ACTIVE", loaded.Status)
	}
}

func TestRangeSelectLockKeepsChampion(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)

	records := rangeRecords(60, 48)
	first := map[string]ml.PairScore{"linear": {HitRate: 0.8, MAE: 2}}
	if _, err := s.Select(first, dummyModels("linear"), records); err != nil {
		t.Fatal(err)
	}

	// One day later a slightly better challenger appears: inside the lock
	// window it needs MAE at or below 90% of the incumbent's.
	s.now = fixedClock(start.Add(24 * time.Hour))
	challenger := map[string]ml.PairScore{"ridge": {HitRate: 0.85, MAE: 1.9}}
	champ, err := s.Select(challenger, dummyModels("ridge"), records)
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusLocked {
		t.Fatalf("status = %s, want CHAMPION_LOCKED", champ.Status)
	}
	if champ.ChampionLow != "linear_low" {
		t.Errorf("champion switched during lock to %s", champ.ChampionLow)
	}
}

func TestRangeSelectLockYieldsToStrongChallenger(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)

	records := rangeRecords(60, 48)
	first := map[string]ml.PairScore{"linear": {HitRate: 0.8, MAE: 2}}
	if _, err := s.Select(first, dummyModels("linear"), records); err != nil {
		t.Fatal(err)
	}

	s.now = fixedClock(start.Add(24 * time.Hour))
	challenger := map[string]ml.PairScore{"ridge": {HitRate: 0.85, MAE: 1.5}}
	champ, err := s.Select(challenger, dummyModels("ridge"), records)
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusSelected {
		t.Fatalf("status = %s, want CHAMPION_SELECTED", champ.Status)
	}
	if champ.ChampionLow != "ridge_low" {
		t.Errorf("champion = %s, want ridge_low", champ.ChampionLow)
	}
}

func TestRangeSelectSmallSampleKeepsExisting(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)

	if _, err := s.Select(map[string]ml.PairScore{"linear": {HitRate: 0.8, MAE: 2}},
		dummyModels("linear"), rangeRecords(60, 48)); err != nil {
		t.Fatal(err)
	}

	// Past the lock window but with history shrunk below the sample floor
	// the incumbent is still kept.
	s.now = fixedClock(start.Add(LockWindow + 24*time.Hour))
	champ, err := s.Select(map[string]ml.PairScore{"ridge": {HitRate: 0.9, MAE: 1}},
		dummyModels("ridge"), rangeRecords(MinSamplesForChampion-1, 30))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusLocked {
		t.Errorf("status = %s, want CHAMPION_LOCKED", champ.Status)
	}
	if champ.ChampionLow != "linear_low" {
		t.Errorf("champion switched on thin history to %s", champ.ChampionLow)
	}
}

func TestRangeLoadWithoutChampion(t *testing.T) {
	s := NewRangeSelector(filepath.Join(t.TempDir(), "champ.json"))
	if champ := s.Load(); champ.Status != models.ChampionStatusNoChampion {
		t.Errorf("status = %s, want NO_CHAMPION", champ.Status)
	}
}

// confidenceRecords builds evaluated records in order: successes, then
// neutrals, then failures (failures last so they land in the recent window
// when failTail is true).
func confidenceRecords(success, neutral, failure int, failTail bool) []models.PredictionRecord {
	var records []models.PredictionRecord
	add := func(result string, n int) {
		for i := 0; i < n; i++ {
			records = append(records, models.PredictionRecord{
				Symbol:    "TSLA",
				Evaluated: true,
				Result:    result,
			})
		}
	}
	if failTail {
		add(models.ResultInsideRange, success)
		add("", neutral)
		add(models.ResultAboveRange, failure)
	} else {
		add(models.ResultAboveRange, failure)
		add("", neutral)
		add(models.ResultInsideRange, success)
	}
	return records
}

func TestConfidenceSelectInsufficientData(t *testing.T) {
	s := NewConfidenceSelector(t.TempDir())
	champ, err := s.Select("TSLA", confidenceRecords(20, 5, 4, false))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusNoData {
		t.Errorf("status = %s, want NO_DATA", champ.Status)
	}
}

func TestConfidenceSelectKillSwitch(t *testing.T) {
	s := NewConfidenceSelector(t.TempDir())
	// 4 of the most recent 5 outcomes are failures: 0.8 > 0.6 kill line.
	champ, err := s.Select("TSLA", confidenceRecords(25, 1, 4, true))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusDisabled {
		t.Errorf("status = %s, want DISABLED", champ.Status)
	}
}

func TestConfidenceSelectBelowScoreThreshold(t *testing.T) {
	s := NewConfidenceSelector(t.TempDir())
	// 30/40 successes, 5 failures, 5 neutral:
	// score = 75*0.7 + 12.5*0.2 - 12.5*0.5 = 48.75 < 55.
	champ, err := s.Select("TSLA", confidenceRecords(30, 5, 5, false))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusNoChampion {
		t.Errorf("status = %s, want NO_CHAMPION", champ.Status)
	}
	if math.Abs(champ.Score-48.75) > 1e-9 {
		t.Errorf("score = %v, want 48.75", champ.Score)
	}
}

func TestConfidenceSelectActivates(t *testing.T) {
	dir := t.TempDir()
	s := NewConfidenceSelector(dir)
	s.now = fixedClock(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC))

	// 27/30 successes, 1 failure, 2 neutral:
	// score = 90*0.7 + 6.67*0.2 - 3.33*0.5 ≈ 62.7.
	champ, err := s.Select("TSLA", confidenceRecords(27, 2, 1, false))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusActive {
		t.Fatalf("status = %s, want ACTIVE", champ.Status)
	}
	if v := VerdictForScore(champ.Score); v != models.VerdictWeak {
		t.Errorf("verdict = %s, want WEAK for score %v", v, champ.Score)
	}

	loaded := s.Load("TSLA")
	if loaded.Status != models.ChampionStatusActive {
		t.Errorf("Load status = %s, want ACTIVE", loaded.Status)
	}
	if math.Abs(loaded.Score-champ.Score) > 1e-9 {
		t.Errorf("persisted score %v != selected %v", loaded.Score, champ.Score)
	}
}

func TestConfidenceLockPreventsChurn(t *testing.T) {
	s := NewConfidenceSelector(t.TempDir())
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)

	records := confidenceRecords(45, 3, 2, false) // 50 samples, score ≈62.2
	first, err := s.Select("TSLA", records)
	if err != nil {
		t.Fatal(err)
	}
	if first.Status != models.ChampionStatusActive {
		t.Fatal("setup select failed")
	}

	// Inside the lock with a score that is better but not 110% better the
	// incumbent must survive (score ≈63.2 < 62.2*1.1).
	s.now = fixedClock(start.Add(24 * time.Hour))
	second, err := s.Select("TSLA", confidenceRecords(46, 2, 2, false))
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(second.Score-first.Score) > 1e-9 {
		t.Errorf("locked champion replaced: score %v -> %v", first.Score, second.Score)
	}
	if !second.SelectedOn.Equal(first.SelectedOn) {
		t.Error("locked champion selection date changed")
	}
}

func TestConfidenceLockSmallSampleShortCircuit(t *testing.T) {
	s := NewConfidenceSelector(t.TempDir())
	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	s.now = fixedClock(start)

	if _, err := s.Select("TSLA", confidenceRecords(27, 2, 1, false)); err != nil {
		t.Fatal(err)
	}

	// Locked with fewer than 50 evaluated records: existing returned before
	// any recomputation, even a disqualifying kill-switch tail.
	s.now = fixedClock(start.Add(24 * time.Hour))
	champ, err := s.Select("TSLA", confidenceRecords(25, 1, 4, true))
	if err != nil {
		t.Fatal(err)
	}
	if champ.Status != models.ChampionStatusActive {
		t.Errorf("status = %s, want existing ACTIVE champion", champ.Status)
	}
}

func TestVerdictForScore(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{80, models.VerdictReliable},
		{75, models.VerdictReliable},
		{70, models.VerdictModerate},
		{60, models.VerdictWeak},
		{54.9, models.VerdictUnreliable},
		{0, models.VerdictUnreliable},
	}
	for _, tt := range tests {
		if got := VerdictForScore(tt.score); got != tt.want {
			t.Errorf("VerdictForScore(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestScoreFormula(t *testing.T) {
	if got := Score(100, 0, 0); got != 70 {
		t.Errorf("all-success score = %v, want 70", got)
	}
	if got := Score(0, 100, 0); got != -50 {
		t.Errorf("all-failure score = %v, want -50", got)
	}
	if got := Score(60, 20, 20); math.Abs(got-36) > 1e-9 {
		t.Errorf("mixed score = %v, want 36", got)
	}
}
