// Package store provides the durable prediction record log. The JSON store
// is the default backend and tolerates the historical file shapes (flat list
// or symbol-keyed map, several legacy field names for the same concept) by
// normalizing every record once at load time.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/models"
)

// JSONStore persists prediction records in a single JSON file. Access is
// batch-frequency, so a coarse RW mutex around read-modify-write is enough
// to keep evaluation writes single-writer.
type JSONStore struct {
	mu     sync.RWMutex
	path   string
	logger zerolog.Logger
}

// ResolveHistoryPath picks the history file among candidate locations:
// the first candidate that already contains at least one evaluated record
// wins, otherwise the first existing candidate, otherwise the first
// candidate (created on first write). This tolerates path/environment drift
// between deployments.
func ResolveHistoryPath(candidates []string) string {
	if len(candidates) == 0 {
		return "prediction_history.json"
	}

	firstExisting := ""
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err != nil {
			continue
		}
		if firstExisting == "" {
			firstExisting = c
		}
		if hasEvaluatedRecord(c) {
			return c
		}
	}
	if firstExisting != "" {
		return firstExisting
	}
	for _, c := range candidates {
		if c != "" {
			return c
		}
	}
	return "prediction_history.json"
}

func hasEvaluatedRecord(path string) bool {
	records, err := loadRawFile(path)
	if err != nil {
		return false
	}
	for _, r := range records {
		if r.Evaluated {
			return true
		}
	}
	return false
}

// DefaultCandidates returns the standard history locations: explicit
// override first, then the working directory, then the data directory.
func DefaultCandidates(override, dataDir string) []string {
	return []string{
		override,
		filepath.Join(".", "prediction_history.json"),
		filepath.Join(dataDir, "prediction_history.json"),
	}
}

// NewJSONStore opens (or prepares to create) the store at the resolved path.
func NewJSONStore(candidates ...string) *JSONStore {
	path := ResolveHistoryPath(candidates)
	return &JSONStore{
		path:   path,
		logger: log.With().Str("component", "record_store").Str("path", path).Logger(),
	}
}

// Path returns the resolved history file location.
func (s *JSONStore) Path() string { return s.path }

// Append adds a newly created prediction record.
func (s *JSONStore) Append(record models.PredictionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}
	records = append(records, record)
	return s.save(records)
}

// All returns every stored record, normalized to the canonical schema.
func (s *JSONStore) All() ([]models.PredictionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load()
}

// Pending returns unevaluated records eligible for outcome evaluation:
// valid id and symbol plus a fully populated expected range.
func (s *JSONStore) Pending() ([]models.PredictionRecord, error) {
	records, err := s.All()
	if err != nil {
		return nil, err
	}

	var pending []models.PredictionRecord
	for _, r := range records {
		if r.Evaluated || r.ID == "" || r.Symbol == "" {
			continue
		}
		if r.ExpectedRange == nil || !r.ExpectedRange.Valid() {
			continue
		}
		pending = append(pending, r)
	}
	return pending, nil
}

// MarkEvaluated writes the evaluation outcome for one record. Records are
// evaluated at most once: a second call for the same id is a no-op.
func (s *JSONStore) MarkEvaluated(id string, eval models.Evaluation) error {
	if id == "" {
		return &models.ValidationError{Field: "id", Msg: "empty record id"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	found := false
	for i := range records {
		if records[i].ID != id {
			continue
		}
		found = true
		if records[i].Evaluated {
			s.logger.Debug().Str("id", id).Msg("record already evaluated, skipping write")
			return nil
		}
		actual := eval.ActualClose
		rangeErr := eval.RangeError
		records[i].ActualClose = &actual
		records[i].RangeError = &rangeErr
		records[i].Result = eval.Result
		records[i].Evaluated = true
		records[i].EvaluatedOn = eval.EvaluatedOn
		break
	}
	if !found {
		return &models.ValidationError{Field: "id", Msg: "record not found: " + id}
	}
	return s.save(records)
}

func (s *JSONStore) load() ([]models.PredictionRecord, error) {
	records, err := loadRawFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, &models.PersistenceError{Op: "load history", Err: err}
	}
	return records, nil
}

func (s *JSONStore) save(records []models.PredictionRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return &models.PersistenceError{Op: "encode history", Err: err}
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &models.PersistenceError{Op: "save history", Err: err}
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return &models.PersistenceError{Op: "save history", Err: err}
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return &models.PersistenceError{Op: "save history", Err: err}
	}
	return nil
}

// ---- legacy schema migration ----

// rawRecord accepts both the canonical schema and the historical variants:
// range bounds under "prediction" (flat or nested), actual close under
// "close"/"actual", context fields flattened at the top level, a
// "timestamp" instead of "date".
type rawRecord struct {
	models.PredictionRecord

	Prediction *rawPrediction `json:"prediction,omitempty"`
	Close      *float64       `json:"close,omitempty"`
	Actual     *float64       `json:"actual,omitempty"`
	Timestamp  string         `json:"timestamp,omitempty"`

	FlatPrice      *float64 `json:"price,omitempty"`
	FlatATR        *float64 `json:"atr,omitempty"`
	FlatTrend      string   `json:"trend,omitempty"`
	FlatSentiment  string   `json:"sentiment,omitempty"`
	FlatRisk       string   `json:"risk,omitempty"`
	FlatVolatility string   `json:"volatility_regime,omitempty"`
}

type rawPrediction struct {
	Low           *float64              `json:"low,omitempty"`
	High          *float64              `json:"high,omitempty"`
	ExpectedRange *models.ExpectedRange `json:"expected_range,omitempty"`
}

func loadRawFile(path string) ([]models.PredictionRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Flat list is the canonical container.
	var list []rawRecord
	if err := json.Unmarshal(data, &list); err == nil {
		return normalizeAll(list, ""), nil
	}

	// Legacy container: symbol-keyed map of record lists.
	var keyed map[string][]rawRecord
	if err := json.Unmarshal(data, &keyed); err == nil {
		var out []models.PredictionRecord
		for symbol, records := range keyed {
			out = append(out, normalizeAll(records, symbol)...)
		}
		return out, nil
	}

	return nil, fmt.Errorf("unrecognized history format in %s", path)
}

func normalizeAll(raws []rawRecord, symbolKey string) []models.PredictionRecord {
	out := make([]models.PredictionRecord, 0, len(raws))
	for _, r := range raws {
		out = append(out, normalizeRecord(r, symbolKey))
	}
	return out
}

func normalizeRecord(raw rawRecord, symbolKey string) models.PredictionRecord {
	rec := raw.PredictionRecord

	if rec.Symbol == "" {
		rec.Symbol = symbolKey
	}
	if rec.Date == "" && len(raw.Timestamp) >= 10 {
		rec.Date = raw.Timestamp[:10]
	}

	if rec.ExpectedRange == nil && raw.Prediction != nil {
		switch {
		case raw.Prediction.Low != nil && raw.Prediction.High != nil:
			rec.ExpectedRange = &models.ExpectedRange{Low: *raw.Prediction.Low, High: *raw.Prediction.High}
		case raw.Prediction.ExpectedRange != nil:
			rec.ExpectedRange = raw.Prediction.ExpectedRange
		}
	}
	// A half-populated range is treated as fully null.
	if rec.ExpectedRange != nil && !rec.ExpectedRange.Valid() {
		rec.ExpectedRange = nil
	}

	if rec.ActualClose == nil {
		if raw.Close != nil {
			rec.ActualClose = raw.Close
		} else if raw.Actual != nil {
			rec.ActualClose = raw.Actual
		}
	}

	if rec.Context == nil && (raw.FlatPrice != nil || raw.FlatATR != nil || raw.FlatTrend != "") {
		ctx := &models.ContextSnapshot{
			Trend:            raw.FlatTrend,
			Sentiment:        raw.FlatSentiment,
			Risk:             raw.FlatRisk,
			VolatilityRegime: raw.FlatVolatility,
		}
		if raw.FlatPrice != nil {
			ctx.Price = *raw.FlatPrice
		}
		if raw.FlatATR != nil {
			ctx.ATR = *raw.FlatATR
		}
		rec.Context = ctx
	}

	rec.Result = NormalizeResult(rec.Result)
	return rec
}

// NormalizeResult maps legacy result tags onto the canonical enum. The
// directionless legacy "FAILURE" tag is preserved as-is: it still counts as
// failure-like for confidence scoring but carries no breakout direction.
func NormalizeResult(result string) string {
	switch strings.ToUpper(strings.TrimSpace(result)) {
	case models.ResultInsideRange, "SUCCESS":
		return models.ResultInsideRange
	case models.ResultAboveRange, "UPPER_BREAK":
		return models.ResultAboveRange
	case models.ResultBelowRange, "LOWER_BREAK":
		return models.ResultBelowRange
	default:
		return result
	}
}
