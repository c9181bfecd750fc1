package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seestox/predictor/internal/champion"
	"github.com/seestox/predictor/internal/evaluator"
	"github.com/seestox/predictor/internal/events"
	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/models"
)

type memoryStore struct {
	records []models.PredictionRecord
}

func (m *memoryStore) Append(record models.PredictionRecord) error {
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStore) All() ([]models.PredictionRecord, error) {
	return m.records, nil
}

func (m *memoryStore) Pending() ([]models.PredictionRecord, error) {
	var pending []models.PredictionRecord
	for _, r := range m.records {
		if r.Evaluated || r.ID == "" || r.Symbol == "" || r.ExpectedRange == nil || !r.ExpectedRange.Valid() {
			continue
		}
		pending = append(pending, r)
	}
	return pending, nil
}

func (m *memoryStore) MarkEvaluated(id string, eval models.Evaluation) error {
	for i := range m.records {
		if m.records[i].ID != id {
			continue
		}
		actual := eval.ActualClose
		rangeErr := eval.RangeError
		m.records[i].ActualClose = &actual
		m.records[i].RangeError = &rangeErr
		m.records[i].Result = eval.Result
		m.records[i].Evaluated = true
		m.records[i].EvaluatedOn = eval.EvaluatedOn
		return nil
	}
	return errors.New("record not found")
}

type stubPrices struct {
	close float64
}

func (s *stubPrices) GetPriceHistory(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	return nil, errors.New("not used")
}

func (s *stubPrices) GetActualClose(ctx context.Context, symbol string, after time.Time) (float64, bool, error) {
	return s.close, true, nil
}

// historyStore seeds a store with enough evaluated variety to train on.
func historyStore(n int) *memoryStore {
	store := &memoryStore{}
	for i := 0; i < n; i++ {
		low := 95 + float64(i%7)*0.5
		high := 105 + float64(i%5)*0.7
		actual := 100 + float64(i%9) - 2
		result := models.ResultInsideRange
		if actual > high {
			result = models.ResultAboveRange
		} else if actual < low {
			result = models.ResultBelowRange
		}
		a := actual
		e := 0.0
		store.records = append(store.records, models.PredictionRecord{
			ID:            fmt.Sprintf("hist-%d", i),
			Symbol:        "TSLA",
			Date:          "2026-07-01",
			Evaluated:     true,
			Result:        result,
			ExpectedRange: &models.ExpectedRange{Low: low, High: high},
			ActualClose:   &a,
			RangeError:    &e,
			Context: &models.ContextSnapshot{
				Price:            100 + float64(i%11),
				ATR:              2 + float64(i%4)*0.3,
				Trend:            models.TrendUp,
				Sentiment:        models.SentimentNeutral,
				Risk:             models.RiskMedium,
				VolatilityRegime: models.VolatilityNormal,
			},
		})
	}
	return store
}

func newTestCycle(t *testing.T, store *memoryStore, prices *stubPrices) (*Cycle, string) {
	t.Helper()
	dir := t.TempDir()
	cycle := New(
		store,
		evaluator.New(store, prices),
		ml.NewRegistry(filepath.Join(dir, "models")),
		champion.NewRangeSelector(filepath.Join(dir, "range_champion.json")),
		champion.NewConfidenceSelector(filepath.Join(dir, "confidence")),
		events.NewPublisher("", "unused"),
		filepath.Join(dir, "models"),
		filepath.Join(dir, "cycle_reports.jsonl"),
		nil,
	)
	return cycle, dir
}

func stageByName(t *testing.T, report Report, name string) StageResult {
	t.Helper()
	for _, s := range report.Stages {
		if s.Stage == name {
			return s
		}
	}
	t.Fatalf("stage %s missing from report: %+v", name, report.Stages)
	return StageResult{}
}

func TestCycleWithEmptyHistory(t *testing.T) {
	cycle, _ := newTestCycle(t, &memoryStore{}, &stubPrices{close: 100})
	report := cycle.Run(context.Background())

	if report.Status != "OK" {
		t.Fatalf("status = %s, empty history is a normal outcome", report.Status)
	}
	if s := stageByName(t, report, StageDataset); s.Status != StageSkipped {
		t.Errorf("dataset stage = %s, want SKIPPED", s.Status)
	}
	if s := stageByName(t, report, StageTrain); s.Status != StageSkipped {
		t.Errorf("train stage = %s, want SKIPPED", s.Status)
	}
}

func TestCycleFullPass(t *testing.T) {
	store := historyStore(60)
	// One still-pending prediction gets resolved by this cycle.
	store.records = append(store.records, models.PredictionRecord{
		ID:            "pending-1",
		Symbol:        "TSLA",
		Date:          "2026-08-20",
		ExpectedRange: &models.ExpectedRange{Low: 95, High: 105},
	})

	cycle, dir := newTestCycle(t, store, &stubPrices{close: 101})
	report := cycle.Run(context.Background())

	if report.Status != "OK" {
		t.Fatalf("status = %s, report %+v", report.Status, report)
	}
	if s := stageByName(t, report, StageEvaluate); s.Status != StageOK {
		t.Errorf("evaluate stage = %s", s.Status)
	}
	if s := stageByName(t, report, StageTrain); s.Status != StageOK {
		t.Errorf("train stage = %s, detail %+v", s.Status, s.Detail)
	}

	// Models persisted for the next process.
	if _, err := os.Stat(filepath.Join(dir, "models", "meta.json")); err != nil {
		t.Errorf("model meta not persisted: %v", err)
	}

	// The pending record is now evaluated.
	pending, _ := store.Pending()
	if len(pending) != 0 {
		t.Errorf("pending after cycle = %d, want 0", len(pending))
	}

	// Report appended as one JSON line.
	data, err := os.ReadFile(filepath.Join(dir, "cycle_reports.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1; lines != 1 {
		t.Errorf("report lines = %d, want 1", lines)
	}
}

func TestCycleReportAccumulates(t *testing.T) {
	cycle, dir := newTestCycle(t, historyStore(60), &stubPrices{close: 101})

	cycle.Run(context.Background())
	cycle.Run(context.Background())

	data, err := os.ReadFile(filepath.Join(dir, "cycle_reports.jsonl"))
	if err != nil {
		t.Fatal(err)
	}
	if lines := strings.Count(strings.TrimSpace(string(data)), "\n") + 1; lines != 2 {
		t.Errorf("report lines = %d, want 2", lines)
	}
}

func TestCycleConfidenceSelectionRuns(t *testing.T) {
	cycle, _ := newTestCycle(t, historyStore(60), &stubPrices{close: 101})
	report := cycle.Run(context.Background())

	stage := stageByName(t, report, StageConfidenceChampion)
	if stage.Status == StageFailed {
		t.Fatalf("confidence stage failed: %+v", stage.Detail)
	}
	if _, ok := stage.Detail["TSLA"]; !ok {
		t.Error("symbols from history must be selected without explicit configuration")
	}
}
