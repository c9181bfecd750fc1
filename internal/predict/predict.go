// Package predict serves live analysis requests: rule-based range, champion
// model prediction with safe fallback, bias adjustment, directional
// probabilities and the confidence verdict. It is read-only against the
// persisted champions and models and never triggers retraining.
package predict

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/seestox/predictor/internal/bias"
	"github.com/seestox/predictor/internal/champion"
	"github.com/seestox/predictor/internal/events"
	"github.com/seestox/predictor/internal/features"
	"github.com/seestox/predictor/internal/metrics"
	"github.com/seestox/predictor/internal/ml"
	"github.com/seestox/predictor/internal/rangecalc"
	"github.com/seestox/predictor/models"
)

// Range prediction reasons.
const (
	ReasonChampionModel  = "CHAMPION_MODEL"
	ReasonNoChampion     = "NO_CHAMPION"
	ReasonChampionFailed = "CHAMPION_FAILED"
)

// Confidence describes the reliability verdict attached to a prediction.
type Confidence struct {
	MLUsed  bool    `json:"ml_used"`
	Verdict string  `json:"verdict"`
	Score   float64 `json:"confidence_score"`
	Reason  string  `json:"reason,omitempty"`
}

// Result is the full outcome of one analysis request.
type Result struct {
	RecordID      string                 `json:"record_id"`
	Symbol        string                 `json:"symbol"`
	ExpectedRange models.ExpectedRange   `json:"expected_range"`
	Probabilities models.Probabilities   `json:"probabilities"`
	Confidence    Confidence             `json:"confidence"`
	Context       models.ContextSnapshot `json:"context"`
}

// Service composes the live prediction path.
type Service struct {
	store      models.RecordStore
	prices     models.PriceHistory
	signals    models.SignalSource
	registry   *ml.Registry
	rangeSel   *champion.RangeSelector
	confidence *champion.ConfidenceSelector
	publisher  *events.Publisher
	period     string
	now        func() time.Time
	logger     zerolog.Logger
}

// New wires the prediction service.
func New(
	store models.RecordStore,
	prices models.PriceHistory,
	signals models.SignalSource,
	registry *ml.Registry,
	rangeSel *champion.RangeSelector,
	confidence *champion.ConfidenceSelector,
	publisher *events.Publisher,
	period string,
) *Service {
	return &Service{
		store:      store,
		prices:     prices,
		signals:    signals,
		registry:   registry,
		rangeSel:   rangeSel,
		confidence: confidence,
		publisher:  publisher,
		period:     period,
		now:        time.Now,
		logger:     log.With().Str("component", "predictor").Logger(),
	}
}

// Analyze produces and records one prediction for a symbol. The only error
// it can return is a DataError for missing price history; every internal
// failure past that point degrades to the rule-only range and a
// conservative confidence verdict.
func (s *Service) Analyze(ctx context.Context, symbol, mode string) (*Result, error) {
	candles, err := s.prices.GetPriceHistory(ctx, symbol, s.period)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, &models.DataError{Symbol: symbol, Msg: "empty price history"}
	}
	currentPrice := candles[len(candles)-1].Close

	base, err := rangecalc.Calculate(candles, currentPrice)
	if err != nil {
		return nil, err
	}

	signalCtx, err := s.signals.GetSignalContext(ctx, symbol)
	if err != nil {
		s.logger.Warn().Err(err).Str("symbol", symbol).Msg("signal context unavailable, using neutral labels")
		signalCtx = models.SignalContext{
			Trend:     models.TrendSideways,
			Sentiment: models.SentimentNeutral,
			Risk:      models.RiskMedium,
		}
	}

	snapshot := models.ContextSnapshot{
		Price:            currentPrice,
		ATR:              base.ATR,
		Trend:            signalCtx.Trend,
		Sentiment:        signalCtx.Sentiment,
		Risk:             signalCtx.Risk,
		VolatilityRegime: base.VolatilityRegime,
	}

	baseRange := models.ExpectedRange{Low: base.Low, High: base.High}
	finalRange, mlApplied, mlReason := s.predictRange(symbol, snapshot, baseRange)
	snapshot.MLApplied = mlApplied
	snapshot.MLReason = mlReason

	result := &Result{
		RecordID:      uuid.NewString(),
		Symbol:        symbol,
		ExpectedRange: finalRange,
		Probabilities: probabilities(candles),
		Confidence:    s.predictConfidence(symbol),
		Context:       snapshot,
	}

	s.persist(result, mode)
	s.publisher.Publish(ctx, events.TypePredictionCreated, symbol, result)
	metrics.Predictions.WithLabelValues(mode).Inc()
	return result, nil
}

// predictRange applies the learned bias to the rule range first, then lets
// the champion models refine the adjusted band. Training rows encode the
// stored final range, so inference must feed the champion the same
// bias-adjusted width; any champion failure falls back to the adjusted band.
func (s *Service) predictRange(symbol string, snapshot models.ContextSnapshot, base models.ExpectedRange) (models.ExpectedRange, bool, string) {
	stats := s.errorStats(symbol)
	adjusted := bias.Adjust(base, bias.Learn(stats, symbol))

	champRange, ok, reason := s.championRange(snapshot, adjusted.Range)
	if ok {
		return champRange, true, reason
	}
	if adjusted.MLApplied {
		return adjusted.Range, true, adjusted.Reason
	}
	// Champion unavailable and no bias applied: keep the champion-side
	// reason so the audit trail says why ML was skipped.
	return adjusted.Range, false, reason
}

func (s *Service) championRange(snapshot models.ContextSnapshot, base models.ExpectedRange) (models.ExpectedRange, bool, string) {
	champ := s.rangeSel.Load()
	if champ.Status != models.ChampionStatusActive {
		return base, false, ReasonNoChampion
	}

	if meta := s.registry.Meta(); meta.EncodingVersion != 0 && meta.EncodingVersion != features.EncodingVersion {
		s.logger.Warn().
			Int("model_encoding", meta.EncodingVersion).
			Int("current_encoding", features.EncodingVersion).
			Msg("champion models trained under a different feature encoding")
		return base, false, ReasonChampionFailed
	}

	lowModel := s.registry.Get(champ.ChampionLow)
	highModel := s.registry.Get(champ.ChampionHigh)
	if lowModel == nil || highModel == nil {
		return base, false, ReasonChampionFailed
	}

	x := features.Encode(snapshot, base.Width())
	lowErr, err1 := lowModel.Predict(x)
	highErr, err2 := highModel.Predict(x)
	if err1 != nil || err2 != nil {
		return base, false, ReasonChampionFailed
	}

	predicted := models.ExpectedRange{Low: base.Low + lowErr, High: base.High + highErr}
	if !predicted.Valid() {
		return base, false, ReasonChampionFailed
	}
	return predicted, true, ReasonChampionModel
}

// predictConfidence maps the active champion's score to a verdict. It never
// fails: with no active champion it returns UNRELIABLE with the stored
// rejection note, and any store error degrades to the rule-based fallback.
func (s *Service) predictConfidence(symbol string) Confidence {
	champ := s.confidence.Load(symbol)
	if champ.Status != models.ChampionStatusActive {
		records, err := s.store.All()
		if err == nil {
			if fallback, ok := ruleConfidence(symbol, records); ok {
				fallback.Reason = champ.Note
				return fallback
			}
		}
		return Confidence{
			Verdict: models.VerdictUnreliable,
			Reason:  champ.Note,
		}
	}

	return Confidence{
		MLUsed:  true,
		Verdict: champion.VerdictForScore(champ.Score),
		Score:   champ.Score,
	}
}

func (s *Service) errorStats(symbol string) map[string]models.SymbolErrorStats {
	records, err := s.store.All()
	if err != nil {
		s.logger.Warn().Err(err).Msg("history unavailable for bias stats")
		return nil
	}
	return bias.Aggregate(records, symbol)
}

func (s *Service) persist(result *Result, mode string) {
	expected := result.ExpectedRange
	record := models.PredictionRecord{
		ID:            result.RecordID,
		Symbol:        result.Symbol,
		Date:          s.now().Format("2006-01-02"),
		Mode:          mode,
		ExpectedRange: &expected,
		Probabilities: result.Probabilities,
		Context:       &result.Context,
		CreatedOn:     s.now().Format(time.RFC3339),
	}
	if err := s.store.Append(record); err != nil {
		s.logger.Error().Err(err).Str("id", record.ID).Msg("prediction record write failed")
	}
}

// probabilities derives directional odds from recent momentum.
func probabilities(candles []models.Candle) models.Probabilities {
	if len(candles) < 6 {
		return models.Probabilities{Up: 33, Down: 33, Sideways: 34}
	}

	var sum float64
	count := 0
	for i := len(candles) - 5; i < len(candles); i++ {
		prev := candles[i-1].Close
		if prev == 0 {
			continue
		}
		sum += (candles[i].Close - prev) / prev
		count++
	}
	if count == 0 {
		return models.Probabilities{Up: 33, Down: 33, Sideways: 34}
	}
	momentum := sum / float64(count)

	switch {
	case momentum > 0.002:
		return models.Probabilities{Up: 45, Down: 25, Sideways: 30}
	case momentum < -0.002:
		return models.Probabilities{Up: 25, Down: 45, Sideways: 30}
	default:
		return models.Probabilities{Up: 33, Down: 33, Sideways: 34}
	}
}

// ruleConfidence is the sample-size-weighted fallback computed from raw
// success/failure counts when no ML champion is active.
func ruleConfidence(symbol string, records []models.PredictionRecord) (Confidence, bool) {
	success, failure, neutral := 0, 0, 0
	for _, r := range records {
		if r.Symbol != symbol || !r.Evaluated {
			continue
		}
		switch r.Result {
		case models.ResultInsideRange:
			success++
		case models.ResultAboveRange, models.ResultBelowRange:
			failure++
		default:
			neutral++
		}
	}

	total := success + failure + neutral
	if total == 0 {
		return Confidence{}, false
	}

	successRate := float64(success) / float64(total) * 100

	var weight float64
	switch {
	case total < 10:
		weight = 0.5
	case total < 25:
		weight = 0.65
	case total < 50:
		weight = 0.8
	case total < 100:
		weight = 0.9
	default:
		weight = 1.0
	}

	score := successRate * weight
	if score < 10 {
		score = 10
	}
	if score > 90 {
		score = 90
	}

	return Confidence{
		Verdict: champion.VerdictForScore(score),
		Score:   score,
	}, true
}
