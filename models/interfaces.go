package models

import (
	"context"
	"time"
)

// PriceHistory is the collaborator contract for historical OHLC data.
// GetActualClose returns the first close strictly after the given date; the
// bool is false when that session has not happened yet (not an error).
type PriceHistory interface {
	GetPriceHistory(ctx context.Context, symbol, period string) ([]Candle, error)
	GetActualClose(ctx context.Context, symbol string, after time.Time) (float64, bool, error)
}

// SignalSource is the collaborator contract for trend/sentiment/risk labels.
type SignalSource interface {
	GetSignalContext(ctx context.Context, symbol string) (SignalContext, error)
}

// RecordStore is the durable prediction record log. Append and MarkEvaluated
// may interleave; MarkEvaluated is idempotent and the store is the sole
// writer of evaluation fields.
type RecordStore interface {
	Append(record PredictionRecord) error
	All() ([]PredictionRecord, error)
	Pending() ([]PredictionRecord, error)
	MarkEvaluated(id string, eval Evaluation) error
}
