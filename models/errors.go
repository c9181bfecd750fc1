package models

import (
	"fmt"
)

// DataError reports missing or unusable upstream price/signal data. Live
// inference treats it as a trigger for the rule-only fallback.
type DataError struct {
	Symbol string
	Msg    string
}

func (e *DataError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("data error for %s: %s", e.Symbol, e.Msg)
	}
	return "data error: " + e.Msg
}

// ValidationError reports a malformed persisted record. Batch stages skip
// and count these, they are never fatal.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid record field %q: %s", e.Field, e.Msg)
}

// PersistenceError wraps a failed write to the record store, the model
// registry or a champion file. The owning stage is marked failed but results
// persisted by earlier stages stand.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
