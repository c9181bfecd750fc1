package store

import (
	"database/sql"
	"encoding/json"
	"errors"

	_ "github.com/lib/pq"

	"github.com/seestox/predictor/models"
)

// PostgresStore is the durable record store backend for deployments that
// outgrow the JSON file. It implements the same RecordStore contract,
// including at-most-once evaluation writes.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and ensures the predictions table exists.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &models.PersistenceError{Op: "open postgres", Err: err}
	}
	if err := db.Ping(); err != nil {
		return nil, &models.PersistenceError{Op: "ping postgres", Err: err}
	}
	if err := createTables(db); err != nil {
		return nil, &models.PersistenceError{Op: "create tables", Err: err}
	}
	return &PostgresStore{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS prediction_records (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			date TEXT NOT NULL,
			mode TEXT NOT NULL,
			expected_low DOUBLE PRECISION,
			expected_high DOUBLE PRECISION,
			prob_up DOUBLE PRECISION,
			prob_down DOUBLE PRECISION,
			prob_sideways DOUBLE PRECISION,
			context JSONB,
			created_on TEXT NOT NULL,
			evaluated BOOLEAN NOT NULL DEFAULT FALSE,
			evaluated_on TEXT,
			result TEXT,
			actual_close DOUBLE PRECISION,
			range_error DOUBLE PRECISION
		)
	`)
	return err
}

// Append inserts a newly created record.
func (s *PostgresStore) Append(record models.PredictionRecord) error {
	var low, high sql.NullFloat64
	if record.ExpectedRange != nil {
		low = sql.NullFloat64{Float64: record.ExpectedRange.Low, Valid: true}
		high = sql.NullFloat64{Float64: record.ExpectedRange.High, Valid: true}
	}

	var contextJSON []byte
	if record.Context != nil {
		var err error
		contextJSON, err = json.Marshal(record.Context)
		if err != nil {
			return &models.PersistenceError{Op: "encode context", Err: err}
		}
	}

	_, err := s.db.Exec(`
		INSERT INTO prediction_records (
			id, symbol, date, mode, expected_low, expected_high,
			prob_up, prob_down, prob_sideways, context, created_on, evaluated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, FALSE)
	`,
		record.ID, record.Symbol, record.Date, record.Mode, low, high,
		record.Probabilities.Up, record.Probabilities.Down, record.Probabilities.Sideways,
		contextJSON, record.CreatedOn)
	if err != nil {
		return &models.PersistenceError{Op: "append record", Err: err}
	}
	return nil
}

// All returns every stored record.
func (s *PostgresStore) All() ([]models.PredictionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, symbol, date, mode, expected_low, expected_high,
			prob_up, prob_down, prob_sideways, context, created_on,
			evaluated, evaluated_on, result, actual_close, range_error
		FROM prediction_records
		ORDER BY created_on
	`)
	if err != nil {
		return nil, &models.PersistenceError{Op: "load records", Err: err}
	}
	defer rows.Close()

	var records []models.PredictionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &models.PersistenceError{Op: "scan record", Err: err}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Pending returns unevaluated records with a fully populated range.
func (s *PostgresStore) Pending() ([]models.PredictionRecord, error) {
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

// MarkEvaluated writes the evaluation outcome once; already-evaluated rows
// are never touched again (the WHERE clause enforces idempotency).
func (s *PostgresStore) MarkEvaluated(id string, eval models.Evaluation) error {
	if id == "" {
		return &models.ValidationError{Field: "id", Msg: "empty record id"}
	}

	res, err := s.db.Exec(`
		UPDATE prediction_records
		SET actual_close = $1, range_error = $2, result = $3,
			evaluated = TRUE, evaluated_on = $4
		WHERE id = $5 AND evaluated = FALSE
	`, eval.ActualClose, eval.RangeError, eval.Result, eval.EvaluatedOn, id)
	if err != nil {
		return &models.PersistenceError{Op: "mark evaluated", Err: err}
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		var exists bool
		if qErr := s.db.QueryRow(
			`SELECT TRUE FROM prediction_records WHERE id = $1`, id,
		).Scan(&exists); errors.Is(qErr, sql.ErrNoRows) {
			return &models.ValidationError{Field: "id", Msg: "record not found: " + id}
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func scanRecord(rows *sql.Rows) (models.PredictionRecord, error) {
	var rec models.PredictionRecord
	var low, high, actualClose, rangeError sql.NullFloat64
	var evaluatedOn, result sql.NullString
	var contextJSON []byte

	err := rows.Scan(
		&rec.ID, &rec.Symbol, &rec.Date, &rec.Mode, &low, &high,
		&rec.Probabilities.Up, &rec.Probabilities.Down, &rec.Probabilities.Sideways,
		&contextJSON, &rec.CreatedOn,
		&rec.Evaluated, &evaluatedOn, &result, &actualClose, &rangeError,
	)
	if err != nil {
		return rec, err
	}

	if low.Valid && high.Valid {
		rec.ExpectedRange = &models.ExpectedRange{Low: low.Float64, High: high.Float64}
	}
	if len(contextJSON) > 0 {
		var ctx models.ContextSnapshot
		if err := json.Unmarshal(contextJSON, &ctx); err == nil {
			rec.Context = &ctx
		}
	}
	if evaluatedOn.Valid {
		rec.EvaluatedOn = evaluatedOn.String
	}
	if result.Valid {
		rec.Result = NormalizeResult(result.String)
	}
	if actualClose.Valid {
		rec.ActualClose = &actualClose.Float64
	}
	if rangeError.Valid {
		rec.RangeError = &rangeError.Float64
	}
	return rec, nil
}
