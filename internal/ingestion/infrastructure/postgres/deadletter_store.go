package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	ingestion "farmgate/internal/ingestion/domain"
)

const defaultDeadLetterTable = "ingestion_errors"

// DBTX abstracts *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DeadLetterStore is the Postgres dead-letter journal. Records are
// append-only: inserted once, never updated or deleted by this service.
type DeadLetterStore struct {
	db    DBTX
	table string
}

// NewDeadLetterStore constructs a dead-letter store.
func NewDeadLetterStore(db DBTX, opts ...DeadLetterOption) *DeadLetterStore {
	store := &DeadLetterStore{db: db, table: defaultDeadLetterTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// DeadLetterOption configures the store.
type DeadLetterOption func(*DeadLetterStore)

// WithDeadLetterTable overrides the table name.
func WithDeadLetterTable(table string) DeadLetterOption {
	return func(store *DeadLetterStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Record inserts one dead-letter row.
func (s *DeadLetterStore) Record(ctx context.Context, rec ingestion.IngestionError) error {
	if s == nil || s.db == nil {
		return errors.New("dead letter store: nil db")
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}

	var deviceID *string
	if rec.DeviceID != "" {
		deviceID = &rec.DeviceID
	}
	var lat, lon *float64
	if rec.Geo != nil {
		lat, lon = &rec.Geo.Lat, &rec.Geo.Lon
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	event_id,
	device_id,
	reading_ts,
	lat,
	lon,
	raw_payload,
	error_type,
	error_code,
	error_message,
	ingested_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
)`, s.table)

	_, err := s.db.ExecContext(ctx, query,
		rec.EventID,
		deviceID,
		rec.Timestamp,
		lat,
		lon,
		[]byte(rec.RawPayload),
		string(rec.Type),
		string(rec.Code),
		rec.Message,
		rec.IngestedAt,
	)
	return err
}

// ListFilter narrows a dead-letter listing.
type ListFilter struct {
	Type     string
	DeviceID string
	Limit    int
}

// List loads dead-letter rows, newest first.
func (s *DeadLetterStore) List(ctx context.Context, filter ListFilter) ([]ingestion.IngestionError, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("dead letter store: nil db")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := fmt.Sprintf(`
SELECT event_id, device_id, reading_ts, lat, lon, raw_payload, error_type, error_code, error_message, ingested_at
FROM %s
WHERE ($1 = '' OR error_type = $1)
  AND ($2 = '' OR device_id = $2)
ORDER BY ingested_at DESC
LIMIT $3`, s.table)

	rows, err := s.db.QueryContext(ctx, query, filter.Type, filter.DeviceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ingestion.IngestionError
	for rows.Next() {
		var (
			rec      ingestion.IngestionError
			deviceID sql.NullString
			ts       sql.NullTime
			lat, lon sql.NullFloat64
			errType  string
			errCode  string
		)
		if err := rows.Scan(
			&rec.EventID,
			&deviceID,
			&ts,
			&lat,
			&lon,
			&rec.RawPayload,
			&errType,
			&errCode,
			&rec.Message,
			&rec.IngestedAt,
		); err != nil {
			return nil, err
		}
		if deviceID.Valid {
			rec.DeviceID = deviceID.String
		}
		if ts.Valid {
			utc := ts.Time.UTC()
			rec.Timestamp = &utc
		}
		if lat.Valid && lon.Valid {
			rec.Geo = &ingestion.GeoPoint{Lat: lat.Float64, Lon: lon.Float64}
		}
		rec.Type = ingestion.ErrorType(errType)
		rec.Code = ingestion.ErrorCode(errCode)
		rec.IngestedAt = rec.IngestedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}
