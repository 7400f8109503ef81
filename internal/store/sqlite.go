package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"powerview/internal/domain"
	"powerview/internal/util"
)

// Compile-time interface check.
var _ StateStore = (*SQLiteStateStore)(nil)

// checkpointWriteAttempts bounds SetCheckpoint attempts on transient failures
// such as lock contention. Attempts are not delayed.
const checkpointWriteAttempts = 3

const createIngestionState = `
CREATE TABLE IF NOT EXISTS ingestion_state (
	metering_point_id   TEXT PRIMARY KEY,
	last_ingestion_date TEXT
)`

// SQLiteStateStore implements StateStore backed by a SQLite database with a
// single ingestion_state table.
type SQLiteStateStore struct {
	db *sql.DB
}

// NewSQLiteStateStore opens (or creates) a SQLite database at dbPath and
// ensures the ingestion_state table exists.
func NewSQLiteStateStore(dbPath string) (*SQLiteStateStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating state dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createIngestionState); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing ingestion_state: %w", err)
	}
	return &SQLiteStateStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStateStore) Close() error {
	return s.db.Close()
}

// GetCheckpoint returns the last ingestion date for a metering point, or nil
// if it has never been ingested.
func (s *SQLiteStateStore) GetCheckpoint(ctx context.Context, meteringPointID string) (*time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT last_ingestion_date FROM ingestion_state WHERE metering_point_id = ?`,
		meteringPointID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying checkpoint for %s: %w", meteringPointID, err)
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}

	d, err := util.ParseDate(raw.String)
	if err != nil {
		return nil, fmt.Errorf("checkpoint for %s: %w", meteringPointID, err)
	}
	return &d, nil
}

// SetCheckpoint upserts the last ingestion date for a metering point. The
// write is retried up to three times before the last error is returned.
func (s *SQLiteStateStore) SetCheckpoint(ctx context.Context, meteringPointID string, date time.Time) error {
	err := util.Retry(ctx, checkpointWriteAttempts, 0, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO ingestion_state (metering_point_id, last_ingestion_date)
			VALUES (?, ?)
			ON CONFLICT(metering_point_id) DO
			UPDATE SET last_ingestion_date = excluded.last_ingestion_date`,
			meteringPointID, util.FormatDate(date),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("updating checkpoint for %s after %d attempts: %w", meteringPointID, checkpointWriteAttempts, err)
	}
	return nil
}

// Checkpoints returns every stored checkpoint ordered by metering point ID.
func (s *SQLiteStateStore) Checkpoints(ctx context.Context) ([]domain.Checkpoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT metering_point_id, last_ingestion_date FROM ingestion_state ORDER BY metering_point_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Checkpoint
	for rows.Next() {
		var (
			id  string
			raw sql.NullString
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		cp := domain.Checkpoint{MeteringPointID: id}
		if raw.Valid && raw.String != "" {
			d, err := util.ParseDate(raw.String)
			if err != nil {
				return nil, fmt.Errorf("checkpoint for %s: %w", id, err)
			}
			cp.LastIngestionDate = &d
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}
