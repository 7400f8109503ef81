// Package reporting builds the analytics layer: the partitioned readings are
// loaded into a SQLite database and a fixed graph of reporting_* views is
// created over them, together with the metering point metadata table.
package reporting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"powerview/internal/domain"
	"powerview/internal/store"
)

// ErrNoPartitions is returned when the data root is missing or holds no
// reading partitions.
var ErrNoPartitions = fmt.Errorf("no reading partitions: %w", fs.ErrNotExist)

const sqliteTimeLayout = "2006-01-02 15:04:05"

// Options configure a Build.
type Options struct {
	DataRoot      string
	AnalyticsPath string
	Metadata      []domain.MeterMetadata
	Logger        *slog.Logger
}

// Build refreshes the reporting layer in the analytics database and returns
// its absolute path. The whole refresh runs in one transaction, so readers
// see either the previous layer or the new one.
func Build(ctx context.Context, opts Options) (string, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "reporting")

	root, err := filepath.Abs(opts.DataRoot)
	if err != nil {
		return "", fmt.Errorf("resolving data path: %w", err)
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("data path %s does not exist: %w", root, ErrNoPartitions)
		}
		return "", fmt.Errorf("checking data path: %w", err)
	}

	files, err := store.NewParquetStore(root).ReadingFiles()
	if err != nil {
		return "", fmt.Errorf("listing partitions: %w", err)
	}
	if len(files) == 0 {
		return "", fmt.Errorf("no Parquet files under %s, run the extraction first: %w", root, ErrNoPartitions)
	}
	log.Info("found partitions for reporting", "count", len(files))

	analytics, err := filepath.Abs(opts.AnalyticsPath)
	if err != nil {
		return "", fmt.Errorf("resolving analytics path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(analytics), 0o755); err != nil {
		return "", fmt.Errorf("creating analytics dir: %w", err)
	}

	db, err := sql.Open("sqlite", analytics)
	if err != nil {
		return "", err
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if err := dropAll(ctx, tx); err != nil {
		return "", err
	}

	rows, err := loadReadings(ctx, tx, files)
	if err != nil {
		return "", err
	}
	log.Info("loaded readings", "rows", rows)

	for _, v := range readingViews {
		if err := createView(ctx, tx, v); err != nil {
			return "", err
		}
		log.Info("created view", "view", v.name)
	}

	if err := loadMetadata(ctx, tx, opts.Metadata); err != nil {
		return "", err
	}
	log.Info("loaded metering point metadata", "count", len(opts.Metadata))

	if err := createView(ctx, tx, enrichedView); err != nil {
		return "", err
	}
	log.Info("created view", "view", enrichedView.name)

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing reporting layer: %w", err)
	}
	log.Info("reporting layer refreshed", "path", analytics)
	return analytics, nil
}

// dropAll removes every reporting object, dependents first.
func dropAll(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{"DROP VIEW IF EXISTS " + enrichedView.name}
	for i := len(readingViews) - 1; i >= 0; i-- {
		stmts = append(stmts, "DROP VIEW IF EXISTS "+readingViews[i].name)
	}
	stmts = append(stmts,
		"DROP TABLE IF EXISTS reporting_meter_metadata",
		"DROP TABLE IF EXISTS reporting_raw_readings",
	)
	for _, s := range stmts {
		if _, err := tx.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("%s: %w", s, err)
		}
	}
	return nil
}

func createView(ctx context.Context, tx *sql.Tx, v view) error {
	if _, err := tx.ExecContext(ctx, "DROP VIEW IF EXISTS "+v.name); err != nil {
		return fmt.Errorf("dropping %s: %w", v.name, err)
	}
	if _, err := tx.ExecContext(ctx, v.sql); err != nil {
		return fmt.Errorf("creating %s: %w", v.name, err)
	}
	return nil
}

// loadReadings copies every partition file into reporting_raw_readings.
func loadReadings(ctx context.Context, tx *sql.Tx, files []string) (int, error) {
	if _, err := tx.ExecContext(ctx, createRawReadings); err != nil {
		return 0, fmt.Errorf("creating reporting_raw_readings: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO reporting_raw_readings
			(metering_point_id, timestamp, consumption_value, quality, unit, ingestion_timestamp, ingestion_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	total := 0
	for _, f := range files {
		readings, err := store.ReadReadingsFile(f)
		if err != nil {
			return 0, fmt.Errorf("reading partition %s: %w", f, err)
		}
		for _, r := range readings {
			if _, err := stmt.ExecContext(ctx,
				r.MeteringPointID,
				r.Timestamp.UTC().Format(sqliteTimeLayout),
				r.Value,
				r.Quality,
				r.Unit,
				r.IngestedAt.UTC().Format(time.RFC3339),
				r.IngestionDate.UTC().Format(domain.DateLayout),
			); err != nil {
				return 0, fmt.Errorf("loading %s: %w", f, err)
			}
		}
		total += len(readings)
	}
	return total, nil
}

// loadMetadata replaces reporting_meter_metadata. Empty optional attributes
// are stored as NULL and extra attributes as a JSON object.
func loadMetadata(ctx context.Context, tx *sql.Tx, metadata []domain.MeterMetadata) error {
	if _, err := tx.ExecContext(ctx, createMetadataTable); err != nil {
		return fmt.Errorf("creating reporting_meter_metadata: %w", err)
	}

	for _, m := range metadata {
		name := m.Name
		if name == "" {
			name = m.MeteringPointID
		}
		var extra sql.NullString
		if len(m.Extra) > 0 {
			b, err := json.Marshal(m.Extra)
			if err != nil {
				return fmt.Errorf("encoding extra metadata for %s: %w", m.MeteringPointID, err)
			}
			extra = sql.NullString{String: string(b), Valid: true}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO reporting_meter_metadata
				(metering_point_id, name, type, location, description, extra_metadata)
			VALUES (?, ?, ?, ?, ?, ?)`,
			m.MeteringPointID, name, nullable(m.Type), nullable(m.Location), nullable(m.Description), extra,
		); err != nil {
			return fmt.Errorf("inserting metadata for %s: %w", m.MeteringPointID, err)
		}
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
