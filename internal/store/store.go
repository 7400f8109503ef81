// Package store defines storage for powerview: partitioned Parquet files for
// hourly readings and spot prices, and a SQLite table holding per metering
// point ingestion checkpoints.
package store

import (
	"context"
	"time"

	"powerview/internal/domain"
)

// ReadingStore persists and retrieves hourly consumption readings.
type ReadingStore interface {
	// WriteReadings upserts readings into their metering point/date
	// partitions. Incoming rows replace stored rows with the same timestamp.
	WriteReadings(ctx context.Context, readings []domain.Reading) error

	// ReadPartition returns the readings stored for one metering point and
	// UTC date, sorted by timestamp.
	ReadPartition(ctx context.Context, meteringPointID string, date time.Time) ([]domain.Reading, error)

	// ReadingFiles lists every reading partition file, sorted.
	ReadingFiles() ([]string, error)
}

// PriceStore persists and retrieves hourly spot prices.
type PriceStore interface {
	// WritePrices upserts prices into their area/date partitions.
	WritePrices(ctx context.Context, prices []domain.SpotPrice) error

	// ReadPrices returns prices for the area within [start, end] (dates).
	ReadPrices(ctx context.Context, area string, start, end time.Time) ([]domain.SpotPrice, error)
}

// StateStore tracks the last ingested date per metering point.
type StateStore interface {
	// GetCheckpoint returns the last ingestion date, or nil when the
	// metering point was never ingested.
	GetCheckpoint(ctx context.Context, meteringPointID string) (*time.Time, error)

	// SetCheckpoint records date as the last ingestion date (upsert).
	SetCheckpoint(ctx context.Context, meteringPointID string, date time.Time) error

	// Checkpoints returns every stored checkpoint ordered by metering point.
	Checkpoints(ctx context.Context) ([]domain.Checkpoint, error)
}
