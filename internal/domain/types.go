// Package domain defines the core types shared across powerview packages:
// metering points, checkpoints, hourly readings, metadata and spot prices.
package domain

import "time"

// DateLayout is the calendar-date format used in partitions, state rows and
// API requests.
const DateLayout = "2006-01-02"

// MeteringPoint is a metering point tracked by the pipeline.
type MeteringPoint struct {
	ID   string
	Name string // display name from configuration
}

// Checkpoint records the last successfully ingested date for a metering
// point. LastIngestionDate is nil when the point was never ingested.
type Checkpoint struct {
	MeteringPointID   string
	LastIngestionDate *time.Time
}

// Reading is a single hourly consumption value for a metering point.
type Reading struct {
	MeteringPointID string
	Timestamp       time.Time // UTC, hour aligned
	Value           float64
	Quality         string
	Unit            string
	IngestedAt      time.Time
	IngestionDate   time.Time // UTC midnight of IngestedAt
}

// ConsumptionDate returns the UTC calendar date the reading belongs to.
func (r Reading) ConsumptionDate() time.Time {
	return TruncateDay(r.Timestamp)
}

// MeterMetadata describes a metering point for reporting. Extra holds every
// field outside the core set.
type MeterMetadata struct {
	MeteringPointID string
	Name            string
	Type            string
	Location        string
	Description     string
	Extra           map[string]any
}

// PriceDataset identifies which Energi Data Service dataset a price came from.
type PriceDataset string

const (
	DatasetElspot   PriceDataset = "elspot"
	DatasetDayAhead PriceDataset = "dayahead"
)

// SpotPrice is an hourly electricity spot price for a price area.
type SpotPrice struct {
	PriceArea string
	HourUTC   time.Time
	PriceDKK  float64
	PriceEUR  float64
	Dataset   PriceDataset
}

// TruncateDay returns midnight UTC of t's UTC calendar date.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
