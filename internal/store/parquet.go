package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"

	"powerview/internal/domain"
)

// Compile-time interface checks.
var _ ReadingStore = (*ParquetStore)(nil)
var _ PriceStore = (*ParquetStore)(nil)

const (
	readingFileName = "consumption_data.parquet"
	priceFileName   = "spot_prices.parquet"
)

// ReadingGlob matches every reading partition file relative to the data
// directory.
const ReadingGlob = "metering_point=*/date=*/" + readingFileName

// ParquetStore implements ReadingStore and PriceStore using Parquet files on
// disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// ReadingRecord is the Parquet schema for hourly consumption readings.
type ReadingRecord struct {
	MeteringPointID    string  `parquet:"metering_point_id"`
	Timestamp          int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms, UTC
	ConsumptionValue   float64 `parquet:"consumption_value"`
	Quality            string  `parquet:"quality"`
	Unit               string  `parquet:"unit"`
	IngestionTimestamp int64   `parquet:"ingestion_timestamp,timestamp(millisecond)"`
	IngestionDate      int32   `parquet:"ingestion_date,date"` // days since epoch
}

// PriceRecord is the Parquet schema for hourly spot prices.
type PriceRecord struct {
	PriceArea string  `parquet:"price_area"`
	HourUTC   int64   `parquet:"hour_utc,timestamp(millisecond)"`
	PriceDKK  float64 `parquet:"spot_price_dkk"`
	PriceEUR  float64 `parquet:"spot_price_eur"`
	Dataset   string  `parquet:"dataset"`
}

func toReadingRecord(r domain.Reading) ReadingRecord {
	return ReadingRecord{
		MeteringPointID:    r.MeteringPointID,
		Timestamp:          r.Timestamp.UnixMilli(),
		ConsumptionValue:   r.Value,
		Quality:            r.Quality,
		Unit:               r.Unit,
		IngestionTimestamp: r.IngestedAt.UnixMilli(),
		IngestionDate:      int32(domain.TruncateDay(r.IngestionDate).Unix() / 86400),
	}
}

func (r ReadingRecord) toDomain() domain.Reading {
	return domain.Reading{
		MeteringPointID: r.MeteringPointID,
		Timestamp:       time.UnixMilli(r.Timestamp).UTC(),
		Value:           r.ConsumptionValue,
		Quality:         r.Quality,
		Unit:            r.Unit,
		IngestedAt:      time.UnixMilli(r.IngestionTimestamp).UTC(),
		IngestionDate:   time.Unix(int64(r.IngestionDate)*86400, 0).UTC(),
	}
}

// ---------------------------------------------------------------------------
// ReadingStore implementation
// ---------------------------------------------------------------------------

// WriteReadings writes readings to Parquet files partitioned by metering
// point and UTC consumption date:
//
//	<DataDir>/metering_point=<ID>/date=<YYYY-MM-DD>/consumption_data.parquet
//
// Existing rows whose timestamp collides with an incoming row are replaced.
// A failure on any partition aborts the call.
func (s *ParquetStore) WriteReadings(_ context.Context, readings []domain.Reading) error {
	if len(readings) == 0 {
		return nil
	}

	type key struct {
		id   string
		date string // YYYY-MM-DD
	}
	groups := make(map[key][]ReadingRecord)
	var order []key
	for _, r := range readings {
		k := key{id: r.MeteringPointID, date: r.ConsumptionDate().Format(domain.DateLayout)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], toReadingRecord(r))
	}

	for _, k := range order {
		path := s.readingPathForDate(k.id, k.date)

		existing, err := readExisting[ReadingRecord](path)
		if err != nil {
			return fmt.Errorf("reading partition %s/%s: %w", k.id, k.date, err)
		}
		merged := mergeByTimestamp(existing, groups[k], func(r ReadingRecord) int64 { return r.Timestamp })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing partition %s/%s: %w", k.id, k.date, err)
		}
	}
	return nil
}

// ReadPartition reads the readings of one metering point and UTC date. A
// missing partition yields no readings and no error.
func (s *ParquetStore) ReadPartition(_ context.Context, meteringPointID string, date time.Time) ([]domain.Reading, error) {
	return ReadReadingsFile(s.readingPath(meteringPointID, date))
}

// ReadingFiles lists every reading partition file under DataDir.
func (s *ParquetStore) ReadingFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(s.DataDir, ReadingGlob))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ReadReadingsFile decodes a reading partition file. A missing file yields
// no readings and no error.
func ReadReadingsFile(path string) ([]domain.Reading, error) {
	records, err := readExisting[ReadingRecord](path)
	if err != nil {
		return nil, err
	}
	readings := make([]domain.Reading, 0, len(records))
	for _, r := range records {
		readings = append(readings, r.toDomain())
	}
	return readings, nil
}

// ---------------------------------------------------------------------------
// PriceStore implementation
// ---------------------------------------------------------------------------

// WritePrices writes prices to Parquet files partitioned by price area and
// UTC date:
//
//	<DataDir>/prices/area=<AREA>/date=<YYYY-MM-DD>/spot_prices.parquet
func (s *ParquetStore) WritePrices(_ context.Context, prices []domain.SpotPrice) error {
	if len(prices) == 0 {
		return nil
	}

	type key struct {
		area string
		date string
	}
	groups := make(map[key][]PriceRecord)
	var order []key
	for _, p := range prices {
		k := key{area: p.PriceArea, date: p.HourUTC.UTC().Format(domain.DateLayout)}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], PriceRecord{
			PriceArea: p.PriceArea,
			HourUTC:   p.HourUTC.UnixMilli(),
			PriceDKK:  p.PriceDKK,
			PriceEUR:  p.PriceEUR,
			Dataset:   string(p.Dataset),
		})
	}

	for _, k := range order {
		path := filepath.Join(s.DataDir, "prices", "area="+k.area, "date="+k.date, priceFileName)

		existing, err := readExisting[PriceRecord](path)
		if err != nil {
			return fmt.Errorf("reading prices %s/%s: %w", k.area, k.date, err)
		}
		merged := mergeByTimestamp(existing, groups[k], func(r PriceRecord) int64 { return r.HourUTC })

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing prices %s/%s: %w", k.area, k.date, err)
		}
	}
	return nil
}

// ReadPrices reads prices for the given area over the dates [start, end].
func (s *ParquetStore) ReadPrices(_ context.Context, area string, start, end time.Time) ([]domain.SpotPrice, error) {
	var prices []domain.SpotPrice
	for d := domain.TruncateDay(start); !d.After(domain.TruncateDay(end)); d = d.AddDate(0, 0, 1) {
		path := s.pricePath(area, d)
		records, err := readExisting[PriceRecord](path)
		if err != nil {
			return nil, fmt.Errorf("reading prices %s/%s: %w", area, d.Format(domain.DateLayout), err)
		}
		for _, r := range records {
			prices = append(prices, domain.SpotPrice{
				PriceArea: r.PriceArea,
				HourUTC:   time.UnixMilli(r.HourUTC).UTC(),
				PriceDKK:  r.PriceDKK,
				PriceEUR:  r.PriceEUR,
				Dataset:   domain.PriceDataset(r.Dataset),
			})
		}
	}
	return prices, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// readingPath returns the filesystem path for a reading partition file.
// Layout: <dataDir>/metering_point=<ID>/date=<YYYY-MM-DD>/consumption_data.parquet
func (s *ParquetStore) readingPath(meteringPointID string, date time.Time) string {
	return s.readingPathForDate(meteringPointID, date.UTC().Format(domain.DateLayout))
}

func (s *ParquetStore) readingPathForDate(meteringPointID, date string) string {
	return filepath.Join(s.DataDir, "metering_point="+meteringPointID, "date="+date, readingFileName)
}

// pricePath returns the filesystem path for a price partition file.
func (s *ParquetStore) pricePath(area string, date time.Time) string {
	return filepath.Join(s.DataDir, "prices", "area="+area, "date="+date.UTC().Format(domain.DateLayout), priceFileName)
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// writeParquetFile writes records to a temporary file next to path and
// renames it into place, so readers never observe a partially written file.
func writeParquetFile[T any](path string, records []T) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = parquet.Write(tmp, records, parquet.Compression(&parquet.Snappy)); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// readExisting reads a Parquet file, treating a missing file as empty. Any
// other failure is returned so callers never overwrite data they could not
// read.
func readExisting[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeByTimestamp drops existing rows whose timestamp appears in incoming,
// appends incoming, and sorts by timestamp. When incoming itself repeats a
// timestamp, the last occurrence wins.
func mergeByTimestamp[T any](existing, incoming []T, ts func(T) int64) []T {
	latest := make(map[int64]int, len(incoming))
	for i, r := range incoming {
		latest[ts(r)] = i
	}

	merged := make([]T, 0, len(existing)+len(latest))
	for _, r := range existing {
		if _, collides := latest[ts(r)]; !collides {
			merged = append(merged, r)
		}
	}
	for i, r := range incoming {
		if latest[ts(r)] == i {
			merged = append(merged, r)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return ts(merged[i]) < ts(merged[j])
	})
	return merged
}
