package reporting

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"powerview/internal/domain"
	"powerview/internal/store"
	"powerview/internal/util"
)

var ingestedAt = time.Date(2025, 3, 1, 6, 0, 0, 0, time.UTC)

func reading(id string, ts time.Time, v float64) domain.Reading {
	return domain.Reading{
		MeteringPointID: id,
		Timestamp:       ts,
		Value:           v,
		Quality:         "A04",
		Unit:            "KWH",
		IngestedAt:      ingestedAt,
		IngestionDate:   domain.TruncateDay(ingestedAt),
	}
}

// fullDay returns 24 hourly readings on day with values 1..24.
func fullDay(id string, day time.Time) []domain.Reading {
	out := make([]domain.Reading, 24)
	for h := range out {
		out[h] = reading(id, day.Add(time.Duration(h)*time.Hour), float64(h+1))
	}
	return out
}

func writeReadings(t *testing.T, dir string, rs []domain.Reading) {
	t.Helper()
	if err := store.NewParquetStore(dir).WriteReadings(context.Background(), rs); err != nil {
		t.Fatalf("WriteReadings: %v", err)
	}
}

func build(t *testing.T, dataDir string, meta []domain.MeterMetadata) *sql.DB {
	t.Helper()
	path, err := Build(context.Background(), Options{
		DataRoot:      dataDir,
		AnalyticsPath: filepath.Join(t.TempDir(), "analytics", "powerview.db"),
		Metadata:      meta,
		Logger:        util.Discard(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !filepath.IsAbs(path) {
		t.Errorf("Build returned relative path %s", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open analytics: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func monday() time.Time { return time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC) }

func TestBuildMissingDataPath(t *testing.T) {
	_, err := Build(context.Background(), Options{
		DataRoot:      filepath.Join(t.TempDir(), "nope"),
		AnalyticsPath: filepath.Join(t.TempDir(), "a.db"),
		Logger:        util.Discard(),
	})
	if !errors.Is(err, fs.ErrNotExist) || !errors.Is(err, ErrNoPartitions) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestBuildEmptyDataPath(t *testing.T) {
	analytics := filepath.Join(t.TempDir(), "a.db")
	_, err := Build(context.Background(), Options{DataRoot: t.TempDir(), AnalyticsPath: analytics, Logger: util.Discard()})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
	if _, err := os.Stat(analytics); !os.IsNotExist(err) {
		t.Error("analytics database should not be created when there is nothing to load")
	}
}

func TestBuildDailyAggregates(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, fullDay("mp1", monday()))
	db := build(t, dir, nil)

	var (
		date                 string
		total, avg, min, max float64
		count                int
	)
	err := db.QueryRow(`SELECT reading_date, total_kwh, avg_kwh, min_kwh, max_kwh, reading_count
		FROM reporting_daily_consumption WHERE metering_point_id = 'mp1'`).
		Scan(&date, &total, &avg, &min, &max, &count)
	if err != nil {
		t.Fatalf("query daily: %v", err)
	}
	if date != "2025-01-06" || total != 300 || avg != 12.5 || min != 1 || max != 24 || count != 24 {
		t.Errorf("daily = %s %v %v %v %v %d", date, total, avg, min, max, count)
	}

	var actual, expected, missing int
	if err := db.QueryRow(`SELECT actual_readings, expected_readings, missing_readings
		FROM reporting_missing_data_summary`).Scan(&actual, &expected, &missing); err != nil {
		t.Fatalf("query missing: %v", err)
	}
	if actual != 24 || expected != 24 || missing != 0 {
		t.Errorf("missing summary = %d/%d/%d", actual, expected, missing)
	}

	var stddev, peak float64
	if err := db.QueryRow(`SELECT hourly_stddev_kwh, peak_kwh FROM reporting_load_variability`).Scan(&stddev, &peak); err != nil {
		t.Fatalf("query variability: %v", err)
	}
	if want := math.Sqrt((24*24 - 1) / 12.0); math.Abs(stddev-want) > 1e-9 {
		t.Errorf("stddev = %v, want %v", stddev, want)
	}
	if peak != 24 {
		t.Errorf("peak = %v", peak)
	}
}

func TestBuildStageCalendarFields(t *testing.T) {
	dir := t.TempDir()
	sunday := time.Date(2025, 1, 5, 13, 0, 0, 0, time.UTC)
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", sunday, 1),
		reading("mp1", monday().Add(7*time.Hour), 2),
	})
	db := build(t, dir, nil)

	rows, err := db.Query(`SELECT reading_hour, reading_weekday, reading_weekday_label, reading_month, reading_year
		FROM reporting_meter_data_stage ORDER BY reading_ts_utc`)
	if err != nil {
		t.Fatalf("query stage: %v", err)
	}
	defer rows.Close()

	type fields struct {
		hour, weekday int
		label         string
		month, year   int
	}
	want := []fields{{13, 7, "Sunday", 1, 2025}, {7, 1, "Monday", 1, 2025}}
	var got []fields
	for rows.Next() {
		var f fields
		if err := rows.Scan(&f.hour, &f.weekday, &f.label, &f.month, &f.year); err != nil {
			t.Fatal(err)
		}
		got = append(got, f)
	}
	if len(got) != len(want) {
		t.Fatalf("rows = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestBuildCleanExcludesNegative(t *testing.T) {
	dir := t.TempDir()
	day := monday()
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", day, 2),
		reading("mp1", day.Add(time.Hour), -1),
	})
	db := build(t, dir, nil)

	var total float64
	var count int
	if err := db.QueryRow(`SELECT total_kwh, reading_count FROM reporting_daily_consumption`).Scan(&total, &count); err != nil {
		t.Fatal(err)
	}
	if total != 2 || count != 1 {
		t.Errorf("daily = %v/%d, want 2/1", total, count)
	}

	var actual, missing int
	if err := db.QueryRow(`SELECT actual_readings, missing_readings FROM reporting_missing_data_summary`).Scan(&actual, &missing); err != nil {
		t.Fatal(err)
	}
	if actual != 2 || missing != 22 {
		t.Errorf("missing summary = %d/%d, want 2/22", actual, missing)
	}
}

func TestBuildMonthlyDelta(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), 0),
		reading("mp1", time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC), 10),
		reading("mp1", time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), 15),
	})
	db := build(t, dir, nil)

	rows, err := db.Query(`SELECT month_start, total_kwh, delta_kwh, delta_ratio
		FROM reporting_monthly_consumption ORDER BY month_start`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	type month struct {
		start string
		total float64
		delta sql.NullFloat64
		ratio sql.NullFloat64
	}
	var got []month
	for rows.Next() {
		var m month
		if err := rows.Scan(&m.start, &m.total, &m.delta, &m.ratio); err != nil {
			t.Fatal(err)
		}
		got = append(got, m)
	}
	if len(got) != 3 {
		t.Fatalf("months = %d, want 3", len(got))
	}
	if got[0].start != "2025-01-01" || got[0].delta.Valid || got[0].ratio.Valid {
		t.Errorf("first month = %+v, want NULL delta and ratio", got[0])
	}
	if got[1].delta.Float64 != 10 || got[1].ratio.Valid {
		t.Errorf("second month = %+v, want ratio NULL after a zero month", got[1])
	}
	if got[2].delta.Float64 != 5 || !got[2].ratio.Valid || got[2].ratio.Float64 != 0.5 {
		t.Errorf("third month = %+v, want ratio 0.5", got[2])
	}
}

func TestBuildIsolatedZeroFlag(t *testing.T) {
	dir := t.TempDir()
	d := func(n int) time.Time { return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC) }
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", d(1), 0), // leading zero has no previous day
		reading("mp1", d(2), 5),
		reading("mp1", d(3), 0), // isolated
		reading("mp1", d(4), 4),
		reading("mp1", d(5), 0),
		reading("mp1", d(6), 0),
	})
	db := build(t, dir, nil)

	rows, err := db.Query(`SELECT reading_date, isolated_zero_flag FROM reporting_daily_quality_flags ORDER BY reading_date`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	flagged := map[string]bool{}
	for rows.Next() {
		var date string
		var flag int
		if err := rows.Scan(&date, &flag); err != nil {
			t.Fatal(err)
		}
		flagged[date] = flag == 1
	}
	for date, want := range map[string]bool{
		"2025-01-01": false, "2025-01-02": false, "2025-01-03": true,
		"2025-01-04": false, "2025-01-05": false, "2025-01-06": false,
	} {
		if flagged[date] != want {
			t.Errorf("%s flagged = %v, want %v", date, flagged[date], want)
		}
	}
}

func TestBuildIsolatedZeroFlagSkipsMissingDays(t *testing.T) {
	dir := t.TempDir()
	d := func(n int) time.Time { return time.Date(2025, 1, n, 0, 0, 0, 0, time.UTC) }
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", d(2), 5),
		reading("mp1", d(4), 0), // neighbours are the nearest recorded days
		reading("mp1", d(6), 3),
		reading("mp2", d(3), 0), // other meters do not count as neighbours
	})
	db := build(t, dir, nil)

	rows, err := db.Query(`SELECT metering_point_id, reading_date, isolated_zero_flag FROM reporting_daily_quality_flags`)
	if err != nil {
		t.Fatal(err)
	}
	defer rows.Close()

	got := map[string]int{}
	for rows.Next() {
		var id, date string
		var flag int
		if err := rows.Scan(&id, &date, &flag); err != nil {
			t.Fatal(err)
		}
		got[id+" "+date] = flag
	}
	want := map[string]int{
		"mp1 2025-01-02": 0, "mp1 2025-01-04": 1, "mp1 2025-01-06": 0,
		"mp2 2025-01-03": 0,
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s flag = %d, want %d", k, got[k], v)
		}
	}
}

func TestBuildLoadVariabilityLargeValues(t *testing.T) {
	dir := t.TempDir()
	day := monday()
	writeReadings(t, dir, []domain.Reading{
		reading("mp1", day, 1e9),
		reading("mp1", day.Add(time.Hour), 1e9+1),
		reading("mp1", day.Add(2*time.Hour), 1e9+2),
	})
	db := build(t, dir, nil)

	var stddev, peak float64
	if err := db.QueryRow(`SELECT hourly_stddev_kwh, peak_kwh FROM reporting_load_variability`).Scan(&stddev, &peak); err != nil {
		t.Fatalf("query variability: %v", err)
	}
	if want := math.Sqrt(2.0 / 3.0); math.Abs(stddev-want) > 1e-6 {
		t.Errorf("stddev = %v, want %v", stddev, want)
	}
	if peak != 1e9+2 {
		t.Errorf("peak = %v", peak)
	}
}

func TestBuildMetadataEnriched(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, append(fullDay("mp1", monday()), fullDay("mp2", monday())...))
	meta := []domain.MeterMetadata{{
		MeteringPointID: "mp1",
		Name:            "House",
		Type:            "consumption",
		Extra:           map[string]any{"tariff": "flex", "phases": 3},
	}}
	db := build(t, dir, meta)

	var (
		name, typ, extra sql.NullString
		location         sql.NullString
	)
	if err := db.QueryRow(`SELECT name, type, location, extra_metadata
		FROM reporting_meter_metadata_enriched WHERE metering_point_id = 'mp1'`).
		Scan(&name, &typ, &location, &extra); err != nil {
		t.Fatal(err)
	}
	if name.String != "House" || typ.String != "consumption" || location.Valid {
		t.Errorf("mp1 metadata = %v %v %v", name, typ, location)
	}
	if extra.String != `{"phases":3,"tariff":"flex"}` {
		t.Errorf("extra = %q", extra.String)
	}

	var total float64
	if err := db.QueryRow(`SELECT name, total_kwh FROM reporting_meter_metadata_enriched
		WHERE metering_point_id = 'mp2'`).Scan(&name, &total); err != nil {
		t.Fatal(err)
	}
	if name.Valid || total != 300 {
		t.Errorf("mp2 row = %v %v, want NULL name and 300", name, total)
	}
}

func TestBuildMetadataDefaults(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, fullDay("mp1", monday()))
	db := build(t, dir, []domain.MeterMetadata{{MeteringPointID: "mp1"}})

	var name string
	var extra sql.NullString
	if err := db.QueryRow(`SELECT name, extra_metadata FROM reporting_meter_metadata`).Scan(&name, &extra); err != nil {
		t.Fatal(err)
	}
	if name != "mp1" || extra.Valid {
		t.Errorf("metadata = %q %v, want id as name and NULL extra", name, extra)
	}
}

func TestBuildIsRepeatable(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, fullDay("mp1", monday()))
	analytics := filepath.Join(t.TempDir(), "a.db")
	opts := Options{DataRoot: dir, AnalyticsPath: analytics, Logger: util.Discard()}

	for i := 0; i < 2; i++ {
		if _, err := Build(context.Background(), opts); err != nil {
			t.Fatalf("Build #%d: %v", i+1, err)
		}
	}

	db, err := sql.Open("sqlite", analytics)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM reporting_raw_readings`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 24 {
		t.Errorf("raw rows after rebuild = %d, want 24", n)
	}
}

func TestExportXLSX(t *testing.T) {
	dir := t.TempDir()
	writeReadings(t, dir, fullDay("mp1", monday()))
	analytics, err := Build(context.Background(), Options{
		DataRoot:      dir,
		AnalyticsPath: filepath.Join(t.TempDir(), "a.db"),
		Metadata:      []domain.MeterMetadata{{MeteringPointID: "mp1", Name: "House"}},
		Logger:        util.Discard(),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	out := filepath.Join(t.TempDir(), "report", "powerview.xlsx")
	if err := ExportXLSX(context.Background(), analytics, out); err != nil {
		t.Fatalf("ExportXLSX: %v", err)
	}

	f, err := excelize.OpenFile(out)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	if got := f.GetSheetList(); len(got) != 3 || got[0] != "Daily" {
		t.Fatalf("sheets = %v", got)
	}
	rows, err := f.GetRows("Daily")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 {
		t.Fatalf("daily rows = %d, want header + 1", len(rows))
	}
	if rows[1][0] != "mp1" || rows[1][1] != "House" || rows[1][5] != "300" {
		t.Errorf("daily row = %v", rows[1])
	}
}

func TestExportXLSXMissingDatabase(t *testing.T) {
	err := ExportXLSX(context.Background(), filepath.Join(t.TempDir(), "none.db"), filepath.Join(t.TempDir(), "x.xlsx"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("err = %v, want not-exist", err)
	}
}

func TestSafeSqrt(t *testing.T) {
	for _, tt := range []struct {
		in   any
		want any
	}{
		{nil, nil},
		{float64(9), float64(3)},
		{int64(4), float64(2)},
		{-1e-12, float64(0)},
	} {
		got, err := safeSqrt(nil, []driver.Value{tt.in})
		if err != nil {
			t.Fatalf("safeSqrt(%v): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("safeSqrt(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
