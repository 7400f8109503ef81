package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"
)

// sheet is one worksheet of the export, filled from a reporting view.
type sheet struct {
	name    string
	query   string
	headers []string
	widths  []float64
}

var exportSheets = []sheet{
	{
		name: "Daily",
		query: `SELECT metering_point_id, name, type, location, reading_date,
			total_kwh, avg_kwh, min_kwh, max_kwh, reading_count
			FROM reporting_meter_metadata_enriched
			ORDER BY metering_point_id, reading_date`,
		headers: []string{"Metering Point", "Name", "Type", "Location", "Date",
			"Total kWh", "Avg kWh", "Min kWh", "Max kWh", "Readings"},
		widths: []float64{22, 20, 14, 16, 12, 12, 12, 12, 12, 10},
	},
	{
		name: "Monthly",
		query: `SELECT metering_point_id, month_start, total_kwh, previous_month_kwh, delta_kwh, delta_ratio
			FROM reporting_monthly_consumption
			ORDER BY metering_point_id, month_start`,
		headers: []string{"Metering Point", "Month", "Total kWh", "Previous kWh", "Delta kWh", "Delta Ratio"},
		widths:  []float64{22, 12, 12, 14, 12, 12},
	},
	{
		name: "Quality",
		query: `SELECT q.metering_point_id, q.reading_date, q.total_kwh, q.isolated_zero_flag,
				m.actual_readings, m.missing_readings
			FROM reporting_daily_quality_flags AS q
			JOIN reporting_missing_data_summary AS m
				ON m.metering_point_id = q.metering_point_id AND m.reading_date = q.reading_date
			ORDER BY q.metering_point_id, q.reading_date`,
		headers: []string{"Metering Point", "Date", "Total kWh", "Isolated Zero", "Readings", "Missing"},
		widths:  []float64{22, 12, 12, 14, 10, 10},
	},
}

// ExportXLSX writes the daily, monthly and quality views of a built
// analytics database to an XLSX workbook at outPath, one sheet each.
func ExportXLSX(ctx context.Context, analyticsPath, outPath string) (err error) {
	if _, err := os.Stat(analyticsPath); err != nil {
		return fmt.Errorf("analytics database: %w", err)
	}
	db, err := sql.Open("sqlite", analyticsPath)
	if err != nil {
		return err
	}
	defer db.Close()

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	for i, sh := range exportSheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sh.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(sh.name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", sh.name, err)
		}
		if err := writeSheet(ctx, db, f, sh, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	if err := f.SaveAs(outPath); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	return nil
}

func writeSheet(ctx context.Context, db *sql.DB, f *excelize.File, sh sheet, headerStyle int) error {
	for col, h := range sh.headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sh.name, cell, h); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sh.name, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sh.name, name, name, sh.widths[col]); err != nil {
			return err
		}
	}

	rows, err := db.QueryContext(ctx, sh.query)
	if err != nil {
		return fmt.Errorf("querying %s: %w", sh.name, err)
	}
	defer rows.Close()

	values := make([]any, len(sh.headers))
	ptrs := make([]any, len(values))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for r := 2; rows.Next(); r++ {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("scanning %s: %w", sh.name, err)
		}
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		row := make([]any, len(values))
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[i] = v
		}
		if err := f.SetSheetRow(sh.name, cell, &row); err != nil {
			return fmt.Errorf("writing %s row %d: %w", sh.name, r, err)
		}
	}
	return rows.Err()
}
