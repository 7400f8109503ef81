package meter

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"powerview/internal/domain"
	"powerview/internal/eloverblik"
)

// Normalize flattens a time-series response into one Reading per point,
// keeping only metering points present in tracked. Unsuccessful results,
// undecodable elements and malformed points are logged and skipped; they
// never abort the batch. Output follows input nesting order.
func Normalize(resp *eloverblik.MeterDataResponse, tracked map[string]struct{}, now time.Time, log *slog.Logger) []domain.Reading {
	if resp == nil {
		return nil
	}
	now = now.UTC()
	ingestionDate := domain.TruncateDay(now)

	var readings []domain.Reading
	for i, raw := range resp.Result {
		var result eloverblik.MeterDataResult
		if err := json.Unmarshal(raw, &result); err != nil {
			log.Error("skipping undecodable result", "index", i, "error", err)
			continue
		}
		if !result.Success {
			log.Warn("API result not successful", "index", i, "errorCode", result.ErrorCode, "errorText", result.ErrorText)
			continue
		}
		if result.Document == nil {
			log.Warn("successful result without market document", "index", i)
			continue
		}

		for j, rawTS := range result.Document.TimeSeries {
			var ts eloverblik.TimeSeries
			if err := json.Unmarshal(rawTS, &ts); err != nil {
				log.Error("skipping undecodable time series", "index", j, "error", err)
				continue
			}

			id := ts.MeteringPointID()
			if _, ok := tracked[id]; !ok {
				continue
			}
			readings = appendSeries(readings, ts, id, now, ingestionDate, log)
		}
	}

	log.Info("normalized records from API response", "count", len(readings))
	return readings
}

func appendSeries(out []domain.Reading, ts eloverblik.TimeSeries, id string, now, ingestionDate time.Time, log *slog.Logger) []domain.Reading {
	unit := ts.Unit()
	for i, rawPeriod := range ts.Period {
		var period eloverblik.Period
		if err := json.Unmarshal(rawPeriod, &period); err != nil {
			log.Warn("skipping undecodable period", "metering_point", id, "index", i, "error", err)
			continue
		}
		if period.TimeInterval == nil || period.TimeInterval.Start.Value == "" {
			continue
		}
		start, err := time.Parse(time.RFC3339, period.TimeInterval.Start.Value)
		if err != nil {
			log.Warn("failed to parse period start timestamp", "metering_point", id, "start", period.TimeInterval.Start.Value, "error", err)
			continue
		}
		start = start.UTC()

		for j, rawPoint := range period.Point {
			var p eloverblik.Point
			if err := json.Unmarshal(rawPoint, &p); err != nil {
				log.Warn("failed to parse point data", "metering_point", id, "index", j, "error", err)
				continue
			}
			r, err := pointReading(p, start)
			if err != nil {
				log.Warn("failed to parse point data", "metering_point", id, "index", j, "error", err)
				continue
			}
			r.MeteringPointID = id
			r.Unit = unit
			r.IngestedAt = now
			r.IngestionDate = ingestionDate
			out = append(out, r)
		}
	}
	return out
}

// pointReading derives timestamp, value and quality of a point. The
// timestamp is the period start plus position-1 hours; a missing quantity is
// 0 and a missing quality is empty.
func pointReading(p eloverblik.Point, periodStart time.Time) (domain.Reading, error) {
	if !p.Position.Set {
		return domain.Reading{}, fmt.Errorf("missing position")
	}
	pos, err := strconv.Atoi(strings.TrimSpace(p.Position.Raw))
	if err != nil {
		return domain.Reading{}, fmt.Errorf("position %q: %w", p.Position.Raw, err)
	}
	if pos < 1 {
		return domain.Reading{}, fmt.Errorf("position %d is not 1-based", pos)
	}

	var value float64
	if p.Quantity.Set {
		value, err = strconv.ParseFloat(strings.TrimSpace(p.Quantity.Raw), 64)
		if err != nil {
			return domain.Reading{}, fmt.Errorf("quantity %q: %w", p.Quantity.Raw, err)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return domain.Reading{}, fmt.Errorf("quantity %q is not finite", p.Quantity.Raw)
		}
	}

	return domain.Reading{
		Timestamp: periodStart.Add(time.Duration(pos-1) * time.Hour),
		Value:     value,
		Quality:   p.Quality.Value,
	}, nil
}
