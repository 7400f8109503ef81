package energidata

import (
	"fmt"
	"strings"
	"time"

	"powerview/internal/domain"
)

// recordTimeLayout is the zone-less timestamp format of the datasets. The
// HourUTC and TimeUTC columns are UTC.
const recordTimeLayout = "2006-01-02T15:04:05"

// PriceResponse is the envelope returned by a dataset query.
type PriceResponse struct {
	Total   int      `json:"total"`
	Dataset string   `json:"dataset"`
	Records []Record `json:"records"`
}

// Record is one dataset row. Elspotprices fills HourUTC and the SpotPrice
// columns; DayAheadPrices fills TimeUTC and the DayAheadPrice columns.
type Record struct {
	HourUTC          string   `json:"HourUTC"`
	TimeUTC          string   `json:"TimeUTC"`
	PriceArea        string   `json:"PriceArea"`
	SpotPriceDKK     *float64 `json:"SpotPriceDKK"`
	SpotPriceEUR     *float64 `json:"SpotPriceEUR"`
	DayAheadPriceDKK *float64 `json:"DayAheadPriceDKK"`
	DayAheadPriceEUR *float64 `json:"DayAheadPriceEUR"`
}

// SpotPrice converts the record for the given dataset. Records without a
// timestamp, without an area, or without any price are rejected.
func (r Record) SpotPrice(dataset domain.PriceDataset) (domain.SpotPrice, error) {
	ts, dkk, eur := r.HourUTC, r.SpotPriceDKK, r.SpotPriceEUR
	if dataset == domain.DatasetDayAhead {
		ts, dkk, eur = r.TimeUTC, r.DayAheadPriceDKK, r.DayAheadPriceEUR
	}
	if r.PriceArea == "" {
		return domain.SpotPrice{}, fmt.Errorf("record at %q has no price area", ts)
	}
	if dkk == nil && eur == nil {
		return domain.SpotPrice{}, fmt.Errorf("record at %q for %s has no price", ts, r.PriceArea)
	}

	hour, err := parseRecordTime(ts)
	if err != nil {
		return domain.SpotPrice{}, err
	}

	sp := domain.SpotPrice{PriceArea: r.PriceArea, HourUTC: hour, Dataset: dataset}
	if dkk != nil {
		sp.PriceDKK = *dkk
	}
	if eur != nil {
		sp.PriceEUR = *eur
	}
	return sp, nil
}

func parseRecordTime(s string) (time.Time, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	if s == "" {
		return time.Time{}, fmt.Errorf("record has no timestamp")
	}
	t, err := time.ParseInLocation(recordTimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing record timestamp %q: %w", s, err)
	}
	return t, nil
}
