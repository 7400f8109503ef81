package domain

import (
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	r := Reading{}
	if r.MeteringPointID != "" {
		t.Error("expected empty MeteringPointID for zero-value Reading")
	}
	if !r.Timestamp.IsZero() || !r.IngestedAt.IsZero() {
		t.Error("expected zero timestamps for zero-value Reading")
	}
	if r.Value != 0 {
		t.Error("expected zero Value for zero-value Reading")
	}

	cp := Checkpoint{}
	if cp.LastIngestionDate != nil {
		t.Error("expected nil LastIngestionDate for zero-value Checkpoint")
	}

	if DatasetElspot != "elspot" {
		t.Errorf("DatasetElspot = %q, want %q", DatasetElspot, "elspot")
	}
	if DatasetDayAhead != "dayahead" {
		t.Errorf("DatasetDayAhead = %q, want %q", DatasetDayAhead, "dayahead")
	}
}

func TestConsumptionDate(t *testing.T) {
	cph := time.FixedZone("CET", 3600)
	tests := []struct {
		name string
		ts   time.Time
		want time.Time
	}{
		{"midnight", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"last hour", time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		// 00:30 local is 23:30 UTC on the previous day.
		{"non-utc input", time.Date(2025, 1, 2, 0, 30, 0, 0, cph), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Reading{Timestamp: tt.ts}.ConsumptionDate()
			if !got.Equal(tt.want) {
				t.Errorf("ConsumptionDate() = %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Errorf("ConsumptionDate() location = %v, want UTC", got.Location())
			}
		})
	}
}
