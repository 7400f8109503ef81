package gather

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCheckpoints struct {
	date *time.Time
	err  error
}

func (f fakeCheckpoints) GetCheckpoint(context.Context, string) (*time.Time, error) {
	return f.date, f.err
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func fixedNow() time.Time { return time.Date(2025, 12, 10, 15, 4, 5, 0, time.UTC) }

func TestPlanRangeColdStart(t *testing.T) {
	p := &Planner{State: fakeCheckpoints{}, InitialBackfillDays: 90, Now: fixedNow}

	r, err := p.PlanRange(context.Background(), "mp1")
	if err != nil {
		t.Fatalf("PlanRange: %v", err)
	}
	if !r.End.Equal(day(2025, 12, 10)) {
		t.Errorf("End = %v, want 2025-12-10", r.End)
	}
	if !r.Start.Equal(r.End.AddDate(0, 0, -90)) {
		t.Errorf("Start = %v, want End - 90 days", r.Start)
	}
}

func TestPlanRangeIncremental(t *testing.T) {
	last := day(2025, 11, 20)
	p := &Planner{State: fakeCheckpoints{date: &last}, InitialBackfillDays: 1095, Now: fixedNow}

	r, err := p.PlanRange(context.Background(), "mp1")
	if err != nil {
		t.Fatalf("PlanRange: %v", err)
	}
	if !r.Start.Equal(day(2025, 11, 13)) {
		t.Errorf("Start = %v, want 2025-11-13", r.Start)
	}
	if !r.End.Equal(day(2025, 12, 10)) {
		t.Errorf("End = %v, want 2025-12-10", r.End)
	}
}

func TestPlanRangeStateError(t *testing.T) {
	p := &Planner{State: fakeCheckpoints{err: errors.New("locked")}, Now: fixedNow}
	if _, err := p.PlanRange(context.Background(), "mp1"); err == nil {
		t.Fatal("PlanRange should surface checkpoint errors")
	}
}

func TestChunkSingle(t *testing.T) {
	chunks := Chunk(day(2025, 11, 1), day(2025, 11, 30), 90)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if !chunks[0].Start.Equal(day(2025, 11, 1)) || !chunks[0].End.Equal(day(2025, 11, 30)) {
		t.Errorf("chunk = %v", chunks[0])
	}
}

func TestChunkExactlyChunkSize(t *testing.T) {
	chunks := Chunk(day(2025, 1, 1), day(2025, 3, 31), 90)
	if len(chunks) != 1 {
		t.Fatalf("90-day range gave %d chunks, want 1", len(chunks))
	}
}

func TestChunkMultiple(t *testing.T) {
	// 365 days at 90 per chunk: four full chunks and a 5-day tail.
	chunks := Chunk(day(2025, 1, 1), day(2025, 12, 31), 90)
	if len(chunks) != 5 {
		t.Fatalf("got %d chunks, want 5", len(chunks))
	}
	if !chunks[0].Start.Equal(day(2025, 1, 1)) || !chunks[4].End.Equal(day(2025, 12, 31)) {
		t.Errorf("chunks = %v", chunks)
	}
	if !chunks[4].Start.Equal(day(2025, 12, 27)) {
		t.Errorf("last chunk starts %v, want 2025-12-27", chunks[4].Start)
	}
}

func TestChunkSameDay(t *testing.T) {
	chunks := Chunk(day(2025, 5, 5), day(2025, 5, 5), 90)
	if len(chunks) != 1 || chunks[0].Days() != 1 {
		t.Errorf("chunks = %v, want one single-day chunk", chunks)
	}
}

func TestChunkReversed(t *testing.T) {
	if chunks := Chunk(day(2025, 5, 6), day(2025, 5, 5), 90); len(chunks) != 0 {
		t.Errorf("reversed range gave %v, want none", chunks)
	}
}

func TestChunkCoverage(t *testing.T) {
	from := day(2022, 12, 15)
	for _, size := range []int{1, 2, 7, 30, 89, 90, 91, 365, 2000} {
		for _, span := range []int{0, 1, 6, 89, 90, 91, 179, 180, 181, 1095} {
			to := from.AddDate(0, 0, span)
			chunks := Chunk(from, to, size)

			rangeDays := span + 1
			wantCount := (rangeDays + size - 1) / size
			if len(chunks) != wantCount {
				t.Fatalf("size=%d span=%d: %d chunks, want %d", size, span, len(chunks), wantCount)
			}
			if !chunks[0].Start.Equal(from) || !chunks[len(chunks)-1].End.Equal(to) {
				t.Fatalf("size=%d span=%d: chunks do not cover [from, to]: %v", size, span, chunks)
			}

			total := 0
			for i, c := range chunks {
				if c.Days() > size || c.Days() < 1 {
					t.Fatalf("size=%d span=%d: chunk %v has %d days", size, span, c, c.Days())
				}
				if i > 0 && !chunks[i-1].End.AddDate(0, 0, 1).Equal(c.Start) {
					t.Fatalf("size=%d span=%d: gap or overlap between %v and %v", size, span, chunks[i-1], c)
				}
				total += c.Days()
			}
			if total != rangeDays {
				t.Fatalf("size=%d span=%d: chunks cover %d days, want %d", size, span, total, rangeDays)
			}

			again := Chunk(from, to, size)
			for i := range chunks {
				if chunks[i] != again[i] {
					t.Fatalf("size=%d span=%d: Chunk is not deterministic", size, span)
				}
			}
		}
	}
}

func TestChunkDefaultSize(t *testing.T) {
	chunks := Chunk(day(2025, 1, 1), day(2025, 12, 31), 0)
	if len(chunks) != 5 {
		t.Errorf("chunkDays=0 gave %d chunks, want 5 (default 90)", len(chunks))
	}
}
