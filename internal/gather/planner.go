package gather

import (
	"context"
	"fmt"
	"time"

	"powerview/internal/domain"
	"powerview/internal/util"
)

const (
	// DefaultChunkDays keeps requests well inside the upstream 730-day limit.
	DefaultChunkDays = 90

	// OverlapDays is re-fetched before a checkpoint so late corrections in
	// the source are picked up by the upsert.
	OverlapDays = 7
)

// CheckpointReader is the part of the state store the planner needs.
type CheckpointReader interface {
	GetCheckpoint(ctx context.Context, meteringPointID string) (*time.Time, error)
}

// Planner derives the date range to fetch for a metering point.
type Planner struct {
	State               CheckpointReader
	InitialBackfillDays int

	// Now returns the current time; nil means time.Now.
	Now func() time.Time
}

// PlanRange returns [from, to] for a metering point. to is today (UTC).
// Without a checkpoint, from is InitialBackfillDays before today; otherwise
// it is OverlapDays before the checkpoint.
func (p *Planner) PlanRange(ctx context.Context, meteringPointID string) (DateRange, error) {
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	to := domain.TruncateDay(now())

	last, err := p.State.GetCheckpoint(ctx, meteringPointID)
	if err != nil {
		return DateRange{}, fmt.Errorf("reading checkpoint: %w", err)
	}

	if last == nil {
		return DateRange{Start: util.AddDays(to, -p.InitialBackfillDays), End: to}, nil
	}
	return DateRange{Start: util.AddDays(*last, -OverlapDays), End: to}, nil
}

// Chunk splits [from, to] into consecutive ranges of at most chunkDays days.
// Chunks touch without overlapping and the last one ends at to. A reversed
// range yields no chunks; chunkDays <= 0 means DefaultChunkDays.
func Chunk(from, to time.Time, chunkDays int) []DateRange {
	if chunkDays <= 0 {
		chunkDays = DefaultChunkDays
	}
	from, to = domain.TruncateDay(from), domain.TruncateDay(to)

	var chunks []DateRange
	for cur := from; !cur.After(to); {
		end := util.AddDays(cur, chunkDays-1)
		if end.After(to) {
			end = to
		}
		chunks = append(chunks, DateRange{Start: cur, End: end})
		cur = util.AddDays(end, 1)
	}
	return chunks
}
