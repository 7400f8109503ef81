// Package gather defines the gatherer interface and the date-range planning
// shared by the consumption and price gatherers.
package gather

import (
	"context"
	"time"

	"powerview/internal/util"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass and returns when it is complete.
	Run(ctx context.Context) error
}

// DateRange is an inclusive range of UTC calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Days returns the number of calendar days in the range.
func (r DateRange) Days() int {
	return util.DaysInclusive(r.Start, r.End)
}

func (r DateRange) String() string {
	return util.FormatDate(r.Start) + ".." + util.FormatDate(r.End)
}
