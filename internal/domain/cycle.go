package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// NBM files appear on the archive with some latency, so operational updates
// look back two hours before picking a cycle.
const availabilityLookback = 2 * time.Hour

// LatestMajorCycle returns the most recent major cycle (00z, 06z, 12z, 18z)
// whose files should be fully published. Only major cycles carry the
// extended 39-84h forecast range; in-between hourly cycles stop at 36h.
func LatestMajorCycle(clock clockwork.Clock) time.Time {
	recent := clock.Now().UTC().Truncate(time.Hour).Add(-availabilityLookback)
	majorHour := (recent.Hour() / 6) * 6
	return time.Date(recent.Year(), recent.Month(), recent.Day(), majorHour, 0, 0, 0, time.UTC)
}

// OperationalRegion returns the single-cycle processing region for an
// operational update.
func OperationalRegion(clock clockwork.Clock) ProcessingRegion {
	cycle := LatestMajorCycle(clock)
	return ProcessingRegion{InitTimeStart: cycle, InitTimeEnd: cycle}
}
