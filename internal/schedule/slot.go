package schedule

import "time"

const (
	MinDurationMinutes = 5
	MaxDurationMinutes = 480
	MaxReasonLength    = 500
)

// ComputeEndAt adds a minute duration to start. time.Add works on the
// absolute timeline, so month and day boundaries fall out correctly.
func ComputeEndAt(start time.Time, minutes int) time.Time {
	return start.Add(time.Duration(minutes) * time.Minute)
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
