package delivery

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// FrequencyDuration converts a check-in frequency in days to a duration with
// no rounding to whole days. Values beyond the duration range saturate.
func FrequencyDuration(days float64) time.Duration {
	ns := days * float64(day)
	switch {
	case ns >= math.MaxInt64:
		return time.Duration(math.MaxInt64)
	case ns <= math.MinInt64:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(ns)
}

// Deadline is lastCheckIn + frequency*86400s.
func Deadline(lastCheckIn time.Time, frequencyDays float64) time.Time {
	return lastCheckIn.Add(FrequencyDuration(frequencyDays))
}

// IsOverdue reports now > deadline. now == deadline is not overdue.
func IsOverdue(lastCheckIn time.Time, frequencyDays float64, now time.Time) bool {
	return now.After(Deadline(lastCheckIn, frequencyDays))
}

// Lapsed is how far now is past the deadline, or zero when not overdue.
func Lapsed(lastCheckIn time.Time, frequencyDays float64, now time.Time) time.Duration {
	d := now.Sub(Deadline(lastCheckIn, frequencyDays))
	if d < 0 {
		return 0
	}
	return d
}
