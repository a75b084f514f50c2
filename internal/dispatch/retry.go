package dispatch

import "time"

const DefaultMaxRetries = 3

var DefaultRetrySchedule = []time.Duration{
	1 * time.Second,
	4 * time.Second,
	16 * time.Second,
}

// NextDelay returns the backoff before retry N (1-indexed). Retries past
// the end of the schedule reuse the last entry.
func NextDelay(retry int, schedule []time.Duration) time.Duration {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	idx := retry - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	return schedule[idx]
}

func IsSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
