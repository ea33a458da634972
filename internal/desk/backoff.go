package desk

import "time"

// Backoff computes the delay before each reconnect attempt: Initial doubled
// per attempt, capped at Max. The session retries indefinitely until torn
// down, so there is no attempt limit here.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
}

// Delay returns the delay before attempt n (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Guard the shift against overflow for large attempt counts.
	if attempt > 30 {
		return b.Max
	}
	d := b.Initial << uint(attempt)
	if d > b.Max || d <= 0 {
		return b.Max
	}
	return d
}
