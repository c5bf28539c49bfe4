package jobx

import (
	"strings"
	"time"
)

// BackoffType selects how the delay between attempts grows.
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)

// ParseBackoffType maps a config string to a BackoffType, defaulting to exponential.
func ParseBackoffType(s string) BackoffType {
	if strings.EqualFold(strings.TrimSpace(s), string(BackoffFixed)) {
		return BackoffFixed
	}
	return BackoffExponential
}

// Backoff is the retry delay policy carried by every job.
type Backoff struct {
	Type     BackoffType   `json:"type"`
	Delay    time.Duration `json:"delay"`
	MaxDelay time.Duration `json:"max_delay,omitempty"`
}

// Next returns the delay before the next attempt given how many attempts
// had been made before the one that just failed. Exponential backoff
// doubles Delay per prior attempt; both variants are capped by MaxDelay.
func (b Backoff) Next(attemptsMade int) time.Duration {
	if b.Delay <= 0 {
		return 0
	}
	if attemptsMade < 0 {
		attemptsMade = 0
	}

	d := b.Delay
	if b.Type == BackoffExponential {
		for i := 0; i < attemptsMade; i++ {
			if d > maxDuration/2 {
				d = maxDuration
				break
			}
			d *= 2
		}
	}

	if b.MaxDelay > 0 && d > b.MaxDelay {
		d = b.MaxDelay
	}
	return d
}

const maxDuration = time.Duration(1<<63 - 1)
