package outbox

import "time"

// Backoff computes the retry delay after a failed delivery attempt:
// Base * 2^(attempt-1), capped at Cap. Both knobs come from configuration.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = 5 * time.Second
	}
	cap := b.Cap
	if cap <= 0 {
		cap = 5 * time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
