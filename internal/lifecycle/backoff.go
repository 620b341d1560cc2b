package lifecycle

import "time"

// Backoff is an ordered table of retry delays. No jitter is applied.
type Backoff []time.Duration

// DefaultBackoff is the retry table used when none is configured.
var DefaultBackoff = Backoff{
	200 * time.Millisecond,
	1 * time.Second,
	5 * time.Second,
	30 * time.Second,
}

// Delay returns the wait after the error that brought the retry counter to
// retryCount. The table is indexed by the counter itself, so the first retry
// waits b[1]; counts past the end use the last entry and an empty table means
// no wait.
func (b Backoff) Delay(retryCount int) time.Duration {
	if len(b) == 0 {
		return 0
	}
	i := retryCount
	if i < 0 {
		i = 0
	}
	if i >= len(b) {
		i = len(b) - 1
	}
	return b[i]
}

// Timing holds the machine's delays.
type Timing struct {
	OpenTimeout time.Duration
	PingPeriod  time.Duration
	IdleTimeout time.Duration
	Backoff     Backoff
}

// DefaultTiming returns sensible defaults.
func DefaultTiming() Timing {
	return Timing{
		OpenTimeout: 10 * time.Second,
		PingPeriod:  10 * time.Second,
		IdleTimeout: 5 * time.Minute,
		Backoff:     DefaultBackoff,
	}
}
