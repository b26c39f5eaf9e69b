// Package backoff provides the reconnect delay schedule for the
// connection state machine.
package backoff

import (
	"math/rand/v2"
	"time"
)

const (
	defaultMin = 1 * time.Second
	defaultMax = 60 * time.Second
)

// Policy is a stateless backoff schedule: the base delay for retry
// attempt k is Min doubled k times, capped at Max. When Jitter is set,
// up to half the base delay is added on top, still capped at Max, so
// reconnection attempts never exceed a bounded rate however long the
// outage lasts. The state machine consults the policy but never
// mutates it.
type Policy struct {
	Min    time.Duration
	Max    time.Duration
	Jitter bool
}

// Default returns the standard schedule: 1s doubling to a 60s cap,
// with jitter.
func Default() Policy {
	return Policy{Min: defaultMin, Max: defaultMax, Jitter: true}
}

// Delay returns the reconnect delay for retry attempt k (0-based).
func (p Policy) Delay(retry int) time.Duration {
	d := p.base(retry)
	if p.Jitter && d > 1 {
		d += time.Duration(rand.Int64N(int64(d) / 2))
		if d > p.Max {
			d = p.Max
		}
	}
	return d
}

// base computes the un-jittered delay. The loop caps before doubling so
// large retry counts cannot overflow.
func (p Policy) base(retry int) time.Duration {
	d := p.Min
	for i := 0; i < retry; i++ {
		if d >= p.Max/2 {
			return p.Max
		}
		d *= 2
	}
	if d > p.Max {
		return p.Max
	}
	return d
}
