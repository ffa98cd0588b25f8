package delivery

import (
	"math/rand"
	"time"
)

// Backoff computes retry delays: attempt n waits base * 2^(n-1), capped, with
// jitter so a transport outage does not produce synchronized retry bursts
// across many in-flight sends.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration

	// jitter maps a computed delay to the one actually used. Overridden in
	// tests for determinism.
	jitter func(time.Duration) time.Duration
}

func NewBackoff(base, cap time.Duration) Backoff {
	return Backoff{
		Base:   base,
		Cap:    cap,
		jitter: fullJitterHalf,
	}
}

// Delay returns the wait before retry number attempt (1-based: the delay
// after the first failed attempt is Delay(1)).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= b.Cap {
			d = b.Cap
			break
		}
	}
	if d > b.Cap {
		d = b.Cap
	}

	if b.jitter != nil {
		return b.jitter(d)
	}
	return d
}

// fullJitterHalf spreads a delay uniformly over [d/2, 3d/2).
func fullJitterHalf(d time.Duration) time.Duration {
	if d <= 1 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d)))
}
