package supervisor

import (
	"math/rand/v2"
	"time"
)

// backoff produces exponentially growing reconnect delays with jitter, so
// profiles that fail together do not retry in lockstep.
type backoff struct {
	base    time.Duration
	cap     time.Duration
	jitter  float64
	attempt int
}

func newBackoff(base, cap time.Duration, jitter float64) *backoff {
	if base <= 0 {
		base = time.Second
	}
	if cap <= 0 {
		cap = 60 * time.Second
	}

	return &backoff{base: base, cap: cap, jitter: jitter}
}

// Next returns the delay before the upcoming attempt: base doubled per
// attempt, capped, with up to ±jitter fraction of noise.
func (b *backoff) Next() time.Duration {
	d := b.base << b.attempt
	if d > b.cap || d <= 0 {
		d = b.cap
	} else {
		b.attempt++
	}

	if b.jitter > 0 {
		noise := (rand.Float64()*2 - 1) * b.jitter * float64(d)
		d += time.Duration(noise)
		if d < 0 {
			d = 0
		}
	}

	return d
}

// Reset clears the attempt counter after a successful connection.
func (b *backoff) Reset() {
	b.attempt = 0
}
