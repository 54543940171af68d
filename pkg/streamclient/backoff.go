package streamclient

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second
)

// Backoff yields min(base*2^(n-1), max) for the nth consecutive failure.
type Backoff struct {
	mu  sync.Mutex
	b   *backoff.ExponentialBackOff
	max time.Duration
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	if max < base {
		max = base
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()

	return &Backoff{b: b, max: max}
}

func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	d := b.b.NextBackOff()
	if d > b.max {
		d = b.max
	}
	return d
}

// Reset makes the next delay the base delay again.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.b.Reset()
}
