// Package broker carries serialized envelopes between service instances over a
// single shared publish/subscribe channel with at-most-once semantics.
package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
)

var ErrClosed = errors.New("broker closed")

// Handler receives one raw message. It must not retain payload after returning.
type Handler func(payload []byte)

type Broker interface {
	// Publish sends payload to every current subscriber on any instance. Nothing is
	// queued while the broker is unreachable.
	Publish(ctx context.Context, payload []byte) error
	// Subscribe delivers messages to handle until ctx is done, reconnecting and
	// resubscribing on its own after connection loss.
	Subscribe(ctx context.Context, handle Handler) error
	Close() error
}

// ReconnectPolicy bounds the delay between resubscribe attempts.
type ReconnectPolicy struct {
	Min time.Duration
	Max time.Duration
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Min: time.Second, Max: 30 * time.Second}
}

func (p ReconnectPolicy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Min
	b.MaxInterval = p.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleep waits d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
