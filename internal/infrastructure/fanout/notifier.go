package fanout

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"go-realtime-events/internal/infrastructure/broker"
	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/port/inbound"
)

const (
	defaultWriteTimeout   = 10 * time.Second
	defaultPublishTimeout = 3 * time.Second
)

var _ inbound.EventPublisher = (*Notifier)(nil)

// Notifier publishes events for the whole fleet and delivers the events it receives
// from the broker to the connections registered on this instance.
type Notifier struct {
	broker   broker.Broker
	registry *hub.Registry

	instanceID     string
	writeTimeout   time.Duration
	publishTimeout time.Duration

	running   bool
	runningMu sync.RWMutex
	cancel    context.CancelFunc
	done      chan struct{}

	stats counters

	logger logger.Logger
}

type Option func(*Notifier)

// WithInstanceID sets the origin recorded in published envelopes.
func WithInstanceID(id string) Option {
	return func(n *Notifier) { n.instanceID = id }
}

// WithWriteTimeout bounds each write to a single connection, measured from the moment
// the connection's writer starts it.
func WithWriteTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.writeTimeout = d }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.publishTimeout = d }
}

func New(b broker.Broker, registry *hub.Registry, log logger.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		broker:         b,
		registry:       registry,
		writeTimeout:   defaultWriteTimeout,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = log.WithFields(logger.Fields{"component": "notifier", "instance": n.instanceID})
	return n
}

func (n *Notifier) Registry() *hub.Registry { return n.registry }

// Start begins the broker subscription. It runs until Stop is called or ctx ends.
func (n *Notifier) Start(ctx context.Context) error {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()

	if n.running {
		return fmt.Errorf("notifier is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel
	n.done = make(chan struct{})
	n.running = true

	go n.run(runCtx, n.done)

	n.logger.Info("notifier started")
	return nil
}

func (n *Notifier) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	err := n.broker.Subscribe(ctx, func(payload []byte) {
		n.HandleMessage(ctx, payload)
	})
	if err != nil {
		n.logger.WithError(err).Error("broker subscription ended")
	}
}

// Stop ends the subscription and closes every local connection.
func (n *Notifier) Stop(ctx context.Context) error {
	n.runningMu.Lock()
	defer n.runningMu.Unlock()

	if !n.running {
		return nil
	}

	n.cancel()
	select {
	case <-n.done:
	case <-ctx.Done():
		n.logger.Warn("subscription did not stop before the shutdown deadline")
	}

	n.registry.CloseAll()

	n.running = false
	n.logger.Info("notifier stopped")
	return nil
}

func (n *Notifier) IsRunning() bool {
	n.runningMu.RLock()
	defer n.runningMu.RUnlock()
	return n.running
}

func (n *Notifier) SendToUser(ctx context.Context, userID, eventType string, data any) error {
	return n.Publish(ctx, UserTarget(userID), eventType, data)
}

func (n *Notifier) SendToTenant(ctx context.Context, tenantID, eventType string, data any) error {
	return n.Publish(ctx, TenantTarget(tenantID), eventType, data)
}

func (n *Notifier) Broadcast(ctx context.Context, eventType string, data any) error {
	return n.Publish(ctx, BroadcastTarget(), eventType, data)
}

func (n *Notifier) SendToConnections(ctx context.Context, connectionIDs []string, eventType string, data any) error {
	return n.Publish(ctx, ConnectionsTarget(connectionIDs), eventType, data)
}

// Publish sends one event to target across the fleet. Only invalid input is reported;
// a broker failure is logged and the event is dropped.
func (n *Notifier) Publish(ctx context.Context, target Target, eventType string, data any) error {
	raw, err := hub.MarshalData(data)
	if err != nil {
		return err
	}

	env := &Envelope{
		Version:   EnvelopeVersion,
		Target:    target,
		EventType: eventType,
		Data:      raw,
		Origin:    n.instanceID,
		SentAt:    time.Now().UTC(),
	}
	payload, err := env.Encode()
	if err != nil {
		return err
	}

	pubCtx, cancel := context.WithTimeout(ctx, n.publishTimeout)
	defer cancel()

	if err := n.broker.Publish(pubCtx, payload); err != nil {
		n.stats.publishFailed.Add(1)
		n.logger.WithError(err).WithFields(logger.Fields{
			"event_type": eventType,
			"target":     target.String(),
		}).Warn("event dropped, broker unavailable")
		return nil
	}
	n.stats.published.Add(1)
	return nil
}

// HandleMessage decodes one broker message and delivers it locally. Malformed messages
// are logged and discarded.
func (n *Notifier) HandleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Errorf("panic while handling broker message: %v", r)
		}
	}()

	n.stats.received.Add(1)

	env, err := DecodeEnvelope(payload)
	if err != nil {
		n.stats.malformed.Add(1)
		n.logger.WithError(err).Warnf("discarding broker message (%d bytes)", len(payload))
		return
	}

	n.Deliver(ctx, env)
}

// Deliver hands env to the send queue of every matching local connection and returns
// the number of connections that accepted it. Each connection writes on its own
// goroutine, so a stalled peer delays nobody else and a connection still sees events
// in delivery order.
func (n *Notifier) Deliver(ctx context.Context, env *Envelope) int {
	conns := n.resolve(env.Target)
	if len(conns) == 0 {
		return 0
	}

	queued := 0
	for _, conn := range conns {
		err := conn.Send(ctx, hub.Outgoing{
			Type:    env.EventType,
			Data:    env.Data,
			Timeout: n.writeTimeout,
			Done:    func(err error) { n.written(conn, err) },
		})
		if err != nil {
			n.written(conn, err)
			continue
		}
		queued++
	}

	n.logger.Debugf("queued %s for %d/%d connections (%s)",
		env.EventType, queued, len(conns), env.Target)
	return queued
}

func (n *Notifier) written(conn *hub.Connection, err error) {
	if err == nil {
		n.stats.delivered.Add(1)
		return
	}

	n.stats.failed.Add(1)
	if errors.Is(err, hub.ErrTransportFailure) {
		n.registry.Remove(conn.ID())
		_ = conn.Close()
	}
	n.logger.WithError(err).WithField("connection_id", conn.ID()).Warn("delivery failed, connection dropped")
}

func (n *Notifier) resolve(t Target) []*hub.Connection {
	switch t.Kind {
	case TargetUser:
		return n.registry.ByUser(t.UserID)
	case TargetTenant:
		return n.registry.ByTenant(t.TenantID)
	case TargetConnections:
		return n.registry.ByIDs(t.ConnectionIDs)
	case TargetBroadcast:
		return n.registry.All()
	}
	return nil
}

type counters struct {
	published     atomic.Uint64
	publishFailed atomic.Uint64
	received      atomic.Uint64
	malformed     atomic.Uint64
	delivered     atomic.Uint64
	failed        atomic.Uint64
}

// Stats is a point-in-time view of the notifier's counters.
type Stats struct {
	Running       bool   `json:"running"`
	Connections   int    `json:"connections"`
	Published     uint64 `json:"published"`
	PublishFailed uint64 `json:"publishFailed"`
	Received      uint64 `json:"received"`
	Malformed     uint64 `json:"malformed"`
	Delivered     uint64 `json:"delivered"`
	Failed        uint64 `json:"failed"`
}

func (n *Notifier) Stats() Stats {
	return Stats{
		Running:       n.IsRunning(),
		Connections:   n.registry.Count(),
		Published:     n.stats.published.Load(),
		PublishFailed: n.stats.publishFailed.Load(),
		Received:      n.stats.received.Load(),
		Malformed:     n.stats.malformed.Load(),
		Delivered:     n.stats.delivered.Load(),
		Failed:        n.stats.failed.Load(),
	}
}
