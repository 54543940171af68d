package hub

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"go-realtime-events/internal/infrastructure/logger"
)

const (
	defaultWriteTimeout = 10 * time.Second
	defaultQueueSize    = 64
	keepaliveText       = "keepalive"
)

// Connection is one open server-to-client stream for an authenticated identity.
// All writes are serialized; the first failed write closes it for good.
type Connection struct {
	id          string
	userID      string
	tenantID    string
	connectedAt time.Time

	stream       Stream
	writeTimeout time.Duration
	writeSem     *semaphore.Weighted

	queue       chan outgoing
	writerStart sync.Once

	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	lastActivity atomic.Int64

	logger logger.Logger
}

type ConnectionOption func(*Connection)

// WithWriteTimeout bounds each write, including the wait for a previous write.
// Zero disables the bound.
func WithWriteTimeout(d time.Duration) ConnectionOption {
	return func(c *Connection) { c.writeTimeout = d }
}

// WithQueueSize bounds the number of events waiting for the connection's writer.
func WithQueueSize(n int) ConnectionOption {
	return func(c *Connection) {
		if n > 0 {
			c.queue = make(chan outgoing, n)
		}
	}
}

// WithConnectionID overrides the generated id.
func WithConnectionID(id string) ConnectionOption {
	return func(c *Connection) { c.id = id }
}

func NewConnection(
	userID, tenantID string,
	stream Stream,
	log logger.Logger,
	opts ...ConnectionOption,
) *Connection {
	now := time.Now().UTC()
	c := &Connection{
		id:           uuid.NewString(),
		userID:       userID,
		tenantID:     tenantID,
		connectedAt:  now,
		stream:       stream,
		writeTimeout: defaultWriteTimeout,
		writeSem:     semaphore.NewWeighted(1),
		queue:        make(chan outgoing, defaultQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.lastActivity.Store(now.UnixNano())
	c.logger = log.WithFields(logger.Fields{
		"connection_id": c.id,
		"user_id":       userID,
		"tenant_id":     tenantID,
	})
	return c
}

func (c *Connection) ID() string             { return c.id }
func (c *Connection) UserID() string         { return c.userID }
func (c *Connection) TenantID() string       { return c.tenantID }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }
func (c *Connection) Transport() string      { return c.stream.Kind() }

func (c *Connection) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load()).UTC()
}

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) IsClosed() bool { return c.closed.Load() }

// WriteEvent writes one event record and flushes it. A returned error other than an
// invalid event type satisfies errors.Is(err, ErrTransportFailure); the connection is
// closed by then and must not be written to again.
func (c *Connection) WriteEvent(ctx context.Context, eventType string, data json.RawMessage) error {
	if err := ValidateEventType(eventType); err != nil {
		return err
	}
	event := Event{Type: eventType, Data: data}
	return c.write(ctx, func() error { return c.stream.WriteEvent(event) })
}

// Outgoing is an event handed to Send.
type Outgoing struct {
	Type string
	Data json.RawMessage
	// Timeout bounds the write once the writer picks the event up. Zero leaves only
	// the connection's own write timeout.
	Timeout time.Duration
	// Done, if set, is called with the outcome of the write from the writer goroutine.
	Done func(error)
}

type outgoing struct {
	ctx context.Context
	Outgoing
}

// Send queues out for the connection's writer goroutine and returns without waiting
// for the write. Events sent to one connection are written in the order Send accepted
// them. A full queue means the peer stopped reading: the connection is closed and a
// transport failure returned.
func (c *Connection) Send(ctx context.Context, out Outgoing) error {
	if err := ValidateEventType(out.Type); err != nil {
		return err
	}
	if c.IsClosed() {
		return c.transportError(ErrConnectionClosed)
	}

	c.writerStart.Do(func() { go c.writeLoop() })

	select {
	case c.queue <- outgoing{ctx: ctx, Outgoing: out}:
		return nil
	default:
		c.logger.Warnf("send queue full (%d events), closing connection", cap(c.queue))
		c.Close()
		return c.transportError(ErrQueueFull)
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			c.discardQueued()
			return
		case out := <-c.queue:
			ctx := out.ctx
			var cancel context.CancelFunc = func() {}
			if out.Timeout > 0 {
				ctx, cancel = context.WithTimeout(ctx, out.Timeout)
			}
			err := c.WriteEvent(ctx, out.Type, out.Data)
			cancel()
			if out.Done != nil {
				out.Done(err)
			}
		}
	}
}

// discardQueued reports events still queued at close as failed.
func (c *Connection) discardQueued() {
	for {
		select {
		case out := <-c.queue:
			if out.Done != nil {
				out.Done(c.transportError(ErrConnectionClosed))
			}
		default:
			return
		}
	}
}

// WriteComment writes a keepalive record carrying no application data.
func (c *Connection) WriteComment(ctx context.Context, text string) error {
	return c.write(ctx, func() error { return c.stream.WriteComment(text) })
}

func (c *Connection) write(ctx context.Context, fn func() error) error {
	if c.IsClosed() {
		return c.transportError(ErrConnectionClosed)
	}

	if c.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
		defer cancel()
	}

	if err := c.writeSem.Acquire(ctx, 1); err != nil {
		c.Close()
		return c.transportError(ErrWriteTimeout)
	}
	if c.IsClosed() {
		c.writeSem.Release(1)
		return c.transportError(ErrConnectionClosed)
	}

	// The write runs on its own goroutine so a stalled peer cannot hold the caller
	// past its deadline. The guard stays held until the write really returns.
	result := make(chan error, 1)
	go func() {
		err := fn()
		c.writeSem.Release(1)
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			c.logger.WithError(err).Warn("write failed, closing connection")
			c.Close()
			return c.transportError(err)
		}
		c.lastActivity.Store(time.Now().UnixNano())
		return nil

	case <-ctx.Done():
		c.logger.Warn("write did not complete in time, closing connection")
		c.Close()
		return c.transportError(ErrWriteTimeout)
	}
}

// Heartbeat writes a keepalive comment every interval until ctx is done or the
// connection is closed. It returns the write error that ended it, if any.
func (c *Connection) Heartbeat(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		case <-ticker.C:
			if err := c.WriteComment(ctx, keepaliveText); err != nil {
				return err
			}
		}
	}
}

func (c *Connection) transportError(err error) error {
	return &TransportError{ConnectionID: c.id, Err: err}
}

// Close marks the connection closed and releases the stream. Safe to call any
// number of times from any goroutine.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		err = c.stream.Close()
		c.logger.Debug("connection closed")
	})
	return err
}

// Drain blocks until no write is in flight. Call after Close and before giving the
// underlying transport back to its owner.
func (c *Connection) Drain(ctx context.Context) error {
	if err := c.writeSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.writeSem.Release(1)
	return nil
}

// ConnectionInfo is a read-only view used by status endpoints.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	TenantID     string    `json:"tenantId"`
	Transport    string    `json:"transport"`
	ConnectedAt  time.Time `json:"connectedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

func (c *Connection) Info() ConnectionInfo {
	return ConnectionInfo{
		ID:           c.id,
		UserID:       c.userID,
		TenantID:     c.tenantID,
		Transport:    c.Transport(),
		ConnectedAt:  c.connectedAt,
		LastActivity: c.LastActivity(),
	}
}
