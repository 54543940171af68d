// Package streamclient consumes the event stream of the realtime events service and
// keeps it alive across dropped connections.
package streamclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Wildcard subscribes to every event type.
const Wildcard = "*"

var (
	ErrNoCredentials = errors.New("no access token available")
	errStreamEnded   = errors.New("stream ended")
)

// Event is one dispatched event. Data holds the decoded JSON value, or the raw string
// when the payload is not valid JSON.
type Event struct {
	Type string
	Data any
}

type Handler func(Event)

// CredentialsFunc returns the bearer token and tenant id for the next attempt. The
// tenant id may be empty.
type CredentialsFunc func(ctx context.Context) (token, tenantID string, err error)

type Options struct {
	URL          string
	Credentials  CredentialsFunc
	TenantHeader string
	HTTPClient   *http.Client
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Logger       logrus.FieldLogger
}

type Client struct {
	opts    Options
	backoff *Backoff
	log     logrus.FieldLogger

	mu       sync.Mutex
	active   bool
	cancel   context.CancelFunc
	done     chan struct{}
	handlers map[string][]*Subscription
	nextID   uint64
}

func New(opts Options) (*Client, error) {
	if opts.URL == "" {
		return nil, errors.New("streamclient: URL is required")
	}
	if opts.Credentials == nil {
		return nil, errors.New("streamclient: Credentials is required")
	}
	if opts.TenantHeader == "" {
		opts.TenantHeader = "X-Tenant-ID"
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}

	return &Client{
		opts:     opts,
		backoff:  NewBackoff(opts.BaseDelay, opts.MaxDelay),
		log:      opts.Logger.WithField("component", "streamclient"),
		handlers: make(map[string][]*Subscription),
	}, nil
}

// Subscription is a registered handler. Unsubscribe may be called more than once.
type Subscription struct {
	client    *Client
	eventType string
	id        uint64
	handler   Handler
}

func (s *Subscription) Unsubscribe() { s.client.Off(s) }

// On registers handler for eventType, or for every event when eventType is Wildcard.
func (c *Client) On(eventType string, handler Handler) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	sub := &Subscription{client: c, eventType: eventType, id: c.nextID, handler: handler}
	c.handlers[eventType] = append(c.handlers[eventType], sub)
	return sub
}

func (c *Client) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := c.handlers[sub.eventType]
	for i, s := range subs {
		if s.id == sub.id {
			subs = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(c.handlers, sub.eventType)
	} else {
		c.handlers[sub.eventType] = subs
	}
}

// Connect starts the connection loop. It does nothing while the client is active.
func (c *Client) Connect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.active = true
	c.cancel = cancel
	c.done = make(chan struct{})
	c.backoff.Reset()

	go c.run(ctx, c.done)
}

// Disconnect aborts the current stream and any pending reconnect. Apart from a
// handler call already in progress, nothing is dispatched afterwards.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	c.active = false
	c.cancel()
}

// Done is closed when the connection loop started by the last Connect has exited.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

func (c *Client) IsActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

func (c *Client) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt := 1; ; attempt++ {
		err := c.stream(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := c.backoff.Next()
		c.log.WithError(err).Warnf("stream lost, reconnecting in %s (attempt %d)", delay, attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// stream runs one connection until it fails or ctx ends.
func (c *Client) stream(ctx context.Context) error {
	token, tenantID, err := c.opts.Credentials(ctx)
	if err != nil {
		return errors.Wrap(err, "credentials")
	}
	if token == "" {
		return ErrNoCredentials
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.opts.URL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Authorization", "Bearer "+token)
	if tenantID != "" {
		req.Header.Set(c.opts.TenantHeader, tenantID)
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	c.backoff.Reset()
	c.log.Debug("stream connected")

	dec := NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			for _, raw := range dec.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.dispatch(raw)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errStreamEnded
			}
			return err
		}
	}
}

func (c *Client) dispatch(raw RawEvent) {
	ev := Event{Type: raw.Type, Data: decodeData(raw.Data)}

	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.handlers[raw.Type])+len(c.handlers[Wildcard]))
	subs = append(subs, c.handlers[raw.Type]...)
	if raw.Type != Wildcard {
		subs = append(subs, c.handlers[Wildcard]...)
	}
	c.mu.Unlock()

	for _, sub := range subs {
		c.call(sub, ev)
	}
}

func (c *Client) call(sub *Subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("handler for %q panicked: %v", sub.eventType, r)
		}
	}()
	sub.handler(ev)
}

func decodeData(data string) any {
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		return data
	}
	return v
}
