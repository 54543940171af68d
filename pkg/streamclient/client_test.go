package streamclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func staticCredentials(token, tenant string) CredentialsFunc {
	return func(context.Context) (string, string, error) { return token, tenant, nil }
}

// newServer closes the server after the client's cleanup has run, so held-open
// streams see their request context end first.
func newServer(t *testing.T, h http.Handler) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv
}

func newClient(t *testing.T, url string, creds CredentialsFunc) *Client {
	t.Helper()
	c, err := New(Options{
		URL:         url,
		Credentials: creds,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    40 * time.Millisecond,
		Logger:      quietLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Disconnect)
	return c
}

// streamServer writes records then holds the stream open until the client leaves.
func streamServer(records ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		for _, rec := range records {
			_, _ = io.WriteString(w, rec)
			w.(http.Flusher).Flush()
		}
		<-r.Context().Done()
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	got    chan Event
}

func newRecorder() *recorder { return &recorder{got: make(chan Event, 32)} }

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- ev
}

func (r *recorder) next(t *testing.T) Event {
	t.Helper()
	select {
	case ev := <-r.got:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event dispatched")
		return Event{}
	}
}

func TestClient_DispatchesTypedAndWildcard(t *testing.T) {
	srv := newServer(t, streamServer(
		"event: connected\ndata: {\"connectionId\":\"c1\"}\n\n",
		": keepalive\n\n",
		"event: notification.new\ndata: {\"id\":\"n1\"}\n\n",
		"event: notification.new\ndata: not json\n\n",
	))

	c := newClient(t, srv.URL, staticCredentials("tok", "t1"))
	typed, all := newRecorder(), newRecorder()
	c.On("notification.new", typed.handle)
	c.On(Wildcard, all.handle)
	c.Connect()

	ev := typed.next(t)
	assert.Equal(t, map[string]any{"id": "n1"}, ev.Data)
	ev = typed.next(t)
	assert.Equal(t, "not json", ev.Data)

	assert.Equal(t, "connected", all.next(t).Type)
	assert.Equal(t, "notification.new", all.next(t).Type)
	assert.Equal(t, "notification.new", all.next(t).Type)
}

func TestClient_SendsCredentialsAsHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case headers <- r.Header.Clone():
		default:
		}
		streamServer("event: connected\ndata: {}\n\n")(w, r)
	}))

	c := newClient(t, srv.URL+"/events/stream", staticCredentials("tok", "t1"))
	c.Connect()

	select {
	case h := <-headers:
		assert.Equal(t, "Bearer tok", h.Get("Authorization"))
		assert.Equal(t, "t1", h.Get("X-Tenant-ID"))
		assert.Equal(t, "text/event-stream", h.Get("Accept"))
	case <-time.After(2 * time.Second):
		t.Fatal("no request")
	}
}

func TestClient_ReconnectsAfterFailures(t *testing.T) {
	var attempts atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		if n <= 2 {
			http.Error(w, "down", http.StatusServiceUnavailable)
			return
		}
		streamServer(fmt.Sprintf("event: connected\ndata: %d\n\n", n))(w, r)
	}))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	rec := newRecorder()
	c.On("connected", rec.handle)
	c.Connect()

	assert.EqualValues(t, 3, rec.next(t).Data)
}

func TestClient_ReconnectsAfterStreamEnds(t *testing.T) {
	var attempts atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := attempts.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprintf(w, "event: connected\ndata: %d\n\n", n)
	}))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	rec := newRecorder()
	c.On("connected", rec.handle)
	c.Connect()

	assert.EqualValues(t, 1, rec.next(t).Data)
	assert.EqualValues(t, 2, rec.next(t).Data)
}

func TestClient_MissingTokenIsAFailedAttempt(t *testing.T) {
	var requests atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		streamServer("event: connected\ndata: {}\n\n")(w, r)
	}))

	var calls atomic.Int32
	creds := func(context.Context) (string, string, error) {
		if calls.Add(1) < 3 {
			return "", "", nil
		}
		return "tok", "", nil
	}

	c := newClient(t, srv.URL, creds)
	rec := newRecorder()
	c.On("connected", rec.handle)
	c.Connect()

	rec.next(t)
	assert.EqualValues(t, 1, requests.Load())
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestClient_DisconnectStopsReconnecting(t *testing.T) {
	var attempts atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	c.Connect()
	require.Eventually(t, func() bool { return attempts.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	c.Disconnect()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("connection loop did not exit")
	}
	assert.False(t, c.IsActive())

	seen := attempts.Load()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, seen, attempts.Load())
}

func TestClient_DisconnectAbortsOpenStream(t *testing.T) {
	srv := newServer(t, streamServer("event: connected\ndata: {}\n\n"))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	rec := newRecorder()
	c.On("connected", rec.handle)
	c.Connect()
	rec.next(t)

	c.Disconnect()
	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("in-flight read was not cancelled")
	}
}

func TestClient_ConnectIsIdempotent(t *testing.T) {
	var requests atomic.Int32
	srv := newServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		streamServer("event: connected\ndata: {}\n\n")(w, r)
	}))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	rec := newRecorder()
	c.On("connected", rec.handle)
	c.Connect()
	c.Connect()
	rec.next(t)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, requests.Load())
}

func TestClient_UnsubscribeAndPanickingHandler(t *testing.T) {
	srv := newServer(t, streamServer(
		"event: a\ndata: 1\n\n",
		"event: a\ndata: 2\n\n",
	))

	c := newClient(t, srv.URL, staticCredentials("tok", ""))
	removed := c.On("a", func(Event) { t.Error("unsubscribed handler called") })
	removed.Unsubscribe()
	removed.Unsubscribe()
	c.On("a", func(Event) { panic("boom") })
	rec := newRecorder()
	c.On("a", rec.handle)
	c.Connect()

	assert.EqualValues(t, 1, rec.next(t).Data)
	assert.EqualValues(t, 2, rec.next(t).Data)
}

func TestNew_Validates(t *testing.T) {
	_, err := New(Options{Credentials: staticCredentials("t", "")})
	assert.Error(t, err)
	_, err = New(Options{URL: "http://x"})
	assert.Error(t, err)
}
