package hub

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/sse"
)

// SetSSEHeaders prepares a response for a long-lived event stream.
func SetSSEHeaders(h http.Header) {
	h.Set("Content-Type", sse.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // nginx
}

// SSEStream writes text/event-stream records to an HTTP response.
type SSEStream struct {
	w            http.ResponseWriter
	rc           *http.ResponseController
	writeTimeout time.Duration
}

var ErrStreamingUnsupported = errors.New("response writer does not support flushing")

func NewSSEStream(w http.ResponseWriter, writeTimeout time.Duration) (*SSEStream, error) {
	if _, ok := w.(http.Flusher); !ok {
		return nil, ErrStreamingUnsupported
	}
	return &SSEStream{
		w:            w,
		rc:           http.NewResponseController(w),
		writeTimeout: writeTimeout,
	}, nil
}

func (s *SSEStream) Kind() string { return "sse" }

func (s *SSEStream) WriteEvent(event Event) error {
	return s.write(FormatEvent(event))
}

func (s *SSEStream) WriteComment(text string) error {
	return s.write(FormatComment(text))
}

func (s *SSEStream) write(p []byte) error {
	if s.writeTimeout > 0 {
		err := s.rc.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		if err != nil && !errors.Is(err, http.ErrNotSupported) {
			return err
		}
	}
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close is a no-op: the response belongs to the HTTP handler, which ends it by returning.
func (s *SSEStream) Close() error { return nil }
