// Package hubtest provides Stream doubles for tests of code that writes to connections.
package hubtest

import (
	"errors"
	"sync"

	"go-realtime-events/internal/infrastructure/hub"
)

var ErrBroken = errors.New("hubtest: broken pipe")

// Stream records everything written to it. It can be made to fail or to block.
type Stream struct {
	mu       sync.Mutex
	events   []hub.Event
	comments []string
	closed   bool
	fail     bool
	block    chan struct{}
	written  chan struct{}
}

func NewStream() *Stream {
	return &Stream{written: make(chan struct{}, 1024)}
}

// NewFailingStream returns a Stream whose writes all fail with ErrBroken.
func NewFailingStream() *Stream {
	s := NewStream()
	s.fail = true
	return s
}

// NewBlockingStream returns a Stream whose writes hang until Unblock is called.
func NewBlockingStream() *Stream {
	s := NewStream()
	s.block = make(chan struct{})
	return s
}

func (s *Stream) Unblock() { close(s.block) }

func (s *Stream) Kind() string { return "test" }

func (s *Stream) WriteEvent(event hub.Event) error {
	return s.record(func() { s.events = append(s.events, event) })
}

func (s *Stream) WriteComment(text string) error {
	return s.record(func() { s.comments = append(s.comments, text) })
}

func (s *Stream) record(fn func()) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return ErrBroken
	}
	fn()
	select {
	case s.written <- struct{}{}:
	default:
	}
	return nil
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Stream) Events() []hub.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]hub.Event(nil), s.events...)
}

// EventTypes lists the types of the recorded events in write order.
func (s *Stream) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, len(s.events))
	for i, e := range s.events {
		types[i] = e.Type
	}
	return types
}

func (s *Stream) Comments() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.comments...)
}

func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Written signals after each successful write.
func (s *Stream) Written() <-chan struct{} { return s.written }
