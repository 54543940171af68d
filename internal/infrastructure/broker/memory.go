package broker

import (
	"context"
	"sync"
)

// Memory is an in-process broker. Every Notifier sharing one Memory behaves like a
// separate instance attached to the same channel.
type Memory struct {
	mu     sync.RWMutex
	subs   map[int]chan []byte
	nextID int
	closed bool
	buffer int
}

func NewMemory() *Memory {
	return &Memory{subs: make(map[int]chan []byte), buffer: 256}
}

func (m *Memory) Publish(ctx context.Context, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	msg := append([]byte(nil), payload...)
	for _, ch := range m.subs {
		select {
		case ch <- msg:
		default:
			// slow subscriber; pub/sub semantics allow the drop
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, handle Handler) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	id := m.nextID
	m.nextID++
	ch := make(chan []byte, m.buffer)
	m.subs[id] = ch
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			handle(msg)
		}
	}
}

// Subscribers reports how many subscriptions are active.
func (m *Memory) Subscribers() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for id, ch := range m.subs {
		close(ch)
		delete(m.subs, id)
	}
	return nil
}
