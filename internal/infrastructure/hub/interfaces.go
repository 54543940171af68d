package hub

// Stream is the transport owned by exactly one Connection. Implementations write a
// complete frame and flush it before returning; they are never called concurrently.
type Stream interface {
	Kind() string
	WriteEvent(event Event) error
	WriteComment(text string) error
	Close() error
}
