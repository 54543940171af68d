package hub

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure marks a write that left its Connection unusable.
	ErrTransportFailure = errors.New("transport failure")
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timed out")
	ErrQueueFull        = errors.New("send queue full")
)

// TransportError reports which Connection failed. It matches ErrTransportFailure
// under errors.Is and unwraps to the underlying cause.
type TransportError struct {
	ConnectionID string
	Err          error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("connection %s: transport failure: %v", e.ConnectionID, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransportFailure }
