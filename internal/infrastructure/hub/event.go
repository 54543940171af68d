package hub

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Well-known event types.
const (
	EventConnected         = "connected"
	EventNotificationNew   = "notification.new"
	EventSystemMaintenance = "system.maintenance"
)

// Event is an application event: a type discriminator plus an opaque JSON payload.
type Event struct {
	Type string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// NewEvent encodes v as the event payload. json.RawMessage and []byte holding
// valid JSON are used as-is; empty ones mean null.
func NewEvent(eventType string, v any) (Event, error) {
	if err := ValidateEventType(eventType); err != nil {
		return Event{}, err
	}
	data, err := MarshalData(v)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: eventType, Data: data}, nil
}

func MarshalData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case json.RawMessage:
		if len(d) == 0 {
			return json.RawMessage("null"), nil
		}
		if json.Valid(d) {
			return d, nil
		}
		return nil, fmt.Errorf("event data is not valid JSON")
	case []byte:
		if json.Valid(d) {
			return json.RawMessage(d), nil
		}
		return nil, fmt.Errorf("event data is not valid JSON")
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("event data must be JSON serializable: %w", err)
	}
	return raw, nil
}

// ValidateEventType rejects types that cannot be carried on a single "event:" line.
func ValidateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("event type cannot be empty")
	}
	if strings.ContainsAny(eventType, "\r\n") {
		return fmt.Errorf("event type %q contains a line break", eventType)
	}
	return nil
}
