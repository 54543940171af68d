// Package fanout bridges events between instances: producers publish Envelopes to the
// broker and every instance delivers them to its own matching connections.
package fanout

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"go-realtime-events/internal/infrastructure/hub"
)

// EnvelopeVersion is written into every envelope. Decoding accepts any version and
// relies on the fields below staying backwards compatible.
const EnvelopeVersion = 1

var (
	ErrMalformedEnvelope = errors.New("malformed envelope")
	ErrInvalidTarget     = errors.New("invalid target")
)

type TargetKind string

const (
	TargetUser        TargetKind = "user"
	TargetTenant      TargetKind = "tenant"
	TargetConnections TargetKind = "connections"
	TargetBroadcast   TargetKind = "broadcast"
)

// Target selects the connections an Envelope is delivered to.
type Target struct {
	Kind          TargetKind `json:"kind"`
	UserID        string     `json:"userId,omitempty"`
	TenantID      string     `json:"tenantId,omitempty"`
	ConnectionIDs []string   `json:"connectionIds,omitempty"`
}

func UserTarget(userID string) Target     { return Target{Kind: TargetUser, UserID: userID} }
func TenantTarget(tenantID string) Target { return Target{Kind: TargetTenant, TenantID: tenantID} }
func BroadcastTarget() Target             { return Target{Kind: TargetBroadcast} }

func ConnectionsTarget(ids []string) Target {
	return Target{Kind: TargetConnections, ConnectionIDs: ids}
}

func (t Target) Validate() error {
	switch t.Kind {
	case TargetUser:
		if t.UserID == "" {
			return errors.Wrap(ErrInvalidTarget, "user id is required")
		}
	case TargetTenant:
		if t.TenantID == "" {
			return errors.Wrap(ErrInvalidTarget, "tenant id is required")
		}
	case TargetConnections:
		if len(t.ConnectionIDs) == 0 {
			return errors.Wrap(ErrInvalidTarget, "at least one connection id is required")
		}
	case TargetBroadcast:
	default:
		return errors.Wrapf(ErrInvalidTarget, "unknown kind %q", t.Kind)
	}
	return nil
}

func (t Target) String() string {
	switch t.Kind {
	case TargetUser:
		return "user:" + t.UserID
	case TargetTenant:
		return "tenant:" + t.TenantID
	case TargetConnections:
		return fmt.Sprintf("connections:%d", len(t.ConnectionIDs))
	default:
		return string(t.Kind)
	}
}

// Envelope is the message exchanged between instances on the broker channel.
type Envelope struct {
	Version   int             `json:"v"`
	Target    Target          `json:"target"`
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
	Origin    string          `json:"origin,omitempty"`
	SentAt    time.Time       `json:"sentAt"`
}

func (e *Envelope) Encode() ([]byte, error) {
	if err := e.Target.Validate(); err != nil {
		return nil, err
	}
	if err := hub.ValidateEventType(e.EventType); err != nil {
		return nil, err
	}
	if e.Version == 0 {
		e.Version = EnvelopeVersion
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("null")
	}
	return json.Marshal(e)
}

// DecodeEnvelope parses a broker message. Every failure matches ErrMalformedEnvelope.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(payload, &e); err != nil {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "decode: %v", err)
	}
	if err := e.Target.Validate(); err != nil {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "target: %v", err)
	}
	if err := hub.ValidateEventType(e.EventType); err != nil {
		return nil, errors.Wrapf(ErrMalformedEnvelope, "event type: %v", err)
	}
	if len(e.Data) == 0 {
		e.Data = json.RawMessage("null")
	}
	return &e, nil
}
