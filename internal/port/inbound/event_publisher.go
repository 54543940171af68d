package inbound

import "context"

// EventPublisher is the only way producers reach connected clients. Calls return once
// the event has been handed to the broker; delivery is best effort and never reported.
// A returned error means the request itself was invalid.
type EventPublisher interface {
	SendToUser(ctx context.Context, userID, eventType string, data any) error
	SendToTenant(ctx context.Context, tenantID, eventType string, data any) error
	Broadcast(ctx context.Context, eventType string, data any) error
	SendToConnections(ctx context.Context, connectionIDs []string, eventType string, data any) error
}
