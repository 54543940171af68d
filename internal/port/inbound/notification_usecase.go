package inbound

import (
	"context"
	"time"
)

type Notification struct {
	ID    string         `json:"id"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Type  string         `json:"type,omitempty"` // info, warning, ...
	Link  string         `json:"link,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

type Maintenance struct {
	Message  string     `json:"message"`
	StartsAt *time.Time `json:"startsAt,omitempty"`
	EndsAt   *time.Time `json:"endsAt,omitempty"`
}

type NotificationUseCase interface {
	NotifyUser(ctx context.Context, userID string, n Notification) error
	// NotifyUsers sends the same notification, with one id, to each listed user. No
	// one is notified when any user id is invalid.
	NotifyUsers(ctx context.Context, userIDs []string, n Notification) error
	NotifyTenant(ctx context.Context, tenantID string, n Notification) error
	NotifyConnections(ctx context.Context, connectionIDs []string, n Notification) error
	AnnounceMaintenance(ctx context.Context, m Maintenance) error
}
