package facade

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/port/inbound"
)

var ErrInvalidNotification = errors.New("invalid notification")

// NotificationApplicationService turns business notifications into events.
type NotificationApplicationService struct {
	publisher inbound.EventPublisher
}

var _ inbound.NotificationUseCase = (*NotificationApplicationService)(nil)

func NewNotificationApplicationService(publisher inbound.EventPublisher) *NotificationApplicationService {
	return &NotificationApplicationService{publisher: publisher}
}

func (s *NotificationApplicationService) NotifyUser(ctx context.Context, userID string, n inbound.Notification) error {
	if err := prepare(&n); err != nil {
		return err
	}
	return s.publisher.SendToUser(ctx, userID, hub.EventNotificationNew, n)
}

func (s *NotificationApplicationService) NotifyUsers(ctx context.Context, userIDs []string, n inbound.Notification) error {
	if len(userIDs) == 0 {
		return errors.Wrap(ErrInvalidNotification, "at least one user id is required")
	}
	for _, userID := range userIDs {
		if userID == "" {
			return errors.Wrap(ErrInvalidNotification, "user ids must not be empty")
		}
	}
	if err := prepare(&n); err != nil {
		return err
	}

	for _, userID := range userIDs {
		if err := s.publisher.SendToUser(ctx, userID, hub.EventNotificationNew, n); err != nil {
			return err
		}
	}
	return nil
}

func (s *NotificationApplicationService) NotifyTenant(ctx context.Context, tenantID string, n inbound.Notification) error {
	if err := prepare(&n); err != nil {
		return err
	}
	return s.publisher.SendToTenant(ctx, tenantID, hub.EventNotificationNew, n)
}

func (s *NotificationApplicationService) NotifyConnections(ctx context.Context, connectionIDs []string, n inbound.Notification) error {
	if err := prepare(&n); err != nil {
		return err
	}
	return s.publisher.SendToConnections(ctx, connectionIDs, hub.EventNotificationNew, n)
}

// AnnounceMaintenance reaches every connected client of every tenant.
func (s *NotificationApplicationService) AnnounceMaintenance(ctx context.Context, m inbound.Maintenance) error {
	if m.Message == "" {
		return errors.Wrap(ErrInvalidNotification, "maintenance message is required")
	}
	if m.StartsAt != nil && m.EndsAt != nil && m.EndsAt.Before(*m.StartsAt) {
		return errors.Wrap(ErrInvalidNotification, "maintenance ends before it starts")
	}
	return s.publisher.Broadcast(ctx, hub.EventSystemMaintenance, m)
}

// prepare assigns an id when the producer did not supply one.
func prepare(n *inbound.Notification) error {
	if n.Title == "" && n.Body == "" {
		return errors.Wrap(ErrInvalidNotification, "title or body is required")
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	return nil
}
