package facade

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-realtime-events/internal/port/inbound"
)

type call struct {
	kind      string
	target    []string
	eventType string
	data      any
}

type recordingPublisher struct {
	calls []call
}

func (p *recordingPublisher) SendToUser(_ context.Context, userID, eventType string, data any) error {
	p.calls = append(p.calls, call{"user", []string{userID}, eventType, data})
	return nil
}

func (p *recordingPublisher) SendToTenant(_ context.Context, tenantID, eventType string, data any) error {
	p.calls = append(p.calls, call{"tenant", []string{tenantID}, eventType, data})
	return nil
}

func (p *recordingPublisher) Broadcast(_ context.Context, eventType string, data any) error {
	p.calls = append(p.calls, call{"broadcast", nil, eventType, data})
	return nil
}

func (p *recordingPublisher) SendToConnections(_ context.Context, ids []string, eventType string, data any) error {
	p.calls = append(p.calls, call{"connections", ids, eventType, data})
	return nil
}

func TestNotifyUser_AssignsID(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)

	require.NoError(t, svc.NotifyUser(context.Background(), "u1", inbound.Notification{Title: "hello"}))
	require.Len(t, pub.calls, 1)

	c := pub.calls[0]
	assert.Equal(t, "user", c.kind)
	assert.Equal(t, []string{"u1"}, c.target)
	assert.Equal(t, "notification.new", c.eventType)
	n := c.data.(inbound.Notification)
	assert.NotEmpty(t, n.ID)
	assert.Equal(t, "hello", n.Title)
}

func TestNotifyTenantAndConnections_KeepID(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)
	n := inbound.Notification{ID: "n1", Body: "b"}

	require.NoError(t, svc.NotifyTenant(context.Background(), "t1", n))
	require.NoError(t, svc.NotifyConnections(context.Background(), []string{"c1", "c2"}, n))

	require.Len(t, pub.calls, 2)
	assert.Equal(t, "tenant", pub.calls[0].kind)
	assert.Equal(t, "n1", pub.calls[0].data.(inbound.Notification).ID)
	assert.Equal(t, []string{"c1", "c2"}, pub.calls[1].target)
}

func TestNotify_RejectsEmptyNotification(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)

	err := svc.NotifyUser(context.Background(), "u1", inbound.Notification{})
	assert.True(t, errors.Is(err, ErrInvalidNotification))
	assert.Empty(t, pub.calls)
}

func TestAnnounceMaintenance(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)

	start := time.Now()
	end := start.Add(-time.Hour)
	err := svc.AnnounceMaintenance(context.Background(), inbound.Maintenance{Message: "m", StartsAt: &start, EndsAt: &end})
	assert.True(t, errors.Is(err, ErrInvalidNotification))
	assert.True(t, errors.Is(svc.AnnounceMaintenance(context.Background(), inbound.Maintenance{}), ErrInvalidNotification))

	require.NoError(t, svc.AnnounceMaintenance(context.Background(), inbound.Maintenance{Message: "upgrade at 02:00"}))
	require.Len(t, pub.calls, 1)
	assert.Equal(t, "broadcast", pub.calls[0].kind)
	assert.Equal(t, "system.maintenance", pub.calls[0].eventType)
}

func TestNotifyUsers_SharesOneID(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)

	require.NoError(t, svc.NotifyUsers(context.Background(), []string{"u1", "u2", "u3"}, inbound.Notification{Title: "hi"}))
	require.Len(t, pub.calls, 3)

	id := pub.calls[0].data.(inbound.Notification).ID
	assert.NotEmpty(t, id)
	for i, c := range pub.calls {
		assert.Equal(t, "user", c.kind)
		assert.Equal(t, id, c.data.(inbound.Notification).ID, "call %d", i)
	}
}

func TestNotifyUsers_InvalidIDNotifiesNobody(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewNotificationApplicationService(pub)

	err := svc.NotifyUsers(context.Background(), []string{"u1", "", "u2"}, inbound.Notification{Title: "hi"})
	assert.True(t, errors.Is(err, ErrInvalidNotification))
	assert.Empty(t, pub.calls)

	err = svc.NotifyUsers(context.Background(), nil, inbound.Notification{Title: "hi"})
	assert.True(t, errors.Is(err, ErrInvalidNotification))
	err = svc.NotifyUsers(context.Background(), []string{"u1"}, inbound.Notification{})
	assert.True(t, errors.Is(err, ErrInvalidNotification))
	assert.Empty(t, pub.calls)
}
