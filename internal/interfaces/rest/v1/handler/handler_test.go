package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-realtime-events/internal/application/facade"
	"go-realtime-events/internal/infrastructure/auth"
	"go-realtime-events/internal/infrastructure/broker"
	"go-realtime-events/internal/infrastructure/fanout"
	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/hub/hubtest"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
)

type env struct {
	router   *gin.Engine
	registry *hub.Registry
	notifier *fanout.Notifier
	admin    string
	member   string
}

func setup(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.NewNop()
	registry := hub.NewRegistry(log)
	notifier := fanout.New(broker.NewMemory(), registry, log)
	require.NoError(t, notifier.Start(context.Background()))
	t.Cleanup(func() { _ = notifier.Stop(context.Background()) })

	a := auth.NewJWTAuthenticator("secret", "")
	admin, err := a.Sign(auth.Identity{UserID: "root", TenantID: "t1", Roles: []string{AdminRole}}, time.Minute)
	require.NoError(t, err)
	member, err := a.Sign(auth.Identity{UserID: "u1", TenantID: "t1"}, time.Minute)
	require.NoError(t, err)

	router := gin.New()
	InitRESTRouter(log, Dependencies{
		Publisher:     notifier,
		Notifications: facade.NewNotificationApplicationService(notifier),
		Registry:      registry,
		Stats:         notifier,
		InstanceID:    "node-a",
	}, middleware.Authenticate(a, log), middleware.RequireRole(AdminRole), router.Group(""))

	return &env{router: router, registry: registry, notifier: notifier, admin: admin, member: member}
}

func (e *env) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *env) connect(userID, tenantID string) (*hub.Connection, *hubtest.Stream) {
	stream := hubtest.NewStream()
	conn := hub.NewConnection(userID, tenantID, stream, logger.NewNop())
	e.registry.Add(conn)
	return conn, stream
}

func waitEvent(t *testing.T, s *hubtest.Stream) hub.Event {
	t.Helper()
	select {
	case <-s.Written():
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	events := s.Events()
	return events[len(events)-1]
}

func TestPublishToUser(t *testing.T) {
	e := setup(t)
	_, stream := e.connect("u7", "t1")

	w := e.do(http.MethodPost, "/api/v1/events/users/u7", e.admin, gin.H{"type": "order.shipped", "data": gin.H{"id": 9}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	ev := waitEvent(t, stream)
	assert.Equal(t, "order.shipped", ev.Type)
	assert.JSONEq(t, `{"id":9}`, string(ev.Data))
}

func TestPublish_Validation(t *testing.T) {
	e := setup(t)

	w := e.do(http.MethodPost, "/api/v1/events/broadcast", e.member, gin.H{"type": "x"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, "/api/v1/events/broadcast", "", gin.H{"type": "x"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = e.do(http.MethodPost, "/api/v1/events/broadcast", e.admin, gin.H{"data": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/v1/events/connections", e.admin, gin.H{"type": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = e.do(http.MethodPost, "/api/v1/events/broadcast", e.admin, gin.H{"type": "bad\ntype"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishToConnectionsAndBroadcast(t *testing.T) {
	e := setup(t)
	picked, s1 := e.connect("u1", "t1")
	_, s2 := e.connect("u2", "t2")

	w := e.do(http.MethodPost, "/api/v1/events/connections", e.admin,
		gin.H{"type": "ping", "connectionIds": []string{picked.ID()}})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ping", waitEvent(t, s1).Type)

	w = e.do(http.MethodPost, "/api/v1/events/broadcast", e.admin, gin.H{"type": "system.maintenance"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "system.maintenance", waitEvent(t, s1).Type)
	assert.Equal(t, "system.maintenance", waitEvent(t, s2).Type)
	assert.Equal(t, []string{"system.maintenance"}, s2.EventTypes())
}

func TestListConnections_OnlyCallersTenant(t *testing.T) {
	e := setup(t)
	mine, _ := e.connect("u1", "t1")
	e.connect("u2", "t2")

	w := e.do(http.MethodGet, "/api/v1/events/connections", e.member, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total       int                  `json:"total_connections"`
		Connections []hub.ConnectionInfo `json:"connections"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 1, body.Total)
	assert.Equal(t, mine.ID(), body.Connections[0].ID)
	assert.Equal(t, "test", body.Connections[0].Transport)
}

func TestSendNotification(t *testing.T) {
	e := setup(t)
	_, target := e.connect("u1", "t1")
	_, other := e.connect("u2", "t1")

	w := e.do(http.MethodPost, "/api/v1/admin/notifications/send", e.admin,
		gin.H{"tenantId": "t1", "userIds": []string{"u1"}, "title": "Invoice ready", "link": "/invoices/1"})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	ev := waitEvent(t, target)
	assert.Equal(t, "notification.new", ev.Type)
	var n map[string]any
	require.NoError(t, json.Unmarshal(ev.Data, &n))
	assert.Equal(t, "Invoice ready", n["title"])
	assert.NotEmpty(t, n["id"])

	w = e.do(http.MethodPost, "/api/v1/admin/notifications/send", e.admin, gin.H{"tenantId": "t1", "title": "All hands"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "notification.new", waitEvent(t, other).Type)
}

func TestSendNotification_InvalidUserNotifiesNobody(t *testing.T) {
	e := setup(t)
	_, first := e.connect("u1", "t1")

	w := e.do(http.MethodPost, "/api/v1/admin/notifications/send", e.admin,
		gin.H{"tenantId": "t1", "userIds": []string{"u1", ""}, "title": "Invoice ready"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, first.Events())
}

func TestAnnounceMaintenance(t *testing.T) {
	e := setup(t)
	_, s := e.connect("u1", "t9")

	w := e.do(http.MethodPost, "/api/v1/admin/maintenance", e.admin, gin.H{"message": "upgrade tonight"})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "system.maintenance", waitEvent(t, s).Type)
}

func TestStatus(t *testing.T) {
	e := setup(t)
	e.connect("u1", "t1")

	w := e.do(http.MethodGet, "/hub/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "node-a", body["instance"])
	assert.EqualValues(t, 1, body["connections"])

	require.NoError(t, e.notifier.Stop(context.Background()))
	w = e.do(http.MethodGet, "/hub/status", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
