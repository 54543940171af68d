package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-realtime-events/internal/infrastructure/auth"
	"go-realtime-events/internal/infrastructure/broker"
	"go-realtime-events/internal/infrastructure/fanout"
	"go-realtime-events/internal/infrastructure/hub"
	"go-realtime-events/internal/infrastructure/logger"
	"go-realtime-events/internal/interfaces/middleware"
	"go-realtime-events/internal/interfaces/sse"
)

func TestWebSocket_StreamLifecycle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()
	registry := hub.NewRegistry(log)
	notifier := fanout.New(broker.NewMemory(), registry, log)
	require.NoError(t, notifier.Start(context.Background()))
	authenticator := auth.NewJWTAuthenticator("secret", "")

	router := gin.New()
	InitWebSocketRouter(log, registry, notifier,
		sse.Options{HeartbeatInterval: time.Hour, WriteTimeout: time.Second},
		[]string{"*"}, middleware.Authenticate(authenticator, log), router.Group(""))
	srv := httptest.NewServer(router)
	defer srv.Close()
	defer notifier.Stop(context.Background())

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := authenticator.Sign(auth.Identity{UserID: "u1", TenantID: "t1"}, time.Minute)
	require.NoError(t, err)
	header := http.Header{"Authorization": []string{"Bearer " + token}}

	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	var hello struct {
		Event string `json:"event"`
		Data  struct {
			ConnectionID string `json:"connectionId"`
			UserID       string `json:"userId"`
		} `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&hello))
	assert.Equal(t, "connected", hello.Event)
	assert.Equal(t, "u1", hello.Data.UserID)

	conn, ok := registry.Get(hello.Data.ConnectionID)
	require.True(t, ok)
	assert.Equal(t, "websocket", conn.Transport())

	require.NoError(t, notifier.SendToTenant(context.Background(), "t1", "notification.new", map[string]string{"id": "n1"}))
	var ev struct {
		Event string            `json:"event"`
		Data  map[string]string `json:"data"`
	}
	require.NoError(t, ws.ReadJSON(&ev))
	assert.Equal(t, "notification.new", ev.Event)
	assert.Equal(t, "n1", ev.Data["id"])

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://app.example"})

	r := httptest.NewRequest(http.MethodGet, "/events/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://app.example")
	assert.True(t, check(r))

	r.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(r))

	assert.True(t, OriginChecker([]string{"*"})(r))
}
