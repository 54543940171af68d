package hub

import (
	"time"

	"github.com/gorilla/websocket"
)

// maxControlPayload is the largest payload a websocket control frame may carry.
const maxControlPayload = 125

// WebSocketStream carries events as JSON text messages ({"event":..,"data":..})
// and keepalives as ping frames.
type WebSocketStream struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
}

func NewWebSocketStream(conn *websocket.Conn, writeTimeout time.Duration) *WebSocketStream {
	return &WebSocketStream{conn: conn, writeTimeout: writeTimeout}
}

func (s *WebSocketStream) Kind() string { return "websocket" }

func (s *WebSocketStream) deadline() time.Time {
	if s.writeTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(s.writeTimeout)
}

func (s *WebSocketStream) WriteEvent(event Event) error {
	if event.Data == nil {
		event.Data = []byte("null")
	}
	if err := s.conn.SetWriteDeadline(s.deadline()); err != nil {
		return err
	}
	return s.conn.WriteJSON(event)
}

func (s *WebSocketStream) WriteComment(text string) error {
	payload := []byte(text)
	if len(payload) > maxControlPayload {
		payload = payload[:maxControlPayload]
	}
	return s.conn.WriteControl(websocket.PingMessage, payload, s.deadline())
}

func (s *WebSocketStream) Close() error {
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return s.conn.Close()
}
