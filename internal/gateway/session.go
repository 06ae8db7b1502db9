package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openride/dispatch/pkg/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Outbound buffer per session; a full buffer drops the session
	sendBuffer = 256
)

// SessionKind is the subscription a websocket session holds.
type SessionKind string

const (
	KindRider  SessionKind = "rider"
	KindDriver SessionKind = "driver"
	KindRide   SessionKind = "ride"
	KindBrowse SessionKind = "browse"
)

// Session is one websocket connection. All writes go through the buffered
// Send channel so the write pump is the only writer on the connection.
type Session struct {
	Kind SessionKind
	ID   int64 // rider, driver or ride id; zero for browse sessions

	conn *websocket.Conn
	hub  *Hub
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewSession creates a session for an upgraded connection.
func NewSession(kind SessionKind, id int64, conn *websocket.Conn, hub *Hub) *Session {
	return &Session{
		Kind: kind,
		ID:   id,
		conn: conn,
		hub:  hub,
		Send: make(chan []byte, sendBuffer),
	}
}

// SendMessage queues a frame for the session. A full buffer means the peer
// is not keeping up; the session is dropped rather than blocking the
// fan-out. Frames queued after the session closed are discarded.
func (s *Session) SendMessage(payload []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	select {
	case s.Send <- payload:
		s.mu.Unlock()
	default:
		s.mu.Unlock()
		logger.Warn("session buffer full, dropping session",
			zap.String("kind", string(s.Kind)),
			zap.Int64("id", s.ID),
		)
		s.hub.Remove(s)
	}
}

func (s *Session) closeSend() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.Send)
	}
}

// ReadPump reads inbound frames and hands them to the hub's inbound handler
// until the connection drops.
func (s *Session) ReadPump() {
	defer func() {
		s.hub.Remove(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error",
					zap.String("kind", string(s.Kind)),
					zap.Int64("id", s.ID),
					zap.Error(err),
				)
			}
			break
		}
		s.hub.handleInbound(s, data)
	}
}

// WritePump drains the Send channel onto the connection and keeps the peer
// alive with pings.
func (s *Session) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-s.Send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
