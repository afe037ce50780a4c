package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/gehchat/bridge/internal/bridge"
	"github.com/gehchat/bridge/internal/logging"
	"github.com/gehchat/bridge/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512 * 1024 // 512 KB
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checking is delegated to the CORS layer; the bridge is
	// origin-agnostic by deployment policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsClient adapts a gorilla websocket connection to bridge.ClientConn.
// A mutex serializes writes: the IRC read loop and the command path both
// send events concurrently, and gorilla allows only one writer.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// handleWebSocket accepts a client connection, creates its bridge
// session and runs the per-connection read/dispatch loop until the
// client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.NewString()
	client := &wsClient{conn: conn}
	session := bridge.NewSession(s.cfg.IRC, s.keys, client, connID)

	s.registry.Add(connID, session)
	logging.Info().
		Str("conn_id", connID).
		Int("total", s.registry.Len()).
		Msg("websocket client connected")

	defer func() {
		s.registry.Remove(connID)
		session.Shutdown()
		_ = conn.Close()
		logging.Info().
			Str("conn_id", connID).
			Int("total", s.registry.Len()).
			Msg("websocket client disconnected")
	}()

	if err := client.Send(protocol.Event{Type: protocol.EventConnected}); err != nil {
		logging.Error().Err(err).Msg("failed to send connected event")
		return
	}

	conn.SetReadLimit(maxMessageSize)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warn().Err(err).Str("conn_id", connID).Msg("websocket read error")
			}
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn().Err(err).Str("conn_id", connID).Msg("malformed client message")
			continue
		}

		if err := s.dispatcher.Dispatch(session, &msg); err != nil {
			var unknown *bridge.UnknownCommandError
			if errors.As(err, &unknown) {
				logging.Warn().Str("type", unknown.Kind).Msg("unhandled message type")
				continue
			}
			logging.Error().Err(err).Msg("dispatch failed")
		}
	}
}
