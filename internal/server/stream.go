package server

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tradegate/tradegate/internal/decision"
	"github.com/tradegate/tradegate/internal/logging"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Stream fans final decisions out to connected WebSocket clients. A slow or
// dead client is dropped rather than allowed to block the broadcast.
type Stream struct {
	logger *logging.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func NewStream(logger *logging.Logger) *Stream {
	return &Stream{
		logger: logger.Named("stream"),
		conns:  make(map[*websocket.Conn]struct{}),
	}
}

// HandleConnection upgrades the request and holds the connection open until
// the client goes away.
func (s *Stream) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Welcome goes out before the connection is visible to Broadcast, so
	// this write cannot race a decision frame.
	conn.WriteJSON(map[string]any{
		"type":    "system",
		"message": "connected to decision stream",
	})

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()

	// Reader loop exists only to detect disconnects; inbound frames are
	// ignored.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	s.drop(conn)
}

// Broadcast sends one decision to every connected client. Writes happen
// under the lock: gorilla connections allow one concurrent writer, and
// serializing here is cheaper than a per-connection pump for this volume.
func (s *Stream) Broadcast(d *decision.Decision) {
	frame := map[string]any{
		"type":     "decision",
		"decision": d,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		if err := conn.WriteJSON(frame); err != nil {
			delete(s.conns, conn)
			conn.Close()
		}
	}
}

func (s *Stream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Close disconnects every client.
func (s *Stream) Close() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[*websocket.Conn]struct{})
	s.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
