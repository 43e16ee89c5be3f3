package transport

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeTimeout = 10 * time.Second

// wsConn wraps a websocket connection behind the engine's Connection
// interface. Outbound messages go through a buffered queue drained by a
// single write pump, so Send never blocks the broadcaster on a slow peer.
type wsConn struct {
	wc     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newWSConn(wc *websocket.Conn, sendBuffer int, logger *slog.Logger) *wsConn {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &wsConn{
		wc:     wc,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues a message for delivery. Delivery is best-effort: a closed
// connection or a full queue drops the message, and the peer recovers it
// through its next handshake.
func (c *wsConn) Send(msg []byte) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	select {
	case c.send <- msg:
	default:
		c.logger.Debug("outbound queue full, dropping message")
	}
	return nil
}

// IsOpen reports whether the connection still accepts writes.
func (c *wsConn) IsOpen() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.wc.Close()
	})
}

// writePump serializes all writes to the underlying websocket.
func (c *wsConn) writePump() {
	for {
		select {
		case msg := <-c.send:
			_ = c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("write failed, closing connection", "error", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// handleWS upgrades the request and runs the connection state machine:
// on upgrade the connection is registered, every inbound text message is
// handed to the engine for classification, and on read error or close the
// connection is unregistered. No inbound message, however malformed, closes
// the connection.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	wc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	conn := newWSConn(wc, s.sendBuffer, s.logger)
	go conn.writePump()

	s.engine.Register(conn)
	s.logger.Info("client connected", "remote", wc.RemoteAddr().String())

	defer func() {
		s.engine.Unregister(conn)
		conn.close()
		s.logger.Info("client disconnected", "remote", wc.RemoteAddr().String())
	}()

	for {
		op, data, err := wc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("read error", "error", err)
			}
			return
		}
		if op != websocket.TextMessage {
			continue
		}
		s.engine.HandleMessage(data, conn)
	}
}
