package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSAdapter terminates websocket clients and translates their frames into
// gateway events. Each connection gets one writer goroutine; replies are
// queued on a per-connection channel so handlers never write concurrently.
type WSAdapter struct {
	upgrader websocket.Upgrader
	handler  EventHandler
	conns    map[string]*wsConn
	mu       sync.RWMutex
	logger   *zap.Logger
}

type wsConn struct {
	id   string
	ws   *websocket.Conn
	send chan Envelope
	done chan struct{}
}

// NewWSAdapter creates a websocket adapter.
func NewWSAdapter(logger *zap.Logger) *WSAdapter {
	return &WSAdapter{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*wsConn),
		logger: logger,
	}
}

func (a *WSAdapter) Name() string { return "ws" }

func (a *WSAdapter) Start(_ context.Context) error { return nil }

func (a *WSAdapter) OnEvent(h EventHandler) { a.handler = h }

// ServeHTTP upgrades the request and runs the connection's read loop.
func (a *WSAdapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &wsConn{
		id:   uuid.New().String(),
		ws:   ws,
		send: make(chan Envelope, 16),
		done: make(chan struct{}),
	}
	a.mu.Lock()
	a.conns[c.id] = c
	a.mu.Unlock()
	a.logger.Info("ui client connected", zap.String("conn", c.id))

	go a.writeLoop(c)
	a.readLoop(c)

	a.mu.Lock()
	delete(a.conns, c.id)
	a.mu.Unlock()
	close(c.done)
	ws.Close()
	a.logger.Info("ui client disconnected", zap.String("conn", c.id))
}

func (a *WSAdapter) readLoop(c *wsConn) {
	for {
		var env Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				a.logger.Warn("websocket read failed", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		if env.Type != EnvelopeType || env.Data == nil {
			continue
		}

		ev := &Event{
			ConnID:    c.id,
			Component: stringField(env.Data, "component"),
			Action:    stringField(env.Data, "action"),
			RequestID: stringField(env.Data, "requestId"),
			Payload:   env.Data,
		}
		if a.handler != nil {
			a.handler(ev)
		}
	}
}

func (a *WSAdapter) writeLoop(c *wsConn) {
	for {
		select {
		case env := <-c.send:
			if err := c.ws.WriteJSON(env); err != nil {
				a.logger.Warn("websocket write failed", zap.String("conn", c.id), zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

// Send queues a reply on the originating connection.
func (a *WSAdapter) Send(_ context.Context, reply *Reply) error {
	a.mu.RLock()
	c, ok := a.conns[reply.ConnID]
	a.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no active connection: %s", reply.ConnID)
	}
	select {
	case c.send <- reply.Envelope():
		return nil
	default:
		return fmt.Errorf("connection %s send buffer full", reply.ConnID)
	}
}

// Close drops all live connections.
func (a *WSAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for id, c := range a.conns {
		c.ws.Close()
		delete(a.conns, id)
	}
	return nil
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
