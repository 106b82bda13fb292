package websocket

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"marketchat/pkg/interfaces"
)

var upgrader = websocket.Upgrader{
	// The surrounding app serves browsers from arbitrary storefront
	// origins; credential checks live in the HTTP layer, not here.
	CheckOrigin:      func(r *http.Request) bool { return true },
	HandshakeTimeout: 10 * time.Second,
}

// EventSink receives decoded transport activity. The hub implements it;
// the handler stays free of routing decisions.
type EventSink interface {
	// Dispatch queues one inbound frame from the connection.
	Dispatch(conn interfaces.Connection, data []byte) error

	// Disconnect queues the connection's teardown.
	Disconnect(conn interfaces.Connection) error
}

// Options tune the per-connection transport behaviour.
type Options struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	SendBuffer   int
}

// DefaultOptions match a browser client that answers pings promptly.
func DefaultOptions() Options {
	return Options{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		SendBuffer:   100,
	}
}

// Handler upgrades HTTP requests to WebSocket connections and runs the
// per-connection read pump. Identity is not required to connect; it is
// claimed later with a join-user event.
type Handler struct {
	sink EventSink
	opts Options
}

// NewHandler creates a transport handler feeding the given sink.
func NewHandler(sink EventSink, opts Options) *Handler {
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultOptions().PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultOptions().ReadTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = DefaultOptions().SendBuffer
	}
	return &Handler{sink: sink, opts: opts}
}

// HandleWebSocket upgrades the request and services the connection
// until the peer goes away.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	conn := NewConnection(wsConn, h.opts.SendBuffer)
	log.Printf("connection opened: %s", conn.ConnectionID())
	go h.readPump(conn)
}

// readPump reads frames until the connection drops, keeping the
// heartbeat alive and handing every text frame to the sink. Disconnect
// is reported exactly once, from the deferred cleanup.
func (h *Handler) readPump(conn *Connection) {
	defer func() {
		if err := h.sink.Disconnect(conn); err != nil {
			log.Printf("disconnect dispatch failed for %s: %v", conn.ConnectionID(), err)
		}
		_ = conn.Close()
		log.Printf("connection closed: %s", conn.ConnectionID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(writeTimeout)
				if err := conn.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-conn.ctx.Done():
				return
			}
		}
	}()

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("read error on %s: %v", conn.ConnectionID(), err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := h.sink.Dispatch(conn, data); err != nil {
			log.Printf("event dispatch failed for %s: %v", conn.ConnectionID(), err)
		}
	}
}
