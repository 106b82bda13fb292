// Package hub owns the single event-dispatch loop. Every inbound frame
// and every disconnect is funneled through one goroutine, which is the
// only mutator of the registry, so registration, delivery and presence
// updates never race each other.
package hub

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/go-playground/validator/v10"

	"marketchat/internal/relay"
	"marketchat/internal/websocket"
	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

// inboundEvent pairs a raw frame with the connection it arrived on.
type inboundEvent struct {
	conn  interfaces.Connection
	frame []byte
}

// Hub serializes all real-time events through one dispatch goroutine.
// It implements websocket.EventSink.
type Hub struct {
	events      chan inboundEvent
	disconnects chan interfaces.Connection
	shutdown    chan struct{}

	registry *websocket.Registry
	relay    *relay.Relay
	validate *validator.Validate

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub over the given registry and relay.
func NewHub(registry *websocket.Registry, rly *relay.Relay) *Hub {
	return &Hub{
		events:      make(chan inboundEvent, 1000),
		disconnects: make(chan interfaces.Connection, 100),
		registry:    registry,
		relay:       rly,
		validate:    validator.New(),
	}
}

// Start launches the dispatch goroutine. A stopped hub may be started
// again; each run gets its own shutdown channel.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	shutdown := h.shutdown
	h.mu.Unlock()

	log.Println("starting chat hub")
	go h.run(ctx, shutdown)
	return nil
}

// Stop shuts the dispatch loop down. Queued events are discarded.
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	return nil
}

// Dispatch queues one inbound frame. Called from connection read pumps.
func (h *Hub) Dispatch(conn interfaces.Connection, data []byte) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.events <- inboundEvent{conn: conn, frame: data}:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Disconnect queues a connection teardown.
func (h *Hub) Disconnect(conn interfaces.Connection) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	select {
	case h.disconnects <- conn:
		return nil
	default:
		return ErrDisconnectChannelFull
	}
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}) {
	defer log.Println("chat hub stopped")

	for {
		select {
		case ev := <-h.events:
			h.dispatchEvent(ev)
		case conn := <-h.disconnects:
			h.handleDisconnect(conn)
		case <-shutdown:
			return
		case <-ctx.Done():
			return
		}
	}
}

// dispatchEvent decodes and handles one frame. A panic or error in one
// handler is contained here: it is logged and the loop moves on, so a
// bad frame from one connection never affects the others.
func (h *Hub) dispatchEvent(ev inboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("event handler panic on %s: %v", ev.conn.ConnectionID(), r)
		}
	}()

	event, err := types.DecodeClientEvent(ev.frame)
	if err != nil {
		log.Printf("undecodable frame from %s: %v", ev.conn.ConnectionID(), err)
		return
	}

	switch event.Event {
	case types.EventJoinUser:
		err = h.onJoinUser(ev.conn, event.Data)
	case types.EventSendMessage:
		err = h.onSendMessage(ev.conn, event.Data)
	case types.EventTypingStart, types.EventTyping:
		err = h.onTyping(ev.conn, event.Data, true)
	case types.EventTypingStop, types.EventStopTyping:
		err = h.onTyping(ev.conn, event.Data, false)
	default:
		err = types.ErrUnknownEvent
	}

	if err != nil {
		log.Printf("event %q from %s rejected: %v", event.Event, ev.conn.ConnectionID(), err)
	}
}

// onJoinUser validates the claimed identity and, only if it is complete,
// binds it to the connection and registers it. A rejected registration
// leaves both the connection and the registry untouched.
func (h *Hub) onJoinUser(conn interfaces.Connection, data json.RawMessage) error {
	var payload types.JoinUserPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return websocket.ErrInvalidRegistration
	}
	if err := h.validate.Struct(&payload); err != nil {
		return websocket.ErrInvalidRegistration
	}
	if !types.IsValidUserID(payload.UserID) {
		return types.ErrInvalidUserID
	}

	if err := conn.SetIdentity(payload.UserID, payload.Role, payload.Name); err != nil {
		return err
	}
	if err := h.registry.Register(conn); err != nil {
		return err
	}

	log.Printf("user registered: %s (%s) on %s", payload.UserID, payload.Role, conn.ConnectionID())
	h.relay.BroadcastOnline(conn)
	return nil
}

func (h *Hub) onSendMessage(conn interfaces.Connection, data json.RawMessage) error {
	if !conn.IsRegistered() {
		return ErrNotRegistered
	}

	var payload types.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if err := h.validate.Struct(&payload); err != nil {
		return err
	}
	if !types.IsValidMessage(payload.Message) {
		return types.ErrInvalidMessage
	}

	_, err := h.relay.Send(conn, &payload)
	return err
}

func (h *Hub) onTyping(conn interfaces.Connection, data json.RawMessage, start bool) error {
	if !conn.IsRegistered() {
		return ErrNotRegistered
	}

	var payload types.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	if err := h.validate.Struct(&payload); err != nil {
		return err
	}

	h.relay.Typing(conn, &payload, start)
	return nil
}

// handleDisconnect removes the connection from the registry and, when
// the connection still owned its user's presence slot, announces the
// user offline. A connection that never registered disconnects in
// silence.
func (h *Hub) handleDisconnect(conn interfaces.Connection) {
	if conn == nil || !conn.IsRegistered() {
		return
	}

	record, removed := h.registry.Unregister(conn)
	if !removed {
		return
	}

	log.Printf("user offline: %s (%s)", record.UserID, record.Role)
	h.relay.ForgetSender(record.UserID)
	h.relay.BroadcastOffline(record)
}
