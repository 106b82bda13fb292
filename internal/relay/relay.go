// Package relay implements the presence-aware delivery layer: online and
// offline broadcasts, directed message delivery with sender confirmation,
// and ephemeral typing signals. The relay holds no durable state and
// never touches the chat store; undelivered messages are reconciled by
// the client re-fetching persisted history over HTTP.
package relay

import (
	"log"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/websocket"
	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

// Relay routes events to connections through the registry's channels.
type Relay struct {
	registry *websocket.Registry
	limiter  *SenderLimiter
}

// New creates a relay over the given registry. limiter may be nil to
// disable send throttling.
func New(registry *websocket.Registry, limiter *SenderLimiter) *Relay {
	return &Relay{registry: registry, limiter: limiter}
}

// BroadcastOnline announces a completed registration to every other
// connected party and hands the registering connection a one-time
// presence snapshot, so its UI starts from the full online set instead
// of waiting for future events.
func (r *Relay) BroadcastOnline(conn interfaces.Connection) {
	snapshot := r.registry.ListOnline()
	if err := conn.WriteJSON(types.ServerEvent{Event: types.EventOnlineUsers, Data: snapshot}); err != nil {
		log.Printf("snapshot delivery failed for %s: %v", conn.GetUserID(), err)
	}

	announcement := types.ServerEvent{
		Event: types.EventUserOnline,
		Data: types.OnlineUser{
			UserID: conn.GetUserID(),
			Name:   conn.GetDisplayName(),
			Role:   conn.GetRole(),
			Online: true,
		},
	}
	r.broadcastExcept(announcement, conn.GetUserID())
}

// BroadcastOffline announces that a user's presence slot was vacated.
// The caller only invokes it when the disconnecting connection actually
// owned the slot, so a stale disconnect after a reconnect stays silent.
func (r *Relay) BroadcastOffline(record types.PresenceRecord) {
	announcement := types.ServerEvent{
		Event: types.EventUserOffline,
		Data: types.OnlineUser{
			UserID: record.UserID,
			Name:   record.DisplayName,
			Role:   record.Role,
		},
	}
	r.broadcastExcept(announcement, record.UserID)
}

// Send stamps the payload into an envelope and delivers it. If the
// recipient is online the envelope goes to their personal channel and
// the sender gets a message-sent confirmation; otherwise the sender
// gets a one-shot message-pending notice and the relay forgets the
// message. Unknown recipients are indistinguishable from offline ones:
// the relay holds no roster of valid identities.
func (r *Relay) Send(sender interfaces.Connection, payload *types.SendMessagePayload) (*types.MessageEnvelope, error) {
	senderID := sender.GetUserID()
	if r.limiter != nil && !r.limiter.Allow(senderID) {
		log.Printf("send rate exceeded for %s, dropping message", senderID)
		return nil, ErrRateLimited
	}

	envelope := &types.MessageEnvelope{
		ID:          uuid.NewString(),
		ChatID:      payload.ChatID,
		SenderID:    senderID,
		SenderName:  sender.GetDisplayName(),
		SenderRole:  sender.GetRole(),
		RecipientID: payload.RecipientID,
		Message:     payload.Message,
		Timestamp:   time.Now(),
	}

	if _, online := r.registry.LookupByUser(payload.RecipientID); !online {
		notice := types.ServerEvent{
			Event: types.EventMessagePending,
			Data:  types.PendingNotice{MessageID: envelope.ID, Timestamp: envelope.Timestamp},
		}
		if err := sender.WriteJSON(notice); err != nil {
			log.Printf("pending notice failed for %s: %v", senderID, err)
		}
		return envelope, nil
	}

	r.deliverPersonal(payload.RecipientID, types.ServerEvent{Event: types.EventReceiveMessage, Data: envelope})

	confirmation := types.ServerEvent{Event: types.EventMessageSent, Data: envelope}
	if err := sender.WriteJSON(confirmation); err != nil {
		log.Printf("confirmation failed for %s: %v", senderID, err)
	}
	return envelope, nil
}

// Typing forwards a start or stop typing signal to the recipient's
// personal channel. No presence check, no persistence, no coalescing:
// if the recipient is offline the signal evaporates, which is fine for
// a non-critical indicator the UI expires on its own.
func (r *Relay) Typing(sender interfaces.Connection, payload *types.TypingPayload, start bool) {
	event := types.EventUserStopTyping
	if start {
		event = types.EventUserTyping
	}

	name := payload.UserName
	if name == "" {
		name = sender.GetDisplayName()
	}
	userID := payload.UserID
	if userID == "" {
		userID = sender.GetUserID()
	}

	r.deliverPersonal(payload.RecipientID, types.ServerEvent{
		Event: event,
		Data:  types.TypingNotice{ChatID: payload.ChatID, UserID: userID, Name: name},
	})
}

// ForgetSender drops the user's rate-limit state, once no connection
// of theirs remains.
func (r *Relay) ForgetSender(userID string) {
	if r.limiter != nil {
		r.limiter.Forget(userID)
	}
}

// deliverPersonal writes the event to every connection in the user's
// personal channel. Delivery failures are logged per connection and
// never interrupt delivery to the rest.
func (r *Relay) deliverPersonal(userID string, event types.ServerEvent) {
	for _, conn := range r.registry.ChannelMembers(websocket.PersonalChannel(userID)) {
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("delivery to %s failed: %v", userID, err)
		}
	}
}

// broadcastExcept writes the event to every registered connection not
// belonging to exceptUserID.
func (r *Relay) broadcastExcept(event types.ServerEvent, exceptUserID string) {
	for _, conn := range r.registry.AllRegistered() {
		if conn.GetUserID() == exceptUserID {
			continue
		}
		if err := conn.WriteJSON(event); err != nil {
			log.Printf("broadcast to %s failed: %v", conn.GetUserID(), err)
		}
	}
}
