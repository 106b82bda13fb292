package websocket

import (
	"strings"
	"sync"

	"github.com/samber/lo"

	"marketchat/pkg/interfaces"
	"marketchat/pkg/types"
)

const personalChannelPrefix = "user:"

// PersonalChannel returns the addressable channel name for a user's
// inbox. Every registered connection of that user is a member.
func PersonalChannel(userID string) string {
	return personalChannelPrefix + userID
}

// Registry tracks registered connections and derives presence and
// channel membership from them. The presence slot for a user is
// last-write-wins: a reconnect overwrites it, and the stale connection's
// later disconnect must not erase the fresher record.
type Registry struct {
	mu sync.RWMutex

	// presence holds one record per online user, pointing at the
	// connection that currently owns the user's slot.
	presence map[string]types.PresenceRecord

	// personal and roles are channel membership, keyed by userID and
	// role respectively, then by connection ID. Membership exists only
	// while the connection is registered; there is no explicit leave.
	personal map[string]map[string]interfaces.Connection
	roles    map[string]map[string]interfaces.Connection
}

// NewRegistry creates an empty registry. Presence is ephemeral: a
// process restart starts from zero.
func NewRegistry() *Registry {
	return &Registry{
		presence: make(map[string]types.PresenceRecord),
		personal: make(map[string]map[string]interfaces.Connection),
		roles:    make(map[string]map[string]interfaces.Connection),
	}
}

// Register records the connection's identity, joins it to its personal
// and role channels, and installs (or overwrites) the user's presence
// record. A registration with missing identity fields is rejected with
// no side effects.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	userID := conn.GetUserID()
	role := conn.GetRole()
	name := conn.GetDisplayName()
	if userID == "" || role == "" || name == "" {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.presence[userID] = types.PresenceRecord{
		UserID:       userID,
		ConnectionID: conn.ConnectionID(),
		Role:         role,
		DisplayName:  name,
	}

	if r.personal[userID] == nil {
		r.personal[userID] = make(map[string]interfaces.Connection)
	}
	r.personal[userID][conn.ConnectionID()] = conn

	if r.roles[role] == nil {
		r.roles[role] = make(map[string]interfaces.Connection)
	}
	r.roles[role][conn.ConnectionID()] = conn

	return nil
}

// Unregister removes the connection from its channels and returns the
// presence record it held, with removed=true only if that connection
// still owned the user's presence slot. A stale disconnect arriving
// after the user reconnected leaves the newer record intact.
func (r *Registry) Unregister(conn interfaces.Connection) (record types.PresenceRecord, removed bool) {
	if conn == nil || !conn.IsRegistered() {
		return types.PresenceRecord{}, false
	}

	userID := conn.GetUserID()
	role := conn.GetRole()
	connID := conn.ConnectionID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.personal[userID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.personal, userID)
		}
	}
	if members, ok := r.roles[role]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.roles, role)
		}
	}

	rec, ok := r.presence[userID]
	if !ok || rec.ConnectionID != connID {
		return rec, false
	}
	delete(r.presence, userID)
	return rec, true
}

// LookupByUser returns the presence record for a user, if online.
func (r *Registry) LookupByUser(userID string) (types.PresenceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.presence[userID]
	return rec, ok
}

// ListOnline returns the current presence set. Order is unspecified;
// the presentation layer sorts as it pleases.
func (r *Registry) ListOnline() []types.OnlineUser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.MapToSlice(r.presence, func(_ string, rec types.PresenceRecord) types.OnlineUser {
		return types.OnlineUser{
			UserID: rec.UserID,
			Name:   rec.DisplayName,
			Role:   rec.Role,
			Online: true,
		}
	})
}

// ChannelMembers resolves a channel name ("user:<id>" or a role name)
// to the connections currently in it.
func (r *Registry) ChannelMembers(channel string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if userID, ok := strings.CutPrefix(channel, personalChannelPrefix); ok {
		return lo.Values(r.personal[userID])
	}
	return lo.Values(r.roles[channel])
}

// AllRegistered returns every registered connection, across all users.
func (r *Registry) AllRegistered() []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []interfaces.Connection
	for _, members := range r.personal {
		conns = append(conns, lo.Values(members)...)
	}
	return conns
}

// Stats reports registry counters for the health endpoint.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, members := range r.personal {
		total += len(members)
	}
	return map[string]int{
		"online_users":      len(r.presence),
		"total_connections": total,
	}
}
