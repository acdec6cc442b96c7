// Package hub is the server side of the room protocol: it accepts
// websocket connections, keys presence by user id, and fans broadcast
// frames out to every subscriber of a room in arrival order.
package hub

import (
	"sync"

	"pulse-chat/domain"
)

type member struct {
	conn    *Conn
	userID  string
	tracked bool
}

// Registry maps rooms to their live connections. A user with several
// connections in a room holds several entries but folds into one
// presence key in the snapshot.
type Registry struct {
	mu          sync.RWMutex
	conns       map[string]*Conn                     // conn id -> connection
	roomMembers map[domain.RoomID]map[string]*member // room -> conn id -> member
}

func NewRegistry() *Registry {
	return &Registry{
		conns:       make(map[string]*Conn),
		roomMembers: make(map[domain.RoomID]map[string]*member),
	}
}

// Join registers a connection into a room under its presence key.
// The member stays out of presence snapshots until it tracks itself.
func (r *Registry) Join(room domain.RoomID, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID] = c
	if _, ok := r.roomMembers[room]; !ok {
		r.roomMembers[room] = make(map[string]*member)
	}
	r.roomMembers[room][c.ID] = &member{conn: c, userID: c.Cred.UserID}
}

// Track marks the member as announced. Returns false when the connection
// never joined the room: the announce is dropped, not queued.
func (r *Registry) Track(room domain.RoomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.roomMembers[room][connID]
	if !ok {
		return false
	}
	m.tracked = true
	return true
}

// Leave removes one connection from a room. Empty rooms are removed
// entirely so the registry does not grow over time.
func (r *Registry) Leave(room domain.RoomID, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(room, connID)
}

func (r *Registry) leaveLocked(room domain.RoomID, connID string) {
	if members, ok := r.roomMembers[room]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.roomMembers, room)
		}
	}
}

// Drop removes a connection from every room it joined and forgets it.
// Returns the affected rooms so the caller can emit fresh syncs.
func (r *Registry) Drop(connID string) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)
	var affected []domain.RoomID
	for room, members := range r.roomMembers {
		if _, ok := members[connID]; ok {
			affected = append(affected, room)
			r.leaveLocked(room, connID)
		}
	}
	return affected
}

// ConnsForRoom returns every live connection subscribed to the room,
// tracked or not: broadcasts reach all subscribers.
func (r *Registry) ConnsForRoom(room domain.RoomID) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.roomMembers[room]
	if !ok {
		return nil
	}
	conns := make([]*Conn, 0, len(members))
	for _, m := range members {
		conns = append(conns, m.conn)
	}
	return conns
}

// Snapshot builds the authoritative presence state of a room: every
// tracked connection grouped under its user id.
func (r *Registry) Snapshot(room domain.RoomID) domain.SyncState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := make(domain.SyncState)
	for connID, m := range r.roomMembers[room] {
		if !m.tracked {
			continue
		}
		state[m.userID] = append(state[m.userID], domain.ConnectionMeta{Ref: connID})
	}
	return state
}

// Joined reports whether the connection is currently in the room.
func (r *Registry) Joined(room domain.RoomID, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.roomMembers[room][connID]
	return ok
}
