package domain

import (
	"sort"

	"github.com/samber/lo"
)

// RoomID names one room: exactly one presence set and one broadcast stream.
type RoomID string

// ConnectionMeta is one raw connection record inside a presence sync
// snapshot. A user with two open clients contributes two records under
// the same key.
type ConnectionMeta struct {
	Ref      string `json:"ref"`
	JoinedAt string `json:"joined_at,omitempty"`
}

// SyncState is the authoritative raw presence snapshot pushed by the
// transport: user id to one-or-more connection records.
type SyncState map[string][]ConnectionMeta

// PresenceSet is the server-confirmed set of users currently joined to a
// room. A user id appears at most once regardless of how many connections
// that user holds.
type PresenceSet map[string]struct{}

// FromSyncState rebuilds the presence set wholesale from a sync snapshot.
// The snapshot is authoritative and idempotent, so no incremental merge
// is ever attempted: the result is exactly the set of distinct keys.
func FromSyncState(raw SyncState) PresenceSet {
	set := make(PresenceSet, len(raw))
	for _, id := range lo.Keys(raw) {
		set[id] = struct{}{}
	}
	return set
}

// Contains reports whether the user is currently tracked as joined.
func (p PresenceSet) Contains(userID string) bool {
	_, ok := p[userID]
	return ok
}

// Users returns the member ids in a stable order.
func (p PresenceSet) Users() []string {
	ids := lo.Keys(p)
	sort.Strings(ids)
	return ids
}
