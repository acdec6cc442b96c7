// Package observability aggregates hub counters for logging and the
// stats endpoint.
package observability

import (
	"sync/atomic"
)

// Snapshot is one point-in-time view of the hub counters.
type Snapshot struct {
	ConnectionsOpened uint64 `json:"connections_opened"`
	ConnectionsClosed uint64 `json:"connections_closed"`
	Joins             uint64 `json:"joins"`
	Leaves            uint64 `json:"leaves"`
	Tracks            uint64 `json:"tracks"`
	Broadcasts        uint64 `json:"broadcasts_relayed"`
	PresenceSyncs     uint64 `json:"presence_syncs"`
	Dropped           uint64 `json:"dropped_deliveries"`
}

// Stats holds atomic counters safe for concurrent use by the hub, the
// fanout worker, and the heartbeat.
type Stats struct {
	connectionsOpened uint64
	connectionsClosed uint64
	joins             uint64
	leaves            uint64
	tracks            uint64
	broadcasts        uint64
	presenceSyncs     uint64
	dropped           uint64
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) IncrConnectionsOpened() { atomic.AddUint64(&s.connectionsOpened, 1) }
func (s *Stats) IncrConnectionsClosed() { atomic.AddUint64(&s.connectionsClosed, 1) }
func (s *Stats) IncrJoins()             { atomic.AddUint64(&s.joins, 1) }
func (s *Stats) IncrLeaves()            { atomic.AddUint64(&s.leaves, 1) }
func (s *Stats) IncrTracks()            { atomic.AddUint64(&s.tracks, 1) }
func (s *Stats) IncrBroadcasts()        { atomic.AddUint64(&s.broadcasts, 1) }
func (s *Stats) IncrPresenceSyncs()     { atomic.AddUint64(&s.presenceSyncs, 1) }
func (s *Stats) IncrDropped()           { atomic.AddUint64(&s.dropped, 1) }

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		ConnectionsOpened: atomic.LoadUint64(&s.connectionsOpened),
		ConnectionsClosed: atomic.LoadUint64(&s.connectionsClosed),
		Joins:             atomic.LoadUint64(&s.joins),
		Leaves:            atomic.LoadUint64(&s.leaves),
		Tracks:            atomic.LoadUint64(&s.tracks),
		Broadcasts:        atomic.LoadUint64(&s.broadcasts),
		PresenceSyncs:     atomic.LoadUint64(&s.presenceSyncs),
		Dropped:           atomic.LoadUint64(&s.dropped),
	}
}
