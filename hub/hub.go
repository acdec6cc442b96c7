package hub

import (
	"encoding/json"
	"log/slog"

	"pulse-chat/contract"
	"pulse-chat/domain"
	"pulse-chat/observability"
	"pulse-chat/transport"
)

// relay is one outbound frame queued for delivery. Broadcast when only
// is nil, unicast otherwise. A single queue per hub is what preserves
// arrival order per room.
type relay struct {
	room  domain.RoomID
	frame transport.Frame
	only  *Conn
}

// Hub coordinates every room over one relay queue. Frame handling runs
// on the connection read goroutines; delivery runs on the fanout worker.
type Hub struct {
	log      *slog.Logger
	registry *Registry
	stats    *observability.Stats
	relays   chan relay
	sendBuf  int
}

func NewHub(log *slog.Logger, registry *Registry, stats *observability.Stats, queueSize, sendBuf int) *Hub {
	return &Hub{
		log:      log,
		registry: registry,
		stats:    stats,
		relays:   make(chan relay, queueSize),
		sendBuf:  sendBuf,
	}
}

// Attach starts the read/write pumps for an accepted connection.
func (h *Hub) Attach(c *Conn) {
	h.stats.IncrConnectionsOpened()
	go c.write()
	go c.read(h)
}

func (h *Hub) handleFrame(c *Conn, frame transport.Frame) {
	room := domain.RoomID(frame.Room)

	switch frame.Type {
	case transport.FrameJoin:
		// The presence key is pinned to the authenticated user; a
		// client cannot impersonate another key.
		if frame.Key != "" && frame.Key != c.Cred.UserID {
			h.unicast(c, transport.Frame{Type: transport.FrameError, Room: frame.Room, Reason: "presence key does not match credential"})
			return
		}
		if h.registry.Joined(room, c.ID) {
			h.unicast(c, transport.Frame{Type: transport.FrameError, Room: frame.Room, Reason: "already joined"})
			return
		}
		h.registry.Join(room, c)
		h.stats.IncrJoins()
		// Ack rides the same queue as everything else so the client
		// never sees room traffic ahead of its own ack.
		h.unicast(c, transport.Frame{Type: transport.FrameJoined, Room: frame.Room})
		h.broadcastSync(room)

	case transport.FrameTrack:
		if !h.registry.Track(room, c.ID) {
			// Track before join: dropped, not queued.
			h.log.Debug("presence track dropped, connection not joined", "conn_id", c.ID, "room", frame.Room)
			return
		}
		h.stats.IncrTracks()
		h.broadcastSync(room)

	case transport.FrameEvent:
		if !h.registry.Joined(room, c.ID) {
			h.log.Warn("dropping event from non-member", "conn_id", c.ID, "room", frame.Room)
			return
		}
		// The presence event is hub-authored: a client broadcast under
		// that name would be installed by every receiver as the
		// authoritative room state.
		if frame.Event == contract.EventPresence {
			h.unicast(c, transport.Frame{Type: transport.FrameError, Room: frame.Room, Reason: "reserved event name"})
			return
		}
		h.stats.IncrBroadcasts()
		h.enqueue(relay{room: room, frame: transport.Frame{
			Type:    transport.FrameEvent,
			Room:    frame.Room,
			Event:   frame.Event,
			Payload: frame.Payload,
		}})

	case transport.FrameLeave:
		h.registry.Leave(room, c.ID)
		h.stats.IncrLeaves()
		h.broadcastSync(room)

	default:
		h.log.Debug("ignoring unexpected frame", "type", string(frame.Type), "conn_id", c.ID)
	}
}

// dropConn releases everything a dead connection held and refreshes the
// presence of every room it was in, so no server-side registration leaks.
func (h *Hub) dropConn(c *Conn) {
	c.closeSend()
	h.stats.IncrConnectionsClosed()
	for _, room := range h.registry.Drop(c.ID) {
		h.broadcastSync(room)
	}
}

func (h *Hub) broadcastSync(room domain.RoomID) {
	payload, err := json.Marshal(h.registry.Snapshot(room))
	if err != nil {
		h.log.Error("failed to marshal presence snapshot", "room", string(room), "error", err)
		return
	}
	h.stats.IncrPresenceSyncs()
	h.enqueue(relay{room: room, frame: transport.Frame{
		Type:    transport.FrameEvent,
		Room:    string(room),
		Event:   contract.EventPresence,
		Payload: payload,
	}})
}

func (h *Hub) unicast(c *Conn, frame transport.Frame) {
	h.enqueue(relay{room: domain.RoomID(frame.Room), frame: frame, only: c})
}

func (h *Hub) enqueue(r relay) {
	select {
	case h.relays <- r:
	default:
		h.log.Warn("relay queue full, dropping frame", "room", string(r.room), "type", string(r.frame.Type))
		h.stats.IncrDropped()
	}
}
