package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse-chat/domain"
	"pulse-chat/observability"
	"pulse-chat/transport"
)

const frameTimeout = 2 * time.Second

// startHub wires a hub with a running fanout worker. Connections are
// driven through handleFrame directly and observed on their send
// channels, so no sockets are involved.
func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(slog.Default(), NewRegistry(), observability.NewStats(), 64, 16)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = NewFanoutWorker(slog.Default(), h).Run(ctx) }()
	return h
}

func nextFrame(t *testing.T, c *Conn) transport.Frame {
	t.Helper()
	select {
	case raw := <-c.send:
		var frame transport.Frame
		require.NoError(t, json.Unmarshal(raw, &frame))
		return frame
	case <-time.After(frameTimeout):
		t.Fatalf("no frame delivered to %s", c.ID)
		return transport.Frame{}
	}
}

func joinFrame(room, key string) transport.Frame {
	return transport.Frame{Type: transport.FrameJoin, Room: room, Key: key}
}

func TestHubAcksJoinBeforeRoomTraffic(t *testing.T) {
	assert := require.New(t)

	// Given a hub with a joining connection
	h := startHub(t)
	conn := testConn("c1", "u1")

	// When the connection joins a room
	h.handleFrame(conn, joinFrame("room_one", "u1"))

	// Then the ack is the first thing it sees, ahead of the sync
	ack := nextFrame(t, conn)
	assert.Equal(transport.FrameJoined, ack.Type)
	assert.Equal("room_one", ack.Room)

	sync := nextFrame(t, conn)
	assert.Equal(transport.FrameEvent, sync.Type)
	assert.Equal("presence", sync.Event)
}

func TestHubPresenceConverges(t *testing.T) {
	assert := require.New(t)

	// Given two users joined and tracked in the same room
	h := startHub(t)
	alice := testConn("c1", "u1")
	bob := testConn("c2", "u2")

	h.handleFrame(alice, joinFrame("room_one", "u1"))
	h.handleFrame(alice, transport.Frame{Type: transport.FrameTrack, Room: "room_one"})
	h.handleFrame(bob, joinFrame("room_one", "u2"))
	h.handleFrame(bob, transport.Frame{Type: transport.FrameTrack, Room: "room_one"})

	// Then both ultimately observe the same two-user presence state
	for _, conn := range []*Conn{alice, bob} {
		users := lastPresence(t, conn)
		assert.ElementsMatch([]string{"u1", "u2"}, users, "conn %s", conn.ID)
	}
}

// lastPresence drains frames until the connection goes quiet and returns
// the final set of user ids it observed.
func lastPresence(t *testing.T, c *Conn) []string {
	t.Helper()
	var users []string
	for {
		select {
		case raw := <-c.send:
			var frame transport.Frame
			require.NoError(t, json.Unmarshal(raw, &frame))
			if frame.Type != transport.FrameEvent || frame.Event != "presence" {
				continue
			}
			var state domain.SyncState
			require.NoError(t, json.Unmarshal(frame.Payload, &state))
			users = domain.FromSyncState(state).Users()
		case <-time.After(300 * time.Millisecond):
			if users == nil {
				t.Fatal("presence frames never arrived")
			}
			return users
		}
	}
}

func TestHubBroadcastReachesEveryMemberOnce(t *testing.T) {
	assert := require.New(t)

	// Given two members of a room, past their join acks
	h := startHub(t)
	alice := testConn("c1", "u1")
	bob := testConn("c2", "u2")
	h.handleFrame(alice, joinFrame("room_one", "u1"))
	h.handleFrame(bob, joinFrame("room_one", "u2"))
	drainFor(alice, 100*time.Millisecond)
	drainFor(bob, 100*time.Millisecond)

	// When alice broadcasts a message event
	payload, _ := json.Marshal(map[string]string{"body": "hello"})
	h.handleFrame(alice, transport.Frame{Type: transport.FrameEvent, Room: "room_one", Event: "message", Payload: payload})

	// Then every member receives it exactly once, the sender included
	for _, conn := range []*Conn{alice, bob} {
		frame := nextFrame(t, conn)
		assert.Equal(transport.FrameEvent, frame.Type)
		assert.Equal("message", frame.Event)
		assert.JSONEq(`{"body":"hello"}`, string(frame.Payload))
		assert.Equal(0, pendingFrames(conn), "conn %s received a duplicate", conn.ID)
	}
}

func TestHubDropsEventFromNonMember(t *testing.T) {
	assert := require.New(t)

	// Given a member and an outsider
	h := startHub(t)
	member := testConn("c1", "u1")
	outsider := testConn("c2", "u2")
	h.handleFrame(member, joinFrame("room_one", "u1"))
	drainFor(member, 100*time.Millisecond)

	// When the outsider tries to broadcast into the room
	h.handleFrame(outsider, transport.Frame{Type: transport.FrameEvent, Room: "room_one", Event: "message", Payload: json.RawMessage(`{}`)})
	drainFor(member, 100*time.Millisecond)

	// Then nothing reaches the member
	assert.Equal(0, pendingFrames(member))
}

func TestHubRefusesClientAuthoredPresenceEvent(t *testing.T) {
	assert := require.New(t)

	// Given two members, one of them tracked
	h := startHub(t)
	alice := testConn("c1", "u1")
	bob := testConn("c2", "u2")
	h.handleFrame(alice, joinFrame("room_one", "u1"))
	h.handleFrame(alice, transport.Frame{Type: transport.FrameTrack, Room: "room_one"})
	h.handleFrame(bob, joinFrame("room_one", "u2"))
	drainFor(alice, 100*time.Millisecond)
	drainFor(bob, 100*time.Millisecond)

	// When bob broadcasts under the reserved presence event name
	forged, _ := json.Marshal(domain.SyncState{"ghost": {{Ref: "c9"}}})
	h.handleFrame(bob, transport.Frame{Type: transport.FrameEvent, Room: "room_one", Event: "presence", Payload: forged})

	// Then bob is refused and alice never sees the forged state
	frame := nextFrame(t, bob)
	assert.Equal(transport.FrameError, frame.Type)
	assert.Equal(0, pendingFrames(alice))
}

func TestHubRefusesForeignPresenceKey(t *testing.T) {
	assert := require.New(t)

	// Given a connection authenticated as u1
	h := startHub(t)
	conn := testConn("c1", "u1")

	// When it tries to join under someone else's presence key
	h.handleFrame(conn, joinFrame("room_one", "u2"))

	// Then the join is refused with an error frame
	frame := nextFrame(t, conn)
	assert.Equal(transport.FrameError, frame.Type)
	assert.False(h.registry.Joined("room_one", "c1"))
}

func TestHubDropConnRefreshesPresence(t *testing.T) {
	assert := require.New(t)

	// Given two tracked members
	h := startHub(t)
	alice := testConn("c1", "u1")
	bob := testConn("c2", "u2")
	h.handleFrame(alice, joinFrame("room_one", "u1"))
	h.handleFrame(alice, transport.Frame{Type: transport.FrameTrack, Room: "room_one"})
	h.handleFrame(bob, joinFrame("room_one", "u2"))
	h.handleFrame(bob, transport.Frame{Type: transport.FrameTrack, Room: "room_one"})
	drainFor(alice, 100*time.Millisecond)

	// When bob's connection dies
	h.dropConn(bob)

	// Then alice sees a presence state without bob
	users := lastPresence(t, alice)
	assert.Equal([]string{"u1"}, users)
}

func drainFor(c *Conn, d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case <-c.send:
		case <-deadline:
			return
		}
	}
}

func pendingFrames(c *Conn) int {
	// Give the fanout worker a moment to flush anything in flight.
	time.Sleep(50 * time.Millisecond)
	return len(c.send)
}
