// Package transport defines the JSON frame protocol spoken between the
// websocket client transport and the hub. One connection multiplexes any
// number of room channels; the room name scopes every frame.
package transport

import "encoding/json"

type FrameType string

const (
	// FrameJoin opens a room channel; Key is the presence key (user id).
	FrameJoin FrameType = "join"
	// FrameJoined acknowledges a join. Presence announces are dropped
	// server-side until this frame has been sent.
	FrameJoined FrameType = "joined"
	// FrameTrack announces self presence on a joined channel.
	FrameTrack FrameType = "track"
	// FrameEvent carries a named event (message broadcast, presence sync).
	FrameEvent FrameType = "event"
	// FrameLeave releases a channel and its presence registration.
	FrameLeave FrameType = "leave"
	FrameError FrameType = "error"
)

type Frame struct {
	Type    FrameType       `json:"type"`
	Room    string          `json:"room,omitempty"`
	Event   string          `json:"event,omitempty"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Reason  string          `json:"reason,omitempty"`
}
