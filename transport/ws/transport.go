// Package ws implements the transport capability over a single websocket
// connection shared process-wide. Room channels are multiplexed over it;
// a dropped connection is redialed with capped exponential backoff and
// every channel is rejoined and re-tracked transparently.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulse-chat/contract"
	"pulse-chat/domain"
	"pulse-chat/errors"
	"pulse-chat/transport"
)

const (
	backoffBase = 250 * time.Millisecond
	backoffMax  = 8 * time.Second
)

// channel is one live room subscription multiplexed on the connection.
type channel struct {
	room domain.RoomID
	key  string

	mu       sync.Mutex
	tracked  json.RawMessage // last announce, replayed after a reconnect
	handlers map[string]map[int]contract.EventHandler
	nextID   int
}

func (c *channel) Room() domain.RoomID { return c.room }

func (c *channel) on(event string, h contract.EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handlers[event] == nil {
		c.handlers[event] = make(map[int]contract.EventHandler)
	}
	id := c.nextID
	c.nextID++
	c.handlers[event][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[event], id)
	}
}

func (c *channel) dispatch(event string, payload json.RawMessage) {
	c.mu.Lock()
	handlers := make([]contract.EventHandler, 0, len(c.handlers[event]))
	for _, h := range c.handlers[event] {
		handlers = append(handlers, h)
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

// Transport talks the pulse-chat frame protocol to a hub.
type Transport struct {
	log   *slog.Logger
	url   string
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	writeMu  sync.Mutex
	closed   bool
	channels map[domain.RoomID]*channel
	joinAcks map[domain.RoomID]chan error
}

var _ contract.Transport = (*Transport)(nil)

// New builds a transport for the given websocket URL. The token is sent
// as a bearer credential on every dial; the hub rejects the handshake
// when it is absent or invalid.
func New(log *slog.Logger, url, token string) *Transport {
	return &Transport{
		log:      log,
		url:      url,
		token:    token,
		channels: make(map[domain.RoomID]*channel),
		joinAcks: make(map[domain.RoomID]chan error),
	}
}

// Subscribe opens a room channel and blocks until the hub acknowledges
// the join or ctx expires. Only one live subscription per room is
// permitted on a transport.
func (t *Transport) Subscribe(ctx context.Context, room domain.RoomID, presenceKey string) (contract.ChannelHandle, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, fmt.Errorf("transport closed")
	}
	if _, exists := t.channels[room]; exists {
		t.mu.Unlock()
		return nil, errors.ErrAlreadySubscribed
	}
	if err := t.ensureConnLocked(); err != nil {
		t.mu.Unlock()
		return nil, err
	}

	ch := &channel{room: room, key: presenceKey, handlers: make(map[string]map[int]contract.EventHandler)}
	ack := make(chan error, 1)
	t.channels[room] = ch
	t.joinAcks[room] = ack
	t.mu.Unlock()

	err := t.write(transport.Frame{Type: transport.FrameJoin, Room: string(room), Key: presenceKey})
	if err == nil {
		select {
		case err = <-ack:
		case <-ctx.Done():
			err = ctx.Err()
		}
	}

	t.mu.Lock()
	delete(t.joinAcks, room)
	if err != nil {
		delete(t.channels, room)
	}
	t.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Track announces presence on a joined channel. The payload is kept and
// replayed after a reconnect so the registration survives drops.
func (t *Transport) Track(handle contract.ChannelHandle, payload json.RawMessage) error {
	ch, err := t.lookup(handle)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.tracked = payload
	ch.mu.Unlock()

	return t.write(transport.Frame{Type: transport.FrameTrack, Room: string(ch.room), Payload: payload})
}

// Send publishes a named event to the room. Fire-and-forget: the error
// only reports local write failures, never delivery.
func (t *Transport) Send(handle contract.ChannelHandle, event string, payload json.RawMessage) error {
	ch, err := t.lookup(handle)
	if err != nil {
		return err
	}
	return t.write(transport.Frame{Type: transport.FrameEvent, Room: string(ch.room), Event: event, Payload: payload})
}

func (t *Transport) On(handle contract.ChannelHandle, event string, h contract.EventHandler) (func(), error) {
	ch, err := t.lookup(handle)
	if err != nil {
		return nil, err
	}
	return ch.on(event, h), nil
}

// Unsubscribe releases the channel and its server-side presence
// registration.
func (t *Transport) Unsubscribe(handle contract.ChannelHandle) error {
	ch, err := t.lookup(handle)
	if err != nil {
		return err
	}

	t.mu.Lock()
	delete(t.channels, ch.room)
	t.mu.Unlock()

	return t.write(transport.Frame{Type: transport.FrameLeave, Room: string(ch.room)})
}

// Close tears the connection down and forgets every channel.
func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	conn := t.conn
	t.conn = nil
	t.channels = make(map[domain.RoomID]*channel)
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *Transport) lookup(handle contract.ChannelHandle) (*channel, error) {
	ch, ok := handle.(*channel)
	if !ok {
		return nil, fmt.Errorf("foreign channel handle")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, live := t.channels[ch.room]; !live {
		return nil, errors.ErrNotSubscribed
	}
	return ch, nil
}

// ensureConnLocked dials lazily on first use. Callers hold t.mu.
func (t *Transport) ensureConnLocked() error {
	if t.conn != nil {
		return nil
	}
	conn, err := t.dial()
	if err != nil {
		return err
	}
	t.conn = conn
	go t.readPump(conn)
	return nil
}

func (t *Transport) dial() (*websocket.Conn, error) {
	header := http.Header{}
	if t.token != "" {
		header.Set("Authorization", "Bearer "+t.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(t.url, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return conn, nil
}

func (t *Transport) write(frame transport.Frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	// gorilla allows a single concurrent writer
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

// readPump delivers inbound frames one at a time, which is what gives
// every channel its receipt-order guarantee.
func (t *Transport) readPump(conn *websocket.Conn) {
	for {
		var frame transport.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			t.handleDisconnect(conn, err)
			return
		}
		t.handleFrame(frame)
	}
}

func (t *Transport) handleFrame(frame transport.Frame) {
	room := domain.RoomID(frame.Room)

	switch frame.Type {
	case transport.FrameJoined:
		t.mu.Lock()
		ack := t.joinAcks[room]
		ch := t.channels[room]
		t.mu.Unlock()
		if ack != nil {
			ack <- nil
			return
		}
		// A joined frame with no waiter is a rejoin after reconnect:
		// replay the presence announce.
		if ch != nil {
			ch.mu.Lock()
			tracked := ch.tracked
			ch.mu.Unlock()
			if tracked != nil {
				_ = t.write(transport.Frame{Type: transport.FrameTrack, Room: frame.Room, Payload: tracked})
			}
		}

	case transport.FrameError:
		t.mu.Lock()
		ack := t.joinAcks[room]
		t.mu.Unlock()
		if ack != nil {
			ack <- fmt.Errorf("join rejected: %s", frame.Reason)
			return
		}
		t.log.Warn("hub reported error", "room", frame.Room, "reason", frame.Reason)

	case transport.FrameEvent:
		t.mu.Lock()
		ch := t.channels[room]
		t.mu.Unlock()
		if ch != nil {
			ch.dispatch(frame.Event, frame.Payload)
		}

	default:
		t.log.Debug("ignoring unexpected frame", "type", string(frame.Type))
	}
}

// handleDisconnect notifies every channel that presence is stale, then
// redials with capped exponential backoff and rejoins all channels.
func (t *Transport) handleDisconnect(dead *websocket.Conn, cause error) {
	t.mu.Lock()
	if t.closed || t.conn != dead {
		t.mu.Unlock()
		return
	}
	t.conn = nil
	channels := make([]*channel, 0, len(t.channels))
	for _, ch := range t.channels {
		channels = append(channels, ch)
	}
	t.mu.Unlock()

	t.log.Warn("connection lost, reconnecting", "error", cause)
	for _, ch := range channels {
		ch.dispatch(contract.EventDisconnect, nil)
	}

	backoff := backoffBase
	for {
		t.mu.Lock()
		if t.closed || len(t.channels) == 0 {
			t.mu.Unlock()
			return
		}
		t.mu.Unlock()

		time.Sleep(backoff)
		if backoff *= 2; backoff > backoffMax {
			backoff = backoffMax
		}

		conn, err := t.dial()
		if err != nil {
			t.log.Warn("redial failed", "error", err)
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = conn.Close()
			return
		}
		t.conn = conn
		t.mu.Unlock()

		go t.readPump(conn)
		for _, ch := range channels {
			_ = t.write(transport.Frame{Type: transport.FrameJoin, Room: string(ch.room), Key: ch.key})
		}
		t.log.Info("reconnected", "channels", len(channels))
		return
	}
}
