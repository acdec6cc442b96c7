// Package session owns one room membership: it subscribes the channel,
// announces presence strictly after the subscription is acknowledged,
// relays outgoing messages, and exposes incoming messages and the live
// presence set to the consuming layer through two callbacks.
//
// All state mutation is serialized behind the session mutex; the
// transport read pump delivers events one at a time, so callbacks never
// run concurrently with each other.
package session

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"pulse-chat/contract"
	"pulse-chat/domain"
	"pulse-chat/errors"
)

// Callbacks are the only side-effect surface exposed to the consuming
// layer. Either field may be nil.
type Callbacks struct {
	OnMessage         func(domain.Message)
	OnPresenceChanged func(domain.PresenceSet)
	OnStateChanged    func(domain.ConnectionState)
}

// RoomSession is the state machine owning one room membership.
// Exactly one instance is active per authenticated user at a time.
type RoomSession struct {
	mu               sync.Mutex
	log              *slog.Logger
	transport        contract.Transport
	subscribeTimeout time.Duration
	callbacks        Callbacks

	state  domain.ConnectionState
	room   domain.RoomID
	cred   domain.Credential
	handle contract.ChannelHandle

	// epoch is the close tombstone: it is bumped on every Close, and
	// every asynchronous continuation re-checks it before transitioning.
	// A session closed while Connecting never becomes Subscribed.
	epoch uint64

	presence  *PresenceTracker
	broadcast *BroadcastChannel
	messages  *domain.MessageLog
	cancels   []func()
}

func NewRoomSession(log *slog.Logger, transport contract.Transport,
	subscribeTimeout time.Duration, callbacks Callbacks) *RoomSession {
	return &RoomSession{
		log:              log,
		transport:        transport,
		subscribeTimeout: subscribeTimeout,
		callbacks:        callbacks,
		state:            domain.Disconnected,
		presence:         NewPresenceTracker(log),
		broadcast:        NewBroadcastChannel(log),
		messages:         domain.NewMessageLog(),
	}
}

// Open starts the subscribe cycle for a room under the given credential.
// Valid only from Disconnected (or Errored, to allow recovery). It
// refuses immediately without a credential; everything after that is
// asynchronous and surfaces through OnStateChanged, never as a returned
// error.
func (s *RoomSession) Open(ctx context.Context, room domain.RoomID, cred domain.Credential) error {
	if cred.IsZero() {
		return errors.ErrAuthAbsent
	}

	s.mu.Lock()
	if s.state != domain.Disconnected && s.state != domain.Errored {
		s.mu.Unlock()
		return errors.ErrInvalidState
	}
	s.room = room
	s.cred = cred
	s.state = domain.Connecting
	epoch := s.epoch
	s.mu.Unlock()

	s.notifyState(domain.Connecting)
	go s.connect(ctx, epoch, room, cred)
	return nil
}

// connect is the asynchronous continuation of Open. It blocks on the
// transport until the subscription is acknowledged, then wires handlers
// and announces presence, in that order.
func (s *RoomSession) connect(ctx context.Context, epoch uint64, room domain.RoomID, cred domain.Credential) {
	subCtx, cancel := context.WithTimeout(ctx, s.subscribeTimeout)
	defer cancel()

	handle, err := s.transport.Subscribe(subCtx, room, cred.UserID)

	s.mu.Lock()
	if s.epoch != epoch || s.state != domain.Connecting {
		s.mu.Unlock()
		// Closed while connecting: release the late subscription so no
		// server-side presence registration leaks.
		if err == nil {
			_ = s.transport.Unsubscribe(handle)
		}
		return
	}
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			err = errors.ErrSubscribeTimeout
		}
		s.log.Warn("subscription failed", "room", room, "error", err)
		s.state = domain.Errored
		s.mu.Unlock()
		s.notifyState(domain.Errored)
		return
	}

	s.handle = handle

	// Handlers are wired before the presence announce so the first sync
	// triggered by our own track is never missed.
	if err := s.wireHandlersLocked(epoch, handle); err != nil {
		s.log.Error("failed to wire channel handlers", "room", room, "error", err)
		s.state = domain.Errored
		s.broadcast.Detach()
		_ = s.transport.Unsubscribe(handle)
		s.handle = nil
		s.mu.Unlock()
		s.notifyState(domain.Errored)
		return
	}

	s.presence.Bind(s.transport, handle)
	s.state = domain.Subscribed
	s.mu.Unlock()

	s.notifyState(domain.Subscribed)

	// Announce strictly after the acknowledgment; announcing earlier
	// would be silently dropped by the transport.
	if err := s.presence.AnnounceSelf(cred.UserID); err != nil {
		s.log.Warn("self presence not announced", "room", room, "error", err)
	}
}

func (s *RoomSession) wireHandlersLocked(epoch uint64, handle contract.ChannelHandle) error {
	if err := s.broadcast.Attach(s.transport, handle); err != nil {
		return err
	}
	if err := s.broadcast.OnReceive(func(msg domain.Message) {
		s.receive(epoch, msg)
	}); err != nil {
		return err
	}

	cancelPresence, err := s.transport.On(handle, contract.EventPresence, func(payload json.RawMessage) {
		s.syncPresence(epoch, payload)
	})
	if err != nil {
		return err
	}

	cancelDisconnect, err := s.transport.On(handle, contract.EventDisconnect, func(json.RawMessage) {
		s.presence.MarkStale()
	})
	if err != nil {
		cancelPresence()
		return err
	}

	s.cancels = append(s.cancels, cancelPresence, cancelDisconnect)
	return nil
}

// receive appends an inbound message and invokes the consumer callback.
// The sender's own messages arrive through this same path; there is no
// optimistic local echo.
func (s *RoomSession) receive(epoch uint64, msg domain.Message) {
	s.mu.Lock()
	if s.epoch != epoch || s.state != domain.Subscribed {
		s.mu.Unlock()
		return
	}
	s.messages.Append(msg)
	cb := s.callbacks.OnMessage
	s.mu.Unlock()

	if cb != nil {
		cb(msg)
	}
}

func (s *RoomSession) syncPresence(epoch uint64, payload json.RawMessage) {
	var raw domain.SyncState
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.log.Warn("dropping malformed presence sync", "error", err)
		return
	}

	s.mu.Lock()
	if s.epoch != epoch || s.state != domain.Subscribed {
		s.mu.Unlock()
		return
	}
	set := s.presence.HandleSync(raw)
	cb := s.callbacks.OnPresenceChanged
	s.mu.Unlock()

	if cb != nil {
		cb(set)
	}
}

// Send relays a message to the room. Valid only while Subscribed. The
// message is not appended to the local log: the sender sees it once it
// comes back through the broadcast path like any other participant.
func (s *RoomSession) Send(body string) error {
	s.mu.Lock()
	if s.state != domain.Subscribed {
		s.mu.Unlock()
		return errors.ErrInvalidState
	}
	msg := domain.NewMessage(s.cred, body)
	s.mu.Unlock()

	return s.broadcast.Publish(msg)
}

// Close tears the session down from any state: handler registrations are
// canceled, the channel is unsubscribed, and the presence set and message
// log are cleared. Closing an already-Disconnected session is a no-op.
func (s *RoomSession) Close() error {
	s.mu.Lock()
	if s.state == domain.Disconnected {
		s.mu.Unlock()
		return nil
	}

	s.epoch++
	cancels := s.cancels
	s.cancels = nil
	handle := s.handle
	s.handle = nil
	room := s.room
	s.state = domain.Disconnected
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.broadcast.Detach()
	if handle != nil {
		if err := s.transport.Unsubscribe(handle); err != nil {
			s.log.Warn("unsubscribe failed on close", "room", room, "error", err)
		}
	}
	s.presence.Reset()
	s.messages.Reset()

	s.notifyState(domain.Disconnected)
	return nil
}

func (s *RoomSession) notifyState(state domain.ConnectionState) {
	if s.callbacks.OnStateChanged != nil {
		s.callbacks.OnStateChanged(state)
	}
}

// State returns the current lifecycle state.
func (s *RoomSession) State() domain.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Presence returns a copy of the current presence set.
func (s *RoomSession) Presence() domain.PresenceSet {
	return s.presence.Current()
}

// PresenceStale reports whether the set is unknown after a disconnect.
func (s *RoomSession) PresenceStale() bool {
	return s.presence.Stale()
}

// Messages returns the received messages in arrival order.
func (s *RoomSession) Messages() []domain.Message {
	return s.messages.All()
}
