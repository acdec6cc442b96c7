package session

import (
	"context"
	"encoding/json"
	"sync"

	"pulse-chat/contract"
	"pulse-chat/domain"
)

type fakeHandle struct {
	room domain.RoomID
}

func (h *fakeHandle) Room() domain.RoomID { return h.room }

// fakeTransport is a controllable in-process transport. Subscribe blocks
// until Ack is closed (or the ctx expires) so tests can observe the
// Connecting state and the close tombstone.
type fakeTransport struct {
	mu           sync.Mutex
	Ack          chan struct{}
	SubscribeErr error
	Loopback     bool

	handlers     map[string][]contract.EventHandler
	Ops          []string
	Tracked      []json.RawMessage
	Sent         []json.RawMessage
	Unsubscribed int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		Ack:      make(chan struct{}),
		handlers: make(map[string][]contract.EventHandler),
	}
}

func (t *fakeTransport) Subscribe(ctx context.Context, room domain.RoomID, presenceKey string) (contract.ChannelHandle, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.Ack:
	}
	if t.SubscribeErr != nil {
		return nil, t.SubscribeErr
	}
	t.mu.Lock()
	t.Ops = append(t.Ops, "subscribe_ack")
	t.mu.Unlock()
	return &fakeHandle{room: room}, nil
}

func (t *fakeTransport) Track(_ contract.ChannelHandle, payload json.RawMessage) error {
	t.mu.Lock()
	t.Ops = append(t.Ops, "track")
	t.Tracked = append(t.Tracked, payload)
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Send(_ contract.ChannelHandle, event string, payload json.RawMessage) error {
	t.mu.Lock()
	t.Sent = append(t.Sent, payload)
	handlers := append([]contract.EventHandler(nil), t.handlers[event]...)
	loopback := t.Loopback
	t.mu.Unlock()

	if loopback {
		for _, h := range handlers {
			h(payload)
		}
	}
	return nil
}

func (t *fakeTransport) On(_ contract.ChannelHandle, event string, h contract.EventHandler) (func(), error) {
	t.mu.Lock()
	t.handlers[event] = append(t.handlers[event], h)
	idx := len(t.handlers[event]) - 1
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if idx < len(t.handlers[event]) {
			t.handlers[event][idx] = func(json.RawMessage) {}
		}
	}, nil
}

func (t *fakeTransport) Unsubscribe(contract.ChannelHandle) error {
	t.mu.Lock()
	t.Unsubscribed++
	t.handlers = make(map[string][]contract.EventHandler)
	t.mu.Unlock()
	return nil
}

// Emit pushes an inbound event to every registered handler, like the
// read pump of a real transport.
func (t *fakeTransport) Emit(event string, payload json.RawMessage) {
	t.mu.Lock()
	handlers := append([]contract.EventHandler(nil), t.handlers[event]...)
	t.mu.Unlock()
	for _, h := range handlers {
		h(payload)
	}
}

func (t *fakeTransport) OpSequence() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.Ops...)
}

func (t *fakeTransport) UnsubscribeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Unsubscribed
}
