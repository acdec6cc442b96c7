package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"pulse-chat/contract"
	"pulse-chat/domain"
	"pulse-chat/errors"
)

// BroadcastChannel is the fire-and-forget send/receive surface for one
// room. Publish gives no acknowledgment, no retry, and no ordering
// guarantee relative to other senders; reception order is whatever the
// transport delivers to this client.
type BroadcastChannel struct {
	mu        sync.Mutex
	log       *slog.Logger
	transport contract.Transport
	handle    contract.ChannelHandle
	cancel    func()
}

func NewBroadcastChannel(log *slog.Logger) *BroadcastChannel {
	return &BroadcastChannel{log: log}
}

// Attach binds the channel to an acknowledged subscription. A second
// attach on a live channel is a logic error, reported rather than merged.
func (b *BroadcastChannel) Attach(tr contract.Transport, handle contract.ChannelHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handle != nil {
		return errors.ErrAlreadySubscribed
	}
	b.transport = tr
	b.handle = handle
	return nil
}

// OnReceive registers the inbound message handler. Payloads that do not
// decode as a Message are dropped with a warning.
func (b *BroadcastChannel) OnReceive(h func(domain.Message)) error {
	b.mu.Lock()
	tr, handle := b.transport, b.handle
	b.mu.Unlock()
	if handle == nil {
		return errors.ErrNotSubscribed
	}

	cancel, err := tr.On(handle, contract.EventMessage, func(payload json.RawMessage) {
		var msg domain.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			b.log.Warn("dropping malformed broadcast payload", "error", err)
			return
		}
		h(msg)
	})
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.cancel = cancel
	b.mu.Unlock()
	return nil
}

// Publish sends a message to every current subscriber of the room.
// Best-effort: it returns as soon as the transport accepts the frame.
func (b *BroadcastChannel) Publish(msg domain.Message) error {
	b.mu.Lock()
	tr, handle := b.transport, b.handle
	b.mu.Unlock()
	if handle == nil {
		return errors.ErrNotSubscribed
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return tr.Send(handle, contract.EventMessage, payload)
}

// Detach removes the handler registration and releases the handle.
// Safe to call on an already-detached channel.
func (b *BroadcastChannel) Detach() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.transport = nil
	b.handle = nil
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
