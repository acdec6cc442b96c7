//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"encoding/json"
	"reflect"

	"pulse-chat/domain"
)

// EventHandler receives one inbound event payload, in the order the
// transport delivers them to this client.
type EventHandler func(payload json.RawMessage)

// ChannelHandle identifies one live room subscription on a transport.
// The room channel is the unit of subscription and must be released via
// Unsubscribe when the session ends, to avoid leaking server-side
// presence registrations.
type ChannelHandle interface {
	Room() domain.RoomID
}

// Transport is the abstract pub/sub capability the session layer is built
// against. Implementations may share one underlying connection
// process-wide; channels are multiplexed over it per room.
//
// Subscribe blocks until the server acknowledges the subscription or ctx
// expires. Track and Send are fire-and-forget: no acknowledgment, no
// retry, no delivery confirmation. On registers a handler for a named
// event and returns a cancel function removing it.
type Transport interface {
	Subscribe(ctx context.Context, room domain.RoomID, presenceKey string) (ChannelHandle, error)
	Track(handle ChannelHandle, payload json.RawMessage) error
	Send(handle ChannelHandle, event string, payload json.RawMessage) error
	On(handle ChannelHandle, event string, h EventHandler) (func(), error)
	Unsubscribe(handle ChannelHandle) error
}

// Reserved event names carried over every channel.
const (
	EventMessage = "message"
	// EventPresence delivers authoritative SyncState snapshots.
	EventPresence = "presence"
	// EventDisconnect is synthesized locally when the underlying
	// connection drops; presence must be treated as stale until the
	// next sync after resubscribe.
	EventDisconnect = "_disconnect"
)

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}
