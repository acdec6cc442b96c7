package hub

import (
	"context"
	"encoding/json"
	"log/slog"

	"pulse-chat/contract"
	"pulse-chat/observability"
)

// Ensure *FanoutWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*FanoutWorker)(nil)

// FanoutWorker drains the hub's relay queue and delivers each frame to
// the subscribers of its room. Best-effort fan-out: no delivery
// guarantees, no retries, slow receivers lose frames. Running a single
// worker is what keeps delivery in arrival order per room.
type FanoutWorker struct {
	log      *slog.Logger
	registry *Registry
	relays   chan relay
	stats    *observability.Stats
}

func NewFanoutWorker(log *slog.Logger, h *Hub) *FanoutWorker {
	return &FanoutWorker{log: log, registry: h.registry, relays: h.relays, stats: h.stats}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("stopping fanout worker")
			return ctx.Err()
		case r := <-w.relays:
			w.deliver(r)
		}
	}
}

func (w *FanoutWorker) deliver(r relay) {
	message, err := json.Marshal(r.frame)
	if err != nil {
		w.log.Error("failed to marshal relay frame", "error", err)
		return
	}

	if r.only != nil {
		if !r.only.trySend(message) {
			w.stats.IncrDropped()
		}
		return
	}

	for _, conn := range w.registry.ConnsForRoom(r.room) {
		if !conn.trySend(message) {
			w.log.Warn("receiver too slow, frame dropped", "conn_id", conn.ID, "room", string(r.room))
			w.stats.IncrDropped()
		}
	}
}
