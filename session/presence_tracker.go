package session

import (
	"encoding/json"
	"log/slog"
	"sync"

	"pulse-chat/contract"
	"pulse-chat/domain"
	"pulse-chat/errors"
)

// trackPayload is the self-presence announcement, keyed by user id like
// the presence key of the subscription.
type trackPayload struct {
	ID string `json:"id"`
}

// PresenceTracker translates raw sync snapshots from the transport into a
// consistent PresenceSet. It only accepts announcements once bound to an
// acknowledged subscription; an announce before that is reported and lost,
// never queued or retried.
type PresenceTracker struct {
	mu        sync.RWMutex
	log       *slog.Logger
	transport contract.Transport
	handle    contract.ChannelHandle
	set       domain.PresenceSet
	stale     bool
}

func NewPresenceTracker(log *slog.Logger) *PresenceTracker {
	return &PresenceTracker{log: log, set: make(domain.PresenceSet)}
}

// Bind attaches the tracker to an acknowledged subscription. Announces
// are only possible after this point.
func (t *PresenceTracker) Bind(tr contract.Transport, handle contract.ChannelHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transport = tr
	t.handle = handle
}

// AnnounceSelf tracks the local user on the bound channel. Called exactly
// once per successful subscribe cycle. Before the subscription is
// acknowledged the announce is dropped: the caller gets ErrAnnounceLost
// and presence for this client stays absent until the next cycle.
func (t *PresenceTracker) AnnounceSelf(userID string) error {
	t.mu.RLock()
	tr, handle := t.transport, t.handle
	t.mu.RUnlock()

	if tr == nil || handle == nil {
		t.log.Warn("presence announce dropped, subscription not acknowledged", "user_id", userID)
		return errors.ErrAnnounceLost
	}

	payload, err := json.Marshal(trackPayload{ID: userID})
	if err != nil {
		return err
	}
	if err := tr.Track(handle, payload); err != nil {
		// No retry: presence stays absent until the next subscribe cycle.
		t.log.Warn("presence announce failed", "user_id", userID, "error", err)
		return err
	}
	return nil
}

// HandleSync rebuilds the presence set wholesale from an authoritative
// snapshot and clears staleness.
func (t *PresenceTracker) HandleSync(raw domain.SyncState) domain.PresenceSet {
	set := domain.FromSyncState(raw)
	t.mu.Lock()
	t.set = set
	t.stale = false
	t.mu.Unlock()
	return set
}

// MarkStale flags the set as unknown after a transport disconnect. The
// flag holds until a fresh sync arrives.
func (t *PresenceTracker) MarkStale() {
	t.mu.Lock()
	t.stale = true
	t.mu.Unlock()
}

func (t *PresenceTracker) Stale() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stale
}

// Current returns a copy of the tracked set.
func (t *PresenceTracker) Current() domain.PresenceSet {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(domain.PresenceSet, len(t.set))
	for id := range t.set {
		out[id] = struct{}{}
	}
	return out
}

// Reset unbinds the tracker and empties the set.
func (t *PresenceTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transport = nil
	t.handle = nil
	t.set = make(domain.PresenceSet)
	t.stale = false
}
