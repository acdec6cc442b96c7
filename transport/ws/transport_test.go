package ws_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pulse-chat/domain"
	"pulse-chat/hub"
	"pulse-chat/identity"
	"pulse-chat/observability"
	"pulse-chat/session"
	"pulse-chat/transport/ws"
	"pulse-chat/workers"
)

const (
	testSecret  = "integration-secret"
	testTimeout = 5 * time.Second
)

// startTestHub boots a full hub behind an httptest server and returns
// its websocket URL.
func startTestHub(t *testing.T) string {
	t.Helper()
	log := slog.Default()
	stats := observability.NewStats()
	h := hub.NewHub(log, hub.NewRegistry(), stats, 256, 64)
	server := hub.NewServer(log, h, stats, identity.NewDirectory(), []byte(testSecret), time.Hour)

	sup := workers.NewSupervisor(log, 50*time.Millisecond)
	sup.Add(hub.NewFanoutWorker(log, h))
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	srv := httptest.NewServer(server.Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func mintToken(t *testing.T, userID, name string) string {
	t.Helper()
	token, err := identity.GenerateToken([]byte(testSecret), domain.Credential{
		UserID:      userID,
		DisplayName: name,
		AvatarRef:   "avatar://" + userID,
	}, time.Hour)
	require.NoError(t, err)
	return token
}

// recorder collects session callbacks for assertions.
type recorder struct {
	mu       sync.Mutex
	messages []domain.Message
	presence domain.PresenceSet
}

func (r *recorder) callbacks() session.Callbacks {
	return session.Callbacks{
		OnMessage: func(msg domain.Message) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.messages = append(r.messages, msg)
		},
		OnPresenceChanged: func(set domain.PresenceSet) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.presence = set
		},
	}
}

func (r *recorder) users() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.presence == nil {
		return nil
	}
	return r.presence.Users()
}

func (r *recorder) bodies() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.messages))
	for _, m := range r.messages {
		out = append(out, m.Body)
	}
	return out
}

func openSession(t *testing.T, url, userID, name string, rec *recorder) *session.RoomSession {
	t.Helper()
	cred := domain.Credential{UserID: userID, DisplayName: name}
	transport := ws.New(slog.Default(), url+"?token="+mintToken(t, userID, name), "")
	t.Cleanup(func() { _ = transport.Close() })

	sess := session.NewRoomSession(slog.Default(), transport, testTimeout, rec.callbacks())
	require.NoError(t, sess.Open(context.Background(), "room_one", cred))
	require.Eventually(t, func() bool { return sess.State() == domain.Subscribed },
		testTimeout, 20*time.Millisecond, "session for %s never subscribed", userID)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

func TestTwoClientsConvergeOnPresenceAndMessages(t *testing.T) {
	assert := require.New(t)
	url := startTestHub(t)

	// Given two clients subscribed to the same room
	aliceRec, bobRec := &recorder{}, &recorder{}
	alice := openSession(t, url, "u-alice", "Alice", aliceRec)
	_ = openSession(t, url, "u-bob", "Bob", bobRec)

	// Then both converge on the same two-user presence state
	want := []string{"u-alice", "u-bob"}
	assert.Eventually(func() bool {
		return equalUsers(aliceRec.users(), want) && equalUsers(bobRec.users(), want)
	}, testTimeout, 20*time.Millisecond, "presence never converged: alice=%v bob=%v", aliceRec.users(), bobRec.users())

	// When alice sends a message
	assert.NoError(alice.Send("hello from alice"))

	// Then everyone receives it through the broadcast, the sender included
	for _, rec := range []*recorder{aliceRec, bobRec} {
		assert.Eventually(func() bool {
			bodies := rec.bodies()
			return len(bodies) == 1 && bodies[0] == "hello from alice"
		}, testTimeout, 20*time.Millisecond)
	}

	// And the sender's local log holds exactly one copy
	assert.Len(aliceRec.bodies(), 1)
}

func TestLeavingClientDisappearsFromPresence(t *testing.T) {
	assert := require.New(t)
	url := startTestHub(t)

	aliceRec, bobRec := &recorder{}, &recorder{}
	_ = openSession(t, url, "u-alice", "Alice", aliceRec)
	bob := openSession(t, url, "u-bob", "Bob", bobRec)

	assert.Eventually(func() bool {
		return equalUsers(aliceRec.users(), []string{"u-alice", "u-bob"})
	}, testTimeout, 20*time.Millisecond)

	// When bob closes his session
	assert.NoError(bob.Close())

	// Then alice sees him vanish from the room
	assert.Eventually(func() bool {
		return equalUsers(aliceRec.users(), []string{"u-alice"})
	}, testTimeout, 20*time.Millisecond, "bob still present: %v", aliceRec.users())
}

func TestHandshakeRefusedWithoutValidToken(t *testing.T) {
	assert := require.New(t)
	url := startTestHub(t)

	// When subscribing with a garbage credential
	transport := ws.New(slog.Default(), url, "not-a-token")
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := transport.Subscribe(ctx, "room_one", "u-x")

	// Then the handshake itself is rejected
	assert.Error(err)
}

func TestSecondSubscribeToSameRoomRefused(t *testing.T) {
	assert := require.New(t)
	url := startTestHub(t)

	transport := ws.New(slog.Default(), url+"?token="+mintToken(t, "u1", "One"), "")
	t.Cleanup(func() { _ = transport.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	defer cancel()
	_, err := transport.Subscribe(ctx, "room_one", "u1")
	assert.NoError(err)

	// A transport holds at most one live subscription per room.
	_, err = transport.Subscribe(ctx, "room_one", "u1")
	assert.Error(err)
}

func equalUsers(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
