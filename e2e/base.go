package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"pulse-chat/domain"
	"pulse-chat/identity"
	"pulse-chat/session"
	"pulse-chat/transport/ws"
)

const stepTimeout = 30 * time.Second

// BaseHubSuite dials a running hub over its public HTTP surface. It
// registers throwaway accounts, obtains credential tokens, and opens
// room sessions over the real websocket transport.
type BaseHubSuite struct {
	suite.Suite
	Config Config
}

// SetupSuite loads the environment configuration before running tests
func (s *BaseHubSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.HubAddr == "" {
		s.T().Skip("HUB_ADDR not set, skipping hub scenarios")
	}
}

func (s *BaseHubSuite) header(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// RegisterUser creates a fresh account via /register and returns a
// credential token minted via /token.
func (s *BaseHubSuite) RegisterUser(email, password, displayName string) string {
	body, _ := json.Marshal(identity.RegisterRequest{
		Email:       email,
		Password:    password,
		DisplayName: displayName,
	})
	resp, err := http.Post(s.Config.HubAddr+"/register", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode, "register refused for %s", email)

	body, _ = json.Marshal(map[string]string{"email": email, "password": password})
	resp, err = http.Post(s.Config.HubAddr+"/token", "application/json", bytes.NewReader(body))
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode, "token refused for %s", email)

	var out map[string]string
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	s.Require().NotEmpty(out["token"])
	return out["token"]
}

// WithSession opens a room session for the given token and hands it to
// the step function, tearing everything down afterwards.
func (s *BaseHubSuite) WithSession(name, token string, callbacks session.Callbacks,
	fn func(ctx context.Context, sess *session.RoomSession)) {
	s.header(name)

	provider := identity.NewTokenProvider(slog.Default())
	s.Require().NoError(provider.SignIn(token))
	cred, _ := provider.CurrentCredential()

	transport := ws.New(slog.Default(), s.wsURL()+"?token="+token, "")
	defer transport.Close()

	sess := session.NewRoomSession(slog.Default(), transport, stepTimeout, callbacks)
	defer sess.Close()

	ctx, cancel := context.WithTimeout(context.Background(), stepTimeout)
	defer cancel()

	s.Require().NoError(sess.Open(ctx, domain.RoomID(s.Config.RoomID), cred))
	s.Require().Eventually(func() bool { return sess.State() == domain.Subscribed },
		stepTimeout, 50*time.Millisecond, "session never subscribed")

	fn(ctx, sess)
}

func (s *BaseHubSuite) wsURL() string {
	return "ws" + strings.TrimPrefix(s.Config.HubAddr, "http") + "/ws"
}
