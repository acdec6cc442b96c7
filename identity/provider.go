package identity

import (
	"log/slog"
	"sync"

	"pulse-chat/domain"
)

// Provider supplies the current credential and notifies when it changes.
// Sign-in triggers a session open; sign-out must cascade to tearing the
// session down.
type Provider interface {
	CurrentCredential() (domain.Credential, bool)
	OnCredentialChanged(h func(cred domain.Credential, present bool)) (cancel func())
}

// TokenProvider is a Provider backed by a credential JWT obtained out of
// band (the hub's token endpoint, or any external issuer).
type TokenProvider struct {
	mu       sync.Mutex
	log      *slog.Logger
	token    string
	cred     domain.Credential
	present  bool
	nextID   int
	handlers map[int]func(domain.Credential, bool)
}

var _ Provider = (*TokenProvider)(nil)

func NewTokenProvider(log *slog.Logger) *TokenProvider {
	return &TokenProvider{log: log, handlers: make(map[int]func(domain.Credential, bool))}
}

// SignIn installs a credential token and notifies subscribers.
func (p *TokenProvider) SignIn(token string) error {
	cred, err := decodeToken(token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.token = token
	p.cred = cred
	p.present = true
	handlers := p.snapshotHandlersLocked()
	p.mu.Unlock()

	p.log.Info("signed in", "user_id", cred.UserID)
	for _, h := range handlers {
		h(cred, true)
	}
	return nil
}

// SignOut invalidates the credential. Subscribers receive an absent
// credential and are expected to close any active session.
func (p *TokenProvider) SignOut() {
	p.mu.Lock()
	userID := p.cred.UserID
	p.token = ""
	p.cred = domain.Credential{}
	p.present = false
	handlers := p.snapshotHandlersLocked()
	p.mu.Unlock()

	p.log.Info("signed out", "user_id", userID)
	for _, h := range handlers {
		h(domain.Credential{}, false)
	}
}

func (p *TokenProvider) CurrentCredential() (domain.Credential, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cred, p.present
}

// Token returns the raw JWT for transport authentication.
func (p *TokenProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

func (p *TokenProvider) OnCredentialChanged(h func(domain.Credential, bool)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.handlers[id] = h
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

func (p *TokenProvider) snapshotHandlersLocked() []func(domain.Credential, bool) {
	out := make([]func(domain.Credential, bool), 0, len(p.handlers))
	for _, h := range p.handlers {
		out = append(out, h)
	}
	return out
}
