package identity

import (
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"pulse-chat/domain"
	"pulse-chat/errors"
)

var secret = []byte("test_secret_key_for_identity_tests")

func TestToken_RoundTrip(t *testing.T) {
	req := require.New(t)
	cred := domain.Credential{UserID: "u1", DisplayName: "alice", AvatarRef: "http://a/1.png"}

	token, err := GenerateToken(secret, cred, time.Hour)
	req.NoError(err)

	got, err := ValidateToken(secret, token)
	req.NoError(err)
	req.Equal(cred, got)
}

func TestToken_WrongSecretRejected(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(secret, domain.Credential{UserID: "u1"}, time.Hour)
	req.NoError(err)

	_, err = ValidateToken([]byte("another_secret"), token)

	req.Error(err)
}

func TestToken_ExpiredRejected(t *testing.T) {
	req := require.New(t)
	token, err := GenerateToken(secret, domain.Credential{UserID: "u1"}, -time.Minute)
	req.NoError(err)

	_, err = ValidateToken(secret, token)

	req.Error(err)
}

func TestTokenProvider_SignInNotifiesAndSignOutCascades(t *testing.T) {
	req := require.New(t)
	provider := NewTokenProvider(logs.GetLoggerFromLevel(slog.LevelDebug))
	cred := domain.Credential{UserID: "u1", DisplayName: "alice"}
	token, err := GenerateToken(secret, cred, time.Hour)
	req.NoError(err)

	var events []bool
	cancel := provider.OnCredentialChanged(func(_ domain.Credential, present bool) {
		events = append(events, present)
	})
	defer cancel()

	// Given no credential initially
	_, present := provider.CurrentCredential()
	req.False(present)

	// When signing in
	req.NoError(provider.SignIn(token))
	got, present := provider.CurrentCredential()
	req.True(present)
	req.Equal(cred, got)
	req.Equal(token, provider.Token())

	// When signing out, the credential becomes absent
	provider.SignOut()
	_, present = provider.CurrentCredential()
	req.False(present)
	req.Empty(provider.Token())

	req.Equal([]bool{true, false}, events)
}

func TestDirectory_RegisterAndAuthenticate(t *testing.T) {
	req := require.New(t)
	dir := NewDirectory()

	cred, err := dir.Register(RegisterRequest{
		Email:       "alice@example.com",
		Password:    "Str0ng&LongPassw0rd!",
		DisplayName: "alice",
		AvatarRef:   "http://a/1.png",
	})
	req.NoError(err)
	req.NotEmpty(cred.UserID)

	got, err := dir.Authenticate("alice@example.com", "Str0ng&LongPassw0rd!")
	req.NoError(err)
	req.Equal(cred, got)

	_, err = dir.Authenticate("alice@example.com", "wrong-Passw0rd!")
	req.ErrorIs(err, errors.ErrUnknownUser)

	_, err = dir.Authenticate("nobody@example.com", "whatever")
	req.ErrorIs(err, errors.ErrUnknownUser)
}

func TestDirectory_RegisterValidation(t *testing.T) {
	req := require.New(t)
	dir := NewDirectory()

	// Missing complexity
	_, err := dir.Register(RegisterRequest{
		Email:       "bob@example.com",
		Password:    "alllowercaseonly",
		DisplayName: "bob",
	})
	req.ErrorIs(err, errors.ErrInvalidPassword)

	// Invalid email
	_, err = dir.Register(RegisterRequest{
		Email:       "not-an-email",
		Password:    "Str0ng&LongPassw0rd!",
		DisplayName: "bob",
	})
	req.Error(err)
}

func TestPassword_HashAndCompare(t *testing.T) {
	req := require.New(t)

	hash, err := HashPassword("S3cret&Enough!")
	req.NoError(err)

	ok, err := ComparePassword("S3cret&Enough!", hash)
	req.NoError(err)
	req.True(ok)

	ok, err = ComparePassword("different", hash)
	req.NoError(err)
	req.False(ok)
}
