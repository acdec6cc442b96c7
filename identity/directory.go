package identity

import (
	"sync"

	"github.com/google/uuid"

	"pulse-chat/domain"
	"pulse-chat/errors"
)

type userRecord struct {
	cred domain.Credential
	hash string
}

// Directory is the in-memory user store backing the hub's register and
// token endpoints. It stands in for the external OAuth provider of the
// original system; nothing here is persisted.
type Directory struct {
	mu    sync.RWMutex
	users map[string]userRecord // keyed by email
}

func NewDirectory() *Directory {
	return &Directory{users: make(map[string]userRecord)}
}

// Register validates the request, hashes the password, and stores the
// user. Returns the freshly minted credential.
func (d *Directory) Register(req RegisterRequest) (domain.Credential, error) {
	if err := ValidateRegister(req); err != nil {
		return domain.Credential{}, err
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return domain.Credential{}, err
	}

	cred := domain.Credential{
		UserID:      uuid.NewString(),
		DisplayName: req.DisplayName,
		AvatarRef:   req.AvatarRef,
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if existing, ok := d.users[req.Email]; ok {
		// Re-registering keeps the user id stable so presence keys
		// survive password changes.
		cred.UserID = existing.cred.UserID
	}
	d.users[req.Email] = userRecord{cred: cred, hash: hash}
	return cred, nil
}

// Authenticate verifies the password and returns the stored credential.
func (d *Directory) Authenticate(email, password string) (domain.Credential, error) {
	d.mu.RLock()
	rec, ok := d.users[email]
	d.mu.RUnlock()
	if !ok {
		return domain.Credential{}, errors.ErrUnknownUser
	}

	match, err := ComparePassword(password, rec.hash)
	if err != nil {
		return domain.Credential{}, err
	}
	if !match {
		return domain.Credential{}, errors.ErrUnknownUser
	}
	return rec.cred, nil
}
