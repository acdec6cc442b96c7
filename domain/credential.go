// Package domain contains core concepts of the room coordination layer.
// This file defines the Credential obtained from the identity provider.
// No runtime, network, or UI logic should be added here.
package domain

// Credential is the authenticated identity handed out by the identity
// provider once sign-in completes. A RoomSession holds a read-only copy
// for its whole lifetime; sign-out invalidates it and tears the session down.
type Credential struct {
	UserID      string
	DisplayName string
	AvatarRef   string
}

// IsZero reports whether no credential is available (unauthenticated).
func (c Credential) IsZero() bool {
	return c.UserID == ""
}
