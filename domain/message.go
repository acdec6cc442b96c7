// Package domain contains core concepts of the room coordination layer.
// This file defines Message events and related rules.
// Messages are immutable and validated by the domain.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents an immutable broadcast event. Received copies are
// never mutated once appended to a MessageLog. SentAt carries the sender's
// clock and travels as ISO-8601 on the wire.
type Message struct {
	ID                uuid.UUID `json:"id"`
	SenderUserID      string    `json:"sender_user_id"`
	SenderDisplayName string    `json:"sender_display_name"`
	SenderAvatarRef   string    `json:"sender_avatar_ref"`
	Body              string    `json:"body"`
	SentAt            time.Time `json:"sent_at"`
}

// NewMessage builds an outgoing message from the sender's credential,
// stamped with the sender's clock.
func NewMessage(cred Credential, body string) Message {
	return Message{
		ID:                uuid.New(),
		SenderUserID:      cred.UserID,
		SenderDisplayName: cred.DisplayName,
		SenderAvatarRef:   cred.AvatarRef,
		Body:              body,
		SentAt:            time.Now().UTC(),
	}
}
