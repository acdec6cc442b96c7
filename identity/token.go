// Package identity is the boundary to the identity provider: credential
// tokens, the sign-in/sign-out subscription consumed by the session
// layer, and the user directory backing the hub's token endpoint.
package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"pulse-chat/domain"
)

// CredentialClaims defines the data stored inside a credential JWT.
// Subject carries the user id; display name and avatar ref ride along so
// the client never needs a profile lookup.
type CredentialClaims struct {
	DisplayName string `json:"display_name"`
	AvatarRef   string `json:"avatar_ref"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed credential JWT (HMAC with SHA256).
func GenerateToken(secret []byte, cred domain.Credential, lifetime time.Duration) (string, error) {
	claims := &CredentialClaims{
		DisplayName: cred.DisplayName,
		AvatarRef:   cred.AvatarRef,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.UserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(lifetime)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "pulse-chat",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ValidateToken checks signature and expiration and extracts the
// credential. Used by the hub at websocket handshake time.
func ValidateToken(secret []byte, tokenString string) (domain.Credential, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CredentialClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return domain.Credential{}, err
	}

	claims, ok := token.Claims.(*CredentialClaims)
	if !ok || !token.Valid {
		return domain.Credential{}, jwt.ErrSignatureInvalid
	}
	return credentialFromClaims(claims), nil
}

// decodeToken extracts the credential without verifying the signature.
// The client side only needs the identity fields; the hub re-validates
// the signature on every handshake.
func decodeToken(tokenString string) (domain.Credential, error) {
	claims := &CredentialClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return domain.Credential{}, err
	}
	return credentialFromClaims(claims), nil
}

func credentialFromClaims(claims *CredentialClaims) domain.Credential {
	return domain.Credential{
		UserID:      claims.Subject,
		DisplayName: claims.DisplayName,
		AvatarRef:   claims.AvatarRef,
	}
}
