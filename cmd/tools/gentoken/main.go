package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"pulse-chat/domain"
	"pulse-chat/identity"
)

// gentoken mints a credential JWT for local testing, so a client can be
// pointed at a hub without going through the register/token endpoints.
func main() {
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "HMAC signing secret (defaults to JWT_SECRET)")
	userID := flag.String("user", "", "user id (random uuid when empty)")
	name := flag.String("name", "anonymous", "display name")
	avatar := flag.String("avatar", "", "avatar reference")
	lifetime := flag.Duration("lifetime", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "gentoken: missing -secret (or JWT_SECRET)")
		os.Exit(2)
	}
	if *userID == "" {
		*userID = uuid.NewString()
	}

	cred := domain.Credential{
		UserID:      *userID,
		DisplayName: *name,
		AvatarRef:   *avatar,
	}
	token, err := identity.GenerateToken([]byte(*secret), cred, *lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "gentoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
