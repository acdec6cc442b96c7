package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"pulse-chat/domain"
	"pulse-chat/identity"
	"pulse-chat/internal"
	"pulse-chat/session"
	"pulse-chat/transport/ws"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

// run handles the client lifecycle: sign-in, room session, and the
// stdin send loop. Incoming messages and presence changes render as
// they arrive through the session callbacks.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	_ = godotenv.Load()
	var config internal.ClientConfig
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Sign in with the provided credential token.
	provider := identity.NewTokenProvider(log)
	if err := provider.SignIn(config.Token); err != nil {
		return exitConfig, fmt.Errorf("invalid credential token: %w", err)
	}
	cred, _ := provider.CurrentCredential()

	// 3. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Open the room session over the websocket transport.
	transport := ws.New(log, config.ServerURL, provider.Token())
	defer transport.Close()

	sess := session.NewRoomSession(log, transport, config.SubscribeTimeout, session.Callbacks{
		OnMessage:         printMessage(cred),
		OnPresenceChanged: printPresence,
		OnStateChanged: func(state domain.ConnectionState) {
			fmt.Println(color.New(color.FgGray).Render("-- " + state.String() + " --"))
		},
	})
	defer sess.Close()

	// Sign-out must cascade to tearing the session down.
	cancel := provider.OnCredentialChanged(func(_ domain.Credential, present bool) {
		if !present {
			_ = sess.Close()
			stop()
		}
	})
	defer cancel()

	if err := sess.Open(ctx, domain.RoomID(config.RoomID), cred); err != nil {
		return exitRuntime, fmt.Errorf("failed to open room %s: %w", config.RoomID, err)
	}

	fmt.Printf(">>> Joined %s as %s (type to chat, /quit to sign out)\n", config.RoomID, cred.DisplayName)

	// 5. Stdin send loop.
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return exitOK, nil
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "/quit" {
				provider.SignOut()
				return exitOK, nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			if err := sess.Send(line); err != nil {
				log.Warn("message not sent", "error", err)
			}
		}
	}
}

func printMessage(self domain.Credential) func(domain.Message) {
	return func(msg domain.Message) {
		stamp := msg.SentAt.Local().Format(time.TimeOnly)
		line := fmt.Sprintf("[%s] %s: %s", stamp, msg.SenderDisplayName, msg.Body)
		if msg.SenderUserID == self.UserID {
			fmt.Println(color.New(color.FgCyan).Render(line))
			return
		}
		fmt.Println(line)
	}
}

func printPresence(set domain.PresenceSet) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Online", fmt.Sprintf("%d", len(set))})
	for _, id := range set.Users() {
		table.Append([]string{"*", id})
	}
	table.Render()
}
