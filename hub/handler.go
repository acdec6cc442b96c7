package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pulse-chat/identity"
	"pulse-chat/observability"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Single-room lab deployment; lock down per-origin in production.
	},
}

// Server exposes the hub over HTTP: the websocket endpoint plus the
// token-issuing surface that stands in for the external identity
// provider of the original system.
type Server struct {
	log           *slog.Logger
	hub           *Hub
	stats         *observability.Stats
	directory     *identity.Directory
	jwtSecret     []byte
	tokenLifetime time.Duration
	sendBuf       int
}

func NewServer(log *slog.Logger, h *Hub, stats *observability.Stats,
	directory *identity.Directory, jwtSecret []byte, tokenLifetime time.Duration) *Server {
	return &Server{
		log:           log,
		hub:           h,
		stats:         stats,
		directory:     directory,
		jwtSecret:     jwtSecret,
		tokenLifetime: tokenLifetime,
		sendBuf:       h.sendBuf,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebsocket)
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/token", s.handleToken)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// handleWebsocket authenticates the bearer token and hands the upgraded
// connection to the hub. Without a valid credential the handshake is
// refused: an unauthenticated client never reaches a channel.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing credential", http.StatusUnauthorized)
		return
	}
	cred, err := identity.ValidateToken(s.jwtSecret, token)
	if err != nil {
		s.log.Warn("rejected handshake", "error", err)
		http.Error(w, "invalid credential", http.StatusUnauthorized)
		return
	}

	socket, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}

	conn := newConn(uuid.NewString(), cred, socket, s.sendBuf, s.log)
	s.log.Info("connection accepted", "conn_id", conn.ID, "user_id", cred.UserID)
	s.hub.Attach(conn)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req identity.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	cred, err := s.directory.Register(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, map[string]string{"user_id": cred.UserID})
}

type tokenRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	cred, err := s.directory.Authenticate(req.Email, req.Password)
	if err != nil {
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	token, err := identity.GenerateToken(s.jwtSecret, cred, s.tokenLifetime)
	if err != nil {
		http.Error(w, "token generation failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"token": token})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.stats.Snapshot())
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// Browser websocket clients cannot set headers; accept the token as
	// a query parameter too.
	return r.URL.Query().Get("token")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
