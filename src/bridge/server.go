// Package bridge is the HTTP transport adapter consumed by the web and
// mobile clients. It exposes the conversation CRUD surface and the
// streaming turn endpoint, and translates session fragments into a
// newline-delimited JSON response stream.
package bridge

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/notevault/vaultbridge/src/chatstore"
	"github.com/notevault/vaultbridge/src/session"
)

// Server wires the chat store and session manager to the HTTP surface.
type Server struct {
	store    chatstore.Store
	sessions *session.Manager
	secret   string
	logger   *slog.Logger
}

func NewServer(store chatstore.Store, sessions *session.Manager, secret string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		sessions: sessions,
		secret:   secret,
		logger:   logger,
	}
}

// Handler builds the routed handler with auth and request logging applied.
// The health check stays outside the shared-secret gate.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/chats", s.handleListChats)
	mux.HandleFunc("GET /api/chats/{id}/messages", s.handleGetMessages)
	mux.HandleFunc("PUT /api/chats/{id}", s.handleRenameChat)
	mux.HandleFunc("DELETE /api/chats/{id}", s.handleDeleteChat)
	mux.HandleFunc("POST /api/chat", s.handleTurn)

	return chainMiddlewares(mux, s.withAuth, s.withLogging)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// withAuth checks the shared secret on everything except the health check.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(s.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs every request.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// chainMiddlewares applies multiple middlewares in order.
func chainMiddlewares(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for _, m := range middlewares {
		h = m(h)
	}
	return h
}
