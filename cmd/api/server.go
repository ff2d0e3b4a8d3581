package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/chatsocket/chatsocket/internal/auth"
	"github.com/chatsocket/chatsocket/internal/chat"
	"github.com/chatsocket/chatsocket/internal/middleware"
)

// server holds the HTTP surface's dependencies. The websocket endpoint
// talks to the coordinator directly; everything else goes through the
// narrower store and service interfaces.
type server struct {
	users   userStore
	chats   conversationService
	sender  messenger
	coord   *chat.Coordinator
	jwt     *auth.JWTManager
	limiter *middleware.LimiterStore
}

func newServer(users userStore, chats conversationService, sender messenger, coord *chat.Coordinator, jwtMgr *auth.JWTManager, limiter *middleware.LimiterStore) *server {
	return &server{
		users:   users,
		chats:   chats,
		sender:  sender,
		coord:   coord,
		jwt:     jwtMgr,
		limiter: limiter,
	}
}

// routes assembles the router: auth endpoints are rate limited, the
// /api surface behind them requires a bearer token, and /ws carries its
// token in the query string because browsers cannot set websocket
// headers.
func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	limited := middleware.RateLimit(s.limiter, authRateKey)
	r.Handle("/api/auth/register", limited(http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	r.Handle("/api/auth/login", limited(http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.requireAuth)
	api.HandleFunc("/users/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/users/search", s.handleSearchUsers).Methods(http.MethodGet)
	api.HandleFunc("/conversations", s.handleConversations).Methods(http.MethodGet)
	api.HandleFunc("/conversations/enriched", s.handleConversationsEnriched).Methods(http.MethodGet)
	api.HandleFunc("/conversations/start", s.handleStartConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", s.handleMessages).Methods(http.MethodGet)
	api.HandleFunc("/conversations/{id}/mark-read", s.handleMarkRead).Methods(http.MethodPost)
	api.HandleFunc("/messages/send", s.handleSendMessage).Methods(http.MethodPost)

	r.HandleFunc("/ws", s.handleWS).Methods(http.MethodGet)

	return r
}

type contextKey string

const claimsKey contextKey = "claims"

func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsKey).(*auth.Claims)
	return claims
}

// requireAuth validates the bearer token and stores its claims on the
// request context.
func (s *server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.jwt.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// authRateKey keys the register/login limiter by the email in the
// request body when present, falling back to the client IP. The body is
// restored for the handler downstream.
func authRateKey(r *http.Request) string {
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeAndRestoreBody(r, &body); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(body.Email))
}

// decodeAndRestoreBody decodes the JSON body into v and puts a fresh
// reader back on the request so the handler can decode it again.
func decodeAndRestoreBody(r *http.Request, v any) error {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	return json.Unmarshal(raw, v)
}
