package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/chatsocket/chatsocket/internal/auth"
	"github.com/chatsocket/chatsocket/internal/chat"
	"github.com/chatsocket/chatsocket/internal/data"
	"github.com/chatsocket/chatsocket/internal/normalize"
)

// userStore is the slice of the users store the HTTP handlers need.
type userStore interface {
	CreateUser(ctx context.Context, email, name, passwordHash, profileImage string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	SearchUsers(ctx context.Context, requester, query string, limit int64) ([]*data.User, error)
}

// conversationService is the conversation surface the handlers need.
// *chat.Service satisfies it.
type conversationService interface {
	GetOrCreateDirect(ctx context.Context, a, b string) (*data.Conversation, error)
	ListFor(ctx context.Context, email string) ([]chat.ConversationView, error)
	ListEnriched(ctx context.Context, email string) ([]chat.EnrichedConversationView, error)
	Messages(ctx context.Context, conversationID string, skip, limit int64) ([]chat.MessageView, error)
	MarkRead(ctx context.Context, conversationID, email string) error
}

// messenger runs the message pipeline for an authenticated identity.
// *chat.Coordinator satisfies it.
type messenger interface {
	SendFrom(ctx context.Context, identity string, req *chat.SendMessagePayload) (*chat.MessageView, error)
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

type userView struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	ProfileImage string `json:"profile_image,omitempty"`
	IsOnline     bool   `json:"is_online"`
}

type startConversationRequest struct {
	Email string `json:"email"`
}

func newUserView(u *data.User) userView {
	return userView{
		ID:           u.ID.Hex(),
		Email:        u.Email,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
		IsOnline:     u.IsOnline,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps pipeline and store errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrInvalidParticipants):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrSenderNotFound),
		errors.Is(err, chat.ErrRecipientNotFound),
		errors.Is(err, chat.ErrConversationNotFound),
		errors.Is(err, data.ErrUserNotFound),
		errors.Is(err, data.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, data.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Email = normalize.Email(req.Email)
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}
	if req.Name == "" {
		req.Name = normalize.LocalPart(req.Email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := s.users.CreateUser(r.Context(), req.Email, req.Name, hash, "")
	if err != nil {
		if errors.Is(err, data.ErrUserExists) {
			writeError(w, http.StatusConflict, "user already exists")
			return
		}
		log.Printf("register failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	token, expiresAt, err := s.jwt.GenerateToken(user.ID.Hex(), user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, ExpiresAt: expiresAt, User: newUserView(user)})
}

func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.users.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		log.Printf("login lookup failed for %s: %v", req.Email, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, expiresAt, err := s.jwt.GenerateToken(user.ID.Hex(), user.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, ExpiresAt: expiresAt, User: newUserView(user)})
}

func (s *server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	user, err := s.users.GetUserByEmail(r.Context(), claims.Email)
	if err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, newUserView(user))
}

func (s *server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}

	users, err := s.users.SearchUsers(r.Context(), claims.Email, query, 10)
	if err != nil {
		log.Printf("user search failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": views})
}

func (s *server) handleConversations(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	views, err := s.chats.ListFor(r.Context(), claims.Email)
	if err != nil {
		log.Printf("list conversations failed for %s: %v", claims.Email, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

func (s *server) handleConversationsEnriched(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	views, err := s.chats.ListEnriched(r.Context(), claims.Email)
	if err != nil {
		log.Printf("list enriched conversations failed for %s: %v", claims.Email, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversations": views})
}

// handleStartConversation provisions (or returns) the direct
// conversation between the caller and the named recipient. Unlike the
// message pipeline, the recipient must already have a user record.
func (s *server) handleStartConversation(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := s.users.GetUserByEmail(r.Context(), req.Email); err != nil {
		if errors.Is(err, data.ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "recipient not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	conv, err := s.chats.GetOrCreateDirect(r.Context(), claims.Email, req.Email)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"conversation_id": conv.ID.Hex(),
		"participants":    conv.Participants,
	})
}

func (s *server) handleMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]

	skip, _ := strconv.ParseInt(r.URL.Query().Get("skip"), 10, 64)
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	msgs, err := s.chats.Messages(r.Context(), conversationID, skip, limit)
	if err != nil {
		writeError(w, statusFor(err), "failed to load messages")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	conversationID := mux.Vars(r)["id"]

	if err := s.chats.MarkRead(r.Context(), conversationID, claims.Email); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSendMessage is the REST pass-through into the message pipeline:
// the sender does not need a live websocket connection, but online
// participants still receive the real-time events.
func (s *server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())

	var req chat.SendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ToEmail == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "to_email and message are required")
		return
	}

	view, err := s.sender.SendFrom(r.Context(), claims.Email, &req)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
