package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/models"
	"ms-reminders/internal/services"
	"ms-reminders/internal/session"
)

// SessionManager opens and closes sessions
type SessionManager interface {
	Login(ctx context.Context, email string) (*session.Session, error)
	Register(ctx context.Context, in session.RegisterInput) (*session.Session, error)
	Logout(ctx context.Context, id string) error
}

// Passwords are accepted but not checked; the directory only holds demo accounts.
type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"required,oneof=admin doctor patient"`
	Phone    string `json:"phone"`
}

type sessionResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type SessionHandler struct {
	sessions SessionManager
	tokens   *auth.TokenService
}

func NewSessionHandler(sessions SessionManager, tokens *auth.TokenService) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens}
}

// Login handles POST /session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Login(r.Context(), req.Email)
	if errors.Is(err, session.ErrInvalidCredentials) {
		http.Error(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Error logging in")
		http.Error(w, "Failed to log in", http.StatusInternalServerError)
		return
	}
	h.respondWithSession(w, http.StatusOK, s)
}

// Register handles POST /session/register
func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	role, err := models.ParseRole(req.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s, err := h.sessions.Register(r.Context(), session.RegisterInput{
		Name:  req.Name,
		Email: req.Email,
		Role:  role,
		Phone: req.Phone,
	})
	if errors.Is(err, services.ErrEmailInUse) {
		http.Error(w, "Email already in use", http.StatusConflict)
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Error registering user")
		http.Error(w, "Failed to register", http.StatusInternalServerError)
		return
	}
	h.respondWithSession(w, http.StatusCreated, s)
}

// Logout handles POST /session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s, err := auth.SessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if err := h.sessions.Logout(r.Context(), s.ID); err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Error logging out")
		http.Error(w, "Failed to log out", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /session/me
func (h *SessionHandler) Me(w http.ResponseWriter, r *http.Request) {
	s, err := auth.SessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, s.User)
}

func (h *SessionHandler) respondWithSession(w http.ResponseWriter, status int, s *session.Session) {
	token, err := h.tokens.Issue(s)
	if err != nil {
		log.Error().Err(err).Msg("Error issuing token")
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, status, sessionResponse{Token: token, ExpiresAt: s.ExpiresAt, User: s.User})
}
