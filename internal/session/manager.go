package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/models"
	"ms-reminders/internal/services"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

// UserDirectory looks up and registers accounts
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// RegisterInput holds the fields of a new account
type RegisterInput struct {
	Name  string
	Email string
	Role  models.Role
	Phone string
}

// Manager signs users in and out. Passwords are not verified: the directory
// holds demo accounts only.
type Manager struct {
	store Store
	users UserDirectory
	ttl   time.Duration
	now   func() time.Time
}

func NewManager(store Store, users UserDirectory, ttl time.Duration) *Manager {
	return &Manager{store: store, users: users, ttl: ttl, now: time.Now}
}

// Login opens a session for the account registered under email
func (m *Manager) Login(ctx context.Context, email string) (*Session, error) {
	user, err := m.users.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, services.ErrUserNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return m.open(ctx, *user)
}

// Register adds an account and signs it in
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	user := &models.User{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(in.Name),
		Email: normalizeEmail(in.Email),
		Role:  in.Role,
		Phone: in.Phone,
	}
	if err := m.users.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Info().Str("user_id", user.ID).Str("role", string(user.Role)).Msg("Registered user")
	return m.open(ctx, *user)
}

// Resolve loads a live session
func (m *Manager) Resolve(ctx context.Context, id string) (*Session, error) {
	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.ExpiresAt.After(m.now()) {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Logout tears the session down
func (m *Manager) Logout(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	log.Info().Str("session_id", id).Msg("Session closed")
	return nil
}

func (m *Manager) open(ctx context.Context, user models.User) (*Session, error) {
	now := m.now().UTC()
	s := Session{
		ID:        uuid.NewString(),
		User:      user,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	log.Info().Str("user_id", user.ID).Str("session_id", s.ID).Msg("Session opened")
	return &s, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
