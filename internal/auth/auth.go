package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"ms-reminders/internal/models"
	"ms-reminders/internal/session"
)

type contextKey string

const sessionKey contextKey = "session"

// SessionResolver loads the session a token refers to
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (*session.Session, error)
}

// SessionFromContext returns the session placed by AuthMiddleware
func SessionFromContext(ctx context.Context) (*session.Session, error) {
	s, ok := ctx.Value(sessionKey).(*session.Session)
	if !ok || s == nil {
		return nil, errors.New("session not found in context")
	}
	return s, nil
}

// WithSession returns a copy of ctx carrying s
func WithSession(ctx context.Context, s *session.Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

type Authenticator struct {
	tokens   *TokenService
	sessions SessionResolver
}

func NewAuthenticator(tokens *TokenService, sessions SessionResolver) *Authenticator {
	return &Authenticator{tokens: tokens, sessions: sessions}
}

// AuthMiddleware verifies the bearer token, resolves its session and puts the
// session in the request context
func (a *Authenticator) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractTokenFromRequest(r)
		if err != nil {
			log.Debug().Err(err).Msg("Error extracting token")
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected token")
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		s, err := a.sessions.Resolve(r.Context(), claims.SessionID)
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "Session expired", http.StatusUnauthorized)
			return
		}
		if err != nil {
			log.Error().Err(err).Str("session_id", claims.SessionID).Msg("Error resolving session")
			http.Error(w, "Failed to validate authorization", http.StatusInternalServerError)
			return
		}
		if s.User.ID != claims.Subject {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
	})
}

// RequireRoles lets the request through only for the given roles. It must run
// after AuthMiddleware.
func RequireRoles(roles ...models.Role) func(http.Handler) http.Handler {
	allowed := make(map[models.Role]bool, len(roles))
	for _, role := range roles {
		switch role {
		case models.RoleAdmin, models.RoleDoctor, models.RolePatient:
			allowed[role] = true
		default:
			panic(fmt.Sprintf("auth: unhandled role %q", string(role)))
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := SessionFromContext(r.Context())
			if err != nil {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			if !allowed[s.User.Role] {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
