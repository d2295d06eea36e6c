package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"ms-reminders/internal/models"
	"ms-reminders/internal/session"
)

const issuer = "ms-reminders"

// Claims is the payload of a session token
type Claims struct {
	SessionID string      `json:"sid"`
	Role      models.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 session tokens
type TokenService struct {
	secret []byte
}

func NewTokenService(secret string) *TokenService {
	return &TokenService{secret: []byte(secret)}
}

// Issue signs a token that expires together with the session
func (t *TokenService) Issue(s *session.Session) (string, error) {
	claims := Claims{
		SessionID: s.ID,
		Role:      s.User.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.User.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(s.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(s.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies the signature and expiry and returns the claims
func (t *TokenService) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.New("empty token")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Subject == "" || claims.SessionID == "" {
		return nil, errors.New("token is missing subject or session")
	}
	if _, err := models.ParseRole(string(claims.Role)); err != nil {
		return nil, err
	}
	return claims, nil
}

// ExtractTokenFromRequest extracts the bearer token from an HTTP request
func ExtractTokenFromRequest(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header is missing")
	}

	// Bearer token format: "Bearer {token}"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", errors.New("authorization header format must be 'Bearer {token}'")
	}

	return parts[1], nil
}
