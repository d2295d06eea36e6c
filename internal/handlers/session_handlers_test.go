package handlers

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reminders/internal/models"
	"ms-reminders/internal/services"
	"ms-reminders/internal/session"
)

func newSession(u models.User) *session.Session {
	now := time.Now().UTC()
	return &session.Session{ID: "sess-new", User: u, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	ts.sessions.On("Login", "doctor@example.com").Return(newSession(doctor), nil)
	ts.sessions.On("Login", "nobody@example.com").Return(nil, session.ErrInvalidCredentials)

	rec := ts.do(t, http.MethodPost, "/api/reminders/v1/session/login", "", `{"email":"doctor@example.com","password":"password"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[sessionResponse](t, rec)
	assert.Equal(t, doctor.ID, resp.User.ID)

	claims, err := ts.tokens.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "sess-new", claims.SessionID)
	assert.Equal(t, models.RoleDoctor, claims.Role)

	rec = ts.do(t, http.MethodPost, "/api/reminders/v1/session/login", "", `{"email":"nobody@example.com","password":"password"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reminders/v1/session/login", "", `{"email":"not-an-email","password":"password"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)
	newPatient := models.User{ID: "u-1", Name: "Jane", Email: "jane@example.com", Role: models.RolePatient}
	ts.sessions.On("Register", session.RegisterInput{Name: "Jane", Email: "jane@example.com", Role: models.RolePatient}).
		Return(newSession(newPatient), nil)
	ts.sessions.On("Register", mock.Anything).Return(nil, services.ErrEmailInUse)

	rec := ts.do(t, http.MethodPost, "/api/reminders/v1/session/register", "",
		`{"name":"Jane","email":"jane@example.com","password":"secret1","role":"patient"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reminders/v1/session/register", "",
		`{"name":"Jane","email":"doctor@example.com","password":"secret1","role":"patient"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/reminders/v1/session/register", "",
		`{"name":"Jane","email":"jane@example.com","password":"secret1","role":"nurse"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMeAndLogout(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, patient)
	ts.sessions.On("Logout", "sess-patient1").Run(func(mock.Arguments) {
		delete(ts.table, "sess-patient1")
	}).Return(nil)

	rec := ts.do(t, http.MethodGet, "/api/reminders/v1/session/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, patient.ID, decodeBody[models.User](t, rec).ID)

	rec = ts.do(t, http.MethodPost, "/api/reminders/v1/session/logout", token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/reminders/v1/session/me", token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", decodeBody[HealthResponse](t, rec).Details["database"])

	rec = ts.do(t, http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessDown(t *testing.T) {
	h := NewHealthHandler(map[string]Check{
		"redis": func(context.Context) error { return errors.New("connection refused") },
	})
	ts := newTestServer(t)
	ts.router.HandleFunc("/readyz-down", h.HandleReadiness)

	rec := ts.do(t, http.MethodGet, "/readyz-down", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "DOWN", resp.Status)
	assert.Equal(t, "connection refused", resp.Details["redis"])
}
