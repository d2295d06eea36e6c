package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
	"ms-reminders/internal/session"
)

type MockAppointmentService struct {
	mock.Mock
}

func (m *MockAppointmentService) LoadDefaultPlan() plan.Plan {
	return plan.Default()
}

func (m *MockAppointmentService) Create(ctx context.Context, in services.CreateAppointmentInput) (*models.Appointment, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *MockAppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

func (m *MockAppointmentService) ListFor(ctx context.Context, user models.User) ([]models.Appointment, error) {
	args := m.Called(user)
	return args.Get(0).([]models.Appointment), args.Error(1)
}

// EditPlan runs the intent against the stored appointment's plan like the real service
func (m *MockAppointmentService) EditPlan(ctx context.Context, id string, intent func(*plan.Editor) error) (plan.Plan, error) {
	args := m.Called(id)
	if err := args.Error(1); err != nil {
		return plan.Plan{}, err
	}
	editor := plan.NewEditor(args.Get(0).(plan.Plan), func(plan.Plan) {})
	if err := intent(editor); err != nil {
		return plan.Plan{}, err
	}
	return editor.Plan(), nil
}

func (m *MockAppointmentService) ReplacePlan(ctx context.Context, id string, p plan.Plan) (plan.Plan, error) {
	args := m.Called(id, p)
	return p, args.Error(0)
}

func (m *MockAppointmentService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	args := m.Called(id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Appointment), args.Error(1)
}

type MockSessionManager struct {
	mock.Mock
}

func (m *MockSessionManager) Login(ctx context.Context, email string) (*session.Session, error) {
	args := m.Called(email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionManager) Register(ctx context.Context, in session.RegisterInput) (*session.Session, error) {
	args := m.Called(in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*session.Session), args.Error(1)
}

func (m *MockSessionManager) Logout(ctx context.Context, id string) error {
	return m.Called(id).Error(0)
}

// sessionTable resolves the sessions created by testServer.login
type sessionTable map[string]*session.Session

func (t sessionTable) Resolve(ctx context.Context, id string) (*session.Session, error) {
	s, ok := t[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	return s, nil
}

var (
	admin   = models.User{ID: "admin1", Name: "Admin User", Email: "admin@example.com", Role: models.RoleAdmin}
	doctor  = models.User{ID: "doctor1", Name: "Dr. Sarah Johnson", Email: "doctor@example.com", Role: models.RoleDoctor}
	patient = models.User{ID: "patient1", Name: "John Doe", Email: "patient@example.com", Role: models.RolePatient}
)

type testServer struct {
	router       *mux.Router
	appointments *MockAppointmentService
	sessions     *MockSessionManager
	tokens       *auth.TokenService
	table        sessionTable
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		router:       mux.NewRouter(),
		appointments: new(MockAppointmentService),
		sessions:     new(MockSessionManager),
		tokens:       auth.NewTokenService("test-secret"),
		table:        sessionTable{},
	}
	Router{
		Auth:         auth.NewAuthenticator(ts.tokens, ts.table),
		Sessions:     NewSessionHandler(ts.sessions, ts.tokens),
		Plans:        NewPlanHandler(ts.appointments),
		Appointments: NewAppointmentHandler(ts.appointments),
		Health: NewHealthHandler(map[string]Check{
			"database": func(context.Context) error { return nil },
		}),
	}.RegisterRoutes(ts.router)
	return ts
}

func (ts *testServer) login(t *testing.T, u models.User) string {
	t.Helper()
	now := time.Now().UTC()
	s := &session.Session{ID: "sess-" + u.ID, User: u, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	ts.table[s.ID] = s
	token, err := ts.tokens.Issue(s)
	require.NoError(t, err)
	return token
}

func (ts *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func bookedAppointment() *models.Appointment {
	return &models.Appointment{
		ID:        "appt-1",
		PatientID: "patient1",
		DoctorID:  "doctor1",
		Title:     "Follow-up Consultation",
		StartsAt:  time.Date(2026, 5, 30, 14, 0, 0, 0, time.UTC),
		Status:    models.AppointmentStatusScheduled,
		Type:      models.AppointmentTypeFollowUp,
		ReminderPlan: plan.Plan{
			Channels: []plan.Channel{plan.ChannelEmail, plan.ChannelSMS},
			Schedule: []plan.Offset{{Unit: plan.UnitDays, Amount: 1}, {Unit: plan.UnitHours, Amount: 2}},
		},
	}
}
