package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
)

var (
	ErrAppointmentClosed = errors.New("appointment is no longer active")
	ErrOffsetNotFound    = errors.New("reminder offset not found")
)

// AppointmentStore is the persistence collaborator used by AppointmentService
type AppointmentStore interface {
	Create(ctx context.Context, a *models.Appointment) error
	Get(ctx context.Context, id string) (*models.Appointment, error)
	List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error)
	UpdatePlan(ctx context.Context, id string, apply func(current *models.Appointment) (plan.Plan, error)) (*models.Appointment, error)
	UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error
}

// ReminderScheduler keeps the one-shot reminder schedules of an appointment in
// line with its plan
type ReminderScheduler interface {
	SyncReminders(ctx context.Context, appt *models.Appointment, previous plan.Plan) error
	CancelReminders(ctx context.Context, appointmentID string, scheduleLen int)
}

// CreateAppointmentInput holds the fields accepted when authoring an appointment
type CreateAppointmentInput struct {
	PatientID       string
	DoctorID        string
	Title           string
	StartsAt        time.Time
	DurationMinutes int
	Type            models.AppointmentType
	Location        string
	Notes           string
	ReminderPlan    *plan.Plan
}

type AppointmentService struct {
	store     AppointmentStore
	scheduler ReminderScheduler
	now       func() time.Time
}

// NewAppointmentService wires the service. scheduler may be nil when no
// reminder queue is configured.
func NewAppointmentService(store AppointmentStore, scheduler ReminderScheduler) *AppointmentService {
	return &AppointmentService{
		store:     store,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// LoadDefaultPlan returns the plan a new appointment starts with
func (s *AppointmentService) LoadDefaultPlan() plan.Plan {
	return plan.Default()
}

// Create stores a new appointment and schedules its reminders
func (s *AppointmentService) Create(ctx context.Context, in CreateAppointmentInput) (*models.Appointment, error) {
	reminderPlan := s.LoadDefaultPlan()
	if in.ReminderPlan != nil {
		reminderPlan = plan.CarryDelivery(plan.Plan{}, *in.ReminderPlan)
	}
	if err := reminderPlan.Validate(); err != nil {
		return nil, fmt.Errorf("invalid reminder plan: %w", err)
	}

	now := s.now().UTC()
	appt := &models.Appointment{
		ID:              uuid.NewString(),
		PatientID:       in.PatientID,
		DoctorID:        in.DoctorID,
		Title:           in.Title,
		StartsAt:        in.StartsAt.UTC(),
		DurationMinutes: in.DurationMinutes,
		Status:          models.AppointmentStatusScheduled,
		Type:            in.Type,
		Location:        in.Location,
		Notes:           in.Notes,
		ReminderPlan:    reminderPlan,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.Create(ctx, appt); err != nil {
		return nil, err
	}
	log.Info().Str("appointment_id", appt.ID).Str("doctor_id", appt.DoctorID).Msg("Created appointment")

	s.syncReminders(ctx, appt, plan.Plan{})
	return appt, nil
}

// Get loads one appointment
func (s *AppointmentService) Get(ctx context.Context, id string) (*models.Appointment, error) {
	return s.store.Get(ctx, id)
}

// ListFor returns the appointments visible to user
func (s *AppointmentService) ListFor(ctx context.Context, user models.User) ([]models.Appointment, error) {
	var filter AppointmentFilter
	switch user.Role {
	case models.RoleAdmin:
	case models.RoleDoctor:
		filter.DoctorID = user.ID
	case models.RolePatient:
		filter.PatientID = user.ID
	default:
		panic(fmt.Sprintf("services: unhandled role %q", string(user.Role)))
	}
	return s.store.List(ctx, filter)
}

// EditPlan applies one user intent to the appointment's reminder plan through
// a plan.Editor and persists the full resulting plan. The plan is read and
// written under the row lock so concurrent delivery updates are not lost.
func (s *AppointmentService) EditPlan(ctx context.Context, id string, intent func(*plan.Editor) error) (plan.Plan, error) {
	var previous plan.Plan
	updated, err := s.store.UpdatePlan(ctx, id, func(current *models.Appointment) (plan.Plan, error) {
		if !current.Status.Active() {
			return plan.Plan{}, ErrAppointmentClosed
		}
		previous = current.ReminderPlan.Clone()

		editor := plan.NewEditor(current.ReminderPlan, func(next plan.Plan) {
			log.Debug().Str("appointment_id", id).
				Str("channels", plan.ChannelsLabel(next.Channels)).
				Int("offsets", len(next.Schedule)).
				Msg("Reminder plan changed")
		})
		if err := intent(editor); err != nil {
			return plan.Plan{}, err
		}

		var submitted plan.Plan
		err := editor.Submit(ctx, plan.SubmitterFunc(func(_ context.Context, p plan.Plan) error {
			submitted = p
			return nil
		}))
		return submitted, err
	})
	if err != nil {
		return plan.Plan{}, err
	}

	s.syncReminders(ctx, updated, previous)
	return updated.ReminderPlan.Clone(), nil
}

// ReplacePlan persists a complete plan submitted by the caller. Delivery state
// always comes from the stored plan, never from the submission.
func (s *AppointmentService) ReplacePlan(ctx context.Context, id string, p plan.Plan) (plan.Plan, error) {
	if err := p.Validate(); err != nil {
		return plan.Plan{}, fmt.Errorf("invalid reminder plan: %w", err)
	}

	var previous plan.Plan
	updated, err := s.store.UpdatePlan(ctx, id, func(current *models.Appointment) (plan.Plan, error) {
		if !current.Status.Active() {
			return plan.Plan{}, ErrAppointmentClosed
		}
		previous = current.ReminderPlan.Clone()
		return plan.CarryDelivery(current.ReminderPlan, p), nil
	})
	if err != nil {
		return plan.Plan{}, err
	}

	s.syncReminders(ctx, updated, previous)
	return updated.ReminderPlan.Clone(), nil
}

// Cancel marks the appointment cancelled and removes its pending reminders
func (s *AppointmentService) Cancel(ctx context.Context, id string) (*models.Appointment, error) {
	appt, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.AppointmentStatusCancelled {
		return appt, nil
	}

	if err := s.store.UpdateStatus(ctx, id, models.AppointmentStatusCancelled); err != nil {
		return nil, err
	}
	appt.Status = models.AppointmentStatusCancelled
	log.Info().Str("appointment_id", id).Msg("Cancelled appointment")

	if s.scheduler != nil {
		s.scheduler.CancelReminders(ctx, id, len(appt.ReminderPlan.Schedule))
	}
	return appt, nil
}

func (s *AppointmentService) syncReminders(ctx context.Context, appt *models.Appointment, previous plan.Plan) {
	if s.scheduler == nil {
		return
	}
	if err := s.scheduler.SyncReminders(ctx, appt, previous); err != nil {
		log.Error().Err(err).Str("appointment_id", appt.ID).Msg("Error scheduling reminders")
	}
}
