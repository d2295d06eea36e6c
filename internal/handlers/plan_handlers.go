package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
)

// AppointmentService is the service surface the appointment and plan handlers use
type AppointmentService interface {
	LoadDefaultPlan() plan.Plan
	Create(ctx context.Context, in services.CreateAppointmentInput) (*models.Appointment, error)
	Get(ctx context.Context, id string) (*models.Appointment, error)
	ListFor(ctx context.Context, user models.User) ([]models.Appointment, error)
	EditPlan(ctx context.Context, id string, intent func(*plan.Editor) error) (plan.Plan, error)
	ReplacePlan(ctx context.Context, id string, p plan.Plan) (plan.Plan, error)
	Cancel(ctx context.Context, id string) (*models.Appointment, error)
}

// offsetRequest accepts sent and sentAt so a plan read from the API can be
// posted back as is. Both are discarded: delivery state is owned by the
// reminder processor.
type offsetRequest struct {
	Type   string     `json:"type" validate:"required,oneof=days hours minutes"`
	Value  int        `json:"value" validate:"min=1"`
	Sent   bool       `json:"sent"`
	SentAt *time.Time `json:"sentAt,omitempty"`
}

type planRequest struct {
	Channels []string        `json:"channels" validate:"dive,oneof=sms whatsapp email push"`
	Schedule []offsetRequest `json:"schedule" validate:"dive"`
}

// toPlan converts a validated request; duplicate channels are still rejected
// here by plan.Validate.
func (req planRequest) toPlan() (plan.Plan, error) {
	p := plan.Plan{
		Channels: make([]plan.Channel, 0, len(req.Channels)),
		Schedule: make([]plan.Offset, 0, len(req.Schedule)),
	}
	for _, raw := range req.Channels {
		c, err := plan.ParseChannel(raw)
		if err != nil {
			return plan.Plan{}, err
		}
		p.Channels = append(p.Channels, c)
	}
	for _, o := range req.Schedule {
		u, err := plan.ParseUnit(o.Type)
		if err != nil {
			return plan.Plan{}, err
		}
		p.Schedule = append(p.Schedule, plan.Offset{Unit: u, Amount: o.Value})
	}
	if err := p.Validate(); err != nil {
		return plan.Plan{}, err
	}
	return p, nil
}

type toggleChannelRequest struct {
	Channel  string `json:"channel" validate:"required,oneof=sms whatsapp email push"`
	Included *bool  `json:"included" validate:"required"`
}

type addOffsetRequest struct {
	Type  string `json:"type" validate:"required,oneof=days hours minutes"`
	Value int    `json:"value" validate:"min=1"`
}

// PlanView is a plan together with the labels the dashboard shows for it
type PlanView struct {
	ReminderSettings plan.Plan `json:"reminderSettings"`
	ScheduleLabels   []string  `json:"scheduleLabels"`
	ChannelsLabel    string    `json:"channelsLabel"`
}

func newPlanView(p plan.Plan) PlanView {
	return PlanView{
		ReminderSettings: p,
		ScheduleLabels:   plan.ScheduleLabels(p),
		ChannelsLabel:    plan.ChannelsLabel(p.Channels),
	}
}

type PlanHandler struct {
	appointments AppointmentService
}

func NewPlanHandler(appointments AppointmentService) *PlanHandler {
	return &PlanHandler{appointments: appointments}
}

// DefaultPlan handles GET /plans/default
func (h *PlanHandler) DefaultPlan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, newPlanView(h.appointments.LoadDefaultPlan()))
}

// Preview handles POST /plans/preview
func (h *PlanHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := req.toPlan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(p))
}

// ReplacePlan handles PUT /appointments/{id}/plan
func (h *PlanHandler) ReplacePlan(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req planRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p, err := req.toPlan()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := h.appointments.ReplacePlan(r.Context(), id, p)
	if err != nil {
		writeServiceError(w, err, "save reminder plan")
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(saved))
}

// ToggleChannel handles POST /appointments/{id}/plan/channels
func (h *PlanHandler) ToggleChannel(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req toggleChannelRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := plan.ParseChannel(req.Channel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.edit(w, r, id, func(e *plan.Editor) error {
		e.ToggleChannel(c, *req.Included)
		return nil
	})
}

// AddOffset handles POST /appointments/{id}/plan/offsets
func (h *PlanHandler) AddOffset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	var req addOffsetRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	u, err := plan.ParseUnit(req.Type)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.edit(w, r, id, func(e *plan.Editor) error {
		e.AddOffset(u, req.Value)
		return nil
	})
}

// RemoveOffset handles DELETE /appointments/{id}/plan/offsets/{index}
func (h *PlanHandler) RemoveOffset(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "index must be an integer", http.StatusBadRequest)
		return
	}

	h.edit(w, r, id, func(e *plan.Editor) error {
		if index < 0 || index >= len(e.Plan().Schedule) {
			return fmt.Errorf("index %d: %w", index, services.ErrOffsetNotFound)
		}
		e.RemoveOffset(index)
		return nil
	})
}

func (h *PlanHandler) edit(w http.ResponseWriter, r *http.Request, id string, intent func(*plan.Editor) error) {
	next, err := h.appointments.EditPlan(r.Context(), id, intent)
	if err != nil {
		writeServiceError(w, err, "update reminder plan")
		return
	}
	writeJSON(w, http.StatusOK, newPlanView(next))
}

// authorize loads the appointment named in the path and checks the caller may
// see it. Role gating for edits happens in the router.
func (h *PlanHandler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	appt, ok := loadVisibleAppointment(w, r, h.appointments)
	if !ok {
		return "", false
	}
	return appt.ID, true
}

func loadVisibleAppointment(w http.ResponseWriter, r *http.Request, appointments AppointmentService) (*models.Appointment, bool) {
	s, err := auth.SessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}

	id := mux.Vars(r)["id"]
	appt, err := appointments.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, err, "load appointment")
		return nil, false
	}
	if !appt.VisibleTo(s.User.Role, s.User.ID) {
		log.Debug().Str("user_id", s.User.ID).Str("appointment_id", id).Msg("Appointment not visible to user")
		http.Error(w, "Appointment not found", http.StatusNotFound)
		return nil, false
	}
	return appt, true
}
