package handlers

import (
	"net/http"
	"time"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
)

type createAppointmentRequest struct {
	PatientID        string       `json:"patientId" validate:"required"`
	DoctorID         string       `json:"doctorId"`
	Title            string       `json:"title" validate:"required"`
	StartsAt         time.Time    `json:"startsAt" validate:"required"`
	Duration         int          `json:"duration" validate:"min=0"`
	Type             string       `json:"type" validate:"required,oneof=initial follow-up check-up emergency procedure"`
	Location         string       `json:"location"`
	Notes            string       `json:"notes"`
	ReminderSettings *planRequest `json:"reminderSettings"`
}

// AppointmentView is an appointment with the labels of its reminder plan
type AppointmentView struct {
	*models.Appointment
	ScheduleLabels []string `json:"scheduleLabels"`
	ChannelsLabel  string   `json:"channelsLabel"`
}

func newAppointmentView(a *models.Appointment) AppointmentView {
	return AppointmentView{
		Appointment:    a,
		ScheduleLabels: plan.ScheduleLabels(a.ReminderPlan),
		ChannelsLabel:  plan.ChannelsLabel(a.ReminderPlan.Channels),
	}
}

type AppointmentHandler struct {
	appointments AppointmentService
}

func NewAppointmentHandler(appointments AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{appointments: appointments}
}

// List handles GET /appointments
func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	s, err := auth.SessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.appointments.ListFor(r.Context(), s.User)
	if err != nil {
		writeServiceError(w, err, "list appointments")
		return
	}

	views := make([]AppointmentView, 0, len(list))
	for i := range list {
		views = append(views, newAppointmentView(&list[i]))
	}
	writeJSON(w, http.StatusOK, views)
}

// Create handles POST /appointments. Doctors always book under their own id.
func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	s, err := auth.SessionFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createAppointmentRequest
	if err := decodeRequest(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	doctorID := req.DoctorID
	switch s.User.Role {
	case models.RoleDoctor:
		doctorID = s.User.ID
	case models.RoleAdmin:
		if doctorID == "" {
			http.Error(w, "DoctorID is required", http.StatusBadRequest)
			return
		}
	case models.RolePatient:
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	default:
		panic("handlers: unhandled role " + string(s.User.Role))
	}

	in := services.CreateAppointmentInput{
		PatientID:       req.PatientID,
		DoctorID:        doctorID,
		Title:           req.Title,
		StartsAt:        req.StartsAt,
		DurationMinutes: req.Duration,
		Type:            models.AppointmentType(req.Type),
		Location:        req.Location,
		Notes:           req.Notes,
	}
	if req.ReminderSettings != nil {
		p, err := req.ReminderSettings.toPlan()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		in.ReminderPlan = &p
	}

	appt, err := h.appointments.Create(r.Context(), in)
	if err != nil {
		writeServiceError(w, err, "create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, newAppointmentView(appt))
}

// Get handles GET /appointments/{id}
func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	appt, ok := loadVisibleAppointment(w, r, h.appointments)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentView(appt))
}

// Cancel handles POST /appointments/{id}/cancel
func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	appt, ok := loadVisibleAppointment(w, r, h.appointments)
	if !ok {
		return
	}
	cancelled, err := h.appointments.Cancel(r.Context(), appt.ID)
	if err != nil {
		writeServiceError(w, err, "cancel appointment")
		return
	}
	writeJSON(w, http.StatusOK, newAppointmentView(cancelled))
}
