package models

import (
	"encoding/json"
	"fmt"
	"time"

	"ms-reminders/internal/plan"
)

// SQSReminderMessageBody is the payload a scheduled reminder delivers to the reminders queue
type SQSReminderMessageBody struct {
	AppointmentID string    `json:"appointment_id"`
	OffsetIndex   int       `json:"offset_index"`
	Unit          plan.Unit `json:"unit"`
	Amount        int       `json:"amount"`
	FireAt        string    `json:"fire_at,omitempty"`
}

// Offset returns the schedule entry the message was created for
func (m SQSReminderMessageBody) Offset() plan.Offset {
	return plan.Offset{Unit: m.Unit, Amount: m.Amount}
}

// AppointmentChangeEvent is a Debezium change record for the appointments table
type AppointmentChangeEvent struct {
	Payload AppointmentChangePayload `json:"payload"`
}

// AppointmentChangePayload carries the row images of one change
type AppointmentChangePayload struct {
	Before *AppointmentRow `json:"before"`
	After  *AppointmentRow `json:"after"`
	Op     string          `json:"op"` // c, u, d or r
	TsMs   int64           `json:"ts_ms"`
}

// AppointmentID returns the id of the changed row from whichever image is present
func (p AppointmentChangePayload) AppointmentID() string {
	if p.After != nil {
		return p.After.ID
	}
	if p.Before != nil {
		return p.Before.ID
	}
	return ""
}

// AppointmentRow is the appointments row image as Debezium emits it:
// timestamps in epoch microseconds and the JSONB plan as a string.
type AppointmentRow struct {
	ID              string `json:"id"`
	PatientID       string `json:"patient_id"`
	DoctorID        string `json:"doctor_id"`
	Title           string `json:"title"`
	StartsAt        int64  `json:"starts_at"`
	DurationMinutes int    `json:"duration_minutes"`
	Status          string `json:"status"`
	Type            string `json:"type"`
	ReminderPlan    string `json:"reminder_plan"`
}

// ToAppointment converts the row image, rejecting unknown statuses and
// malformed plans.
func (r *AppointmentRow) ToAppointment() (*Appointment, error) {
	status, err := ParseAppointmentStatus(r.Status)
	if err != nil {
		return nil, err
	}
	p := plan.Plan{}
	if r.ReminderPlan != "" {
		if err := json.Unmarshal([]byte(r.ReminderPlan), &p); err != nil {
			return nil, fmt.Errorf("decode reminder plan of %s: %w", r.ID, err)
		}
	}
	return &Appointment{
		ID:              r.ID,
		PatientID:       r.PatientID,
		DoctorID:        r.DoctorID,
		Title:           r.Title,
		StartsAt:        time.UnixMicro(r.StartsAt).UTC(),
		DurationMinutes: r.DurationMinutes,
		Status:          status,
		Type:            AppointmentType(r.Type),
		ReminderPlan:    p.Clone(),
	}, nil
}

// ReminderDispatch asks the delivery side to send one reminder over one channel
type ReminderDispatch struct {
	ID            string       `json:"id"`
	AppointmentID string       `json:"appointmentId"`
	PatientID     string       `json:"patientId"`
	Channel       plan.Channel `json:"channel"`
	OffsetIndex   int          `json:"offsetIndex"`
	Message       string       `json:"message"`
	ScheduledFor  time.Time    `json:"scheduledFor"`
	CreatedAt     time.Time    `json:"createdAt"`
}
