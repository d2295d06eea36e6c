package models

import (
	"fmt"
	"time"

	"ms-reminders/internal/plan"
)

// AppointmentStatus represents the appointment status enum
type AppointmentStatus string

const (
	AppointmentStatusScheduled AppointmentStatus = "scheduled"
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusCancelled AppointmentStatus = "cancelled"
	AppointmentStatusCompleted AppointmentStatus = "completed"
	AppointmentStatusNoShow    AppointmentStatus = "no-show"
)

// ParseAppointmentStatus converts raw input into an AppointmentStatus
func ParseAppointmentStatus(s string) (AppointmentStatus, error) {
	switch AppointmentStatus(s) {
	case AppointmentStatusScheduled, AppointmentStatusConfirmed, AppointmentStatusCancelled,
		AppointmentStatusCompleted, AppointmentStatusNoShow:
		return AppointmentStatus(s), nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

// Active reports whether reminders should still fire for the appointment
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusConfirmed
}

// AppointmentType represents the kind of visit
type AppointmentType string

const (
	AppointmentTypeInitial   AppointmentType = "initial"
	AppointmentTypeFollowUp  AppointmentType = "follow-up"
	AppointmentTypeCheckUp   AppointmentType = "check-up"
	AppointmentTypeEmergency AppointmentType = "emergency"
	AppointmentTypeProcedure AppointmentType = "procedure"
)

// Appointment is a booked visit together with its reminder plan
type Appointment struct {
	ID              string            `json:"id" db:"id"`
	PatientID       string            `json:"patientId" db:"patient_id"`
	DoctorID        string            `json:"doctorId" db:"doctor_id"`
	Title           string            `json:"title" db:"title"`
	StartsAt        time.Time         `json:"startsAt" db:"starts_at"`
	DurationMinutes int               `json:"duration" db:"duration_minutes"`
	Status          AppointmentStatus `json:"status" db:"status"`
	Type            AppointmentType   `json:"type" db:"type"`
	Location        string            `json:"location,omitempty" db:"location"`
	Notes           string            `json:"notes,omitempty" db:"notes"`
	ReminderPlan    plan.Plan         `json:"reminderSettings" db:"reminder_plan"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}

// VisibleTo reports whether a user with the given role and id may read the appointment
func (a *Appointment) VisibleTo(role Role, userID string) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return a.DoctorID == userID
	case RolePatient:
		return a.PatientID == userID
	}
	panic(fmt.Sprintf("models: unhandled role %q", string(role)))
}
