package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"

	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

const appointmentsTable = "appointments"

var appointmentColumns = []interface{}{
	"id", "patient_id", "doctor_id", "title", "starts_at", "duration_minutes",
	"status", "type", "location", "notes", "reminder_plan", "created_at", "updated_at",
}

// AppointmentFilter narrows List. Empty fields match everything.
type AppointmentFilter struct {
	DoctorID  string
	PatientID string
}

// AppointmentRepository stores appointments and their reminder plans in Postgres
type AppointmentRepository struct {
	db      *sql.DB
	dialect *goqu.Database
}

func NewAppointmentRepository(db *sql.DB) *AppointmentRepository {
	return &AppointmentRepository{
		db:      db,
		dialect: goqu.New("postgres", db),
	}
}

// Create inserts a new appointment
func (r *AppointmentRepository) Create(ctx context.Context, a *models.Appointment) error {
	planJSON, err := encodePlan(a.ReminderPlan)
	if err != nil {
		return err
	}

	query, args, err := r.dialect.Insert(appointmentsTable).Rows(goqu.Record{
		"id":               a.ID,
		"patient_id":       a.PatientID,
		"doctor_id":        a.DoctorID,
		"title":            a.Title,
		"starts_at":        a.StartsAt,
		"duration_minutes": a.DurationMinutes,
		"status":           string(a.Status),
		"type":             string(a.Type),
		"location":         a.Location,
		"notes":            a.Notes,
		"reminder_plan":    planJSON,
		"created_at":       a.CreatedAt,
		"updated_at":       a.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build insert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

// Get loads one appointment by id
func (r *AppointmentRepository) Get(ctx context.Context, id string) (*models.Appointment, error) {
	query, args, err := r.dialect.From(appointmentsTable).
		Select(appointmentColumns...).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	return scanAppointment(r.db.QueryRowContext(ctx, query, args...))
}

// List returns appointments ordered by start time
func (r *AppointmentRepository) List(ctx context.Context, filter AppointmentFilter) ([]models.Appointment, error) {
	ds := r.dialect.From(appointmentsTable).Select(appointmentColumns...)
	if filter.DoctorID != "" {
		ds = ds.Where(goqu.Ex{"doctor_id": filter.DoctorID})
	}
	if filter.PatientID != "" {
		ds = ds.Where(goqu.Ex{"patient_id": filter.PatientID})
	}

	query, args, err := ds.Order(goqu.I("starts_at").Asc()).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build list query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	appointments := []models.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, *a)
	}
	return appointments, rows.Err()
}

// UpdatePlan rewrites the reminder plan of an appointment while holding its
// row lock. apply receives the locked appointment and returns the plan to
// store; an error from apply aborts the update. The returned appointment
// carries the stored plan.
func (r *AppointmentRepository) UpdatePlan(ctx context.Context, id string, apply func(current *models.Appointment) (plan.Plan, error)) (*models.Appointment, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := r.dialect.From(appointmentsTable).
		Select(appointmentColumns...).
		Where(goqu.Ex{"id": id}).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	current, err := scanAppointment(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, err
	}

	next, err := apply(current)
	if err != nil {
		return nil, err
	}
	planJSON, err := encodePlan(next)
	if err != nil {
		return nil, err
	}
	updatedAt := time.Now().UTC()
	if err := r.update(ctx, tx, id, goqu.Record{
		"reminder_plan": planJSON,
		"updated_at":    updatedAt,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit plan update: %w", err)
	}

	updated := *current
	updated.ReminderPlan = next.Clone()
	updated.UpdatedAt = updatedAt
	return &updated, nil
}

// UpdateStatus changes the appointment status
func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, status models.AppointmentStatus) error {
	return r.update(ctx, r.db, id, goqu.Record{
		"status":     string(status),
		"updated_at": time.Now().UTC(),
	})
}

// MarkOffsetSent records delivery of one schedule entry. The entry must still
// be at index with the expected unit and amount; otherwise the plan changed
// since the reminder was scheduled and false is returned.
func (r *AppointmentRepository) MarkOffsetSent(ctx context.Context, id string, index int, want plan.Offset, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query, args, err := r.dialect.From(appointmentsTable).
		Select("reminder_plan").
		Where(goqu.Ex{"id": id}).
		ForUpdate(exp.Wait).
		Prepared(true).
		ToSQL()
	if err != nil {
		return false, fmt.Errorf("failed to build select query: %w", err)
	}

	var raw []byte
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrAppointmentNotFound
		}
		return false, fmt.Errorf("failed to lock appointment plan: %w", err)
	}

	current, err := decodePlan(raw)
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(current.Schedule) {
		return false, nil
	}
	entry := current.Schedule[index]
	if entry.Unit != want.Unit || entry.Amount != want.Amount || entry.Sent {
		return false, nil
	}

	planJSON, err := encodePlan(plan.MarkSent(current, index, at))
	if err != nil {
		return false, err
	}
	if err := r.update(ctx, tx, id, goqu.Record{"reminder_plan": planJSON}); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit plan update: %w", err)
	}
	return true, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *AppointmentRepository) update(ctx context.Context, db execer, id string, record goqu.Record) error {
	query, args, err := r.dialect.Update(appointmentsTable).
		Set(record).
		Where(goqu.Ex{"id": id}).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("failed to build update query: %w", err)
	}

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var rawPlan []byte
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.Title,
		&a.StartsAt,
		&a.DurationMinutes,
		&a.Status,
		&a.Type,
		&a.Location,
		&a.Notes,
		&rawPlan,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAppointmentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan appointment: %w", err)
	}

	if a.ReminderPlan, err = decodePlan(rawPlan); err != nil {
		return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
	}
	return &a, nil
}

// encodePlan returns the JSONB text for a plan. lib/pq sends []byte as bytea,
// so the column value is passed as a string.
func encodePlan(p plan.Plan) (string, error) {
	b, err := json.Marshal(p.Clone())
	if err != nil {
		return "", fmt.Errorf("failed to encode reminder plan: %w", err)
	}
	return string(b), nil
}

func decodePlan(raw []byte) (plan.Plan, error) {
	var p plan.Plan
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return plan.Plan{}, fmt.Errorf("failed to decode reminder plan: %w", err)
		}
	}
	return p.Clone(), nil
}
