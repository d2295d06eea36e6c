package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
)

var appointmentRowColumns = []string{
	"id", "patient_id", "doctor_id", "title", "starts_at", "duration_minutes",
	"status", "type", "location", "notes", "reminder_plan", "created_at", "updated_at",
}

func newRepo(t *testing.T) (*AppointmentRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewAppointmentRepository(db), mock
}

func appointmentRow(id, planJSON string) *sqlmock.Rows {
	ts := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return sqlmock.NewRows(appointmentRowColumns).AddRow(
		id, "patient1", "doctor1", "Check-up", ts.Add(48*time.Hour), 30,
		"scheduled", "check-up", "Room 4", "", []byte(planJSON), ts, ts,
	)
}

func TestAppointmentRepository_Get(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .* FROM "appointments" WHERE \("id" = \$1\)`).
		WithArgs("appt-1").
		WillReturnRows(appointmentRow("appt-1",
			`{"channels":["email","sms"],"schedule":[{"type":"days","value":1,"sent":false}]}`))

	appt, err := repo.Get(context.Background(), "appt-1")
	require.NoError(t, err)
	assert.Equal(t, "appt-1", appt.ID)
	assert.Equal(t, models.AppointmentStatusScheduled, appt.Status)
	assert.Equal(t, models.AppointmentTypeCheckUp, appt.Type)
	assert.Equal(t, []plan.Channel{plan.ChannelEmail, plan.ChannelSMS}, appt.ReminderPlan.Channels)
	assert.Equal(t, []plan.Offset{{Unit: plan.UnitDays, Amount: 1}}, appt.ReminderPlan.Schedule)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_GetNotFound(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .* FROM "appointments"`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestAppointmentRepository_ListEmptyPlanDecodesToEmptySlices(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery(`SELECT .* FROM "appointments" WHERE \("doctor_id" = \$1\) ORDER BY "starts_at" ASC`).
		WithArgs("doctor1").
		WillReturnRows(appointmentRow("appt-2", `{"channels":[],"schedule":[]}`))

	list, err := repo.List(context.Background(), AppointmentFilter{DoctorID: "doctor1"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotNil(t, list[0].ReminderPlan.Schedule)
	assert.Equal(t, []string{plan.NoRemindersLabel}, plan.ScheduleLabels(list[0].ReminderPlan))
}

func TestAppointmentRepository_Create(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec(`INSERT INTO "appointments"`).WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Create(context.Background(), &models.Appointment{
		ID:           "appt-1",
		Status:       models.AppointmentStatusScheduled,
		ReminderPlan: plan.Default(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppointmentRepository_UpdatePlan(t *testing.T) {
	stored := `{"channels":["email"],"schedule":[{"type":"days","value":1,"sent":true,"sentAt":"2026-05-29T14:00:00Z"}]}`

	t.Run("applies under row lock", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FROM "appointments" WHERE \("id" = \$1\) FOR UPDATE`).
			WithArgs("appt-1").
			WillReturnRows(appointmentRow("appt-1", stored))
		mock.ExpectExec(`UPDATE "appointments" SET "reminder_plan"=\$1,"updated_at"=\$2 WHERE \("id" = \$3\)`).
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "appt-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		var seen plan.Plan
		updated, err := repo.UpdatePlan(context.Background(), "appt-1", func(current *models.Appointment) (plan.Plan, error) {
			seen = current.ReminderPlan
			return plan.ToggleChannel(current.ReminderPlan, plan.ChannelSMS, true), nil
		})

		require.NoError(t, err)
		assert.True(t, seen.Schedule[0].Sent, "apply sees the locked delivery state")
		assert.Equal(t, []plan.Channel{plan.ChannelEmail, plan.ChannelSMS}, updated.ReminderPlan.Channels)
		assert.True(t, updated.ReminderPlan.Schedule[0].Sent)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("apply error rolls back", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FOR UPDATE`).
			WithArgs("appt-1").
			WillReturnRows(appointmentRow("appt-1", stored))
		mock.ExpectRollback()

		_, err := repo.UpdatePlan(context.Background(), "appt-1", func(*models.Appointment) (plan.Plan, error) {
			return plan.Plan{}, assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing appointment", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT .* FOR UPDATE`).
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.UpdatePlan(context.Background(), "missing", func(*models.Appointment) (plan.Plan, error) {
			t.Fatal("apply must not run")
			return plan.Plan{}, nil
		})

		assert.ErrorIs(t, err, ErrAppointmentNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAppointmentRepository_MarkOffsetSent(t *testing.T) {
	at := time.Date(2026, 5, 29, 14, 0, 0, 0, time.UTC)
	stored := `{"channels":["email"],"schedule":[{"type":"days","value":1,"sent":false},{"type":"hours","value":2,"sent":false}]}`

	t.Run("marks matching entry", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "reminder_plan" FROM "appointments" .* FOR UPDATE`).
			WithArgs("appt-1").
			WillReturnRows(sqlmock.NewRows([]string{"reminder_plan"}).AddRow([]byte(stored)))
		mock.ExpectExec(`UPDATE "appointments" SET "reminder_plan"`).
			WithArgs(sqlmock.AnyArg(), "appt-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		ok, err := repo.MarkOffsetSent(context.Background(), "appt-1", 1, plan.Offset{Unit: plan.UnitHours, Amount: 2}, at)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips entry that moved", func(t *testing.T) {
		repo, mock := newRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT "reminder_plan"`).
			WithArgs("appt-1").
			WillReturnRows(sqlmock.NewRows([]string{"reminder_plan"}).AddRow([]byte(stored)))
		mock.ExpectRollback()

		ok, err := repo.MarkOffsetSent(context.Background(), "appt-1", 0, plan.Offset{Unit: plan.UnitHours, Amount: 2}, at)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
