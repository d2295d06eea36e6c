package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/scheduler/types"
	"github.com/rs/zerolog/log"

	appconfig "ms-reminders/internal/config"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
)

// SchedulerAPI is the subset of the EventBridge Scheduler client used here
type SchedulerAPI interface {
	CreateSchedule(ctx context.Context, in *scheduler.CreateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.CreateScheduleOutput, error)
	UpdateSchedule(ctx context.Context, in *scheduler.UpdateScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.UpdateScheduleOutput, error)
	DeleteSchedule(ctx context.Context, in *scheduler.DeleteScheduleInput, optFns ...func(*scheduler.Options)) (*scheduler.DeleteScheduleOutput, error)
}

// Service keeps one EventBridge one-shot schedule per pending reminder offset.
type Service struct {
	SchedulerClient SchedulerAPI
	Config          appconfig.Config
	now             func() time.Time
}

// NewService creates a new scheduler service.
func NewService(cfg appconfig.Config, schedulerClient SchedulerAPI) *Service {
	return &Service{
		SchedulerClient: schedulerClient,
		Config:          cfg,
		now:             time.Now,
	}
}

// ScheduleName returns the schedule name for one offset of an appointment.
func (s *Service) ScheduleName(appointmentID string, index int) string {
	return fmt.Sprintf("%s%s-%d", s.Config.ReminderSchedulePrefix, appointmentID, index)
}

// SyncReminders creates or updates a schedule for every unsent offset that
// still lies in the future and deletes the rest, including positions that
// existed in previous but were removed since.
func (s *Service) SyncReminders(ctx context.Context, appt *models.Appointment, previous plan.Plan) error {
	current := appt.ReminderPlan.Schedule
	if !appt.Status.Active() {
		s.CancelReminders(ctx, appt.ID, max(len(current), len(previous.Schedule)))
		return nil
	}

	now := s.now()
	var errs []error
	for i, offset := range current {
		name := s.ScheduleName(appt.ID, i)
		fireAt := offset.FireAt(appt.StartsAt)
		if offset.Sent || !fireAt.After(now) {
			log.Debug().Str("schedule", name).Bool("sent", offset.Sent).Msg("Offset not pending, removing schedule")
			s.deleteSchedule(ctx, name)
			continue
		}

		body := models.SQSReminderMessageBody{
			AppointmentID: appt.ID,
			OffsetIndex:   i,
			Unit:          offset.Unit,
			Amount:        offset.Amount,
			FireAt:        fireAt.UTC().Format(time.RFC3339),
		}
		logContext := fmt.Sprintf("%s reminder for appointment %s", offset.Label(), appt.ID)
		if err := s.createOrUpdateSchedule(ctx, name, fireAt, body, logContext); err != nil {
			errs = append(errs, fmt.Errorf("offset %d: %w", i, err))
		}
	}

	for i := len(current); i < len(previous.Schedule); i++ {
		s.deleteSchedule(ctx, s.ScheduleName(appt.ID, i))
	}

	return errors.Join(errs...)
}

// CancelReminders deletes the schedules for the first scheduleLen offsets.
func (s *Service) CancelReminders(ctx context.Context, appointmentID string, scheduleLen int) {
	for i := 0; i < scheduleLen; i++ {
		s.deleteSchedule(ctx, s.ScheduleName(appointmentID, i))
	}
	log.Info().Str("appointment_id", appointmentID).Int("count", scheduleLen).Msg("Deleted reminder schedules")
}

func (s *Service) createOrUpdateSchedule(ctx context.Context, scheduleName string, scheduleTime time.Time, payload interface{}, logContext string) error {
	log.Info().Str("schedule", scheduleName).Time("at", scheduleTime).Msg("Creating/updating schedule")

	// EventBridge Scheduler expression: at(YYYY-MM-DDTHH:mm:ss)
	scheduleExpression := fmt.Sprintf("at(%s)", scheduleTime.UTC().Format("2006-01-02T15:04:05"))

	inputJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal schedule payload: %w", err)
	}

	target := types.Target{
		Arn:     aws.String(s.Config.SQSRemindersQueueARN),
		RoleArn: aws.String(s.Config.SchedulerRoleARN),
		Input:   aws.String(string(inputJSON)),
	}

	_, err = s.SchedulerClient.CreateSchedule(ctx, &scheduler.CreateScheduleInput{
		Name:                       aws.String(scheduleName),
		GroupName:                  aws.String(s.Config.SchedulerGroupName),
		ScheduleExpression:         aws.String(scheduleExpression),
		Target:                     &target,
		FlexibleTimeWindow:         &types.FlexibleTimeWindow{Mode: types.FlexibleTimeWindowModeOff},
		ActionAfterCompletion:      types.ActionAfterCompletionDelete,
		ScheduleExpressionTimezone: aws.String("UTC"),
	})
	if err == nil {
		log.Info().Msgf("Successfully created EventBridge schedule for %s.", logContext)
		return nil
	}

	var conflict *types.ConflictException
	if !errors.As(err, &conflict) {
		log.Error().Err(err).Msgf("Failed to create EventBridge schedule for %s", logContext)
		return err
	}

	log.Info().Str("schedule", scheduleName).Msg("Schedule already exists. Attempting to update.")
	_, err = s.SchedulerClient.UpdateSchedule(ctx, &scheduler.UpdateScheduleInput{
		Name:                       aws.String(scheduleName),
		GroupName:                  aws.String(s.Config.SchedulerGroupName),
		ScheduleExpression:         aws.String(scheduleExpression),
		Target:                     &target,
		FlexibleTimeWindow:         &types.FlexibleTimeWindow{Mode: types.FlexibleTimeWindowModeOff},
		ActionAfterCompletion:      types.ActionAfterCompletionDelete,
		ScheduleExpressionTimezone: aws.String("UTC"),
	})
	if err != nil {
		log.Error().Err(err).Msgf("Failed to update EventBridge schedule for %s", logContext)
		return err
	}
	log.Info().Msgf("Successfully updated EventBridge schedule for %s.", logContext)
	return nil
}

func (s *Service) deleteSchedule(ctx context.Context, scheduleName string) {
	_, err := s.SchedulerClient.DeleteSchedule(ctx, &scheduler.DeleteScheduleInput{
		Name:      aws.String(scheduleName),
		GroupName: aws.String(s.Config.SchedulerGroupName),
	})
	if err == nil {
		log.Info().Str("schedule", scheduleName).Msg("Deleted schedule")
		return
	}

	var notFound *types.ResourceNotFoundException
	if errors.As(err, &notFound) {
		// the schedule already fired and removed itself, or never existed
		log.Debug().Str("schedule", scheduleName).Msg("Schedule not found for deletion")
		return
	}
	log.Error().Err(err).Str("schedule", scheduleName).Msg("Error deleting schedule")
}
