package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"ms-reminders/internal/config"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
)

// AppointmentConsumer keeps reminder schedules in line with appointment rows
// changed anywhere, including writes that bypass this service.
type AppointmentConsumer struct {
	BaseConsumer
	Scheduler services.ReminderScheduler
}

// NewAppointmentConsumer creates a consumer for appointment change events
func NewAppointmentConsumer(cfg config.Config, scheduler services.ReminderScheduler) *AppointmentConsumer {
	return &AppointmentConsumer{
		BaseConsumer: *NewBaseConsumer(cfg, cfg.KafkaURL, cfg.AppointmentsKafkaTopic),
		Scheduler:    scheduler,
	}
}

// StartConsuming blocks until ctx is done
func (c *AppointmentConsumer) StartConsuming(ctx context.Context) {
	if !c.Enabled() {
		log.Warn().Msg("Appointment consumer not configured")
		return
	}
	log.Info().Str("topic", c.Topic).Msg("Starting appointment consumer")
	c.ConsumeMessages(ctx, c.processAppointmentChange)
}

func (c *AppointmentConsumer) processAppointmentChange(ctx context.Context, value []byte) error {
	var event models.AppointmentChangeEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return fmt.Errorf("unmarshal appointment change: %w", err)
	}

	payload := event.Payload
	appointmentID := payload.AppointmentID()
	if appointmentID == "" {
		log.Warn().Str("op", payload.Op).Msg("Could not determine appointment ID from change event. Skipping.")
		return nil
	}

	logger := log.With().Str("appointment_id", appointmentID).Str("op", payload.Op).Logger()

	var previous plan.Plan
	if payload.Before != nil {
		before, err := payload.Before.ToAppointment()
		if err != nil {
			logger.Warn().Err(err).Msg("Ignoring unreadable before image")
		} else {
			previous = before.ReminderPlan
		}
	}

	switch payload.Op {
	case "c", "r", "u":
		if payload.After == nil {
			return fmt.Errorf("%s event for %s has no after image", payload.Op, appointmentID)
		}
		after, err := payload.After.ToAppointment()
		if err != nil {
			return err
		}
		logger.Debug().Str("status", string(after.Status)).Msg("Syncing reminder schedules")
		return c.Scheduler.SyncReminders(ctx, after, previous)
	case "d":
		logger.Info().Msg("Appointment deleted, removing reminder schedules")
		c.Scheduler.CancelReminders(ctx, appointmentID, len(previous.Schedule))
		return nil
	default:
		logger.Warn().Msg("Unknown operation type")
		return nil
	}
}
