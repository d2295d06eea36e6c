package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/config"
	"ms-reminders/internal/dispatch"
	"ms-reminders/internal/models"
	"ms-reminders/internal/plan"
	"ms-reminders/internal/services"
	"ms-reminders/internal/sqsutil"
)

// AppointmentStore is what the processor needs from the appointment repository
type AppointmentStore interface {
	Get(ctx context.Context, id string) (*models.Appointment, error)
	MarkOffsetSent(ctx context.Context, id string, index int, want plan.Offset, at time.Time) (bool, error)
}

// Processor handles processing of reminder messages from SQS
type Processor struct {
	sqsClient  sqsutil.API
	store      AppointmentStore
	publisher  dispatch.Publisher
	queueURL   string
	timeFormat string
	now        func() time.Time
}

// NewProcessor creates a new reminder processor
func NewProcessor(sqsClient sqsutil.API, cfg config.Config, store AppointmentStore, publisher dispatch.Publisher) *Processor {
	return &Processor{
		sqsClient:  sqsClient,
		store:      store,
		publisher:  publisher,
		queueURL:   cfg.SQSRemindersQueueURL,
		timeFormat: cfg.ReminderMessageTimeFormat,
		now:        time.Now,
	}
}

// ProcessMessages processes messages from the reminder queue until ctx is done
func (p *Processor) ProcessMessages(ctx context.Context) error {
	if p.queueURL == "" {
		log.Warn().Msg("Reminder queue URL not configured, skipping reminder processor")
		return fmt.Errorf("reminder queue URL not configured")
	}

	log.Info().Str("queue", p.queueURL).Msg("Starting to process reminder messages")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Context cancelled, stopping reminder processor")
			return ctx.Err()
		default:
		}

		rawMessages, err := sqsutil.ReceiveMessage(ctx, p.sqsClient, p.queueURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().Err(err).Msg("Error receiving messages from reminder SQS queue")
			time.Sleep(5 * time.Second)
			continue
		}

		if len(rawMessages) == 0 {
			continue // long polling already waited
		}

		log.Debug().Int("count", len(rawMessages)).Msg("Received messages from reminder queue")
		if err := sqsutil.DeleteMessageBatch(ctx, p.sqsClient, p.queueURL, p.processBatch(ctx, rawMessages)); err != nil {
			log.Error().Err(err).Msg("Error batch deleting reminder messages")
		}
	}
}

// processBatch handles every message and returns the entries that can be
// deleted: successes and malformed messages. Failures stay on the queue and
// become visible again for another attempt.
func (p *Processor) processBatch(ctx context.Context, rawMessages []types.Message) []types.DeleteMessageBatchRequestEntry {
	var messagesToDelete []types.DeleteMessageBatchRequestEntry
	for _, rawMessage := range rawMessages {
		var messageBody models.SQSReminderMessageBody
		if err := json.Unmarshal([]byte(aws.ToString(rawMessage.Body)), &messageBody); err != nil {
			log.Warn().Err(err).Msg("Error unmarshalling reminder message body, will delete malformed message")
			messagesToDelete = append(messagesToDelete, sqsutil.DeleteEntry(rawMessage))
			continue
		}

		if err := p.processReminderMessage(ctx, &messageBody); err != nil {
			log.Error().Err(err).
				Str("appointment_id", messageBody.AppointmentID).
				Int("offset_index", messageBody.OffsetIndex).
				Msg("Error processing reminder, it will be retried")
			continue
		}
		messagesToDelete = append(messagesToDelete, sqsutil.DeleteEntry(rawMessage))
	}
	return messagesToDelete
}

// processReminderMessage publishes one dispatch per selected channel and marks
// the offset sent. A nil return consumes the message.
func (p *Processor) processReminderMessage(ctx context.Context, msg *models.SQSReminderMessageBody) error {
	logger := log.With().Str("appointment_id", msg.AppointmentID).Int("offset_index", msg.OffsetIndex).Logger()

	if msg.AppointmentID == "" {
		logger.Warn().Msg("Reminder message has empty appointment id, skipping")
		return nil
	}

	appt, err := p.store.Get(ctx, msg.AppointmentID)
	if errors.Is(err, services.ErrAppointmentNotFound) {
		logger.Info().Msg("Appointment not found. Consuming reminder message without sending.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load appointment: %w", err)
	}

	if !appt.Status.Active() {
		logger.Info().Str("status", string(appt.Status)).Msg("Appointment no longer active, skipping reminder")
		return nil
	}

	want := msg.Offset()
	schedule := appt.ReminderPlan.Schedule
	if msg.OffsetIndex < 0 || msg.OffsetIndex >= len(schedule) {
		logger.Info().Msg("Offset was removed from the plan, skipping reminder")
		return nil
	}
	current := schedule[msg.OffsetIndex]
	if current.Sent || current.Unit != want.Unit || current.Amount != want.Amount {
		logger.Info().Bool("sent", current.Sent).Msg("Offset already sent or changed since scheduling, skipping reminder")
		return nil
	}

	dispatches := p.buildDispatches(appt, msg.OffsetIndex, current)
	if len(dispatches) == 0 {
		logger.Info().Msg("No channels selected for reminder")
	}
	if err := p.publisher.Publish(ctx, dispatches...); err != nil {
		return err
	}

	marked, err := p.store.MarkOffsetSent(ctx, appt.ID, msg.OffsetIndex, want, p.now().UTC())
	if err != nil {
		return fmt.Errorf("mark offset sent: %w", err)
	}
	if !marked {
		logger.Warn().Msg("Offset changed while dispatching, sent flag not recorded")
	}
	return nil
}

func (p *Processor) buildDispatches(appt *models.Appointment, index int, offset plan.Offset) []models.ReminderDispatch {
	text := RenderMessage(appt, offset, p.timeFormat)
	scheduledFor := offset.FireAt(appt.StartsAt)
	createdAt := p.now().UTC()

	var out []models.ReminderDispatch
	for _, c := range plan.Channels {
		if !appt.ReminderPlan.HasChannel(c) {
			continue
		}
		out = append(out, models.ReminderDispatch{
			ID:            DispatchID(appt.ID, index, offset, c),
			AppointmentID: appt.ID,
			PatientID:     appt.PatientID,
			Channel:       c,
			OffsetIndex:   index,
			Message:       text,
			ScheduledFor:  scheduledFor,
			CreatedAt:     createdAt,
		})
	}
	return out
}

// DispatchID is stable for one appointment, offset and channel so a retried
// message republishes with the same ids.
func DispatchID(appointmentID string, index int, offset plan.Offset, c plan.Channel) string {
	name := fmt.Sprintf("%s/%d/%s/%d/%s", appointmentID, index, offset.Unit, offset.Amount, c)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

// RenderMessage returns the text sent to the patient
func RenderMessage(appt *models.Appointment, offset plan.Offset, timeFormat string) string {
	if timeFormat == "" {
		timeFormat = time.RFC1123
	}
	return fmt.Sprintf("Reminder: %s on %s (%s)", appt.Title, appt.StartsAt.Format(timeFormat), offset.Label())
}
