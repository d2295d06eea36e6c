package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ms-reminders/internal/models"
)

// Publisher hands reminder dispatches to the delivery side
type Publisher interface {
	Publish(ctx context.Context, dispatches ...models.ReminderDispatch) error
}

// MessageWriter is the subset of *kafka.Writer used by KafkaPublisher
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes dispatches to a Kafka topic keyed by appointment id so
// every reminder of one appointment lands on the same partition.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds the writer for the dispatch topic
func NewKafkaWriter(kafkaURL, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(kafkaURL),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

func NewKafkaPublisher(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, dispatches ...models.ReminderDispatch) error {
	if len(dispatches) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(dispatches))
	for _, d := range dispatches {
		value, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("marshal dispatch %s: %w", d.ID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(d.AppointmentID),
			Value: value,
			Time:  time.Now(),
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write dispatches: %w", err)
	}
	log.Info().Int("count", len(msgs)).Str("appointment_id", dispatches[0].AppointmentID).Msg("Published reminder dispatches")
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
