package kafka

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ms-reminders/internal/config"
)

// MessageReader is the subset of *kafka.Reader used by BaseConsumer
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// BaseConsumer provides common functionality for all Kafka consumers
type BaseConsumer struct {
	Reader MessageReader
	Topic  string
	Config config.Config
}

// NewBaseConsumer creates a new base consumer with the given configuration
func NewBaseConsumer(cfg config.Config, kafkaURL, topic string) *BaseConsumer {
	// If topic is empty, return a consumer with nil reader
	if topic == "" || kafkaURL == "" {
		log.Warn().Msg("Empty Kafka topic or URL provided, skipping consumer creation")
		return &BaseConsumer{Config: cfg}
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: []string{kafkaURL},
		Topic:   topic,
		GroupID: cfg.KafkaGroupID,
	})

	return &BaseConsumer{
		Reader: reader,
		Topic:  topic,
		Config: cfg,
	}
}

// Enabled reports whether a reader was configured
func (c *BaseConsumer) Enabled() bool {
	return c.Reader != nil
}

// Close closes the Kafka reader
func (c *BaseConsumer) Close() error {
	if c.Reader == nil {
		return nil
	}
	return c.Reader.Close()
}

// ConsumeMessages consumes messages from Kafka and passes them to the provided handler function
func (c *BaseConsumer) ConsumeMessages(ctx context.Context, handler func(context.Context, []byte) error) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("topic", c.Topic).Msg("Context cancelled, stopping consumer")
			return
		default:
			msg, err := c.Reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				log.Error().Err(err).Str("topic", c.Topic).Msg("Error reading from Kafka")
				continue
			}

			log.Debug().Str("topic", msg.Topic).Int64("offset", msg.Offset).Msg("Received Kafka message")

			if err := handler(ctx, msg.Value); err != nil {
				log.Error().Err(err).Str("topic", msg.Topic).Msg("Error processing message")
			}
		}
	}
}
