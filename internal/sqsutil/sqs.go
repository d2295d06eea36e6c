package sqsutil

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

// API is the subset of the SQS client used by the queue processors
type API interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, in *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
}

func ReceiveMessage(ctx context.Context, client API, queueURL string) ([]types.Message, error) {
	result, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to receive message: %w", err)
	}
	return result.Messages, nil
}

// Drain receives and deletes messages until the queue reports empty, calling
// visit for each message before it is deleted. It returns the number of
// messages submitted for deletion.
func Drain(ctx context.Context, client API, queueURL string, visit func(types.Message)) (int, error) {
	deleted := 0
	for {
		result, err := client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     2,
			VisibilityTimeout:   30,
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to receive message: %w", err)
		}
		if len(result.Messages) == 0 {
			return deleted, nil
		}

		entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(result.Messages))
		for _, m := range result.Messages {
			if visit != nil {
				visit(m)
			}
			entries = append(entries, DeleteEntry(m))
		}
		if err := DeleteMessageBatch(ctx, client, queueURL, entries); err != nil {
			return deleted, err
		}
		deleted += len(entries)
	}
}

// DeleteEntry builds the batch delete entry for a received message
func DeleteEntry(m types.Message) types.DeleteMessageBatchRequestEntry {
	return types.DeleteMessageBatchRequestEntry{
		Id:            m.MessageId,
		ReceiptHandle: m.ReceiptHandle,
	}
}

func DeleteMessageBatch(ctx context.Context, client API, queueURL string, entries []types.DeleteMessageBatchRequestEntry) error {
	if len(entries) == 0 {
		return nil
	}

	log.Debug().Int("count", len(entries)).Str("queue", queueURL).Msg("Deleting messages in a batch")
	result, err := client.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
		QueueUrl: aws.String(queueURL),
		Entries:  entries,
	})
	if err != nil {
		return fmt.Errorf("batch delete failed: %w", err)
	}

	if len(result.Failed) > 0 {
		log.Warn().Int("failed", len(result.Failed)).Msg("Some messages failed to delete in batch operation")
		for _, failure := range result.Failed {
			log.Warn().
				Str("id", aws.ToString(failure.Id)).
				Str("code", aws.ToString(failure.Code)).
				Str("message", aws.ToString(failure.Message)).
				Msg("Delete failure")
		}
	}

	log.Debug().Int("count", len(result.Successful)).Msg("Deleted messages in batch")
	return nil
}
