package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/config"
	"ms-reminders/internal/logging"
	"ms-reminders/internal/sqsutil"
)

// Drains the reminders queue, printing each message body before deleting it.
func main() {
	queueURL := flag.String("queue", "", "Queue URL (defaults to AWS_SQS_REMINDERS_QUEUE_URL)")
	flag.Parse()

	cfg := config.Load()
	logging.Init("ms-reminders-drain", cfg.AppEnv, cfg.LogLevel)

	if *queueURL == "" {
		*queueURL = cfg.SQSRemindersQueueURL
	}
	if *queueURL == "" {
		log.Fatal().Msg("No queue URL given and AWS_SQS_REMINDERS_QUEUE_URL is not set")
	}

	ctx := context.Background()
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	})

	log.Info().Str("queue", *queueURL).Msg("Draining reminders queue")
	n, err := sqsutil.Drain(ctx, client, *queueURL, func(m types.Message) {
		fmt.Println(aws.ToString(m.Body))
	})
	if err != nil {
		log.Fatal().Err(err).Int("deleted", n).Msg("Drain failed")
	}
	log.Info().Int("deleted", n).Msg("Queue drain completed")
}
