package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsscheduler "github.com/aws/aws-sdk-go-v2/service/scheduler"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/auth"
	"ms-reminders/internal/config"
	"ms-reminders/internal/dispatch"
	"ms-reminders/internal/eventbridge"
	"ms-reminders/internal/handlers"
	"ms-reminders/internal/kafka"
	"ms-reminders/internal/logging"
	"ms-reminders/internal/reminder"
	"ms-reminders/internal/services"
	"ms-reminders/internal/session"
)

func main() {
	cfg := config.Load()
	logging.Init("ms-reminders", cfg.AppEnv, cfg.LogLevel)

	if cfg.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET must be set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load AWS configuration with credentials from environment variables
	awsOptions := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		log.Info().Msg("Using AWS credentials from environment variables")
		awsOptions = append(awsOptions, awsconfig.WithCredentialsProvider(
			aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
				return aws.Credentials{
					AccessKeyID:     cfg.AWSAccessKeyID,
					SecretAccessKey: cfg.AWSSecretAccessKey,
				}, nil
			}),
		))
	} else {
		log.Info().Msg("No AWS credentials provided in environment variables, falling back to default credentials")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOptions...)
	if err != nil {
		log.Fatal().Err(err).Msg("Unable to load AWS SDK config")
	}
	sqsClient := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.AWSEndpoint != "" {
			log.Info().Str("endpoint", cfg.AWSEndpoint).Msg("Using LocalStack endpoint for SQS")
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	})
	schedulerClient := awsscheduler.NewFromConfig(awsCfg, func(o *awsscheduler.Options) {
		if cfg.AWSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpoint)
		}
	})

	dbService, err := services.NewDatabaseService(cfg.DatabaseDSN(), cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database service")
	}
	defer dbService.Close()

	if err := dbService.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	appointmentRepo := services.NewAppointmentRepository(dbService.DB)
	userRepo := services.NewUserRepository(dbService.DB)

	var scheduler services.ReminderScheduler
	if cfg.SQSRemindersQueueARN != "" {
		scheduler = eventbridge.NewService(cfg, schedulerClient)
	} else {
		log.Warn().Msg("Reminder queue ARN not configured, reminders will not be scheduled")
	}
	appointmentService := services.NewAppointmentService(appointmentRepo, scheduler)

	sessionManager := session.NewManager(session.NewRedisStore(redisClient), userRepo, cfg.SessionTTL)
	tokens := auth.NewTokenService(cfg.JWTSecret)

	var wg sync.WaitGroup

	if cfg.KafkaURL != "" && scheduler != nil {
		appointmentConsumer := kafka.NewAppointmentConsumer(cfg, scheduler)
		defer appointmentConsumer.Close()
		wg.Add(1)
		go func() {
			defer wg.Done()
			appointmentConsumer.StartConsuming(ctx)
		}()
	} else {
		log.Info().Msg("Kafka URL not configured, skipping appointment consumer setup")
	}

	if cfg.SQSRemindersQueueURL != "" && cfg.KafkaURL != "" {
		publisher := dispatch.NewKafkaPublisher(dispatch.NewKafkaWriter(cfg.KafkaURL, cfg.DispatchKafkaTopic))
		defer publisher.Close()

		reminderProcessor := reminder.NewProcessor(sqsClient, cfg, appointmentRepo, publisher)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := reminderProcessor.ProcessMessages(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Error processing reminder messages")
			}
		}()
	} else {
		log.Info().Msg("Reminder queue URL or Kafka URL not configured, skipping reminder processor setup")
	}

	healthHandler := handlers.NewHealthHandler(map[string]handlers.Check{
		"database": dbService.CheckConnection,
		"redis": func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		},
	})

	router := mux.NewRouter()
	router.Use(auth.CORSMiddleware(cfg))
	handlers.Router{
		Auth:         auth.NewAuthenticator(tokens, sessionManager),
		Sessions:     handlers.NewSessionHandler(sessionManager, tokens),
		Plans:        handlers.NewPlanHandler(appointmentService),
		Appointments: handlers.NewAppointmentHandler(appointmentService),
		Health:       healthHandler,
	}.RegisterRoutes(router)

	serve(ctx, cfg, router)
	wg.Wait()
}

// serve runs the HTTP server until ctx is cancelled
func serve(ctx context.Context, cfg config.Config, router http.Handler) {
	serverAddr := cfg.ServerHost + ":" + cfg.ServerPort
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error shutting down HTTP server")
		}
	}()

	log.Info().Str("addr", serverAddr).Msg("Starting HTTP server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}
