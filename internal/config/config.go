package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ServerHost string
	ServerPort string
	AppEnv     string
	LogLevel   string

	DatabaseHost     string
	DatabasePort     string
	DatabaseUser     string
	DatabasePassword string
	DatabaseName     string
	DatabaseSSLMode  string
	MigrationsDir    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	JWTSecret     string

	KafkaURL               string
	AppointmentsKafkaTopic string
	DispatchKafkaTopic     string
	KafkaGroupID           string

	AWSRegion                 string
	AWSEndpoint               string
	AWSAccessKeyID            string
	AWSSecretAccessKey        string
	SQSRemindersQueueURL      string
	SQSRemindersQueueARN      string
	SchedulerRoleARN          string
	SchedulerGroupName        string
	ReminderSchedulePrefix    string
	ReminderMessageTimeFormat string

	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAge         int
}

// LoadEnv loads environment variables from .env files
func LoadEnv() {
	envPaths := []string{
		".env",
		"../.env",
		filepath.Join(os.Getenv("HOME"), ".config/ms-reminders/.env"),
	}

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			log.Info().Str("path", path).Msg("Loaded environment variables")
			return
		}
	}

	log.Info().Msg("No .env file found, using environment variables")
}

func Load() Config {
	LoadEnv()

	log.Info().Msg("Loading configuration from environment variables")
	return Config{
		ServerHost: getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8085"),
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		DatabaseHost:     getEnv("DATABASE_HOST", "localhost"),
		DatabasePort:     getEnv("DATABASE_PORT", "5432"),
		DatabaseUser:     getEnv("DATABASE_USER", "reminders"),
		DatabasePassword: getEnv("DATABASE_PASSWORD", ""),
		DatabaseName:     getEnv("DATABASE_NAME", "ms_reminders"),
		DatabaseSSLMode:  getEnv("DATABASE_SSLMODE", "disable"),
		MigrationsDir:    getEnv("MIGRATIONS_DIR", "migrations"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SessionTTL:    getEnvDuration("SESSION_TTL", 12*time.Hour),
		JWTSecret:     getEnv("JWT_SECRET", ""),

		KafkaURL:               getEnv("KAFKA_URL", ""),
		AppointmentsKafkaTopic: getEnv("APPOINTMENTS_KAFKA_TOPIC", "dbz.reminders.public.appointments"),
		DispatchKafkaTopic:     getEnv("DISPATCH_KAFKA_TOPIC", "reminders.dispatch"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "reminder-service-group"),

		AWSRegion:                 getEnv("AWS_REGION", "ap-south-1"),
		AWSEndpoint:               getEnv("AWS_LOCAL_ENDPOINT_URL", ""),
		AWSAccessKeyID:            getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:        getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SQSRemindersQueueURL:      getEnv("AWS_SQS_REMINDERS_QUEUE_URL", ""),
		SQSRemindersQueueARN:      getEnv("AWS_SQS_REMINDERS_QUEUE_ARN", ""),
		SchedulerRoleARN:          getEnv("AWS_SCHEDULER_ROLE_ARN", ""),
		SchedulerGroupName:        getEnv("AWS_SCHEDULER_GROUP_NAME", "default"),
		ReminderSchedulePrefix:    getEnv("REMINDER_SCHEDULE_PREFIX", "appt-reminder-"),
		ReminderMessageTimeFormat: getEnv("REMINDER_MESSAGE_TIME_FORMAT", "Mon Jan 2 at 15:04 MST"),

		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		AllowedMethods: getEnvList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		AllowedHeaders: getEnvList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		MaxAge:         getEnvInt("CORS_MAX_AGE", 3600),
	}
}

// DatabaseDSN builds the lib/pq connection string
func (c Config) DatabaseDSN() string {
	return "host=" + c.DatabaseHost +
		" port=" + c.DatabasePort +
		" user=" + c.DatabaseUser +
		" password=" + c.DatabasePassword +
		" dbname=" + c.DatabaseName +
		" sslmode=" + c.DatabaseSSLMode
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		log.Debug().Str("key", key).Msg("Loaded env var")
		return value
	}
	log.Debug().Str("key", key).Str("fallback", fallback).Msg("Env var not set, using fallback")
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid integer env var, using fallback")
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("key", key).Str("value", raw).Msg("Invalid duration env var, using fallback")
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
