package main

import (
	"context"
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"ms-reminders/internal/config"
	"ms-reminders/internal/logging"
	"ms-reminders/internal/services"
)

func main() {
	var command = flag.String("command", "up", "Migration command: up, status")
	flag.Parse()

	cfg := config.Load()
	logging.Init("ms-reminders-migrate", cfg.AppEnv, cfg.LogLevel)

	dbService, err := services.NewDatabaseService(cfg.DatabaseDSN(), cfg.MigrationsDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database service")
	}
	defer dbService.Close()

	ctx := context.Background()

	switch *command {
	case "up":
		log.Info().Msg("Running migrations...")
		if err := dbService.RunMigrations(ctx); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		log.Info().Msg("Migrations completed successfully")

	case "status":
		if err := dbService.MigrationStatus(ctx, os.Stdout); err != nil {
			log.Fatal().Err(err).Msg("Failed to get migration status")
		}

	default:
		log.Error().Str("command", *command).Msg("Unknown command. Available commands: up, status")
		os.Exit(1)
	}
}
