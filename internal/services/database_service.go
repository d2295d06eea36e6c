package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"

	"ms-reminders/internal/migrations"
)

type DatabaseService struct {
	DB       *sql.DB
	migrator *migrations.Migrator
}

func NewDatabaseService(dsn, migrationsDir string) (*DatabaseService, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("Successfully connected to database")

	return &DatabaseService{
		DB:       db,
		migrator: migrations.NewMigrator(db, migrationsDir),
	}, nil
}

func (d *DatabaseService) Close() error {
	return d.DB.Close()
}

// RunMigrations applies all pending database migrations
func (d *DatabaseService) RunMigrations(ctx context.Context) error {
	return d.migrator.RunMigrations(ctx)
}

// MigrationStatus writes the current migration status to w
func (d *DatabaseService) MigrationStatus(ctx context.Context, w io.Writer) error {
	return d.migrator.Status(ctx, w)
}

// CheckConnection is used by the readiness probe
func (d *DatabaseService) CheckConnection(ctx context.Context) error {
	return d.DB.PingContext(ctx)
}
