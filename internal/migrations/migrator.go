package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Migrator struct {
	DB            *sql.DB
	MigrationsDir string
}

type Migration struct {
	Version   string
	Name      string
	FilePath  string
	AppliedAt *time.Time
}

func NewMigrator(db *sql.DB, migrationsDir string) *Migrator {
	return &Migrator{
		DB:            db,
		MigrationsDir: migrationsDir,
	}
}

// CreateMigrationsTable creates the migrations tracking table
func (m *Migrator) CreateMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS migrations (
			version VARCHAR(255) PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`
	if _, err := m.DB.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	log.Debug().Msg("Migrations table created/verified")
	return nil
}

// GetAppliedMigrations returns applied migrations keyed by version
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[string]Migration, error) {
	rows, err := m.DB.QueryContext(ctx, `SELECT version, name, applied_at FROM migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to get applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]Migration)
	for rows.Next() {
		var migration Migration
		if err := rows.Scan(&migration.Version, &migration.Name, &migration.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied[migration.Version] = migration
	}
	return applied, rows.Err()
}

// GetPendingMigrations returns migrations that need to be applied, sorted by version
func (m *Migrator) GetPendingMigrations(ctx context.Context) ([]Migration, error) {
	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	files, err := filepath.Glob(filepath.Join(m.MigrationsDir, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("failed to read migration files: %w", err)
	}

	var pending []Migration
	for _, file := range files {
		filename := filepath.Base(file)
		version := extractVersionFromFilename(filename)
		if _, exists := applied[version]; exists {
			continue
		}
		pending = append(pending, Migration{
			Version:  version,
			Name:     extractNameFromFilename(filename),
			FilePath: file,
		})
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].Version < pending[j].Version
	})

	return pending, nil
}

// RunMigrations applies all pending migrations
func (m *Migrator) RunMigrations(ctx context.Context) error {
	if err := m.CreateMigrationsTable(ctx); err != nil {
		return err
	}

	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		log.Info().Msg("No pending migrations to apply")
		return nil
	}

	log.Info().Int("count", len(pending)).Msg("Applying migrations")
	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		log.Info().Str("version", migration.Version).Str("name", migration.Name).Msg("Applied migration")
	}

	return nil
}

func (m *Migrator) applyMigration(ctx context.Context, migration Migration) error {
	f, err := os.Open(migration.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open migration file: %w", err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	tx, err := m.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO migrations (version, name) VALUES ($1, $2)`,
		migration.Version, migration.Name,
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// extractVersionFromFilename extracts version from filename like "001_create_appointments.sql"
func extractVersionFromFilename(filename string) string {
	parts := strings.Split(filename, "_")
	if len(parts) > 0 {
		return parts[0]
	}
	return filename
}

// extractNameFromFilename extracts name from filename like "001_create_appointments.sql"
func extractNameFromFilename(filename string) string {
	name := strings.TrimSuffix(filename, ".sql")
	parts := strings.Split(name, "_")
	if len(parts) > 1 {
		return strings.Join(parts[1:], "_")
	}
	return name
}

// Status writes the migration status report to w
func (m *Migrator) Status(ctx context.Context, w io.Writer) error {
	if err := m.CreateMigrationsTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	pending, err := m.GetPendingMigrations(ctx)
	if err != nil {
		return err
	}

	versions := make([]string, 0, len(applied))
	for v := range applied {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	fmt.Fprintln(w, "=== Migration Status ===")
	fmt.Fprintf(w, "Applied migrations: %d\n", len(applied))
	fmt.Fprintf(w, "Pending migrations: %d\n", len(pending))

	if len(applied) > 0 {
		fmt.Fprintln(w, "\nApplied:")
		for _, v := range versions {
			migration := applied[v]
			appliedAt := "unknown"
			if migration.AppliedAt != nil {
				appliedAt = migration.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Fprintf(w, "  ✓ %s - %s (applied: %s)\n", migration.Version, migration.Name, appliedAt)
		}
	}

	if len(pending) > 0 {
		fmt.Fprintln(w, "\nPending:")
		for _, migration := range pending {
			fmt.Fprintf(w, "  - %s - %s\n", migration.Version, migration.Name)
		}
	}

	return nil
}
