package migrations

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeMigration(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestRunMigrationsAppliesPendingInOrder(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "002_add_index.sql", "CREATE INDEX idx ON t (c);")
	writeMigration(t, dir, "001_create_table.sql", "CREATE TABLE t (c INT);")
	writeMigration(t, dir, "003_seed.sql", "INSERT INTO t VALUES (1);")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, applied_at FROM migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "applied_at"}).
			AddRow("001", "create_table", time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("CREATE INDEX idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO migrations").WithArgs("002", "add_index").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO t VALUES").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO migrations").WithArgs("003", "seed").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	m := NewMigrator(db, dir)
	require.NoError(t, m.RunMigrations(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrationsRollsBackOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_broken.sql", "CREATE TABLE")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version, name, applied_at FROM migrations").
		WillReturnRows(sqlmock.NewRows([]string{"version", "name", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = NewMigrator(db, dir).RunMigrations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	writeMigration(t, dir, "001_create_table.sql", "")
	writeMigration(t, dir, "002_add_index.sql", "")

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	applied := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rows := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"version", "name", "applied_at"}).AddRow("001", "create_table", applied)
	}
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT version").WillReturnRows(rows())
	mock.ExpectQuery("SELECT version").WillReturnRows(rows())

	var out bytes.Buffer
	require.NoError(t, NewMigrator(db, dir).Status(context.Background(), &out))
	assert.Contains(t, out.String(), "Applied migrations: 1")
	assert.Contains(t, out.String(), "Pending migrations: 1")
	assert.Contains(t, out.String(), "001 - create_table (applied: 2026-01-02 03:04:05)")
	assert.Contains(t, out.String(), "- 002 - add_index")
}

func TestFilenameParsing(t *testing.T) {
	assert.Equal(t, "001", extractVersionFromFilename("001_create_appointments.sql"))
	assert.Equal(t, "create_appointments", extractNameFromFilename("001_create_appointments.sql"))
	assert.Equal(t, "plain", extractNameFromFilename("plain.sql"))
}
