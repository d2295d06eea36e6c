package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"ms-reminders/internal/models"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrEmailInUse   = errors.New("email already in use")
)

// UserRepository is the user directory backing login and registration
type UserRepository struct {
	DB *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{DB: db}
}

// GetByEmail returns the user registered with email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `
        SELECT id, name, email, role, phone, created_at
        FROM users
        WHERE email = $1
    `
	return r.scanUser(r.DB.QueryRowContext(ctx, query, email))
}

// GetByID returns the user with the given id
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `
        SELECT id, name, email, role, phone, created_at
        FROM users
        WHERE id = $1
    `
	return r.scanUser(r.DB.QueryRowContext(ctx, query, id))
}

// Create inserts a new user, failing with ErrEmailInUse on a duplicate email
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (id, name, email, role, phone)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at
    `
	err := r.DB.QueryRowContext(ctx, query, user.ID, user.Name, user.Email, user.Role, user.Phone).
		Scan(&user.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrEmailInUse
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *UserRepository) scanUser(row *sql.Row) (*models.User, error) {
	var user models.User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.Phone, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
