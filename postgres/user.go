package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gosom/code-review-api/models"
)

// User is an alias to the models.User struct
type User = models.User

// UserRepository is an alias to the models.UserRepository interface
type UserRepository = models.UserRepository

// userRepository implements the UserRepository interface
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID retrieves a user by ID
func (repo *userRepository) GetByID(ctx context.Context, id string) (User, error) {
	const q = `SELECT id, email, plan, credits, created_at, updated_at FROM users WHERE id = $1`

	return repo.scanOne(repo.db.QueryRowContext(ctx, q, id))
}

// GetByEmail retrieves a user by email
func (repo *userRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	const q = `SELECT id, email, plan, credits, created_at, updated_at FROM users WHERE email = $1`

	return repo.scanOne(repo.db.QueryRowContext(ctx, q, email))
}

// Create inserts a new user. Plan defaults to FREE when unset.
func (repo *userRepository) Create(ctx context.Context, user *User) error {
	const q = `INSERT INTO users (id, email, plan, credits, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = now
	}
	if user.Plan == "" {
		user.Plan = models.PlanFree
	}
	if user.Credits < 0 {
		return fmt.Errorf("credits cannot be negative")
	}

	_, err := repo.db.ExecContext(ctx, q, user.ID, user.Email, user.Plan, user.Credits, user.CreatedAt, user.UpdatedAt)

	return err
}

// UpdatePlan updates a user's plan tag
func (repo *userRepository) UpdatePlan(ctx context.Context, userID, plan string) error {
	const q = `UPDATE users SET plan = $1, updated_at = $2 WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, plan, time.Now().UTC(), userID)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

// AddCredits grants credits to a user. Used by the billing side only.
func (repo *userRepository) AddCredits(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit grant must be positive")
	}

	const q = `UPDATE users SET credits = credits + $1, updated_at = $2 WHERE id = $3`

	res, err := repo.db.ExecContext(ctx, q, amount, time.Now().UTC(), userID)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

// Delete removes a user and their reviews
func (repo *userRepository) Delete(ctx context.Context, id string) error {
	const reviewsQ = `DELETE FROM reviews WHERE user_id = $1`

	_, err := repo.db.ExecContext(ctx, reviewsQ, id)
	if err != nil {
		return err
	}

	const q = `DELETE FROM users WHERE id = $1`

	_, err = repo.db.ExecContext(ctx, q, id)

	return err
}

func (repo *userRepository) scanOne(row *sql.Row) (User, error) {
	var user User

	err := row.Scan(&user.ID, &user.Email, &user.Plan, &user.Credits, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, models.ErrUserNotFound
		}

		return User{}, err
	}

	return user, nil
}
