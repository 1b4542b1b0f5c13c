package models

import (
	"context"
	"time"
)

// User represents a user of the system
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	Credits   int       `json:"credits"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRepository manages user operations
type UserRepository interface {
	GetByID(ctx context.Context, id string) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	Create(ctx context.Context, user *User) error
	UpdatePlan(ctx context.Context, userID, plan string) error
	AddCredits(ctx context.Context, userID string, amount int) error
	Delete(ctx context.Context, id string) error
}
