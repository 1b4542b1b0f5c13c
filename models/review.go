package models

import (
	"context"
	"time"
)

// Review lifecycle statuses. A review is PENDING while feedback is being
// produced, COMPLETED once feedback is stored, and FAILED when the generator
// returned an error. COMPLETED reviews are immutable.
const (
	ReviewStatusPending   = "PENDING"
	ReviewStatusCompleted = "COMPLETED"
	ReviewStatusFailed    = "FAILED"
)

// Review pairs submitted code with the produced feedback and a lifecycle status.
type Review struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Code      string    `json:"code"`
	Feedback  string    `json:"feedback"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewRepository manages review persistence. SubmitCompleted must insert the
// review and debit exactly one credit from the owning user as a single unit:
// either both are durably visible or neither is. When the user has no spendable
// credit the implementation returns an insufficient-credits error and leaves no
// trace of the review.
type ReviewRepository interface {
	SubmitCompleted(ctx context.Context, review *Review) error
	RecordFailed(ctx context.Context, review *Review) error
	GetByID(ctx context.Context, id string) (Review, error)
	ListByUser(ctx context.Context, userID string) ([]Review, error)
}
