package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/gosom/code-review-api/models"
)

// Review is an alias to the models.Review struct
type Review = models.Review

// ReviewRepository is an alias to the models.ReviewRepository interface
type ReviewRepository = models.ReviewRepository

// reviewRepository implements the ReviewRepository interface
type reviewRepository struct {
	db *sql.DB
}

// NewReviewRepository creates a new ReviewRepository
func NewReviewRepository(db *sql.DB) ReviewRepository {
	return &reviewRepository{db: db}
}

// SubmitCompleted inserts a COMPLETED review and debits one credit from the
// owning user in a single transaction. The debit is conditional: it updates
// only when the balance is strictly positive, so a race on the last credit
// admits at most one submission and the balance never goes negative. When no
// row is updated the transaction rolls back and no review is visible.
func (repo *reviewRepository) SubmitCompleted(ctx context.Context, review *Review) error {
	if review.Status != models.ReviewStatusCompleted {
		return fmt.Errorf("review status must be %s", models.ReviewStatusCompleted)
	}
	if review.Feedback == "" {
		return fmt.Errorf("completed review requires feedback")
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	const ins = `INSERT INTO reviews (id, user_id, title, language, code, feedback, status, created_at)
	             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	if _, err := tx.ExecContext(ctx, ins,
		review.ID, review.UserID, review.Title, review.Language,
		review.Code, review.Feedback, review.Status, review.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert review: %w", err)
	}

	// Conditional decrement: no row updated means no spendable credit.
	const debit = `UPDATE users
		SET credits = credits - 1, updated_at = NOW()
		WHERE id = $1 AND credits > 0
		RETURNING credits`

	var balance int
	if err := tx.QueryRowContext(ctx, debit, review.UserID).Scan(&balance); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ErrInsufficientCredits
		}

		return fmt.Errorf("debit credit: %w", err)
	}

	return tx.Commit()
}

// RecordFailed stores a FAILED review with empty feedback. It runs outside the
// debit transaction: a failed generation consumes no credit.
func (repo *reviewRepository) RecordFailed(ctx context.Context, review *Review) error {
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	const q = `INSERT INTO reviews (id, user_id, title, language, code, feedback, status, created_at)
	           VALUES ($1, $2, $3, $4, $5, '', $6, $7)`

	_, err := repo.db.ExecContext(ctx, q,
		review.ID, review.UserID, review.Title, review.Language,
		review.Code, models.ReviewStatusFailed, review.CreatedAt,
	)

	return err
}

// GetByID retrieves a review by ID
func (repo *reviewRepository) GetByID(ctx context.Context, id string) (Review, error) {
	const q = `SELECT id, user_id, title, language, code, feedback, status, created_at
	           FROM reviews WHERE id = $1`

	var rec Review

	err := repo.db.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.UserID, &rec.Title, &rec.Language,
		&rec.Code, &rec.Feedback, &rec.Status, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Review{}, models.ErrReviewNotFound
		}

		return Review{}, err
	}

	return rec, nil
}

// ListByUser returns a user's reviews ordered newest first. The created_at,
// id tie-break keeps the ordering stable across identical timestamps.
func (repo *reviewRepository) ListByUser(ctx context.Context, userID string) ([]Review, error) {
	const q = `SELECT id, user_id, title, language, code, feedback, status, created_at
	           FROM reviews WHERE user_id = $1
	           ORDER BY created_at DESC, id DESC`

	rows, err := repo.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Review

	for rows.Next() {
		var rec Review
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.Title, &rec.Language,
			&rec.Code, &rec.Feedback, &rec.Status, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		items = append(items, rec)
	}

	return items, rows.Err()
}
