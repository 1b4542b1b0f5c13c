// Package review implements the review submission service: it verifies the
// caller has spendable credit, produces feedback, persists the review, and
// debits one credit, with the three effects treated as a single unit.
package review

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/gosom/code-review-api/feedback"
	"github.com/gosom/code-review-api/models"
)

// SubmitInput holds the input parameters for Submit.
type SubmitInput struct {
	Title    string `validate:"required"`
	Language string `validate:"required"`
	Code     string `validate:"required"`
}

func (i *SubmitInput) validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(i); err != nil {
		return multierr.Append(ErrInvalidInput, err)
	}

	return nil
}

// SubmitResult is returned on a successful submission.
type SubmitResult struct {
	Feedback string
	ReviewID string
}

// Service coordinates the submission flow. It takes the caller identity and
// the store handles as explicit dependencies; it never reads ambient state.
type Service struct {
	users   models.UserRepository
	reviews models.ReviewRepository
	gen     feedback.Generator
	logger  *zap.Logger
}

func NewService(users models.UserRepository, reviews models.ReviewRepository, gen feedback.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		users:   users,
		reviews: reviews,
		gen:     gen,
		logger:  logger,
	}
}

// Submit validates the request, generates feedback, and persists the review
// together with a one-credit debit. The insert and the debit happen inside a
// single store transaction: on any failure after validation neither side
// effect is visible. When two submissions race on a user's last credit, the
// store's conditional decrement lets at most one through; the loser observes
// ErrInsufficientCredits, never a negative balance.
func (s *Service) Submit(ctx context.Context, identity string, in SubmitInput) (SubmitResult, error) {
	if identity == "" {
		return SubmitResult{}, ErrUnauthenticated
	}

	if err := in.validate(); err != nil {
		return SubmitResult{}, err
	}

	user, err := s.users.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return SubmitResult{}, ErrNotFound
		}

		return SubmitResult{}, multierr.Append(ErrStoreUnavailable, err)
	}

	// Early check only. The authoritative check is the conditional decrement
	// inside the submit transaction; this one avoids generating feedback for
	// callers that cannot pay.
	if user.Credits <= 0 {
		return SubmitResult{}, ErrInsufficientCredits
	}

	rec := models.Review{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Title:     in.Title,
		Language:  in.Language,
		Code:      in.Code,
		Status:    models.ReviewStatusPending,
		CreatedAt: time.Now().UTC(),
	}

	text, err := s.gen.Generate(ctx, in.Language, in.Code)
	if err != nil {
		// A failed generation must not consume a credit. The FAILED row is
		// recorded outside the debit transaction on a best effort basis.
		rec.Status = models.ReviewStatusFailed
		if recErr := s.reviews.RecordFailed(ctx, &rec); recErr != nil {
			s.logger.Warn("failed to record failed review",
				zap.String("review_id", rec.ID), zap.Error(recErr))
		}

		return SubmitResult{}, multierr.Append(ErrGenerationFailed, err)
	}

	rec.Status = models.ReviewStatusCompleted
	rec.Feedback = text

	if err := s.reviews.SubmitCompleted(ctx, &rec); err != nil {
		if errors.Is(err, models.ErrInsufficientCredits) {
			return SubmitResult{}, ErrInsufficientCredits
		}

		return SubmitResult{}, multierr.Append(ErrStoreUnavailable, err)
	}

	s.logger.Info("review submitted",
		zap.String("user_id", user.ID),
		zap.String("review_id", rec.ID),
		zap.String("language", rec.Language),
	)

	return SubmitResult{Feedback: text, ReviewID: rec.ID}, nil
}

// History returns the caller's reviews, newest first. Listing twice without an
// intervening submission returns identical ordered results.
func (s *Service) History(ctx context.Context, identity string) ([]models.Review, error) {
	user, err := s.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	reviews, err := s.reviews.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, multierr.Append(ErrStoreUnavailable, err)
	}

	return reviews, nil
}

// Get returns a single review owned by the caller.
func (s *Service) Get(ctx context.Context, identity, reviewID string) (models.Review, error) {
	user, err := s.resolve(ctx, identity)
	if err != nil {
		return models.Review{}, err
	}

	rec, err := s.reviews.GetByID(ctx, reviewID)
	if err != nil {
		if errors.Is(err, models.ErrReviewNotFound) {
			return models.Review{}, ErrNotFound
		}

		return models.Review{}, multierr.Append(ErrStoreUnavailable, err)
	}

	if rec.UserID != user.ID {
		return models.Review{}, ErrNotFound
	}

	return rec, nil
}

// Profile returns the caller's user record and review count.
func (s *Service) Profile(ctx context.Context, identity string) (models.User, int, error) {
	user, err := s.resolve(ctx, identity)
	if err != nil {
		return models.User{}, 0, err
	}

	reviews, err := s.reviews.ListByUser(ctx, user.ID)
	if err != nil {
		return models.User{}, 0, multierr.Append(ErrStoreUnavailable, err)
	}

	return user, len(reviews), nil
}

func (s *Service) resolve(ctx context.Context, identity string) (models.User, error) {
	if identity == "" {
		return models.User{}, ErrUnauthenticated
	}

	user, err := s.users.GetByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.User{}, ErrNotFound
		}

		return models.User{}, multierr.Append(ErrStoreUnavailable, err)
	}

	return user, nil
}
