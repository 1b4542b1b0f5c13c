// Package memory provides in-memory user and review stores. They mirror the
// postgres repositories' semantics, including the conditional one-credit debit,
// and are used by tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gosom/code-review-api/models"
)

// Store holds users and reviews behind a single mutex so that the
// insert-plus-debit of a submission is atomic, like the postgres transaction.
type Store struct {
	mu      sync.Mutex
	users   map[string]models.User
	reviews map[string]models.Review
}

func New() *Store {
	return &Store{
		users:   make(map[string]models.User),
		reviews: make(map[string]models.Review),
	}
}

// Users returns the store's UserRepository view.
func (s *Store) Users() models.UserRepository { return &userRepo{s: s} }

// Reviews returns the store's ReviewRepository view.
func (s *Store) Reviews() models.ReviewRepository { return &reviewRepo{s: s} }

type userRepo struct{ s *Store }

func (r *userRepo) GetByID(_ context.Context, id string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[id]
	if !ok {
		return models.User{}, models.ErrUserNotFound
	}

	return user, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, user := range r.s.users {
		if user.Email == email {
			return user, nil
		}
	}

	return models.User{}, models.ErrUserNotFound
}

func (r *userRepo) Create(_ context.Context, user *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return models.ErrAlreadyExists
	}

	for _, existing := range r.s.users {
		if existing.Email == user.Email {
			return models.ErrAlreadyExists
		}
	}

	if user.Plan == "" {
		user.Plan = models.PlanFree
	}

	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	r.s.users[user.ID] = *user

	return nil
}

func (r *userRepo) UpdatePlan(_ context.Context, userID, plan string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}

	user.Plan = plan
	user.UpdatedAt = time.Now().UTC()
	r.s.users[userID] = user

	return nil
}

func (r *userRepo) AddCredits(_ context.Context, userID string, amount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}

	user.Credits += amount
	user.UpdatedAt = time.Now().UTC()
	r.s.users[userID] = user

	return nil
}

func (r *userRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return models.ErrUserNotFound
	}

	delete(r.s.users, id)

	for rid, rec := range r.s.reviews {
		if rec.UserID == id {
			delete(r.s.reviews, rid)
		}
	}

	return nil
}

type reviewRepo struct{ s *Store }

func (r *reviewRepo) SubmitCompleted(_ context.Context, review *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	user, ok := r.s.users[review.UserID]
	if !ok {
		return models.ErrUserNotFound
	}

	// Conditional decrement under the store lock: the review and the debit
	// become visible together or not at all.
	if user.Credits <= 0 {
		return models.ErrInsufficientCredits
	}

	user.Credits--
	user.UpdatedAt = time.Now().UTC()
	r.s.users[user.ID] = user

	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	r.s.reviews[review.ID] = *review

	return nil
}

func (r *reviewRepo) RecordFailed(_ context.Context, review *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec := *review
	rec.Feedback = ""
	rec.Status = models.ReviewStatusFailed
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	r.s.reviews[rec.ID] = rec

	return nil
}

func (r *reviewRepo) GetByID(_ context.Context, id string) (models.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec, ok := r.s.reviews[id]
	if !ok {
		return models.Review{}, models.ErrReviewNotFound
	}

	return rec, nil
}

func (r *reviewRepo) ListByUser(_ context.Context, userID string) ([]models.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var items []models.Review

	for _, rec := range r.s.reviews {
		if rec.UserID == userID {
			items = append(items, rec)
		}
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}

		return items[i].CreatedAt.After(items[j].CreatedAt)
	})

	return items, nil
}
