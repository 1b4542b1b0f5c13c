package services

import (
	"context"

	"github.com/gosom/code-review-api/models"
)

// CreditService encapsulates credit-related read operations.
type CreditService struct {
	users models.UserRepository
}

func NewCreditService(users models.UserRepository) *CreditService {
	return &CreditService{users: users}
}

// GetBalance returns credit balance info for a user.
func (s *CreditService) GetBalance(ctx context.Context, userID string) (models.CreditBalanceResponse, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.CreditBalanceResponse{}, err
	}

	return models.CreditBalanceResponse{
		UserID:  user.ID,
		Credits: user.Credits,
		Plan:    user.Plan,
	}, nil
}
