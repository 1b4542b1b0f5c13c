package models

import "errors"

// Sentinel errors shared by all repository implementations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrReviewNotFound      = errors.New("review not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrInsufficientCredits = errors.New("insufficient credits")
)
