package review

import "errors"

var (
	// ErrUnauthenticated is returned when no caller identity is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotFound is returned when the identity has no backing user record,
	// or a requested review does not exist for the caller.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput is returned when title, language, or code is empty.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInsufficientCredits is returned when the caller has no spendable
	// credit. No partial effect is observable.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrGenerationFailed is returned when the feedback generator fails.
	// No credit is debited.
	ErrGenerationFailed = errors.New("feedback generation failed")
	// ErrStoreUnavailable wraps transient store failures. It is the only
	// error in the taxonomy that is safe to retry unchanged.
	ErrStoreUnavailable = errors.New("store unavailable")
)
