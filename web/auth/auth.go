// Package auth handles Clerk authentication and request identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/clerkinc/clerk-sdk-go/clerk"
	"go.uber.org/zap"

	"github.com/gosom/code-review-api/models"
)

// ContextKey is used to store user information in the request context
type ContextKey string

const (
	// UserIDKey is the context key for storing the user ID
	UserIDKey ContextKey = "user_id"
	// UserEmailKey is the context key for storing the verified email
	UserEmailKey ContextKey = "user_email"
	// AuthHeaderName is the name of the authentication header
	AuthHeaderName = "Authorization"
)

// Middleware verifies Clerk session tokens and provisions a user record on
// first sign-in. The verified email is the caller identity trusted by the
// review core; credentials themselves are Clerk's concern.
type Middleware struct {
	client        clerk.Client
	userRepo      models.UserRepository
	signupCredits int
	logger        *zap.Logger
}

// NewMiddleware creates a new auth Middleware
func NewMiddleware(clerkAPIKey string, userRepo models.UserRepository, signupCredits int, logger *zap.Logger) (*Middleware, error) {
	client, err := clerk.NewClient(clerkAPIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create Clerk client: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Middleware{
		client:        client,
		userRepo:      userRepo,
		signupCredits: signupCredits,
		logger:        logger,
	}, nil
}

// Authenticate is the middleware function for authentication
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get(AuthHeaderName)
		if authHeader == "" {
			http.Error(w, "Unauthorized: missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Unauthorized: invalid authorization format", http.StatusUnauthorized)
			return
		}

		claims, err := m.client.VerifyToken(parts[1])
		if err != nil {
			m.logger.Debug("token verification failed",
				zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		userID := claims.Subject
		if userID == "" {
			http.Error(w, "Unauthorized: invalid user claims", http.StatusUnauthorized)
			return
		}

		user, err := m.userRepo.GetByID(r.Context(), userID)
		if err != nil {
			if !errors.Is(err, models.ErrUserNotFound) {
				http.Error(w, "Failed to load user record", http.StatusInternalServerError)
				return
			}

			user, err = m.provision(r.Context(), userID)
			if err != nil {
				m.logger.Error("first sign-in provisioning failed",
					zap.String("user_id", userID), zap.Error(err))
				http.Error(w, "Failed to create user record", http.StatusInternalServerError)
				return
			}
		}

		ctx := context.WithValue(r.Context(), UserIDKey, user.ID)
		ctx = context.WithValue(ctx, UserEmailKey, user.Email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// provision creates the user row on first sign-in: FREE plan plus the signup
// credit grant. Exactly once per identity; a concurrent duplicate insert loses
// on the unique email constraint and re-reads the winner's row.
func (m *Middleware) provision(ctx context.Context, userID string) (models.User, error) {
	clerkUser, err := m.client.Users().Read(userID)
	if err != nil {
		return models.User{}, fmt.Errorf("failed to read clerk user: %w", err)
	}

	var email string
	if clerkUser.PrimaryEmailAddressID != nil {
		primaryID := *clerkUser.PrimaryEmailAddressID
		for _, emailAddr := range clerkUser.EmailAddresses {
			if emailAddr.ID == primaryID {
				email = emailAddr.EmailAddress
				break
			}
		}
	}
	if email == "" && len(clerkUser.EmailAddresses) > 0 {
		email = clerkUser.EmailAddresses[0].EmailAddress
	}
	if email == "" {
		return models.User{}, errors.New("user has no email address")
	}

	user := models.User{
		ID:      userID,
		Email:   email,
		Plan:    models.PlanFree,
		Credits: m.signupCredits,
	}

	if err := m.userRepo.Create(ctx, &user); err != nil {
		existing, getErr := m.userRepo.GetByEmail(ctx, email)
		if getErr == nil {
			return existing, nil
		}

		return models.User{}, err
	}

	m.logger.Info("provisioned new user",
		zap.String("user_id", userID), zap.String("plan", user.Plan))

	return user, nil
}

// GetUserID extracts the user ID from the request context
func GetUserID(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(UserIDKey).(string)
	if !ok || userID == "" {
		return "", errors.New("user not authenticated")
	}

	return userID, nil
}

// GetUserEmail extracts the verified caller email from the request context
func GetUserEmail(ctx context.Context) (string, error) {
	email, ok := ctx.Value(UserEmailKey).(string)
	if !ok || email == "" {
		return "", errors.New("user not authenticated")
	}

	return email, nil
}
