// Package handlers contains the HTTP handlers for the JSON API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/gosom/code-review-api/billing"
	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/review"
	"github.com/gosom/code-review-api/subscription"
	"github.com/gosom/code-review-api/tlmt"
	"github.com/gosom/code-review-api/tlmt/gonoop"
	"github.com/gosom/code-review-api/web/services"
)

// Dependencies aggregates shared services used by handlers.
type Dependencies struct {
	Logger          *zap.Logger
	Reviews         *review.Service
	CreditSvc       *services.CreditService
	BillingSvc      *billing.Service
	SubscriptionSvc *subscription.Service
	Telemetry       tlmt.Telemetry
}

// HandlerGroup groups all handler categories for routing setup.
type HandlerGroup struct {
	API     *APIHandlers
	Billing *BillingHandlers
}

// NewHandlerGroup constructs a HandlerGroup with initialized handlers.
func NewHandlerGroup(deps Dependencies) *HandlerGroup {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Telemetry == nil {
		deps.Telemetry = gonoop.New()
	}

	return &HandlerGroup{
		API:     &APIHandlers{Deps: deps},
		Billing: &BillingHandlers{Deps: deps},
	}
}

// APIHandlers contains routes for the authenticated review API.
type APIHandlers struct{ Deps Dependencies }

// BillingHandlers contains routes for billing and webhooks.
type BillingHandlers struct{ Deps Dependencies }

func renderJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

func renderError(w http.ResponseWriter, code int, reason string) {
	renderJSON(w, code, models.APIError{Code: code, Message: reason, Error: reason})
}

// renderReviewError maps the review error taxonomy onto HTTP statuses. The
// short machine-readable reason is surfaced; internal store details are not.
func renderReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrUnauthenticated):
		renderError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, review.ErrInvalidInput):
		renderError(w, http.StatusBadRequest, "Missing required fields")
	case errors.Is(err, review.ErrNotFound):
		renderError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, review.ErrInsufficientCredits):
		renderError(w, http.StatusForbidden, "Insufficient credits")
	case errors.Is(err, review.ErrGenerationFailed):
		renderError(w, http.StatusInternalServerError, "Feedback generation failed")
	case errors.Is(err, review.ErrStoreUnavailable):
		renderError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		renderError(w, http.StatusInternalServerError, "Internal server error")
	}
}
