package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/review"
	"github.com/gosom/code-review-api/tlmt"
	"github.com/gosom/code-review-api/web/auth"
)

// SubmitReview handles POST /api/v1/review.
func (h *APIHandlers) SubmitReview(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.GetUserEmail(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.ReviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	t0 := time.Now().UTC()

	result, err := h.Deps.Reviews.Submit(r.Context(), identity, review.SubmitInput{
		Title:    req.Title,
		Language: req.Language,
		Code:     req.Code,
	})
	if err != nil {
		h.Deps.Logger.Debug("review submission rejected",
			zap.String("identity", identity), zap.Error(err))
		renderReviewError(w, err)
		return
	}

	_ = h.Deps.Telemetry.Send(r.Context(), tlmt.NewEvent("review_submission", map[string]any{
		"language": req.Language,
		"duration": time.Now().UTC().Sub(t0).String(),
	}))

	renderJSON(w, http.StatusOK, models.ReviewResponse{
		Feedback: result.Feedback,
		ReviewID: result.ReviewID,
	})
}

// ListReviews handles GET /api/v1/reviews.
func (h *APIHandlers) ListReviews(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.GetUserEmail(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	reviews, err := h.Deps.Reviews.History(r.Context(), identity)
	if err != nil {
		renderReviewError(w, err)
		return
	}

	items := make([]models.ReviewSummary, 0, len(reviews))
	for _, rec := range reviews {
		items = append(items, models.ReviewSummary{
			ID:        rec.ID,
			Title:     rec.Title,
			Language:  rec.Language,
			Status:    rec.Status,
			CreatedAt: rec.CreatedAt,
		})
	}

	renderJSON(w, http.StatusOK, items)
}

// GetReview handles GET /api/v1/reviews/{id}.
func (h *APIHandlers) GetReview(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.GetUserEmail(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	id := mux.Vars(r)["id"]

	rec, err := h.Deps.Reviews.Get(r.Context(), identity, id)
	if err != nil {
		renderReviewError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, rec)
}

// GetCreditBalance handles GET /api/v1/credits/balance.
func (h *APIHandlers) GetCreditBalance(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	resp, err := h.Deps.CreditSvc.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			renderError(w, http.StatusNotFound, "Not found")
			return
		}

		renderError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	renderJSON(w, http.StatusOK, resp)
}

// GetProfile handles GET /api/v1/me.
func (h *APIHandlers) GetProfile(w http.ResponseWriter, r *http.Request) {
	identity, err := auth.GetUserEmail(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, total, err := h.Deps.Reviews.Profile(r.Context(), identity)
	if err != nil {
		renderReviewError(w, err)
		return
	}

	renderJSON(w, http.StatusOK, models.ProfileResponse{User: user, TotalReviews: total})
}

// Health handles GET /health.
func (h *APIHandlers) Health(w http.ResponseWriter, _ *http.Request) {
	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
