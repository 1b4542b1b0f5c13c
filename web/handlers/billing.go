package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/gosom/code-review-api/billing"
	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/web/auth"
)

// GetPlans handles GET /api/v1/plans.
func (h *BillingHandlers) GetPlans(w http.ResponseWriter, r *http.Request) {
	if h.Deps.SubscriptionSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	plans, err := h.Deps.SubscriptionSvc.GetPlans(r.Context())
	if err != nil {
		renderError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	renderJSON(w, http.StatusOK, plans)
}

// CreateCheckoutSession handles POST /api/v1/billing/checkout.
func (h *BillingHandlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	if h.Deps.BillingSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.CheckoutSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		renderError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	resp, err := h.Deps.BillingSvc.CreateCheckoutSession(r.Context(), billing.CheckoutRequest{
		UserID:   userID,
		Credits:  req.Credits,
		Currency: req.Currency,
	})
	if err != nil {
		renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	renderJSON(w, http.StatusOK, models.CheckoutSessionResponse{
		SessionID: resp.SessionID,
		URL:       resp.URL,
	})
}

// Reconcile handles POST /api/v1/billing/reconcile.
func (h *BillingHandlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	if h.Deps.BillingSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	if _, err := auth.GetUserID(r.Context()); err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		renderError(w, http.StatusBadRequest, "Missing session id")
		return
	}

	if err := h.Deps.BillingSvc.ReconcileSession(r.Context(), req.SessionID); err != nil {
		h.Deps.Logger.Warn("reconcile failed", zap.String("session_id", req.SessionID), zap.Error(err))
		renderError(w, http.StatusBadRequest, "Reconcile failed")
		return
	}

	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateSubscription handles POST /api/v1/subscriptions.
func (h *BillingHandlers) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if h.Deps.SubscriptionSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlanID == "" {
		renderError(w, http.StatusBadRequest, "Missing plan id")
		return
	}

	sub, err := h.Deps.SubscriptionSvc.CreateSubscription(r.Context(), userID, req.PlanID)
	if err != nil {
		h.Deps.Logger.Warn("subscription create failed",
			zap.String("user_id", userID), zap.String("plan_id", req.PlanID), zap.Error(err))
		renderError(w, http.StatusBadRequest, err.Error())
		return
	}

	renderJSON(w, http.StatusOK, sub)
}

// CancelSubscription handles DELETE /api/v1/subscriptions.
func (h *BillingHandlers) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if h.Deps.SubscriptionSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if err := h.Deps.SubscriptionSvc.CancelSubscription(r.Context(), userID); err != nil {
		h.Deps.Logger.Warn("subscription cancel failed", zap.String("user_id", userID), zap.Error(err))
		renderError(w, http.StatusBadRequest, "Cancel failed")
		return
	}

	renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CreateBillingPortalSession handles POST /api/v1/billing/portal.
func (h *BillingHandlers) CreateBillingPortalSession(w http.ResponseWriter, r *http.Request) {
	if h.Deps.SubscriptionSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	userID, err := auth.GetUserID(r.Context())
	if err != nil {
		renderError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req models.BillingPortalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ReturnURL == "" {
		renderError(w, http.StatusBadRequest, "Missing return url")
		return
	}

	url, err := h.Deps.SubscriptionSvc.CreateBillingPortalSession(r.Context(), userID, req.ReturnURL)
	if err != nil {
		renderError(w, http.StatusBadRequest, "No billing account")
		return
	}

	renderJSON(w, http.StatusOK, models.BillingPortalResponse{URL: url})
}

// StripeWebhook handles POST /webhooks/stripe. The route is unauthenticated;
// the payload signature is the authentication. Checkout events credit accounts
// through the billing service; subscription lifecycle events sync the user's
// plan through the subscription service.
func (h *BillingHandlers) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.Deps.BillingSvc == nil {
		renderError(w, http.StatusServiceUnavailable, "Billing not configured")
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		renderError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	event, err := h.Deps.BillingSvc.VerifyEvent(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.Deps.Logger.Warn("stripe webhook rejected", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if strings.HasPrefix(string(event.Type), "customer.subscription.") {
		if h.Deps.SubscriptionSvc == nil {
			w.WriteHeader(http.StatusOK)
			return
		}

		if err := h.Deps.SubscriptionSvc.ProcessWebhookEvent(r.Context(), event); err != nil {
			h.Deps.Logger.Warn("subscription event failed",
				zap.String("event_type", string(event.Type)), zap.Error(err))
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
		return
	}

	status, err := h.Deps.BillingSvc.ProcessEvent(r.Context(), event)
	if err != nil {
		h.Deps.Logger.Warn("checkout event failed", zap.Int("status", status), zap.Error(err))
	}

	w.WriteHeader(status)
}
