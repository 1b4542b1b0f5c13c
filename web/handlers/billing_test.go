package handlers_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/gosom/code-review-api/billing"
	"github.com/gosom/code-review-api/config"
	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/subscription"
	"github.com/gosom/code-review-api/web/handlers"
	"github.com/gosom/code-review-api/web/memory"
)

const webhookSecret = "whsec_test"

type stubSubRepo struct {
	plans map[string]models.SubscriptionPlan
	subs  map[string]models.UserSubscription
}

func newStubSubRepo() *stubSubRepo {
	return &stubSubRepo{
		plans: map[string]models.SubscriptionPlan{
			models.PlanPro: {
				ID:             models.PlanPro,
				Name:           "Pro Plan",
				StripePriceID:  "price_pro",
				MonthlyCredits: 100,
				Active:         true,
			},
		},
		subs: map[string]models.UserSubscription{},
	}
}

func (r *stubSubRepo) GetPlanByID(_ context.Context, planID string) (models.SubscriptionPlan, error) {
	plan, ok := r.plans[planID]
	if !ok {
		return models.SubscriptionPlan{}, errors.New("plan not found")
	}

	return plan, nil
}

func (r *stubSubRepo) GetPlanByStripeID(_ context.Context, priceID string) (models.SubscriptionPlan, error) {
	for _, plan := range r.plans {
		if plan.StripePriceID == priceID {
			return plan, nil
		}
	}

	return models.SubscriptionPlan{}, errors.New("plan not found")
}

func (r *stubSubRepo) ListPlans(_ context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}

	return plans, nil
}

func (r *stubSubRepo) GetUserSubscription(_ context.Context, userID string) (models.UserSubscription, error) {
	sub, ok := r.subs[userID]
	if !ok {
		return models.UserSubscription{}, errors.New("subscription not found")
	}

	return sub, nil
}

func (r *stubSubRepo) UpsertUserSubscription(_ context.Context, sub *models.UserSubscription) error {
	r.subs[sub.UserID] = *sub

	return nil
}

type stubStripe struct{}

func (stubStripe) CreateCustomer(_ context.Context, user *models.User) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_" + user.ID}, nil
}

func (stubStripe) CreateSubscription(_ context.Context, _, _ string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: "sub_new", Status: stripe.SubscriptionStatusIncomplete}, nil
}

func (stubStripe) CancelSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: id}, nil
}

func (stubStripe) CreateBillingPortalSession(_ context.Context, _, _ string) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://billing.example.com/session"}, nil
}

func (stubStripe) VerifyWebhook(_ []byte, _, _ string) (*stripe.Event, error) {
	return nil, errors.New("not implemented")
}

// signPayload produces a Stripe-Signature header for the payload, the same
// scheme stripe-go verifies: HMAC-SHA256 over "<timestamp>.<payload>".
func signPayload(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)

	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type webhookFixture struct {
	group *handlers.HandlerGroup
	store *memory.Store
	user  models.User
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()

	store := memory.New()
	user := models.User{ID: "user_1", Email: "a@example.com", Plan: models.PlanFree, Credits: 3}
	require.NoError(t, store.Users().Create(context.Background(), &user))

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		BillingSvc:      billing.New(nil, config.New(nil), "sk_test", webhookSecret),
		SubscriptionSvc: subscription.NewService(stubStripe{}, newStubSubRepo(), store.Users(), nil),
	})

	return &webhookFixture{group: group, store: store, user: user}
}

func postWebhook(t *testing.T, f *webhookFixture, payload []byte, signature string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()

	f.group.Billing.StripeWebhook(rec, req)

	return rec
}

func TestStripeWebhookSubscriptionEventUpdatesPlan(t *testing.T) {
	f := newWebhookFixture(t)

	payload := []byte(`{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_1",
			"status": "active",
			"customer": "cus_1",
			"metadata": {"user_id": "user_1"},
			"current_period_end": 1893456000,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}}
	}`)

	rec := postWebhook(t, f, payload, signPayload(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)

	after, err := f.store.Users().GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, after.Plan)
	assert.Equal(t, 103, after.Credits)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture(t)

	payload := []byte(`{"id": "evt_1", "type": "customer.subscription.updated", "data": {"object": {}}}`)

	rec := postWebhook(t, f, payload, signPayload(payload, "whsec_wrong"))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	after, err := f.store.Users().GetByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, after.Plan)
}

func TestStripeWebhookIgnoresUnknownEventTypes(t *testing.T) {
	f := newWebhookFixture(t)

	payload := []byte(`{"id": "evt_1", "type": "invoice.created", "data": {"object": {}}}`)

	rec := postWebhook(t, f, payload, signPayload(payload, webhookSecret))
	require.Equal(t, http.StatusOK, rec.Code)
}
