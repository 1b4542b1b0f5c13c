package subscription_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"

	"github.com/gosom/code-review-api/models"
	"github.com/gosom/code-review-api/subscription"
	"github.com/gosom/code-review-api/web/memory"
)

type fakeSubRepo struct {
	plans map[string]models.SubscriptionPlan
	subs  map[string]models.UserSubscription
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{
		plans: map[string]models.SubscriptionPlan{
			models.PlanPro: {
				ID:             models.PlanPro,
				Name:           "Pro Plan",
				StripePriceID:  "price_pro",
				PriceCents:     1900,
				MonthlyCredits: 100,
				Active:         true,
			},
		},
		subs: map[string]models.UserSubscription{},
	}
}

func (r *fakeSubRepo) GetPlanByID(_ context.Context, planID string) (models.SubscriptionPlan, error) {
	plan, ok := r.plans[planID]
	if !ok {
		return models.SubscriptionPlan{}, errors.New("plan not found")
	}

	return plan, nil
}

func (r *fakeSubRepo) GetPlanByStripeID(_ context.Context, priceID string) (models.SubscriptionPlan, error) {
	for _, plan := range r.plans {
		if plan.StripePriceID == priceID {
			return plan, nil
		}
	}

	return models.SubscriptionPlan{}, errors.New("plan not found")
}

func (r *fakeSubRepo) ListPlans(_ context.Context) ([]models.SubscriptionPlan, error) {
	var plans []models.SubscriptionPlan
	for _, plan := range r.plans {
		plans = append(plans, plan)
	}

	return plans, nil
}

func (r *fakeSubRepo) GetUserSubscription(_ context.Context, userID string) (models.UserSubscription, error) {
	sub, ok := r.subs[userID]
	if !ok {
		return models.UserSubscription{}, errors.New("subscription not found")
	}

	return sub, nil
}

func (r *fakeSubRepo) UpsertUserSubscription(_ context.Context, sub *models.UserSubscription) error {
	r.subs[sub.UserID] = *sub

	return nil
}

type fakeStripeClient struct{}

func (fakeStripeClient) CreateCustomer(_ context.Context, user *models.User) (*stripe.Customer, error) {
	return &stripe.Customer{ID: "cus_" + user.ID}, nil
}

func (fakeStripeClient) CreateSubscription(_ context.Context, customerID, priceID string) (*stripe.Subscription, error) {
	return &stripe.Subscription{
		ID:               "sub_new",
		Status:           stripe.SubscriptionStatusIncomplete,
		CurrentPeriodEnd: time.Now().Add(30 * 24 * time.Hour).Unix(),
	}, nil
}

func (fakeStripeClient) CancelSubscription(_ context.Context, subscriptionID string) (*stripe.Subscription, error) {
	return &stripe.Subscription{ID: subscriptionID, Status: stripe.SubscriptionStatusActive}, nil
}

func (fakeStripeClient) CreateBillingPortalSession(_ context.Context, customerID, returnURL string) (*stripe.BillingPortalSession, error) {
	return &stripe.BillingPortalSession{URL: "https://billing.example.com/session"}, nil
}

func (fakeStripeClient) VerifyWebhook(_ []byte, _, _ string) (*stripe.Event, error) {
	return nil, errors.New("not implemented")
}

func subscriptionEvent(t *testing.T, eventType, userID, status string) *stripe.Event {
	t.Helper()

	raw := fmt.Sprintf(`{
		"id": "sub_1",
		"status": %q,
		"customer": "cus_1",
		"metadata": {"user_id": %q},
		"current_period_end": 1893456000,
		"items": {"data": [{"price": {"id": "price_pro"}}]}
	}`, status, userID)

	return &stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func newUserStore(t *testing.T) (*memory.Store, models.User) {
	t.Helper()

	store := memory.New()
	user := models.User{ID: "user_1", Email: "a@example.com", Plan: models.PlanFree, Credits: 3}
	require.NoError(t, store.Users().Create(context.Background(), &user))

	return store, user
}

func TestProcessWebhookEventActivation(t *testing.T) {
	ctx := context.Background()
	store, user := newUserStore(t)
	subRepo := newFakeSubRepo()

	svc := subscription.NewService(fakeStripeClient{}, subRepo, store.Users(), nil)

	event := subscriptionEvent(t, "customer.subscription.updated", user.ID, "active")
	require.NoError(t, svc.ProcessWebhookEvent(ctx, event))

	after, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanPro, after.Plan)
	assert.Equal(t, 103, after.Credits, "activation grants the plan's monthly credits")

	stored, err := subRepo.GetUserSubscription(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "active", stored.Status)
	assert.Equal(t, models.PlanPro, stored.PlanID)

	// a redelivered event must not grant credits again
	require.NoError(t, svc.ProcessWebhookEvent(ctx, event))

	again, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 103, again.Credits)
}

func TestProcessWebhookEventDeleted(t *testing.T) {
	ctx := context.Background()
	store, user := newUserStore(t)
	subRepo := newFakeSubRepo()

	svc := subscription.NewService(fakeStripeClient{}, subRepo, store.Users(), nil)

	require.NoError(t, svc.ProcessWebhookEvent(ctx, subscriptionEvent(t, "customer.subscription.created", user.ID, "active")))
	require.NoError(t, svc.ProcessWebhookEvent(ctx, subscriptionEvent(t, "customer.subscription.deleted", user.ID, "canceled")))

	after, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, after.Plan)

	stored, err := subRepo.GetUserSubscription(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "canceled", stored.Status)
}

func TestProcessWebhookEventIgnoresUnrelatedTypes(t *testing.T) {
	ctx := context.Background()
	store, user := newUserStore(t)

	svc := subscription.NewService(fakeStripeClient{}, newFakeSubRepo(), store.Users(), nil)

	event := &stripe.Event{Type: "invoice.created", Data: &stripe.EventData{Raw: json.RawMessage(`{}`)}}
	require.NoError(t, svc.ProcessWebhookEvent(ctx, event))

	after, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, after.Plan)
	assert.Equal(t, 3, after.Credits)
}

func TestCreateSubscription(t *testing.T) {
	ctx := context.Background()
	store, user := newUserStore(t)
	subRepo := newFakeSubRepo()

	svc := subscription.NewService(fakeStripeClient{}, subRepo, store.Users(), nil)

	sub, err := svc.CreateSubscription(ctx, user.ID, models.PlanPro)
	require.NoError(t, err)
	assert.Equal(t, "sub_new", sub.StripeSubscriptionID)
	assert.Equal(t, "cus_"+user.ID, sub.StripeCustomerID)
	assert.Equal(t, string(stripe.SubscriptionStatusIncomplete), sub.Status)

	// the plan flips only when the webhook reports the subscription active
	after, err := store.Users().GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PlanFree, after.Plan)
}

func TestCreateBillingPortalSession(t *testing.T) {
	ctx := context.Background()
	store, user := newUserStore(t)
	subRepo := newFakeSubRepo()
	subRepo.subs[user.ID] = models.UserSubscription{UserID: user.ID, StripeCustomerID: "cus_1", Status: "active", PlanID: models.PlanPro}

	svc := subscription.NewService(fakeStripeClient{}, subRepo, store.Users(), nil)

	url, err := svc.CreateBillingPortalSession(ctx, user.ID, "https://app.example.com/account")
	require.NoError(t, err)
	assert.Equal(t, "https://billing.example.com/session", url)
}
