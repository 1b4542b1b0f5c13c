package models

import (
	"context"
	"time"
)

// Plan identifiers. Plans govern quota and pricing and are managed by the
// billing side, never by the review core.
const (
	PlanFree       = "FREE"
	PlanPro        = "PRO"
	PlanEnterprise = "ENTERPRISE"
)

// SubscriptionPlan represents a purchasable plan tier
type SubscriptionPlan struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	StripePriceID  string    `json:"stripe_price_id,omitempty"`
	PriceCents     int       `json:"price_cents"`
	Interval       string    `json:"interval"`
	MonthlyCredits int       `json:"monthly_credits"`
	Features       []string  `json:"features,omitempty"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// UserSubscription links a user to a plan and its Stripe counterpart
type UserSubscription struct {
	ID                   string    `json:"id"`
	UserID               string    `json:"user_id"`
	PlanID               string    `json:"plan_id"`
	Status               string    `json:"status"`
	StripeCustomerID     string    `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string    `json:"stripe_subscription_id,omitempty"`
	CurrentPeriodEnd     time.Time `json:"current_period_end"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// SubscriptionRepository manages plan and subscription records
type SubscriptionRepository interface {
	GetPlanByID(ctx context.Context, planID string) (SubscriptionPlan, error)
	GetPlanByStripeID(ctx context.Context, stripePriceID string) (SubscriptionPlan, error)
	ListPlans(ctx context.Context) ([]SubscriptionPlan, error)
	GetUserSubscription(ctx context.Context, userID string) (UserSubscription, error)
	UpsertUserSubscription(ctx context.Context, sub *UserSubscription) error
}
