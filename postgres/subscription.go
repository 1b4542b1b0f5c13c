package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/gosom/code-review-api/models"
)

// SubscriptionPlan and UserSubscription are aliases to models
type SubscriptionPlan = models.SubscriptionPlan
type UserSubscription = models.UserSubscription
type SubscriptionRepository = models.SubscriptionRepository

// subscriptionRepository implements SubscriptionRepository
type subscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository creates a new SubscriptionRepository
func NewSubscriptionRepository(db *sql.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

// GetPlanByID retrieves a subscription plan by ID
func (repo *subscriptionRepository) GetPlanByID(ctx context.Context, planID string) (SubscriptionPlan, error) {
	const q = `SELECT id, name, stripe_price_id, price_cents, interval, monthly_credits, features, active, created_at, updated_at
	           FROM subscription_plans WHERE id = $1`

	return repo.scanPlan(repo.db.QueryRowContext(ctx, q, planID))
}

// GetPlanByStripeID retrieves a subscription plan by Stripe price ID
func (repo *subscriptionRepository) GetPlanByStripeID(ctx context.Context, stripePriceID string) (SubscriptionPlan, error) {
	const q = `SELECT id, name, stripe_price_id, price_cents, interval, monthly_credits, features, active, created_at, updated_at
	           FROM subscription_plans WHERE stripe_price_id = $1`

	return repo.scanPlan(repo.db.QueryRowContext(ctx, q, stripePriceID))
}

// ListPlans returns all active plans ordered by price
func (repo *subscriptionRepository) ListPlans(ctx context.Context) ([]SubscriptionPlan, error) {
	const q = `SELECT id, name, stripe_price_id, price_cents, interval, monthly_credits, features, active, created_at, updated_at
	           FROM subscription_plans WHERE active = TRUE ORDER BY price_cents ASC`

	rows, err := repo.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []SubscriptionPlan

	for rows.Next() {
		plan, err := repo.scanPlanRows(rows)
		if err != nil {
			return nil, err
		}

		plans = append(plans, plan)
	}

	return plans, rows.Err()
}

// GetUserSubscription retrieves a user's subscription record
func (repo *subscriptionRepository) GetUserSubscription(ctx context.Context, userID string) (UserSubscription, error) {
	const q = `SELECT id, user_id, plan_id, status, COALESCE(stripe_customer_id, ''), COALESCE(stripe_subscription_id, ''), current_period_end, created_at, updated_at
	           FROM user_subscriptions WHERE user_id = $1`

	var sub UserSubscription

	err := repo.db.QueryRowContext(ctx, q, userID).Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.Status,
		&sub.StripeCustomerID, &sub.StripeSubscriptionID,
		&sub.CurrentPeriodEnd, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UserSubscription{}, errors.New("subscription not found")
		}

		return UserSubscription{}, err
	}

	return sub, nil
}

// UpsertUserSubscription creates or replaces a user's subscription record
func (repo *subscriptionRepository) UpsertUserSubscription(ctx context.Context, sub *UserSubscription) error {
	now := time.Now().UTC()
	if sub.ID == "" {
		sub.ID = uuid.New().String()
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	const q = `INSERT INTO user_subscriptions (id, user_id, plan_id, status, stripe_customer_id, stripe_subscription_id, current_period_end, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	           ON CONFLICT (user_id) DO UPDATE SET
	             plan_id = EXCLUDED.plan_id,
	             status = EXCLUDED.status,
	             stripe_customer_id = EXCLUDED.stripe_customer_id,
	             stripe_subscription_id = EXCLUDED.stripe_subscription_id,
	             current_period_end = EXCLUDED.current_period_end,
	             updated_at = EXCLUDED.updated_at`

	_, err := repo.db.ExecContext(ctx, q,
		sub.ID, sub.UserID, sub.PlanID, sub.Status,
		sub.StripeCustomerID, sub.StripeSubscriptionID,
		sub.CurrentPeriodEnd, sub.CreatedAt, sub.UpdatedAt,
	)

	return err
}

func (repo *subscriptionRepository) scanPlan(row *sql.Row) (SubscriptionPlan, error) {
	var (
		plan         SubscriptionPlan
		featuresJSON []byte
	)

	err := row.Scan(&plan.ID, &plan.Name, &plan.StripePriceID, &plan.PriceCents, &plan.Interval,
		&plan.MonthlyCredits, &featuresJSON, &plan.Active, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return SubscriptionPlan{}, errors.New("plan not found")
		}

		return SubscriptionPlan{}, err
	}

	if featuresJSON != nil {
		if err := json.Unmarshal(featuresJSON, &plan.Features); err != nil {
			return SubscriptionPlan{}, err
		}
	}

	return plan, nil
}

func (repo *subscriptionRepository) scanPlanRows(rows *sql.Rows) (SubscriptionPlan, error) {
	var (
		plan         SubscriptionPlan
		featuresJSON []byte
	)

	err := rows.Scan(&plan.ID, &plan.Name, &plan.StripePriceID, &plan.PriceCents, &plan.Interval,
		&plan.MonthlyCredits, &featuresJSON, &plan.Active, &plan.CreatedAt, &plan.UpdatedAt)
	if err != nil {
		return SubscriptionPlan{}, err
	}

	if featuresJSON != nil {
		if err := json.Unmarshal(featuresJSON, &plan.Features); err != nil {
			return SubscriptionPlan{}, err
		}
	}

	return plan, nil
}
