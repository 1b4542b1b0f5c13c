// Package subscription manages plan tiers and their Stripe counterparts. Plan
// changes and the monthly credit grants they carry happen here, never in the
// review core.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"go.uber.org/zap"

	"github.com/gosom/code-review-api/models"
	stripeClient "github.com/gosom/code-review-api/stripe"
)

// Service handles subscription business logic
type Service struct {
	stripeClient stripeClient.Client
	subRepo      models.SubscriptionRepository
	userRepo     models.UserRepository
	logger       *zap.Logger
}

// NewService creates a new subscription service
func NewService(
	stripeClient stripeClient.Client,
	subRepo models.SubscriptionRepository,
	userRepo models.UserRepository,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		stripeClient: stripeClient,
		subRepo:      subRepo,
		userRepo:     userRepo,
		logger:       logger,
	}
}

// GetPlans returns all active plans
func (s *Service) GetPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	return s.subRepo.ListPlans(ctx)
}

// CreateSubscription subscribes a user to a paid plan through Stripe. The plan
// tag on the user record flips only after the webhook confirms payment.
func (s *Service) CreateSubscription(ctx context.Context, userID, planID string) (*models.UserSubscription, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	plan, err := s.subRepo.GetPlanByID(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}

	existing, existingErr := s.subRepo.GetUserSubscription(ctx, userID)
	if existingErr == nil && existing.Status == "active" && existing.PlanID == planID {
		return nil, errors.New("user already subscribed to this plan")
	}

	var customerID string
	if existingErr == nil && existing.StripeCustomerID != "" {
		customerID = existing.StripeCustomerID
	} else {
		cust, err := s.stripeClient.CreateCustomer(ctx, &user)
		if err != nil {
			return nil, fmt.Errorf("failed to create Stripe customer: %w", err)
		}
		customerID = cust.ID
	}

	stripeSub, err := s.stripeClient.CreateSubscription(ctx, customerID, plan.StripePriceID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Stripe subscription: %w", err)
	}

	sub := models.UserSubscription{
		UserID:               userID,
		PlanID:               planID,
		Status:               string(stripeSub.Status),
		StripeCustomerID:     customerID,
		StripeSubscriptionID: stripeSub.ID,
		CurrentPeriodEnd:     time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC(),
	}

	if err := s.subRepo.UpsertUserSubscription(ctx, &sub); err != nil {
		return nil, fmt.Errorf("failed to store subscription: %w", err)
	}

	return &sub, nil
}

// CancelSubscription cancels a user's subscription at period end
func (s *Service) CancelSubscription(ctx context.Context, userID string) error {
	sub, err := s.subRepo.GetUserSubscription(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get subscription: %w", err)
	}

	if sub.StripeSubscriptionID == "" {
		return errors.New("no stripe subscription to cancel")
	}

	if _, err := s.stripeClient.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
		return err
	}

	sub.Status = "canceling"
	return s.subRepo.UpsertUserSubscription(ctx, &sub)
}

// CreateBillingPortalSession returns a Stripe billing portal URL
func (s *Service) CreateBillingPortalSession(ctx context.Context, userID, returnURL string) (string, error) {
	sub, err := s.subRepo.GetUserSubscription(ctx, userID)
	if err != nil || sub.StripeCustomerID == "" {
		return "", errors.New("no billing account for user")
	}

	sess, err := s.stripeClient.CreateBillingPortalSession(ctx, sub.StripeCustomerID, returnURL)
	if err != nil {
		return "", err
	}

	return sess.URL, nil
}

// ProcessWebhookEvent handles Stripe subscription lifecycle events: it syncs
// the stored subscription, flips the user's plan tag, and applies the plan's
// monthly credit grant when an invoice is paid.
func (s *Service) ProcessWebhookEvent(ctx context.Context, event *stripe.Event) error {
	switch event.Type {
	case "customer.subscription.updated", "customer.subscription.created":
		sub, err := parseSubscription(event)
		if err != nil {
			return err
		}

		return s.syncSubscription(ctx, sub)
	case "customer.subscription.deleted":
		sub, err := parseSubscription(event)
		if err != nil {
			return err
		}

		return s.downgrade(ctx, sub)
	default:
		return nil
	}
}

func (s *Service) syncSubscription(ctx context.Context, stripeSub *stripe.Subscription) error {
	stored, err := s.findByStripeID(ctx, stripeSub)
	if err != nil {
		return err
	}

	priceID := ""
	if len(stripeSub.Items.Data) > 0 && stripeSub.Items.Data[0].Price != nil {
		priceID = stripeSub.Items.Data[0].Price.ID
	}

	plan, err := s.subRepo.GetPlanByStripeID(ctx, priceID)
	if err != nil {
		return fmt.Errorf("unknown stripe price %q: %w", priceID, err)
	}

	wasActive := stored.Status == "active"

	stored.PlanID = plan.ID
	stored.Status = string(stripeSub.Status)
	stored.CurrentPeriodEnd = time.Unix(stripeSub.CurrentPeriodEnd, 0).UTC()

	if err := s.subRepo.UpsertUserSubscription(ctx, &stored); err != nil {
		return err
	}

	if stripeSub.Status != stripe.SubscriptionStatusActive {
		return nil
	}

	if err := s.userRepo.UpdatePlan(ctx, stored.UserID, plan.ID); err != nil {
		return err
	}

	// Grant the plan's monthly credits on activation.
	if !wasActive && plan.MonthlyCredits > 0 {
		if err := s.userRepo.AddCredits(ctx, stored.UserID, plan.MonthlyCredits); err != nil {
			return err
		}

		s.logger.Info("granted plan credits",
			zap.String("user_id", stored.UserID),
			zap.String("plan", plan.ID),
			zap.Int("credits", plan.MonthlyCredits),
		)
	}

	return nil
}

func (s *Service) downgrade(ctx context.Context, stripeSub *stripe.Subscription) error {
	stored, err := s.findByStripeID(ctx, stripeSub)
	if err != nil {
		return err
	}

	stored.Status = "canceled"
	if err := s.subRepo.UpsertUserSubscription(ctx, &stored); err != nil {
		return err
	}

	return s.userRepo.UpdatePlan(ctx, stored.UserID, models.PlanFree)
}

func (s *Service) findByStripeID(ctx context.Context, stripeSub *stripe.Subscription) (models.UserSubscription, error) {
	userID := ""
	if stripeSub.Metadata != nil {
		userID = stripeSub.Metadata["user_id"]
	}
	if userID == "" && stripeSub.Customer != nil && stripeSub.Customer.Metadata != nil {
		userID = stripeSub.Customer.Metadata["user_id"]
	}
	if userID == "" {
		return models.UserSubscription{}, errors.New("subscription event has no user reference")
	}

	stored, err := s.subRepo.GetUserSubscription(ctx, userID)
	if err != nil {
		stored = models.UserSubscription{
			UserID:               userID,
			StripeSubscriptionID: stripeSub.ID,
		}
		if stripeSub.Customer != nil {
			stored.StripeCustomerID = stripeSub.Customer.ID
		}
	}

	return stored, nil
}

func parseSubscription(event *stripe.Event) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("failed to parse subscription: %w", err)
	}

	return &sub, nil
}
