// Package billing handles credit purchases through Stripe Checkout. It is the
// only writer that increases a user's credit balance; the review core only
// ever debits.
package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v81"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/gosom/code-review-api/config"
)

type Service struct {
	db                *sql.DB
	cfg               *config.Service
	stripeSecretKey   string
	webhookSigningKey string
}

type CheckoutRequest struct {
	UserID   string
	Credits  string
	Currency string
}

type CheckoutResponse struct {
	SessionID string
	URL       string
}

func New(db *sql.DB, cfg *config.Service, stripeSecretKey, webhookSigningKey string) *Service {
	return &Service{db: db, cfg: cfg, stripeSecretKey: stripeSecretKey, webhookSigningKey: webhookSigningKey}
}

// CreateCheckoutSession creates a Stripe Checkout Session for purchasing credits.
func (s *Service) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutResponse, error) {
	if req.UserID == "" {
		return CheckoutResponse{}, fmt.Errorf("missing user id")
	}
	if req.Currency != "USD" && req.Currency != "EUR" {
		return CheckoutResponse{}, fmt.Errorf("unsupported currency")
	}

	credits, err := strconv.Atoi(req.Credits)
	if err != nil || credits <= 0 {
		return CheckoutResponse{}, fmt.Errorf("credits must be a positive whole number")
	}

	unitPriceCents, err := s.cfg.GetInt(ctx, "credit_unit_price_cents", 50)
	if err != nil {
		return CheckoutResponse{}, fmt.Errorf("failed to get pricing: %w", err)
	}

	stripe.Key = s.stripeSecretKey

	successURL, _ := s.cfg.GetString(ctx, "stripe_success_url", "https://example.com/success?session_id={CHECKOUT_SESSION_ID}")
	cancelURL, _ := s.cfg.GetString(ctx, "stripe_cancel_url", "https://example.com/cancel")

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Review Credits"),
					},
					UnitAmount: stripe.Int64(int64(unitPriceCents)),
				},
				Quantity: stripe.Int64(int64(credits)),
			},
		},
		Metadata: map[string]string{
			"user_id":  req.UserID,
			"credits":  strconv.Itoa(credits),
			"currency": req.Currency,
		},
	}

	sess, err := checkoutsession.New(params)
	if err != nil {
		return CheckoutResponse{}, fmt.Errorf("failed to create checkout session: %w", err)
	}

	const ins = `INSERT INTO stripe_payments (user_id, stripe_checkout_session_id, amount_cents, currency, credits_purchased, status)
                 VALUES ($1, $2, $3, $4, $5, 'pending') ON CONFLICT (stripe_checkout_session_id) DO NOTHING`
	_, _ = s.db.ExecContext(ctx, ins, req.UserID, sess.ID, unitPriceCents*credits, req.Currency, credits)

	return CheckoutResponse{SessionID: sess.ID, URL: sess.URL}, nil
}

// VerifyEvent authenticates a webhook payload against the signing key and
// returns the parsed event. API version drift between Stripe and the SDK is
// tolerated; an invalid signature is not.
func (s *Service) VerifyEvent(payload []byte, signatureHeader string) (*stripe.Event, error) {
	if s.webhookSigningKey == "" {
		return nil, errors.New("webhook signing key not configured")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, s.webhookSigningKey,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("invalid signature: %w", err)
	}

	return &event, nil
}

// ProcessEvent handles checkout lifecycle events, crediting user accounts on
// successful payment. Returns the HTTP status to respond with. Subscription
// lifecycle events are the subscription service's concern, not handled here.
func (s *Service) ProcessEvent(ctx context.Context, event *stripe.Event) (int, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return 400, fmt.Errorf("failed to parse session: %w", err)
		}

		if err := s.applyCredits(ctx, session.ID, session.Metadata, "Stripe purchase"); err != nil {
			return 500, err
		}

		return 200, nil
	case "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return 400, fmt.Errorf("failed to parse session: %w", err)
		}

		const upd = `UPDATE stripe_payments SET status='canceled', updated_at=NOW() WHERE stripe_checkout_session_id=$1`
		_, _ = s.db.ExecContext(ctx, upd, session.ID)

		return 200, nil
	default:
		return 200, nil
	}
}

// ReconcileSession fetches a Checkout Session from Stripe and applies credits
// if paid. Used when a webhook delivery was missed.
func (s *Service) ReconcileSession(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("missing session id")
	}

	stripe.Key = s.stripeSecretKey

	sess, err := checkoutsession.Get(sessionID, nil)
	if err != nil {
		return fmt.Errorf("failed to fetch session: %w", err)
	}

	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return fmt.Errorf("session not paid")
	}

	return s.applyCredits(ctx, sessionID, sess.Metadata, "Stripe purchase (reconcile)")
}

// applyCredits grants the purchased credits in a transaction, idempotently per
// checkout session: the status flip from pending guards against double grants.
func (s *Service) applyCredits(ctx context.Context, sessionID string, metadata map[string]string, description string) error {
	var (
		userID  string
		credits int
		status  string
	)

	const sel = `SELECT user_id, credits_purchased, status FROM stripe_payments WHERE stripe_checkout_session_id=$1 LIMIT 1`
	err := s.db.QueryRowContext(ctx, sel, sessionID).Scan(&userID, &credits, &status)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	if status == "succeeded" {
		return nil
	}

	// Fallback to session metadata when the pending row is missing
	if userID == "" && metadata != nil {
		userID = metadata["user_id"]
		credits, _ = strconv.Atoi(metadata["credits"])
	}

	if userID == "" || credits <= 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// The status guard makes the grant idempotent per session even when a
	// webhook and a reconcile race.
	const updPay = `UPDATE stripe_payments SET status='succeeded', completed_at=NOW()
	                WHERE stripe_checkout_session_id=$1 AND status <> 'succeeded'`
	res, err := tx.ExecContext(ctx, updPay, sessionID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	const updUser = `UPDATE users SET credits = credits + $1, updated_at=NOW() WHERE id=$2`
	if _, err := tx.ExecContext(ctx, updUser, credits, userID); err != nil {
		return err
	}

	const insTxn = `INSERT INTO credit_transactions (user_id, type, amount, description, reference_id, reference_type)
	                VALUES ($1, 'purchase', $2, $3, $4, 'payment')`
	if _, err := tx.ExecContext(ctx, insTxn, userID, credits, description, sessionID); err != nil {
		return err
	}

	return tx.Commit()
}
