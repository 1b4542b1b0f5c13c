package models

import "time"

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// request for submitting a review
type ReviewRequest struct {
	Title    string `json:"title"`
	Language string `json:"language"`
	Code     string `json:"code"`
}

// response for a successful review submission
type ReviewResponse struct {
	Feedback string `json:"feedback"`
	ReviewID string `json:"reviewId"`
}

// summary item for review history listings (code and feedback omitted)
type ReviewSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Language  string    `json:"language"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

// response for credits balance
type CreditBalanceResponse struct {
	UserID  string `json:"user_id"`
	Credits int    `json:"credits"`
	Plan    string `json:"plan"`
}

// response for the profile/dashboard read model
type ProfileResponse struct {
	User         User `json:"user"`
	TotalReviews int  `json:"total_reviews"`
}

type CheckoutSessionRequest struct {
	Credits  string `json:"credits"`
	Currency string `json:"currency"`
}

type CheckoutSessionResponse struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// request for reconciling a session
type ReconcileRequest struct {
	SessionID string `json:"session_id"`
}

// request for subscribing to a plan
type SubscribeRequest struct {
	PlanID string `json:"plan_id"`
}

type BillingPortalRequest struct {
	ReturnURL string `json:"return_url"`
}

type BillingPortalResponse struct {
	URL string `json:"url"`
}
