// Package web wires the HTTP surface: routes, middleware, and server lifecycle.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/gosom/code-review-api/web/auth"
	"github.com/gosom/code-review-api/web/handlers"
	"github.com/gosom/code-review-api/web/middleware"
)

type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

// New builds the router. Authenticated routes sit behind the Clerk middleware;
// the health check and the Stripe webhook do not.
func New(addr string, group *handlers.HandlerGroup, authmw *auth.Middleware, logger *zap.Logger) *Server {
	r := mux.NewRouter()

	r.HandleFunc("/health", group.API.Health).Methods(http.MethodGet)
	r.HandleFunc("/webhooks/stripe", group.Billing.StripeWebhook).Methods(http.MethodPost)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authmw.Authenticate)
	api.HandleFunc("/review", group.API.SubmitReview).Methods(http.MethodPost)
	api.HandleFunc("/reviews", group.API.ListReviews).Methods(http.MethodGet)
	api.HandleFunc("/reviews/{id}", group.API.GetReview).Methods(http.MethodGet)
	api.HandleFunc("/credits/balance", group.API.GetCreditBalance).Methods(http.MethodGet)
	api.HandleFunc("/me", group.API.GetProfile).Methods(http.MethodGet)
	api.HandleFunc("/plans", group.Billing.GetPlans).Methods(http.MethodGet)
	api.HandleFunc("/subscriptions", group.Billing.CreateSubscription).Methods(http.MethodPost)
	api.HandleFunc("/subscriptions", group.Billing.CancelSubscription).Methods(http.MethodDelete)
	api.HandleFunc("/billing/checkout", group.Billing.CreateCheckoutSession).Methods(http.MethodPost)
	api.HandleFunc("/billing/portal", group.Billing.CreateBillingPortalSession).Methods(http.MethodPost)
	api.HandleFunc("/billing/reconcile", group.Billing.Reconcile).Methods(http.MethodPost)

	handler := middleware.Chain(r,
		middleware.CORS,
		middleware.SecurityHeaders,
		middleware.RequestLogger(logger),
	)

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Start runs the server until the context is cancelled, then shuts it down
// gracefully. In-flight submissions complete; their store transactions either
// committed or left nothing behind.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.srv.Addr))

	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
