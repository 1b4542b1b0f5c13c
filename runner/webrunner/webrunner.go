// Package webrunner assembles and runs the HTTP API service.
package webrunner

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gosom/code-review-api/billing"
	"github.com/gosom/code-review-api/config"
	"github.com/gosom/code-review-api/feedback"
	"github.com/gosom/code-review-api/postgres"
	"github.com/gosom/code-review-api/review"
	"github.com/gosom/code-review-api/runner"
	stripeclient "github.com/gosom/code-review-api/stripe"
	"github.com/gosom/code-review-api/subscription"
	"github.com/gosom/code-review-api/web"
	"github.com/gosom/code-review-api/web/auth"
	"github.com/gosom/code-review-api/web/handlers"
	"github.com/gosom/code-review-api/web/services"
)

type webrunner struct {
	srv    *web.Server
	db     *sql.DB
	logger *zap.Logger
}

func New(cfg *runner.Config) (runner.Runner, error) {
	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return nil, err
	}

	if cfg.Secrets.ClerkSecretKey == "" {
		return nil, fmt.Errorf("CLERK_SECRET_KEY is required")
	}

	db, err := postgres.Connect(context.Background(), cfg.Dsn)
	if err != nil {
		return nil, err
	}

	userRepo := postgres.NewUserRepository(db)
	reviewRepo := postgres.NewReviewRepository(db)
	subRepo := postgres.NewSubscriptionRepository(db)
	cfgSvc := config.New(db)

	genName, err := cfgSvc.GetString(context.Background(), "feedback_generator", "template")
	if err != nil {
		genName = "template"
	}

	reviewSvc := review.NewService(userRepo, reviewRepo, feedback.New(genName), logger)

	signupCredits, err := cfgSvc.GetInt(context.Background(), "signup_credits", cfg.SignupCredits)
	if err != nil {
		signupCredits = cfg.SignupCredits
	}

	authmw, err := auth.NewMiddleware(cfg.Secrets.ClerkSecretKey, userRepo, signupCredits, logger)
	if err != nil {
		db.Close()

		return nil, err
	}

	var billingSvc *billing.Service
	var subSvc *subscription.Service

	if cfg.Secrets.StripeSecretKey != "" {
		billingSvc = billing.New(db, cfgSvc, cfg.Secrets.StripeSecretKey, cfg.Secrets.StripeWebhookSecret)
		subSvc = subscription.NewService(
			stripeclient.NewClient(cfg.Secrets.StripeSecretKey),
			subRepo,
			userRepo,
			logger,
		)
	}

	group := handlers.NewHandlerGroup(handlers.Dependencies{
		Logger:          logger,
		Reviews:         reviewSvc,
		CreditSvc:       services.NewCreditService(userRepo),
		BillingSvc:      billingSvc,
		SubscriptionSvc: subSvc,
		Telemetry:       runner.Telemetry(),
	})

	srv := web.New(cfg.Addr, group, authmw, logger)

	return &webrunner{srv: srv, db: db, logger: logger}, nil
}

func (w *webrunner) Run(ctx context.Context) error {
	egroup, ctx := errgroup.WithContext(ctx)

	egroup.Go(func() error {
		return w.srv.Start(ctx)
	})

	return egroup.Wait()
}

func (w *webrunner) Close(context.Context) error {
	_ = w.logger.Sync()

	return w.db.Close()
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}
