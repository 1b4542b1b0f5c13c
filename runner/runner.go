// Package runner holds process configuration and the run-mode entrypoints.
package runner

import (
	"context"
	"errors"
	"flag"
	"os"
	"sync"

	"github.com/kelseyhightower/envconfig"

	"github.com/gosom/code-review-api/tlmt"
	"github.com/gosom/code-review-api/tlmt/gonoop"
	"github.com/gosom/code-review-api/tlmt/goposthog"
)

const (
	RunModeWeb = iota + 1
	RunModeMigrate
)

var (
	ErrInvalidRunMode = errors.New("invalid run mode")
)

type Runner interface {
	Run(context.Context) error
	Close(context.Context) error
}

// Secrets are environment-only; operational settings come from flags.
type Secrets struct {
	ClerkSecretKey      string `envconfig:"CLERK_SECRET_KEY"`
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	PosthogAPIKey       string `envconfig:"POSTHOG_API_KEY"`
	PosthogEndpoint     string `envconfig:"POSTHOG_ENDPOINT" default:"https://eu.i.posthog.com"`
	DatabaseURL         string `envconfig:"DATABASE_URL"`
}

type Config struct {
	Addr             string
	Dsn              string
	Debug            bool
	Migrate          bool
	SignupCredits    int
	DisableTelemetry bool
	RunMode          int
	Secrets          Secrets
}

func ParseConfig() *Config {
	cfg := Config{}

	flag.StringVar(&cfg.Addr, "addr", ":8080", "address to listen on")
	flag.StringVar(&cfg.Dsn, "dsn", "", "postgres connection string (falls back to DATABASE_URL)")
	flag.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flag.BoolVar(&cfg.Migrate, "migrate", false, "run database migrations and exit")
	flag.IntVar(&cfg.SignupCredits, "signup-credits", 3, "credits granted on first sign-in")
	flag.BoolVar(&cfg.DisableTelemetry, "disable-telemetry", false, "disable anonymous telemetry")

	flag.Parse()

	if err := envconfig.Process("", &cfg.Secrets); err != nil {
		panic(err)
	}

	if cfg.Dsn == "" {
		cfg.Dsn = cfg.Secrets.DatabaseURL
	}

	if cfg.Dsn == "" {
		panic("Dsn must be provided (flag -dsn or DATABASE_URL)")
	}

	if cfg.SignupCredits < 0 {
		panic("SignupCredits cannot be negative")
	}

	switch {
	case cfg.Migrate:
		cfg.RunMode = RunModeMigrate
	default:
		cfg.RunMode = RunModeWeb
	}

	return &cfg
}

var (
	telemetryOnce sync.Once
	telemetry     tlmt.Telemetry
)

func Telemetry() tlmt.Telemetry {
	telemetryOnce.Do(func() {
		if os.Getenv("DISABLE_TELEMETRY") == "1" {
			telemetry = gonoop.New()

			return
		}

		apiKey := os.Getenv("POSTHOG_API_KEY")
		if apiKey == "" {
			telemetry = gonoop.New()

			return
		}

		endpoint := os.Getenv("POSTHOG_ENDPOINT")
		if endpoint == "" {
			endpoint = "https://eu.i.posthog.com"
		}

		val, err := goposthog.New(apiKey, endpoint)
		if err != nil || val == nil {
			telemetry = gonoop.New()

			return
		}

		telemetry = val
	})

	return telemetry
}
