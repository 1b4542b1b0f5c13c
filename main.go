package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/gosom/code-review-api/runner"
	"github.com/gosom/code-review-api/runner/migraterunner"
	"github.com/gosom/code-review-api/runner/webrunner"
)

func main() {
	_ = godotenv.Load() // Load .env file if present

	ctx, cancel := context.WithCancel(context.Background())

	cfg := runner.ParseConfig()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		log.Println("Received signal, shutting down...")

		cancel()
	}()

	runnerInstance, err := runnerFactory(cfg)
	if err != nil {
		cancel()
		os.Stderr.WriteString(err.Error() + "\n")

		closeTelemetry()

		os.Exit(1)
	}

	if err := runnerInstance.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		_ = runnerInstance.Close(ctx)
		closeTelemetry()

		cancel()

		os.Exit(1)
	}

	_ = runnerInstance.Close(ctx)
	closeTelemetry()

	cancel()
}

func closeTelemetry() {
	if err := runner.Telemetry().Close(); err != nil {
		log.Printf("telemetry close: %v", err)
	}
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeWeb:
		return webrunner.New(cfg)
	case runner.RunModeMigrate:
		return migraterunner.New(cfg)
	default:
		return nil, runner.ErrInvalidRunMode
	}
}
