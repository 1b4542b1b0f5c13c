// Package migraterunner applies database migrations and exits.
package migraterunner

import (
	"context"

	"github.com/gosom/code-review-api/postgres"
	"github.com/gosom/code-review-api/runner"
)

type migraterunner struct {
	dsn string
}

func New(cfg *runner.Config) (runner.Runner, error) {
	return &migraterunner{dsn: cfg.Dsn}, nil
}

func (m *migraterunner) Run(context.Context) error {
	return postgres.NewMigrationRunner(m.dsn).RunMigrations()
}

func (m *migraterunner) Close(context.Context) error {
	return nil
}
