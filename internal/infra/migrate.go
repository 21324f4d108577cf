// README: Schema migrations with golang-migrate (file source, postgres driver).
package infra

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
)

// Migrate applies every pending up migration found in dir. The database may
// still be starting, so opening the migrator is retried for up to a minute.
func Migrate(ctx context.Context, dsn, dir string, log *zap.Logger) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving migrations dir: %w", err)
	}
	source := "file://" + filepath.ToSlash(abs)

	var m *migrate.Migrate
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = time.Minute
	err = backoff.RetryNotify(func() error {
		var err error
		m, err = migrate.New(source, dsn)
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		log.Info("waiting for database", zap.Duration("retry_in", wait), zap.Error(err))
	})
	if err != nil {
		return fmt.Errorf("starting migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("reading schema version: %w", err)
	}
	log.Info("migrations applied", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
