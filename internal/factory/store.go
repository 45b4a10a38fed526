// Package factory builds runtime dependencies from configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/companionos/companion/internal/config"
	"github.com/companionos/companion/internal/store"
	"github.com/companionos/companion/internal/store/postgres"
	"github.com/companionos/companion/internal/store/sqlite"
)

// Store is a store.Store that can be probed and closed.
type Store interface {
	store.Store
	HealthPing(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*postgres.Store)(nil)
)

// NewStore opens the store selected by cfg.DBDriver and ensures its schema.
// Connection failures are retried with exponential backoff for up to
// BootstrapTimeoutSeconds; configuration errors fail immediately.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (Store, error) {
	open, err := opener(cfg)
	if err != nil {
		return nil, err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 250 * time.Millisecond
	exp.MaxInterval = 5 * time.Second
	exp.MaxElapsedTime = time.Duration(cfg.BootstrapTimeoutSeconds) * time.Second

	var st Store
	attempt := 0
	op := func() error {
		attempt++
		s, err := open(ctx)
		if err != nil {
			return err
		}
		st = s
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn().Err(err).Str("driver", cfg.DBDriver).Int("attempt", attempt).Dur("retry_in", wait).Msg("store unavailable; retrying")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(exp, ctx), notify); err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.DBDriver, err)
	}
	log.Info().Str("driver", cfg.DBDriver).Int("attempts", attempt).Msg("store ready")
	return st, nil
}

func opener(cfg *config.Config) (func(context.Context) (Store, error), error) {
	switch cfg.DBDriver {
	case "sqlite":
		path := cfg.SQLitePath
		if path == "" {
			return nil, fmt.Errorf("COMPANION_SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
		return func(ctx context.Context) (Store, error) {
			if path != sqlite.MemoryPath {
				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return nil, backoff.Permanent(err)
				}
			}
			return sqlite.New(ctx, path)
		}, nil
	case "postgres":
		dsn := cfg.PostgresDSN
		if dsn == "" {
			return nil, fmt.Errorf("COMPANION_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		return func(ctx context.Context) (Store, error) {
			return postgres.New(ctx, dsn)
		}, nil
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
