// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/approvals/pkg/persistence"
	"github.com/dukex/approvals/pkg/persistence/file"
	"github.com/dukex/approvals/pkg/persistence/memory"
	"github.com/dukex/approvals/pkg/persistence/postgresql"
	"github.com/dukex/approvals/pkg/persistence/redis"
)

// writeRetryWindow bounds how long a transient storage failure is retried
// before a write is reported as failed.
const writeRetryWindow = 5 * time.Second

var supportedPersistenceProviders = []string{"file", "memory", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence opens the store named by databaseURL's scheme and wraps it
// with retries. A URL without a known scheme is a file store directory.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Store, error) {
	var (
		store persistence.Store
		err   error
	)

	switch parsePersistenceProvider(databaseURL) {
	case "memory":
		store = memory.NewPersistence()
	case "postgres", "postgresql":
		store, err = postgresql.NewPersistence(ctx, logger, databaseURL)
	case "redis", "rediss":
		store, err = redis.NewPersistence(ctx, logger, databaseURL)
	default:
		store = file.NewPersistence(databaseURL)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open persistence: %w", err)
	}

	return persistence.NewRetryingStore(store, logger, writeRetryWindow), nil
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
