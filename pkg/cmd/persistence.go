package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/dukex/chatflow/pkg/persistence/file"
	"github.com/dukex/chatflow/pkg/persistence/memory"
	"github.com/dukex/chatflow/pkg/persistence/postgresql"
	"github.com/dukex/chatflow/pkg/persistence/redis"
)

var supportedPersistenceProviders = []string{"file", "memory", "postgres", "postgresql", "redis", "rediss"}

// NewPersistence picks the backend from the URL scheme. Paths without a
// scheme, and unknown schemes, fall back to the file backend.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (persistence.Persistence, error) {
	provider := parsePersistenceProvider(databaseURL)

	switch provider {
	case "memory":
		return memory.NewPersistence(), nil
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger.With("backend", "postgresql"), databaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgresql persistence: %w", err)
		}

		return p, nil
	case "redis", "rediss":
		p, err := redis.NewPersistence(ctx, logger.With("backend", "redis"), databaseURL)
		if err != nil {
			return nil, fmt.Errorf("redis persistence: %w", err)
		}

		return p, nil
	default:
		return file.NewPersistence(databaseURL), nil
	}
}

func parsePersistenceProvider(databaseURL string) string {
	parts := strings.Split(databaseURL, "://")
	if len(parts) < 2 {
		return "file"
	}

	provider := parts[0]
	for _, supported := range supportedPersistenceProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
