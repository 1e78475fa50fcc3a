// Package redis provides a Redis persistence backend for the flow record.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/chatflow/pkg/persistence"
	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

// Persistence stores each key as a plain Redis string with no expiry.
type Persistence struct {
	client redis.UniversalClient
	prefix string
	logger *slog.Logger
}

// NewPersistence connects to the Redis server described by databaseURL
// (redis:// or rediss://) and verifies the connection.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	opts, err := redis.ParseURL(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	p := NewPersistenceWithClient(logger, redis.NewClient(opts))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err = p.HealthCheck(pingCtx)
	if err != nil {
		_ = p.client.Close()

		return nil, err
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "db", opts.DB)

	return p, nil
}

// NewPersistenceWithClient wraps an existing client.
func NewPersistenceWithClient(logger *slog.Logger, client redis.UniversalClient) *Persistence {
	return &Persistence{
		client: client,
		prefix: "chatflow:",
		logger: logger,
	}
}

func (p *Persistence) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.client.Get(ctx, p.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, persistence.ErrRecordNotFound
		}

		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return value, nil
}

func (p *Persistence) Put(ctx context.Context, key string, value []byte) error {
	err := p.client.Set(ctx, p.prefix+key, value, 0).Err()
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	return nil
}

func (p *Persistence) Delete(ctx context.Context, key string) error {
	err := p.client.Del(ctx, p.prefix+key).Err()
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	return nil
}

func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.client.Ping(ctx).Err()
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return p.client.Close()
}
