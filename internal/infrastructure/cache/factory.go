package cache

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
	appbilling "github.com/utilitybill/backend/internal/application/billing"
	"github.com/utilitybill/backend/internal/domain/shared"
	"github.com/utilitybill/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

// Stores bundles the coordination primitives the billing consumer needs
type Stores struct {
	Idempotency shared.IdempotencyStore
	MeterLocker appbilling.MeterLocker
	Client      *redis.Client // nil when running in-process
}

// Close releases the stores and the Redis client
func (s *Stores) Close() error {
	if err := s.Idempotency.Close(); err != nil {
		return err
	}
	if c, ok := s.MeterLocker.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	if s.Client != nil {
		return s.Client.Close()
	}
	return nil
}

// Ping checks Redis reachability; in-process stores are always ready
func (s *Stores) Ping(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	return s.Client.Ping(ctx).Err()
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// NewStores builds Redis-backed stores when Redis is configured. With no Redis
// host, or when allowFallback is set and Redis is unreachable, in-process
// stores are used; those only serialize billing within this instance.
func NewStores(ctx context.Context, cfg config.RedisConfig, allowFallback bool, logger *zap.Logger) (*Stores, error) {
	if cfg.Host == "" {
		logger.Info("Redis not configured, using in-process idempotency and meter locks")
		return inProcessStores(), nil
	}

	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		if !allowFallback {
			return nil, err
		}
		logger.Warn("Redis unavailable, falling back to in-process stores; "+
			"concurrent instances may bill the same meter twice until the unique index rejects it",
			zap.Error(err),
		)
		return inProcessStores(), nil
	}

	logger.Info("using Redis idempotency and meter locks", zap.String("addr", cfg.Addr()))
	return &Stores{
		Idempotency: NewRedisIdempotencyStore(client, ""),
		MeterLocker: NewRedisMeterLocker(client),
		Client:      client,
	}, nil
}

func inProcessStores() *Stores {
	return &Stores{
		Idempotency: NewInMemoryIdempotencyStore(),
		MeterLocker: NewInMemoryMeterLocker(),
	}
}
