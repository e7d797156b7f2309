package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/domain"

	"github.com/redis/go-redis/v9"
)

const (
	pendingKeyPrefix   = "cuebook:pending:"
	rateLimitKeyPrefix = "cuebook:rate:"
)

var errNilClient = errors.New("redis client is nil")

type RedisPendingRepository struct {
	client *redis.Client
}

// NewRedisClient builds a client from configuration. It does not dial.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisPendingRepository(client *redis.Client) *RedisPendingRepository {
	return &RedisPendingRepository{client: client}
}

func (r *RedisPendingRepository) PutPending(ctx context.Context, orderCode string, req *domain.BookingRequest, ttl time.Duration) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal pending request: %w", err)
	}
	if err := r.client.Set(ctx, pendingKeyPrefix+orderCode, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to stash pending request: %w", err)
	}
	return nil
}

func (r *RedisPendingRepository) GetPending(ctx context.Context, orderCode string) (*domain.BookingRequest, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, pendingKeyPrefix+orderCode).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("pending request %s: %w", orderCode, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending request: %w", err)
	}

	var req domain.BookingRequest
	if err := json.Unmarshal(val, &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending request: %w", err)
	}
	return &req, nil
}

func (r *RedisPendingRepository) DeletePending(ctx context.Context, orderCode string) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, pendingKeyPrefix+orderCode).Err(); err != nil {
		return fmt.Errorf("failed to delete pending request: %w", err)
	}
	return nil
}

func (r *RedisPendingRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	k := rateLimitKeyPrefix + key
	count, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate limit: %w", err)
	}
	if count == 1 {
		if err := r.client.Expire(ctx, k, window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}
	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
