package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"cuebook/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverPendingRepository prefers the primary store and switches to the
// fallback when the primary errors. The primary is retried once a minute.
// Requests stashed on one side are not visible on the other.
type FailoverPendingRepository struct {
	primary  domain.PendingRepository
	fallback domain.PendingRepository
	logger   *zerolog.Logger

	mu        sync.Mutex
	isDown    bool
	lastCheck time.Time
	now       func() time.Time
}

func NewFailoverPendingRepository(primary, fallback domain.PendingRepository, logger *zerolog.Logger) *FailoverPendingRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverPendingRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the next call should go to the primary store.
func (r *FailoverPendingRepository) usePrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.isDown || r.now().Sub(r.lastCheck) > recoveryInterval
}

func (r *FailoverPendingRepository) markDown(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isDown {
		r.logger.Error().Err(err).Msg("primary pending store failed, falling back to memory")
	}
	r.isDown = true
	r.lastCheck = r.now()
}

func (r *FailoverPendingRepository) markUp() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.isDown {
		r.logger.Info().Msg("primary pending store recovered")
	}
	r.isDown = false
}

// Down reports whether calls are currently served by the fallback.
func (r *FailoverPendingRepository) Down() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDown
}

// call runs fn on the primary when healthy and on the fallback otherwise.
// ErrNotFound is an answer, not an outage.
func call[T any](r *FailoverPendingRepository, fn func(domain.PendingRepository) (T, error)) (T, error) {
	if r.usePrimary() {
		v, err := fn(r.primary)
		if err == nil || errors.Is(err, domain.ErrNotFound) {
			r.markUp()
			return v, err
		}
		r.markDown(err)
	}
	return fn(r.fallback)
}

func (r *FailoverPendingRepository) PutPending(ctx context.Context, orderCode string, req *domain.BookingRequest, ttl time.Duration) error {
	_, err := call(r, func(p domain.PendingRepository) (struct{}, error) {
		return struct{}{}, p.PutPending(ctx, orderCode, req, ttl)
	})
	return err
}

func (r *FailoverPendingRepository) GetPending(ctx context.Context, orderCode string) (*domain.BookingRequest, error) {
	return call(r, func(p domain.PendingRepository) (*domain.BookingRequest, error) {
		return p.GetPending(ctx, orderCode)
	})
}

func (r *FailoverPendingRepository) DeletePending(ctx context.Context, orderCode string) error {
	_, err := call(r, func(p domain.PendingRepository) (struct{}, error) {
		return struct{}{}, p.DeletePending(ctx, orderCode)
	})
	return err
}

func (r *FailoverPendingRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return call(r, func(p domain.PendingRepository) (bool, error) {
		return p.CheckRateLimit(ctx, key, limit, window)
	})
}
