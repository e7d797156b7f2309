package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cuebook/internal/domain"
)

type pendingEntry struct {
	req       domain.BookingRequest
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// MemoryPendingRepository keeps stashed requests in process memory. It backs
// the Redis store while Redis is unreachable and serves single-node setups.
type MemoryPendingRepository struct {
	mu         sync.Mutex
	pending    map[string]pendingEntry
	rateLimits map[string]*rateLimitEntry
	now        func() time.Time
}

func NewMemoryPendingRepository() *MemoryPendingRepository {
	return &MemoryPendingRepository{
		pending:    make(map[string]pendingEntry),
		rateLimits: make(map[string]*rateLimitEntry),
		now:        time.Now,
	}
}

func (r *MemoryPendingRepository) PutPending(_ context.Context, orderCode string, req *domain.BookingRequest, ttl time.Duration) error {
	if req == nil {
		return fmt.Errorf("%w: nil booking request", domain.ErrInvalidInput)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[orderCode] = pendingEntry{req: *req, expiresAt: r.now().Add(ttl)}
	return nil
}

func (r *MemoryPendingRepository) GetPending(_ context.Context, orderCode string) (*domain.BookingRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[orderCode]
	if ok && !r.now().Before(entry.expiresAt) {
		delete(r.pending, orderCode)
		ok = false
	}
	if !ok {
		return nil, fmt.Errorf("pending request %s: %w", orderCode, domain.ErrNotFound)
	}
	req := entry.req
	return &req, nil
}

func (r *MemoryPendingRepository) DeletePending(_ context.Context, orderCode string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, orderCode)
	return nil
}

// CheckRateLimit counts calls per key in fixed windows.
func (r *MemoryPendingRepository) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.rateLimits[key] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
