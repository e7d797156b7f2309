package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"cuebook/internal/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) PutPending(ctx context.Context, orderCode string, req *domain.BookingRequest, ttl time.Duration) error {
	args := m.Called(ctx, orderCode, req, ttl)
	return args.Error(0)
}

func (m *mockRepo) GetPending(ctx context.Context, orderCode string) (*domain.BookingRequest, error) {
	args := m.Called(ctx, orderCode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.BookingRequest), args.Error(1)
}

func (m *mockRepo) DeletePending(ctx context.Context, orderCode string) error {
	args := m.Called(ctx, orderCode)
	return args.Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

func TestFailoverPendingRepository(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverPendingRepository(primary, fallback, &logger)
	now := time.Date(2030, 5, 10, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		req := &domain.BookingRequest{PlayerID: 1}
		primary.On("GetPending", ctx, "o1").Return(req, nil).Once()

		got, err := repo.GetPending(ctx, "o1")
		assert.NoError(t, err)
		assert.Equal(t, req, got)
		primary.AssertExpectations(t)
	})

	t.Run("NotFoundIsNotAnOutage", func(t *testing.T) {
		primary.On("GetPending", ctx, "missing").Return(nil, domain.ErrNotFound).Once()

		_, err := repo.GetPending(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, repo.Down())
		primary.AssertExpectations(t)
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		req := &domain.BookingRequest{PlayerID: 2}
		primary.On("PutPending", ctx, "o2", req, time.Minute).Return(errors.New("connection refused")).Once()
		fallback.On("PutPending", ctx, "o2", req, time.Minute).Return(nil).Once()

		err := repo.PutPending(ctx, "o2", req, time.Minute)
		assert.NoError(t, err)
		assert.True(t, repo.Down())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("DeletePending", ctx, "o2").Return(nil).Once()

		assert.NoError(t, repo.DeletePending(ctx, "o2"))
		primary.AssertNotCalled(t, "DeletePending", ctx, "o2")
		fallback.AssertExpectations(t)
	})

	t.Run("RecoveryAttemptFail", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		primary.On("CheckRateLimit", ctx, "k", 5, time.Minute).Return(false, errors.New("still down")).Once()
		fallback.On("CheckRateLimit", ctx, "k", 5, time.Minute).Return(true, nil).Once()

		ok, err := repo.CheckRateLimit(ctx, "k", 5, time.Minute)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.True(t, repo.Down())
		primary.AssertExpectations(t)
		fallback.AssertExpectations(t)
	})

	t.Run("Recovery", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		req := &domain.BookingRequest{PlayerID: 3}
		primary.On("GetPending", ctx, "o3").Return(req, nil).Once()

		got, err := repo.GetPending(ctx, "o3")
		assert.NoError(t, err)
		assert.Equal(t, req, got)
		assert.False(t, repo.Down())
		primary.AssertExpectations(t)
	})
}
