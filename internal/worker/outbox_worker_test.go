package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/database"
	"cuebook/internal/events"
	"cuebook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func TestOutboxWorker_EnqueueFansOut(t *testing.T) {
	db := newTestDB(t)
	all := &fakeSink{name: "all"}
	notes := &fakeSink{name: "notes", only: events.EventNotification}
	worker := NewOutboxWorker(db, nil, RetryPolicy{}, nil, all, notes)

	if err := worker.PublishJSON(events.EventBookingUpdated, map[string]int{"booking_id": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := worker.PublishJSON(events.EventNotification, map[string]int{"user_id": 2}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	tasks, err := db.GetPendingOutboxTasks(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("expected 3 tasks, got %d", len(tasks))
	}
	if len(worker.queue) != 3 {
		t.Fatalf("expected 3 queued tasks, got %d", len(worker.queue))
	}
}

func TestOutboxWorker_EnqueueRequiresType(t *testing.T) {
	worker := NewOutboxWorker(newTestDB(t), nil, RetryPolicy{}, nil, &fakeSink{name: "all"})
	if err := worker.Enqueue(context.Background(), "", []byte(`{}`)); err == nil {
		t.Fatalf("expected error for empty event type")
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{name: "all"}
	worker := NewOutboxWorker(db, nil, RetryPolicy{}, nil, sink)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, events.EventBookingCompleted, []byte(`{"booking_id":7}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	task, ok := worker.tryLocalQueue()
	if !ok {
		t.Fatalf("expected task in local queue")
	}
	worker.processTask(ctx, &task)

	stored := loadTask(t, db, task.ID)
	if stored.Status != models.OutboxCompleted {
		t.Fatalf("expected status=completed, got %s", stored.Status)
	}
	if stored.RetryCount != 0 {
		t.Fatalf("expected retry_count=0, got %d", stored.RetryCount)
	}
	if stored.NextRetryAt != nil {
		t.Fatalf("expected next_retry_at NULL on success")
	}
	if got := sink.delivered(); len(got) != 1 || got[0] != `{"booking_id":7}` {
		t.Fatalf("unexpected deliveries: %v", got)
	}

	// a second copy of the same task is not delivered again
	worker.processTask(ctx, &task)
	if n := len(sink.delivered()); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sink := &fakeSink{name: "all", err: errors.New("boom")}
	worker := NewOutboxWorker(db, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Second}, nil, sink)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, events.EventBookingUpdated, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, _ := worker.tryLocalQueue()
	worker.processTask(ctx, &task)

	stored := loadTask(t, db, task.ID)
	if stored.Status != models.OutboxRetry {
		t.Fatalf("expected status=retry, got %s", stored.Status)
	}
	if stored.RetryCount != 1 {
		t.Fatalf("expected retry_count=1, got %d", stored.RetryCount)
	}
	if stored.NextRetryAt == nil || stored.NextRetryAt.Before(time.Now()) {
		t.Fatalf("expected next_retry_at in future, got %v", stored.NextRetryAt)
	}

	// not due yet
	if n := worker.ProcessPending(ctx); n != 0 {
		t.Fatalf("expected no due tasks, got %d", n)
	}

	sink.setErr(nil)
	worker.now = func() time.Time { return time.Now().Add(time.Minute) }
	if n := worker.ProcessPending(ctx); n != 1 {
		t.Fatalf("expected 1 due task, got %d", n)
	}
	if stored := loadTask(t, db, task.ID); stored.Status != models.OutboxCompleted {
		t.Fatalf("expected status=completed after retry, got %s", stored.Status)
	}
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := &fakeSink{name: "all", err: errors.New("fatal")}
	worker := NewOutboxWorker(db, client, RetryPolicy{MaxRetries: 1}, nil, sink)

	ctx := context.Background()
	if err := worker.Enqueue(ctx, events.EventBookingUpdated, []byte(`{}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, ok := worker.tryRedis(ctx)
	if !ok {
		t.Fatalf("expected task in redis queue")
	}
	worker.processTask(ctx, &task)

	if stored := loadTask(t, db, task.ID); stored.Status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", stored.Status)
	}
	dead, err := client.LLen(ctx, worker.deadLetterKey).Result()
	if err != nil || dead != 1 {
		t.Fatalf("expected 1 dead letter, got %d (%v)", dead, err)
	}

	failed, err := worker.Failed(ctx)
	if err != nil || len(failed) != 1 {
		t.Fatalf("expected 1 failed task, got %d (%v)", len(failed), err)
	}
}

func TestProcessTaskUnknownSink(t *testing.T) {
	db := newTestDB(t)
	worker := NewOutboxWorker(db, nil, RetryPolicy{}, nil)

	ctx := context.Background()
	task := models.OutboxTask{EventType: events.EventBookingUpdated, Sink: "gone", Payload: `{}`}
	if err := db.CreateOutboxTask(ctx, &task); err != nil {
		t.Fatalf("create: %v", err)
	}
	worker.processTask(ctx, &task)

	if stored := loadTask(t, db, task.ID); stored.Status != models.OutboxFailed {
		t.Fatalf("expected status=failed, got %s", stored.Status)
	}
}

func TestOutboxWorker_StartDelivers(t *testing.T) {
	db := newTestDB(t)
	bus := events.NewEventBus()
	received := make(chan string, 1)
	bus.Subscribe(events.EventAvailabilityChanged, func(e *events.Event) error {
		received <- string(e.Payload)
		return nil
	})
	worker := NewOutboxWorker(db, nil, RetryPolicy{}, nil, bus).WithPolling(10*time.Millisecond, 5)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	if err := worker.PublishJSON(events.EventAvailabilityChanged, map[string]int64{"club_id": 1}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-received:
		if got != `{"club_id":1}` {
			t.Fatalf("unexpected payload %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event was not delivered")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, BackoffFactor: 2, MaxDelay: 5 * time.Second}.withDefaults()
	d1 := policy.NextDelay(1)
	d2 := policy.NextDelay(2)
	d3 := policy.NextDelay(5)

	if d1 != time.Second {
		t.Fatalf("attempt1 expected 1s, got %s", d1)
	}
	if d2 != 2*time.Second {
		t.Fatalf("attempt2 expected 2s, got %s", d2)
	}
	if d3 != 5*time.Second {
		t.Fatalf("attempt5 expected capped 5s, got %s", d3)
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	policy := RetryPolicyFromConfig(config.OutboxConfig{MaxRetries: 3})
	if policy.InitialDelay != 2*time.Second || policy.MaxDelay != time.Minute || policy.BackoffFactor != 2 {
		t.Fatalf("unexpected defaults: %+v", policy)
	}
	if policy.Exhausted(2) {
		t.Fatal("attempt 2 of 3 should retry")
	}
	if !policy.Exhausted(3) {
		t.Fatal("attempt 3 of 3 should dead-letter")
	}
}

// Helpers

type fakeSink struct {
	name string
	only string

	mu       sync.Mutex
	err      error
	payloads []string
}

func (f *fakeSink) Name() string { return f.name }

func (f *fakeSink) Accepts(eventType string) bool {
	return f.only == "" || f.only == eventType
}

func (f *fakeSink) Deliver(_ context.Context, _ string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, string(payload))
	return nil
}

func (f *fakeSink) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSink) delivered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.payloads...)
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "outbox.db"), 0, &logger)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTask(t *testing.T, db *database.DB, id int64) *models.OutboxTask {
	t.Helper()
	task, err := db.GetOutboxTask(context.Background(), id)
	if err != nil {
		t.Fatalf("load task %d: %v", id, err)
	}
	return task
}
