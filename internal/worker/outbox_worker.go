package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/metrics"
	"cuebook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Sink is a delivery target for outbox events.
type Sink interface {
	Name() string
	Accepts(eventType string) bool
	Deliver(ctx context.Context, eventType string, payload []byte) error
}

// OutboxStore persists outbox tasks.
type OutboxStore interface {
	CreateOutboxTask(ctx context.Context, task *models.OutboxTask) error
	GetOutboxTask(ctx context.Context, id int64) (*models.OutboxTask, error)
	GetPendingOutboxTasks(ctx context.Context, now time.Time, limit int) ([]models.OutboxTask, error)
	GetFailedOutboxTasks(ctx context.Context) ([]models.OutboxTask, error)
	UpdateOutboxTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// OutboxWorker stores every published event as one task per accepting sink
// and delivers the tasks in the background. Tasks travel through Redis when
// available, an in-memory queue otherwise, and the database is polled for
// anything both missed.
type OutboxWorker struct {
	store         OutboxStore
	sinks         []Sink
	byName        map[string]Sink
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.OutboxTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
	now           func() time.Time
}

func NewOutboxWorker(store OutboxStore, redisClient *redis.Client, retry RetryPolicy, logger *zerolog.Logger, sinks ...Sink) *OutboxWorker {
	retry = retry.withDefaults()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	byName := make(map[string]Sink, len(sinks))
	for _, s := range sinks {
		byName[s.Name()] = s
	}

	return &OutboxWorker{
		store:         store,
		sinks:         sinks,
		byName:        byName,
		redis:         redisClient,
		retryPolicy:   retry,
		queue:         make(chan models.OutboxTask, 256),
		redisQueueKey: "cuebook:outbox:queue",
		deadLetterKey: "cuebook:outbox:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logger,
		now:           time.Now,
	}
}

// WithPolling overrides how often and how much the database is polled.
func (w *OutboxWorker) WithPolling(interval time.Duration, batchSize int) *OutboxWorker {
	if interval > 0 {
		w.pollInterval = interval
	}
	if batchSize > 0 {
		w.batchSize = batchSize
	}
	return w
}

// PublishJSON encodes payload and enqueues it for every accepting sink.
func (w *OutboxWorker) PublishJSON(eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", eventType, err)
	}
	return w.Enqueue(context.Background(), eventType, raw)
}

// Enqueue persists one task per accepting sink and schedules it.
func (w *OutboxWorker) Enqueue(ctx context.Context, eventType string, payload []byte) error {
	if eventType == "" {
		return errors.New("event type is required")
	}

	var errs []error
	for _, sink := range w.sinks {
		if !sink.Accepts(eventType) {
			continue
		}
		task := models.OutboxTask{
			EventType: eventType,
			Sink:      sink.Name(),
			Payload:   string(payload),
			Status:    models.OutboxPending,
		}
		if err := w.store.CreateOutboxTask(ctx, &task); err != nil {
			errs = append(errs, fmt.Errorf("persist outbox task for %s: %w", sink.Name(), err))
			continue
		}
		w.schedule(ctx, task)
	}
	return errors.Join(errs...)
}

func (w *OutboxWorker) schedule(ctx context.Context, task models.OutboxTask) {
	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.logger.Warn().Err(err).Int64("task_id", task.ID).Msg("redis push failed, falling back to memory queue")
		} else {
			return
		}
	}

	select {
	case w.queue <- task:
	default:
		w.logger.Warn().Int64("task_id", task.ID).Msg("memory queue full, task left to polling")
	}
}

// Start runs the delivery loop until ctx is done.
func (w *OutboxWorker) Start(ctx context.Context) {
	w.logger.Info().Int("sinks", len(w.sinks)).Msg("outbox worker started")
	defer w.logger.Info().Msg("outbox worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		if n := w.ProcessPending(ctx); n == 0 {
			w.wait(ctx)
		}
	}
}

// ProcessPending delivers one batch of due tasks from the database and
// reports how many were attempted.
func (w *OutboxWorker) ProcessPending(ctx context.Context) int {
	tasks, err := w.store.GetPendingOutboxTasks(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error().Err(err).Msg("failed to fetch pending outbox tasks")
		return 0
	}
	for i := range tasks {
		w.processTask(ctx, &tasks[i])
	}
	return len(tasks)
}

// Failed lists dead-lettered tasks.
func (w *OutboxWorker) Failed(ctx context.Context) ([]models.OutboxTask, error) {
	return w.store.GetFailedOutboxTasks(ctx)
}

func (w *OutboxWorker) wait(ctx context.Context) {
	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (w *OutboxWorker) tryLocalQueue() (models.OutboxTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.OutboxTask{}, false
	}
}

func (w *OutboxWorker) tryRedis(ctx context.Context) (models.OutboxTask, bool) {
	if w.redis == nil {
		return models.OutboxTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) && !errors.Is(err, redis.Nil) {
			w.logger.Warn().Err(err).Msg("redis BRPOP failed")
		}
		return models.OutboxTask{}, false
	}
	if len(res) != 2 {
		return models.OutboxTask{}, false
	}
	var task models.OutboxTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.logger.Warn().Err(err).Msg("failed to decode redis outbox task")
		return models.OutboxTask{}, false
	}
	return task, true
}

func (w *OutboxWorker) processTask(ctx context.Context, task *models.OutboxTask) {
	// a queued copy may trail a polled delivery of the same task
	if current, err := w.store.GetOutboxTask(ctx, task.ID); err == nil {
		if current.Status == models.OutboxCompleted || current.Status == models.OutboxFailed {
			return
		}
		task = current
	}

	sink, ok := w.byName[task.Sink]
	if !ok {
		w.failTask(ctx, task, fmt.Errorf("unknown sink %q", task.Sink))
		return
	}

	if err := sink.Deliver(ctx, task.EventType, []byte(task.Payload)); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	metrics.IncOutboxDelivery(task.Sink, "ok")
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxCompleted, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark outbox task completed")
	}
}

func (w *OutboxWorker) retryOrFail(ctx context.Context, task *models.OutboxTask, cause error) {
	attempt := task.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failTask(ctx, task, cause)
		return
	}

	metrics.IncOutboxDelivery(task.Sink, "retry")
	next := w.now().UTC().Add(w.retryPolicy.NextDelay(attempt))
	w.logger.Warn().Err(cause).
		Int64("task_id", task.ID).
		Str("sink", task.Sink).
		Int("attempt", attempt).
		Time("next_retry_at", next).
		Msg("outbox delivery failed, will retry")
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxRetry, cause.Error(), &next); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark outbox task for retry")
	}
}

func (w *OutboxWorker) failTask(ctx context.Context, task *models.OutboxTask, cause error) {
	metrics.IncOutboxDelivery(task.Sink, "failed")
	w.logger.Error().Err(cause).Int64("task_id", task.ID).Str("sink", task.Sink).Msg("outbox task dead-lettered")
	if err := w.store.UpdateOutboxTaskStatus(ctx, task.ID, models.OutboxFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark outbox task failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *OutboxWorker) pushRedis(ctx context.Context, task models.OutboxTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *OutboxWorker) pushDeadLetter(ctx context.Context, task *models.OutboxTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.logger.Error().Err(err).Int64("task_id", task.ID).Msg("failed to push dead letter")
	}
}
