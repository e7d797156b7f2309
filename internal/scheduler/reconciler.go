// Package scheduler runs the periodic reconciliation that moves bookings
// along when nobody acts on them.
package scheduler

import (
	"context"
	"sync"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/metrics"
	"cuebook/internal/worker"

	"github.com/rs/zerolog"
)

// Lister finds bookings due for reconciliation.
type Lister interface {
	ListDueForCheckIn(ctx context.Context, now time.Time, limit int) ([]int64, error)
	ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]int64, error)
}

// Report summarizes one reconciliation run.
type Report struct {
	CheckedIn int `json:"checked_in"`
	Completed int `json:"completed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

type Reconciler struct {
	lister    Lister
	target    domain.Reconciler
	interval  time.Duration
	batchSize int
	skippable func(error) bool
	logger    *zerolog.Logger
	now       func() time.Time

	// failures holds bookings whose transition failed; each is passed over
	// until its retryAt.
	mu       sync.Mutex
	backoff  worker.RetryPolicy
	failures map[failureKey]*failure
}

type failureKey struct {
	pass string
	id   int64
}

type failure struct {
	attempts int
	retryAt  time.Time
}

// NewReconciler builds a reconciler. skippable classifies errors meaning the
// booking moved on between the scan and the transition.
func NewReconciler(
	lister Lister,
	target domain.Reconciler,
	interval time.Duration,
	batchSize int,
	skippable func(error) bool,
	logger *zerolog.Logger,
) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if skippable == nil {
		skippable = func(error) bool { return false }
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Reconciler{
		lister:    lister,
		target:    target,
		interval:  interval,
		batchSize: batchSize,
		skippable: skippable,
		logger:    logger,
		now:       time.Now,
		backoff: worker.RetryPolicy{
			InitialDelay:  interval,
			MaxDelay:      maxBackoff(interval),
			BackoffFactor: 2,
		},
		failures: make(map[failureKey]*failure),
	}
}

func maxBackoff(interval time.Duration) time.Duration {
	if d := 30 * interval; d > time.Hour {
		return d
	}
	return time.Hour
}

// Start runs RunOnce every interval until ctx is done.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Dur("interval", r.interval).Msg("reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("reconciler stopped")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce performs the auto check-in pass followed by the auto-complete pass.
// A failing booking never stops the batch and is backed off so the bookings
// listed after it still get their turn.
func (r *Reconciler) RunOnce(ctx context.Context) Report {
	var report Report
	now := r.now()

	r.pass(ctx, "check_in", now, r.lister.ListDueForCheckIn, r.target.AutoCheckIn, &report.CheckedIn, &report)
	r.pass(ctx, "complete", now, r.lister.ListDueForCompletion, r.target.AutoComplete, &report.Completed, &report)

	metrics.IncReconciliationRun()
	if report.CheckedIn+report.Completed+report.Failed > 0 {
		r.logger.Info().
			Int("checked_in", report.CheckedIn).
			Int("completed", report.Completed).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Msg("reconciliation run finished")
	}
	return report
}

func (r *Reconciler) pass(
	ctx context.Context,
	name string,
	now time.Time,
	list func(context.Context, time.Time, int) ([]int64, error),
	apply func(context.Context, int64) error,
	done *int,
	report *Report,
) {
	held := r.backingOff(name, now)
	ids, err := list(ctx, now, r.batchSize+len(held))
	if err != nil {
		metrics.IncReconciliationFailure(name)
		report.Failed++
		r.logger.Error().Err(err).Str("pass", name).Msg("failed to list due bookings")
		return
	}

	processed := 0
	for _, id := range ids {
		if ctx.Err() != nil || processed == r.batchSize {
			return
		}
		if held[id] {
			continue
		}
		processed++

		err := apply(ctx, id)
		switch {
		case err == nil:
			*done++
			r.forget(name, id)
		case r.skippable(err):
			report.Skipped++
			r.forget(name, id)
			r.logger.Debug().Err(err).Int64("booking_id", id).Str("pass", name).Msg("booking skipped")
		default:
			report.Failed++
			metrics.IncReconciliationFailure(name)
			retryAt := r.recordFailure(name, id, now)
			r.logger.Error().Err(err).Int64("booking_id", id).Str("pass", name).
				Time("retry_at", retryAt).Msg("reconciliation failed")
		}
	}
}

// backingOff returns the bookings of a pass still waiting out a failure and
// drops entries that have been idle past the longest backoff.
func (r *Reconciler) backingOff(pass string, now time.Time) map[int64]bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := make(map[int64]bool)
	for key, f := range r.failures {
		if key.pass != pass {
			continue
		}
		switch {
		case now.Before(f.retryAt):
			held[key.id] = true
		case now.Sub(f.retryAt) > r.backoff.MaxDelay:
			delete(r.failures, key)
		}
	}
	return held
}

func (r *Reconciler) recordFailure(pass string, id int64, now time.Time) time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := failureKey{pass: pass, id: id}
	f, ok := r.failures[key]
	if !ok {
		f = &failure{}
		r.failures[key] = f
	}
	f.attempts++
	f.retryAt = now.Add(r.backoff.NextDelay(f.attempts))
	return f.retryAt
}

func (r *Reconciler) forget(pass string, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.failures, failureKey{pass: pass, id: id})
}
