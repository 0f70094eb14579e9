package aggregation

import (
	"context"
	"log/slog"
	"time"

	"github.com/kindling-app/kindling/internal/core/storage"
	"github.com/kindling-app/kindling/internal/core/streak"
	"golang.org/x/sync/errgroup"
)

// Reconciler periodically resets denormalized streak counters for users who
// stopped checking in. Write traffic keeps counters honest on its own; this
// loop covers users who go quiet, so a dashboard read through the cache does
// not advertise a streak that ended days ago.
//
// It is stateless: each tick independently queries the store for users whose
// persisted current_streak is positive but whose last activity day is before
// yesterday, then runs the same authoritative recompute path the write path
// uses.
type Reconciler struct {
	store       storage.ActivityStore
	service     *Service
	interval    time.Duration
	batchSize   int
	workerCount int
	nowFn       func() time.Time
}

// NewReconciler creates a reconciler over the same store and service the API
// uses. Non-positive batchSize/workerCount fall back to safe defaults.
func NewReconciler(store storage.ActivityStore, service *Service, interval time.Duration, batchSize, workerCount int) *Reconciler {
	if batchSize <= 0 {
		batchSize = 500
	}
	if workerCount <= 0 {
		workerCount = 4
	}
	return &Reconciler{
		store:       store,
		service:     service,
		interval:    interval,
		batchSize:   batchSize,
		workerCount: workerCount,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the periodic sweep. Runs until the context is cancelled.
func (r *Reconciler) Start(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("[Reconciler] Starting streak reconciler",
		"interval", r.interval,
		"batch_size", r.batchSize,
		"workers", r.workerCount)

	for {
		select {
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				slog.Error("[Reconciler] Sweep failed", "error", err)
			}
		case <-ctx.Done():
			slog.Info("[Reconciler] Stopping (context cancelled)")
			return nil
		}
	}
}

// RunOnce performs a single sweep: one batch of stale users, reset through
// the skip-cache current-streak read (which persists the zero and drops the
// user's cache entries).
func (r *Reconciler) RunOnce(ctx context.Context) error {
	// A streak is intact while the last activity is today or yesterday, so
	// stale means "last day strictly before yesterday".
	cutoff := streak.Normalize(r.nowFn()).AddDate(0, 0, -1)

	userIDs, err := r.store.ListStaleStreakUsers(ctx, cutoff, r.batchSize)
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		return nil
	}

	slog.Info("[Reconciler] Resetting broken streaks", "users", len(userIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workerCount)
	for _, userID := range userIDs {
		g.Go(func() error {
			// The authoritative read persists the reset as a side effect.
			if _, err := r.service.GetCurrentStreak(gctx, userID, true); err != nil {
				slog.Warn("[Reconciler] Failed to reset streak", "user_id", userID, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
