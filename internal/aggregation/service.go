// Package aggregation orchestrates the activity write path and the cached
// read paths: it is the only component that mutates the denormalized streak
// counters, and it owns the write-then-recompute-then-invalidate sequence.
package aggregation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	v1 "github.com/kindling-app/kindling/internal/api/v1"
	"github.com/kindling-app/kindling/internal/cache"
	"github.com/kindling-app/kindling/internal/core/storage"
	"github.com/kindling-app/kindling/internal/core/streak"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheTTL   = 30 * time.Second
	defaultCacheSWR   = 60 * time.Second
	defaultWindowDays = 7

	refreshTimeout = 10 * time.Second
)

// ErrInvalidInput marks request validation errors that should return HTTP 400.
var ErrInvalidInput = errors.New("invalid activity input")

// Options tunes the service. Non-positive CacheTTL and MaxBodySizeMB fall
// back to defaults. CacheSWR == 0 is a valid setting (entries expire at the
// TTL with no stale-serve window); only a negative value is defaulted.
type Options struct {
	CacheTTL      time.Duration
	CacheSWR      time.Duration
	MaxBodySizeMB int
}

func (o Options) normalized() Options {
	if o.CacheTTL <= 0 {
		o.CacheTTL = defaultCacheTTL
	}
	if o.CacheSWR < 0 {
		o.CacheSWR = defaultCacheSWR
	}
	if o.MaxBodySizeMB <= 0 {
		o.MaxBodySizeMB = 1
	}
	return o
}

// Service implements the aggregation engine over an ActivityStore and an
// optional cache.Layer. A nil cache degrades every read to always-fresh.
type Service struct {
	store storage.ActivityStore
	cache cache.Layer
	opts  Options
	nowFn func() time.Time

	// refreshGroup deduplicates concurrent cache fills and background SWR
	// refreshes per key.
	refreshGroup singleflight.Group

	// epochs counts invalidations per user. A cache fill whose compute
	// started at an older epoch is discarded instead of stored, so a
	// background refresh that raced a write cannot re-create a key with
	// pre-write data.
	epochMu sync.Mutex
	epochs  map[string]uint64
}

// NewService creates the aggregation service.
func NewService(store storage.ActivityStore, cacheLayer cache.Layer, opts Options) *Service {
	if store == nil {
		panic("aggregation: store must not be nil")
	}
	return &Service{
		store:  store,
		cache:  cacheLayer,
		opts:   opts.normalized(),
		nowFn:  func() time.Time { return time.Now().UTC() },
		epochs: make(map[string]uint64),
	}
}

// SetClock overrides the service clock. Test helper.
func (s *Service) SetClock(nowFn func() time.Time) {
	s.nowFn = nowFn
}

// SaveActivity records a check-in for (userID, day). Same-day saves append to
// the existing record's description sequence. After the upsert the service,
// in order: invalidates every cached query scoped to the user, recomputes
// both streak counters from an uncached read of the activity days, and
// persists the counters onto the user record.
//
// A counter-update failure after a successful upsert is logged and swallowed:
// the counters are denormalized, and the next write or skip-cache read
// recomputes them.
func (s *Service) SaveActivity(ctx context.Context, userID string, day time.Time, description string) (*v1.Activity, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, invalidInputf("user id is required")
	}
	if strings.TrimSpace(description) == "" {
		return nil, invalidInputf("description is required")
	}
	if day.IsZero() {
		return nil, invalidInputf("date is required")
	}

	// Surface unknown users before touching activity data.
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load user %s: %w", userID, err)
	}

	activity, err := s.store.UpsertActivity(ctx, userID, day, description)
	if err != nil {
		return nil, fmt.Errorf("upsert activity for user %s: %w", userID, err)
	}

	// Invalidate before recomputing so no reader can repopulate a key from
	// pre-write state after we return.
	s.invalidateUser(userID)

	if err := s.recomputeCounters(ctx, user); err != nil {
		slog.Error("Counter recompute failed after activity write; counters stay stale until next write",
			"user_id", userID, "error", err)
	}

	return activity, nil
}

// GetActivities returns activities with date >= today-windowDays,
// most-recent-first. windowDays <= 0 falls back to the default window.
// Cache-eligible under the TTL/SWR policy.
func (s *Service) GetActivities(ctx context.Context, userID string, windowDays int) ([]*v1.Activity, error) {
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	compute := func(ctx context.Context) (interface{}, error) {
		if _, err := s.store.GetUser(ctx, userID); err != nil {
			return nil, err
		}
		since := streak.Normalize(s.nowFn()).AddDate(0, 0, -windowDays)
		activities, err := s.store.FindActivities(ctx, userID, since, 0, 0)
		if err != nil {
			return nil, fmt.Errorf("find activities for user %s: %w", userID, err)
		}
		return activities, nil
	}

	value, err := s.cachedRead(ctx, userID, cache.ActivitiesWindowKey(userID, windowDays), compute)
	if err != nil {
		return nil, err
	}
	return value.([]*v1.Activity), nil
}

// GetAllActivities returns one page of the full history, most-recent-first.
// limit == 0 is a sentinel for "everything, unpaginated" (TotalPages = 1).
func (s *Service) GetAllActivities(ctx context.Context, userID string, page, limit int) (*v1.ActivityPage, error) {
	if page <= 0 {
		page = 1
	}
	if limit < 0 {
		return nil, invalidInputf("limit must be >= 0")
	}

	compute := func(ctx context.Context) (interface{}, error) {
		if _, err := s.store.GetUser(ctx, userID); err != nil {
			return nil, err
		}

		total, err := s.store.CountActivities(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count activities for user %s: %w", userID, err)
		}

		skip, take := 0, 0
		totalPages := 1
		if limit > 0 {
			skip = (page - 1) * limit
			take = limit
			totalPages = (total + limit - 1) / limit
		}

		activities, err := s.store.FindActivities(ctx, userID, time.Time{}, skip, take)
		if err != nil {
			return nil, fmt.Errorf("find activities for user %s: %w", userID, err)
		}

		return &v1.ActivityPage{
			Activities:  activities,
			TotalCount:  total,
			TotalPages:  totalPages,
			CurrentPage: page,
		}, nil
	}

	value, err := s.cachedRead(ctx, userID, cache.ActivitiesPageKey(userID, page, limit), compute)
	if err != nil {
		return nil, err
	}
	return value.(*v1.ActivityPage), nil
}

// GetCurrentStreak returns the user's current streak. skipCache forces an
// authoritative read; the write path and the reconciler use that mode, and a
// fresh read that observes a broken streak persists the zero reset.
func (s *Service) GetCurrentStreak(ctx context.Context, userID string, skipCache bool) (int, error) {
	if skipCache || s.cache == nil {
		return s.freshCurrentStreak(ctx, userID)
	}

	value, err := s.cachedRead(ctx, userID, cache.CurrentStreakKey(userID), func(ctx context.Context) (interface{}, error) {
		return s.freshCurrentStreak(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

// GetLongestStreak returns the longest streak ever recorded for the user.
func (s *Service) GetLongestStreak(ctx context.Context, userID string, skipCache bool) (int, error) {
	if skipCache || s.cache == nil {
		return s.freshLongestStreak(ctx, userID)
	}

	value, err := s.cachedRead(ctx, userID, cache.LongestStreakKey(userID), func(ctx context.Context) (interface{}, error) {
		return s.freshLongestStreak(ctx, userID)
	})
	if err != nil {
		return 0, err
	}
	return value.(int), nil
}

func (s *Service) freshCurrentStreak(ctx context.Context, userID string) (int, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("load user %s: %w", userID, err)
	}

	days, err := s.store.ListActivityDays(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list activity days for user %s: %w", userID, err)
	}

	current := streak.Current(days, s.nowFn())

	// A broken streak observed on an authoritative read is persisted so the
	// denormalized counter does not advertise a run that has already ended.
	if current == 0 && user.CurrentStreak != 0 {
		if err := s.store.UpdateUserCounters(ctx, userID, 0, user.LongestStreak); err != nil {
			slog.Warn("Failed to persist broken-streak reset",
				"user_id", userID, "error", err)
		} else {
			s.invalidateUser(userID)
		}
	}

	return current, nil
}

func (s *Service) freshLongestStreak(ctx context.Context, userID string) (int, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return 0, err
		}
		return 0, fmt.Errorf("load user %s: %w", userID, err)
	}

	days, err := s.store.ListActivityDays(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("list activity days for user %s: %w", userID, err)
	}

	longest := streak.Longest(days)
	if user.LongestStreak > longest {
		// The stored counter is monotonic over the user's lifetime; never
		// report less than what was already persisted.
		longest = user.LongestStreak
	}
	return longest, nil
}

// recomputeCounters derives both counters from a fresh, uncached read of the
// user's activity days and persists them.
func (s *Service) recomputeCounters(ctx context.Context, user *v1.User) error {
	days, err := s.store.ListActivityDays(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list activity days: %w", err)
	}

	current := streak.Current(days, s.nowFn())
	longest := streak.Longest(days)
	if user.LongestStreak > longest {
		longest = user.LongestStreak
	}

	if err := s.store.UpdateUserCounters(ctx, user.ID, current, longest); err != nil {
		return fmt.Errorf("update user counters: %w", err)
	}

	slog.Debug("Recomputed streak counters",
		"user_id", user.ID,
		"current_streak", current,
		"longest_streak", longest)
	return nil
}

// invalidateUser drops every cached query scoped to the user and bumps the
// user's invalidation epoch, which voids any cache fill still computing from
// pre-invalidation state. Cache failures are logged and ignored; a failed
// invalidation only costs freshness that the TTL bounds anyway.
func (s *Service) invalidateUser(userID string) {
	if s.cache == nil {
		return
	}
	s.epochMu.Lock()
	defer s.epochMu.Unlock()

	s.epochs[userID]++
	for _, prefix := range cache.UserPrefixes(userID) {
		if err := s.cache.Invalidate(prefix); err != nil {
			slog.Warn("Cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
}

func (s *Service) epoch(userID string) uint64 {
	s.epochMu.Lock()
	defer s.epochMu.Unlock()
	return s.epochs[userID]
}

// cachedValue pairs a computed value with the invalidation epoch its compute
// started at, so readers can tell whether a write invalidated the user while
// the value was in flight.
type cachedValue struct {
	value interface{}
	epoch uint64
}

// cachedRead implements the read-through TTL/SWR policy:
//   - fresh hit: serve as-is;
//   - stale hit (past ttl, within ttl+swr): serve stale, refresh in the
//     background, deduplicated per key;
//   - miss or any cache error: compute authoritatively (deduplicated per key)
//     and repopulate.
func (s *Service) cachedRead(ctx context.Context, userID, key string, compute func(context.Context) (interface{}, error)) (interface{}, error) {
	if s.cache == nil {
		return compute(ctx)
	}

	entry, err := s.cache.Get(key)
	if err != nil {
		slog.Warn("Cache read failed, falling back to store", "key", key, "error", err)
		entry = nil
	}

	now := s.nowFn()
	if entry != nil {
		if entry.Fresh(now) {
			return entry.Value, nil
		}
		if entry.Servable(now) {
			s.refreshInBackground(userID, key, compute)
			return entry.Value, nil
		}
	}

	var cv cachedValue
	for attempt := 0; attempt < 2; attempt++ {
		value, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
			return s.computeAndStore(ctx, userID, key, compute)
		})
		if err != nil {
			return nil, err
		}
		cv = value.(cachedValue)
		if s.epoch(userID) == cv.epoch {
			break
		}
		// Joined a flight whose compute started before a write invalidated
		// the user; the retried flight starts after that invalidation and
		// observes post-write state.
	}
	return cv.value, nil
}

func (s *Service) computeAndStore(ctx context.Context, userID, key string, compute func(context.Context) (interface{}, error)) (interface{}, error) {
	started := s.epoch(userID)

	value, err := compute(ctx)
	if err != nil {
		return nil, err
	}

	// Fill the cache only if no invalidation landed while the value was
	// being computed; a late Set would re-create a key the write already
	// dropped, with pre-write data.
	s.epochMu.Lock()
	if s.epochs[userID] == started {
		if setErr := s.cache.Set(key, value, s.opts.CacheTTL, s.opts.CacheSWR); setErr != nil {
			slog.Warn("Cache write failed", "key", key, "error", setErr)
		}
	} else {
		slog.Debug("Discarding cache fill computed before an invalidation", "key", key)
	}
	s.epochMu.Unlock()

	return cachedValue{value: value, epoch: started}, nil
}

// refreshInBackground revalidates a stale key without blocking the caller.
// singleflight collapses concurrent stale hits into one upstream read.
func (s *Service) refreshInBackground(userID, key string, compute func(context.Context) (interface{}, error)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()

		_, err, _ := s.refreshGroup.Do(key, func() (interface{}, error) {
			return s.computeAndStore(ctx, userID, key, compute)
		})
		if err != nil {
			slog.Warn("Background cache refresh failed", "key", key, "error", err)
		}
	}()
}

func invalidInputf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
