package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	v1 "github.com/kindling-app/kindling/internal/api/v1"
	"github.com/kindling-app/kindling/internal/core/streak"
)

// MemoryStore is a mutex-guarded in-memory ActivityStore. It backs tests and
// the database.type=memory dev mode; the upsert and ordering semantics match
// the postgres adapter so the two are interchangeable behind the interface.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*v1.User
	activities map[string]map[time.Time]*v1.Activity // userID -> day -> record
	nowFn      func() time.Time
}

var _ ActivityStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*v1.User),
		activities: make(map[string]map[time.Time]*v1.Activity),
		nowFn:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store's clock. Test helper.
func (s *MemoryStore) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = nowFn
}

// PutUser inserts or replaces a user record. The engine never creates users;
// callers (and tests) seed them through this.
func (s *MemoryStore) PutUser(u *v1.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.nowFn()
	}
	cp.UpdatedAt = s.nowFn()
	s.users[cp.ID] = &cp
}

func (s *MemoryStore) UpsertActivity(ctx context.Context, userID string, day time.Time, text string) (*v1.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return nil, ErrUserNotFound
	}

	day = streak.Normalize(day)
	now := s.nowFn()

	byDay, ok := s.activities[userID]
	if !ok {
		byDay = make(map[time.Time]*v1.Activity)
		s.activities[userID] = byDay
	}

	if existing, ok := byDay[day]; ok {
		existing.Descriptions = append(existing.Descriptions, text)
		existing.UpdatedAt = now
		return copyActivity(existing), nil
	}

	act := &v1.Activity{
		ID:           uuid.NewString(),
		UserID:       userID,
		Date:         day,
		Descriptions: []string{text},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	byDay[day] = act
	return copyActivity(act), nil
}

func (s *MemoryStore) FindActivities(ctx context.Context, userID string, since time.Time, skip, take int) ([]*v1.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*v1.Activity
	for _, act := range s.activities[userID] {
		if !since.IsZero() && act.Date.Before(since) {
			continue
		}
		out = append(out, copyActivity(act))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })

	if skip > 0 {
		if skip >= len(out) {
			return nil, nil
		}
		out = out[skip:]
	}
	if take > 0 && take < len(out) {
		out = out[:take]
	}
	return out, nil
}

func (s *MemoryStore) CountActivities(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.activities[userID]), nil
}

func (s *MemoryStore) ListActivityDays(ctx context.Context, userID string) ([]time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]time.Time, 0, len(s.activities[userID]))
	for day := range s.activities[userID] {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days, nil
}

func (s *MemoryStore) GetUser(ctx context.Context, userID string) (*v1.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) UpdateUserCounters(ctx context.Context, userID string, current, longest int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.CurrentStreak = current
	if longest > u.LongestStreak {
		u.LongestStreak = longest
	}
	u.UpdatedAt = s.nowFn()
	return nil
}

func (s *MemoryStore) ListStaleStreakUsers(ctx context.Context, lastDayBefore time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for id, u := range s.users {
		if u.CurrentStreak <= 0 {
			continue
		}
		last, ok := s.lastActivityDayLocked(id)
		if ok && !last.Before(lastDayBefore) {
			continue
		}
		out = append(out, id)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) lastActivityDayLocked(userID string) (time.Time, bool) {
	var last time.Time
	found := false
	for day := range s.activities[userID] {
		if !found || day.After(last) {
			last = day
			found = true
		}
	}
	return last, found
}

func copyActivity(a *v1.Activity) *v1.Activity {
	cp := *a
	cp.Descriptions = append([]string(nil), a.Descriptions...)
	return &cp
}
