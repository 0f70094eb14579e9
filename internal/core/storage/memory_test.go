package storage

import (
	"context"
	"testing"
	"time"

	v1 "github.com/kindling-app/kindling/internal/api/v1"
	"github.com/stretchr/testify/require"
)

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func seededStore() *MemoryStore {
	s := NewMemoryStore()
	s.PutUser(&v1.User{ID: "u1"})
	return s
}

func TestMemoryUpsertCreatesThenAppends(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	first, err := s.UpsertActivity(ctx, "u1", day(2024, 1, 3).Add(9*time.Hour), "a")
	require.NoError(t, err)
	require.Equal(t, day(2024, 1, 3), first.Date)
	require.Equal(t, []string{"a"}, first.Descriptions)

	second, err := s.UpsertActivity(ctx, "u1", day(2024, 1, 3).Add(20*time.Hour), "b")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []string{"a", "b"}, second.Descriptions)

	count, err := s.CountActivities(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestMemoryUpsertUnknownUser(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.UpsertActivity(context.Background(), "ghost", day(2024, 1, 3), "x")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryFindActivitiesOrderingAndPaging(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	for d := 1; d <= 5; d++ {
		_, err := s.UpsertActivity(ctx, "u1", day(2024, 1, d), "x")
		require.NoError(t, err)
	}

	all, err := s.FindActivities(ctx, "u1", time.Time{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	require.Equal(t, day(2024, 1, 5), all[0].Date)
	require.Equal(t, day(2024, 1, 1), all[4].Date)

	windowed, err := s.FindActivities(ctx, "u1", day(2024, 1, 4), 0, 0)
	require.NoError(t, err)
	require.Len(t, windowed, 2)

	paged, err := s.FindActivities(ctx, "u1", time.Time{}, 2, 2)
	require.NoError(t, err)
	require.Len(t, paged, 2)
	require.Equal(t, day(2024, 1, 3), paged[0].Date)

	past, err := s.FindActivities(ctx, "u1", time.Time{}, 10, 2)
	require.NoError(t, err)
	require.Empty(t, past)
}

func TestMemoryListActivityDays(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	_, err := s.UpsertActivity(ctx, "u1", day(2024, 1, 3), "x")
	require.NoError(t, err)
	_, err = s.UpsertActivity(ctx, "u1", day(2024, 1, 1), "y")
	require.NoError(t, err)

	days, err := s.ListActivityDays(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []time.Time{day(2024, 1, 1), day(2024, 1, 3)}, days)
}

func TestMemoryUserCounters(t *testing.T) {
	s := seededStore()
	ctx := context.Background()

	require.NoError(t, s.UpdateUserCounters(ctx, "u1", 2, 4))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 2, u.CurrentStreak)
	require.Equal(t, 4, u.LongestStreak)

	// A lower longest value never regresses the stored counter.
	require.NoError(t, s.UpdateUserCounters(ctx, "u1", 3, 3))
	u, err = s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, 3, u.CurrentStreak)
	require.Equal(t, 4, u.LongestStreak)

	require.ErrorIs(t, s.UpdateUserCounters(ctx, "ghost", 1, 1), ErrUserNotFound)
	_, err = s.GetUser(ctx, "ghost")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryListStaleStreakUsers(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// u1: positive streak, last activity long ago -> stale.
	s.PutUser(&v1.User{ID: "u1", CurrentStreak: 3})
	_, err := s.UpsertActivity(ctx, "u1", day(2024, 1, 1), "x")
	require.NoError(t, err)

	// u2: positive streak, active yesterday -> not stale.
	s.PutUser(&v1.User{ID: "u2", CurrentStreak: 1})
	_, err = s.UpsertActivity(ctx, "u2", day(2024, 1, 9), "x")
	require.NoError(t, err)

	// u3: zero streak -> never listed.
	s.PutUser(&v1.User{ID: "u3"})

	stale, err := s.ListStaleStreakUsers(ctx, day(2024, 1, 9), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, stale)
}
