package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Memory, *time.Time) {
	t.Helper()

	now := time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
	m := NewMemory(0)
	m.SetClock(func() time.Time { return now })
	t.Cleanup(m.Stop)
	return m, &now
}

func TestMemoryFreshnessLifecycle(t *testing.T) {
	m, now := newTestCache(t)

	require.NoError(t, m.Set("streak:u1:current", 3, 30*time.Second, 60*time.Second))

	// Fresh window.
	entry, err := m.Get("streak:u1:current")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, entry.Fresh(*now))
	require.Equal(t, 3, entry.Value)

	// Stale-while-revalidate window: servable but no longer fresh.
	*now = now.Add(45 * time.Second)
	entry, err = m.Get("streak:u1:current")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.False(t, entry.Fresh(*now))
	require.True(t, entry.Servable(*now))

	// Past ttl+swr the entry must not be served.
	*now = now.Add(60 * time.Second)
	entry, err = m.Get("streak:u1:current")
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Equal(t, 0, m.Len())
}

func TestMemoryGetMissing(t *testing.T) {
	m, _ := newTestCache(t)

	entry, err := m.Get("streak:nobody:current")
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestMemoryInvalidateByPrefix(t *testing.T) {
	m, _ := newTestCache(t)

	require.NoError(t, m.Set(ActivitiesWindowKey("u1", 7), "a", time.Minute, time.Minute))
	require.NoError(t, m.Set(ActivitiesPageKey("u1", 2, 10), "b", time.Minute, time.Minute))
	require.NoError(t, m.Set(CurrentStreakKey("u1"), 4, time.Minute, time.Minute))
	require.NoError(t, m.Set(CurrentStreakKey("u2"), 9, time.Minute, time.Minute))

	for _, prefix := range UserPrefixes("u1") {
		require.NoError(t, m.Invalidate(prefix))
	}

	// Every u1 entry is gone, u2 untouched.
	for _, key := range []string{
		ActivitiesWindowKey("u1", 7),
		ActivitiesPageKey("u1", 2, 10),
		CurrentStreakKey("u1"),
	} {
		entry, err := m.Get(key)
		require.NoError(t, err)
		require.Nil(t, entry, "expected %s to be invalidated", key)
	}

	entry, err := m.Get(CurrentStreakKey("u2"))
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, 9, entry.Value)
}

func TestMemorySetReplaces(t *testing.T) {
	m, now := newTestCache(t)

	require.NoError(t, m.Set("k", 1, 10*time.Second, 0))
	*now = now.Add(5 * time.Second)
	require.NoError(t, m.Set("k", 2, 10*time.Second, 0))
	*now = now.Add(8 * time.Second)

	// The second Set restarted the freshness clock.
	entry, err := m.Get("k")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.True(t, entry.Fresh(*now))
	require.Equal(t, 2, entry.Value)
}

func TestMemorySweep(t *testing.T) {
	m, now := newTestCache(t)

	require.NoError(t, m.Set("a", 1, time.Second, 0))
	require.NoError(t, m.Set("b", 2, time.Hour, 0))

	*now = now.Add(2 * time.Second)
	m.sweep()

	require.Equal(t, 1, m.Len())
}
