package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func d(year int, month time.Month, dayOfMonth int) time.Time {
	return time.Date(year, month, dayOfMonth, 0, 0, 0, 0, time.UTC)
}

func TestNormalize(t *testing.T) {
	ts := time.Date(2024, 1, 3, 23, 59, 42, 123456789, time.UTC)
	require.Equal(t, d(2024, 1, 3), Normalize(ts))

	// Non-UTC timestamps collapse onto the UTC day.
	loc := time.FixedZone("UTC+9", 9*3600)
	require.Equal(t, d(2024, 1, 3), Normalize(time.Date(2024, 1, 4, 8, 0, 0, 0, loc)))
}

func TestCurrent(t *testing.T) {
	tests := []struct {
		name  string
		days  []time.Time
		today time.Time
		want  int
	}{
		{name: "empty", days: nil, today: d(2024, 1, 3), want: 0},
		{
			name:  "three consecutive ending today",
			days:  []time.Time{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3)},
			today: d(2024, 1, 3),
			want:  3,
		},
		{
			name:  "run ending yesterday still counts",
			days:  []time.Time{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3)},
			today: d(2024, 1, 4),
			want:  3,
		},
		{
			name:  "broken two days after last activity",
			days:  []time.Time{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3)},
			today: d(2024, 1, 5),
			want:  0,
		},
		{
			name:  "gap stops the count",
			days:  []time.Time{d(2024, 1, 1), d(2024, 1, 3), d(2024, 1, 4)},
			today: d(2024, 1, 4),
			want:  2,
		},
		{
			name:  "single day today",
			days:  []time.Time{d(2024, 1, 3)},
			today: d(2024, 1, 3),
			want:  1,
		},
		{
			name:  "unsorted input",
			days:  []time.Time{d(2024, 1, 3), d(2024, 1, 1), d(2024, 1, 2)},
			today: d(2024, 1, 3),
			want:  3,
		},
		{
			name: "same day at different times counts once",
			days: []time.Time{
				d(2024, 1, 2),
				time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC),
				time.Date(2024, 1, 3, 21, 0, 0, 0, time.UTC),
			},
			today: d(2024, 1, 3),
			want:  2,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Current(tc.days, tc.today))
		})
	}
}

func TestLongest(t *testing.T) {
	tests := []struct {
		name string
		days []time.Time
		want int
	}{
		{name: "empty", days: nil, want: 0},
		{name: "single", days: []time.Time{d(2024, 1, 1)}, want: 1},
		{
			// The Jan 5-7 run wins even though the streak is currently broken.
			name: "longest run in the middle of history",
			days: []time.Time{
				d(2024, 1, 1), d(2024, 1, 2),
				d(2024, 1, 5), d(2024, 1, 6), d(2024, 1, 7),
			},
			want: 3,
		},
		{
			name: "all consecutive",
			days: []time.Time{d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3), d(2024, 1, 4)},
			want: 4,
		},
		{
			name: "all isolated",
			days: []time.Time{d(2024, 1, 1), d(2024, 1, 3), d(2024, 1, 5)},
			want: 1,
		},
		{
			name: "unsorted with duplicates",
			days: []time.Time{d(2024, 1, 6), d(2024, 1, 5), d(2024, 1, 5), d(2024, 1, 7), d(2024, 1, 1)},
			want: 3,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Longest(tc.days))
		})
	}
}

func TestCurrentNeverExceedsLongest(t *testing.T) {
	days := []time.Time{
		d(2024, 1, 1), d(2024, 1, 2), d(2024, 1, 3),
		d(2024, 1, 7), d(2024, 1, 8),
	}
	for today := d(2024, 1, 1); !today.After(d(2024, 1, 12)); today = today.Add(24 * time.Hour) {
		require.LessOrEqual(t, Current(days, today), Longest(days))
	}
}
