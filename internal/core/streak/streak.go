// Package streak derives streak lengths from a user's set of distinct
// activity days. Everything here is pure: plain day slices in, integers out,
// no knowledge of storage, caching, or the user record.
package streak

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// Normalize truncates a timestamp to midnight UTC. Every day value flowing
// through the engine goes through this exactly once, at the boundary, so the
// calculator can assume day-granular, deduplicated inputs.
func Normalize(t time.Time) time.Time {
	return t.UTC().Truncate(day)
}

// Current returns the length of the streak of consecutive days ending at
// today or yesterday. A most-recent activity day strictly before yesterday
// means the streak is broken and the result is 0. Days need not be sorted;
// duplicates are tolerated even though the store already deduplicates.
func Current(days []time.Time, today time.Time) int {
	if len(days) == 0 {
		return 0
	}

	sorted := normalizeDescending(days)
	today = Normalize(today)

	// Broken: the run no longer touches today or yesterday.
	if sorted[0].Before(today.Add(-day)) {
		return 0
	}

	count := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1].Sub(sorted[i]) != day {
			break
		}
		count++
	}
	return count
}

// Longest returns the length of the longest run of consecutive days anywhere
// in the history. Empty input yields 0.
func Longest(days []time.Time) int {
	if len(days) == 0 {
		return 0
	}

	sorted := normalizeAscending(days)

	longest := 1
	running := 1
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Sub(sorted[i-1]) == day {
			running++
		} else {
			running = 1
		}
		if running > longest {
			longest = running
		}
	}
	return longest
}

func normalizeAscending(days []time.Time) []time.Time {
	return normalizeSorted(days, func(a, b time.Time) bool { return a.Before(b) })
}

func normalizeDescending(days []time.Time) []time.Time {
	return normalizeSorted(days, func(a, b time.Time) bool { return a.After(b) })
}

// normalizeSorted copies, normalizes, deduplicates, and sorts the input so
// the scan loops above only ever see exact one-day or larger gaps.
func normalizeSorted(days []time.Time, less func(a, b time.Time) bool) []time.Time {
	seen := make(map[time.Time]struct{}, len(days))
	out := make([]time.Time, 0, len(days))
	for _, d := range days {
		n := Normalize(d)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}

	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}
