// Package cache provides the best-effort read cache consumed by the
// aggregation service. The cache is an optimization, never a source of
// truth: callers treat every error as a miss and fall back to the store.
package cache

import "time"

// Layer is the cache contract. Implementations must be safe for concurrent
// use. A nil Layer is a valid configuration; the engine then serves every
// read fresh.
type Layer interface {
	// Get returns the entry for key, or nil if the key is absent or past its
	// stale-while-revalidate horizon.
	Get(key string) (*Entry, error)

	// Set stores value under key. The value is served as-is for ttl, then
	// remains stale-servable for a further swr, then is gone.
	Set(key string, value interface{}, ttl, swr time.Duration) error

	// Invalidate removes every entry whose key starts with prefix.
	Invalidate(prefix string) error
}

// Entry is one cached value plus its freshness horizons.
type Entry struct {
	Value      interface{}
	StoredAt   time.Time
	FreshUntil time.Time
	StaleUntil time.Time
}

// Fresh reports whether the entry may be served without revalidation.
func (e *Entry) Fresh(now time.Time) bool {
	return now.Before(e.FreshUntil)
}

// Servable reports whether the entry may still be served at all, possibly
// stale. Past StaleUntil the entry must not be used.
func (e *Entry) Servable(now time.Time) bool {
	return now.Before(e.StaleUntil)
}
