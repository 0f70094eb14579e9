package storage

import (
	"context"
	"errors"
	"time"

	v1 "github.com/kindling-app/kindling/internal/api/v1"
)

// ErrUserNotFound is returned when an operation references a user that does
// not exist in the store.
var ErrUserNotFound = errors.New("user not found")

// ActivityStore defines the durable-store contract consumed by the
// aggregation engine. Every operation is atomic on its own; the engine never
// needs cross-operation transactions because the denormalized counters are
// advisory and recomputed idempotently.
type ActivityStore interface {
	// UpsertActivity creates the Activity for (userID, day) with a single
	// description, or appends text to the existing record's description
	// sequence. The append must be atomic: two concurrent writers for the
	// same user and day must both land, with no lost update and no second
	// record.
	UpsertActivity(ctx context.Context, userID string, day time.Time, text string) (*v1.Activity, error)

	// FindActivities returns the user's activities ordered most-recent-first.
	// A zero since means no lower bound. take <= 0 means no limit; skip
	// offsets into the ordered result.
	FindActivities(ctx context.Context, userID string, since time.Time, skip, take int) ([]*v1.Activity, error)

	// CountActivities returns the user's total number of activity records.
	CountActivities(ctx context.Context, userID string) (int, error)

	// ListActivityDays returns the user's distinct activity days, normalized
	// to midnight UTC. This is the streak calculator's input.
	ListActivityDays(ctx context.Context, userID string) ([]time.Time, error)

	// GetUser fetches the user record with its denormalized counters.
	// Returns ErrUserNotFound for unknown IDs.
	GetUser(ctx context.Context, userID string) (*v1.User, error)

	// UpdateUserCounters persists recomputed streak counters onto the user
	// record. The longest counter is max-merged with the stored value, so a
	// writer racing a concurrent recompute can never regress it. Returns
	// ErrUserNotFound when the user row is missing.
	UpdateUserCounters(ctx context.Context, userID string, current, longest int) error

	// ListStaleStreakUsers returns IDs of users whose persisted
	// current_streak is positive but whose most recent activity day is
	// strictly before the cutoff. The reconciler uses this to reset streaks
	// for users who stopped checking in.
	ListStaleStreakUsers(ctx context.Context, lastDayBefore time.Time, limit int) ([]string, error)
}
