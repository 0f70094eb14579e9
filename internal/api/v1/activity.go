package v1

import (
	"fmt"
	"strings"
	"time"
)

// DayFormat is the wire format for calendar days (ISO 8601 date, no time component).
const DayFormat = "2006-01-02"

// Activity is one user's check-in record for a single calendar day.
// At most one Activity exists per (UserID, Date); additional check-ins on the
// same day append to Descriptions instead of creating new records.
type Activity struct {
	// ID is assigned by the store on first insert for a (user, day) pair.
	ID string `json:"id"`

	// UserID identifies the owner. Required.
	UserID string `json:"user_id"`

	// Date is the activity day, normalized to midnight UTC.
	Date time.Time `json:"date"`

	// Descriptions accumulates the text of every check-in recorded for this
	// day, in arrival order.
	Descriptions []string `json:"descriptions"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User carries the denormalized streak counters maintained by the
// aggregation service. The Activity history is the source of truth;
// these counters exist for fast reads.
type User struct {
	ID            string    `json:"id"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SaveActivityRequest is the write-path request body.
type SaveActivityRequest struct {
	// Date is the ISO calendar day ("2006-01-02"). Empty means today.
	Date string `json:"date"`

	// Description is the check-in text. Required, non-empty after trimming.
	Description string `json:"description"`
}

// Validate checks the request and resolves Date to a normalized day.
// now supplies the reference clock so handlers stay deterministic in tests.
func (r *SaveActivityRequest) Validate(now time.Time) (time.Time, error) {
	if strings.TrimSpace(r.Description) == "" {
		return time.Time{}, fmt.Errorf("description is required")
	}

	if r.Date == "" {
		return now.UTC().Truncate(24 * time.Hour), nil
	}

	day, err := time.Parse(DayFormat, r.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", r.Date, err)
	}
	return day.UTC(), nil
}

// ActivityPage is the paginated listing envelope returned by the
// all-activities read path.
type ActivityPage struct {
	Activities  []*Activity `json:"activities"`
	TotalCount  int         `json:"total_count"`
	TotalPages  int         `json:"total_pages"`
	CurrentPage int         `json:"current_page"`
}
