package cache

import "fmt"

// Cache keys are shaped so that every query result for one user shares one of
// a small set of user-scoped prefixes. The write path invalidates by those
// prefixes, which removes every listing/streak variant (any window, any page)
// in one call.

func ActivitiesWindowKey(userID string, windowDays int) string {
	return fmt.Sprintf("activities:%s:window:%d", userID, windowDays)
}

func ActivitiesPageKey(userID string, page, limit int) string {
	return fmt.Sprintf("activities:%s:all:%d:%d", userID, page, limit)
}

func CurrentStreakKey(userID string) string {
	return fmt.Sprintf("streak:%s:current", userID)
}

func LongestStreakKey(userID string) string {
	return fmt.Sprintf("streak:%s:longest", userID)
}

// UserPrefixes returns every prefix the write path must invalidate before it
// returns, so no pre-write entry can outlive the write.
func UserPrefixes(userID string) []string {
	return []string{
		"activities:" + userID,
		"streak:" + userID,
		"user:" + userID,
	}
}
