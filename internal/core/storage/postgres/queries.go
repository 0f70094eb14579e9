package postgres

// SQL for activity and user-counter storage.

const (
	// queryUpsertActivity implements create-or-append for one (user, day)
	// pair. The UNIQUE (user_id, activity_date) constraint serializes
	// concurrent same-day writers: the conflicting writer's description is
	// concatenated onto the existing array, so neither append is lost.
	queryUpsertActivity = `
		INSERT INTO activities (id, user_id, activity_date, descriptions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (user_id, activity_date)
		DO UPDATE SET
			descriptions = activities.descriptions || EXCLUDED.descriptions,
			updated_at = now()
		RETURNING id, user_id, activity_date, descriptions, created_at, updated_at
	`

	// queryFindActivities serves both the windowed and the paginated read
	// paths. $2 is an optional lower bound (NULL means unbounded); a
	// non-positive $4 disables the LIMIT.
	queryFindActivities = `
		SELECT id, user_id, activity_date, descriptions, created_at, updated_at
		FROM activities
		WHERE user_id = $1
		  AND ($2::date IS NULL OR activity_date >= $2::date)
		ORDER BY activity_date DESC
		OFFSET $3
		LIMIT CASE WHEN $4::int <= 0 THEN NULL ELSE $4::int END
	`

	queryCountActivities = `
		SELECT COUNT(*)
		FROM activities
		WHERE user_id = $1
	`

	// queryListActivityDays feeds the streak calculator. Days are distinct
	// by the uniqueness constraint; ascending order is a convenience, the
	// calculator sorts defensively anyway.
	queryListActivityDays = `
		SELECT activity_date
		FROM activities
		WHERE user_id = $1
		ORDER BY activity_date ASC
	`

	queryGetUser = `
		SELECT id, current_streak, longest_streak, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	// queryUpdateUserCounters persists recomputed counters. GREATEST keeps
	// longest_streak monotonic even when two writers interleave their
	// read-compute-write cycles.
	queryUpdateUserCounters = `
		UPDATE users
		SET current_streak = $2, longest_streak = GREATEST(longest_streak, $3), updated_at = now()
		WHERE id = $1
	`

	// queryListStaleStreakUsers finds users whose persisted current streak
	// can no longer be right: positive counter but no activity since the
	// cutoff day. Used by the background reconciler.
	queryListStaleStreakUsers = `
		SELECT u.id
		FROM users u
		LEFT JOIN (
			SELECT user_id, MAX(activity_date) AS last_day
			FROM activities
			GROUP BY user_id
		) a ON a.user_id = u.id
		WHERE u.current_streak > 0
		  AND (a.last_day IS NULL OR a.last_day < $1::date)
		ORDER BY u.id
		LIMIT $2
	`
)
