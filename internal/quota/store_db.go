package quota

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// DBStore keeps counters in the quota_counters table so every replica
// sees the same budget. Each statement increments only while the row is
// under the limit, so the stored count never exceeds it.
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Take(ctx context.Context, userID, endpoint string, windowStart time.Time, limit int64) (int64, bool, error) {
	var used int64
	res := s.db.WithContext(ctx).Raw(
		`UPDATE quota_counters
		SET used = used + 1
		WHERE user_id = ? AND endpoint = ? AND window_start = ? AND used < ?
		RETURNING used`,
		userID, endpoint, windowStart, limit,
	).Scan(&used)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected > 0 {
		return used, true, nil
	}

	// No live row for this window: insert one, or reset a row left over
	// from an earlier window. A same-window row at the limit makes both
	// paths no-ops.
	res = s.db.WithContext(ctx).Raw(
		`INSERT INTO quota_counters (user_id, endpoint, window_start, used)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, endpoint) DO UPDATE
		SET used = 1, window_start = excluded.window_start
		WHERE quota_counters.window_start <> excluded.window_start
		RETURNING used`,
		userID, endpoint, windowStart,
	).Scan(&used)
	if res.Error != nil {
		return 0, false, res.Error
	}
	if res.RowsAffected > 0 {
		return used, true, nil
	}
	return limit, false, nil
}
