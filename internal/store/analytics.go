package store

import "database/sql"

// TimeRange bounds an analytics query. Zero values mean unbounded.
type TimeRange struct {
	Since int64
	Until int64
}

func (r TimeRange) bounds() (int64, int64) {
	since, until := r.Since, r.Until
	if until == 0 {
		until = 1<<62 - 1
	}
	return since, until
}

// PopularMessage is a message ranked by like count.
type PopularMessage struct {
	MessageID  string
	SenderName string
	Text       string
	CreatedAt  int64
	LikeCount  int
}

// MostPopularMessages returns the most-liked messages in a group.
func (db *DB) MostPopularMessages(groupID string, r TimeRange, limit int) ([]PopularMessage, error) {
	since, until := r.bounds()
	rows, err := db.Query(`
		SELECT m.id, m.sender_name, COALESCE(m.text, ''), m.created_at, COUNT(f.user_id) AS like_count
		FROM messages m
		JOIN message_favorites f ON f.message_id = m.id
		WHERE m.group_id = ? AND m.created_at BETWEEN ? AND ?
		GROUP BY m.id
		ORDER BY like_count DESC, m.created_at DESC
		LIMIT ?`, groupID, since, until, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []PopularMessage
	for rows.Next() {
		var p PopularMessage
		if err := rows.Scan(&p.MessageID, &p.SenderName, &p.Text, &p.CreatedAt, &p.LikeCount); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UserCount is a user ranked by some count (messages sent, likes received).
type UserCount struct {
	UserID string
	Name   string
	Count  int
}

// MostActiveUsers ranks users by messages sent in a group.
func (db *DB) MostActiveUsers(groupID string, r TimeRange, limit int) ([]UserCount, error) {
	since, until := r.bounds()
	return db.queryUserCounts(`
		SELECT m.user_id, COALESCE(NULLIF(u.name, ''), m.sender_name), COUNT(m.id) AS n
		FROM messages m
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ? AND m.user_id IS NOT NULL AND m.created_at BETWEEN ? AND ?
		GROUP BY m.user_id
		ORDER BY n DESC
		LIMIT ?`, groupID, since, until, limit)
}

// MostLikedUsers ranks users by total likes their messages received.
func (db *DB) MostLikedUsers(groupID string, r TimeRange, limit int) ([]UserCount, error) {
	since, until := r.bounds()
	return db.queryUserCounts(`
		SELECT m.user_id, COALESCE(NULLIF(u.name, ''), m.sender_name), COUNT(f.user_id) AS n
		FROM messages m
		JOIN message_favorites f ON f.message_id = m.id
		LEFT JOIN users u ON u.id = m.user_id
		WHERE m.group_id = ? AND m.user_id IS NOT NULL AND m.created_at BETWEEN ? AND ?
		GROUP BY m.user_id
		ORDER BY n DESC
		LIMIT ?`, groupID, since, until, limit)
}

func (db *DB) queryUserCounts(query string, args ...any) ([]UserCount, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []UserCount
	for rows.Next() {
		var u UserCount
		if err := rows.Scan(&u.UserID, &u.Name, &u.Count); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// GroupStats summarizes a group's stored history.
type GroupStats struct {
	TotalMessages  int
	UniqueSenders  int
	TotalLikes     int
	FirstMessageAt int64
	LastMessageAt  int64
}

// GroupStatistics computes summary statistics for a group.
func (db *DB) GroupStatistics(groupID string) (*GroupStats, error) {
	var s GroupStats
	var first, last sql.NullInt64
	err := db.QueryRow(`
		SELECT COUNT(m.id),
			COUNT(DISTINCT m.user_id),
			(SELECT COUNT(*) FROM message_favorites f JOIN messages fm ON fm.id = f.message_id WHERE fm.group_id = ?),
			MIN(m.created_at), MAX(m.created_at)
		FROM messages m
		WHERE m.group_id = ?`, groupID, groupID).
		Scan(&s.TotalMessages, &s.UniqueSenders, &s.TotalLikes, &first, &last)
	if err != nil {
		return nil, err
	}
	s.FirstMessageAt = first.Int64
	s.LastMessageAt = last.Int64
	return &s, nil
}

// HeatmapCell is message volume for one weekday/hour bucket.
type HeatmapCell struct {
	DayOfWeek int // 0 = Sunday
	Hour      int
	Count     int
}

// HourlyActivityHeatmap buckets message volume by weekday and hour (UTC).
func (db *DB) HourlyActivityHeatmap(groupID string, r TimeRange) ([]HeatmapCell, error) {
	since, until := r.bounds()
	rows, err := db.Query(`
		SELECT CAST(strftime('%w', created_at, 'unixepoch') AS INTEGER) AS dow,
			CAST(strftime('%H', created_at, 'unixepoch') AS INTEGER) AS hour,
			COUNT(*) AS n
		FROM messages
		WHERE group_id = ? AND created_at BETWEEN ? AND ?
		GROUP BY dow, hour
		ORDER BY dow, hour`, groupID, since, until)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []HeatmapCell
	for rows.Next() {
		var c HeatmapCell
		if err := rows.Scan(&c.DayOfWeek, &c.Hour, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
