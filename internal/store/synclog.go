package store

import "database/sql"

// RecordSyncLog appends a row to the sync audit trail.
func (db *DB) RecordSyncLog(l *SyncLog) error {
	_, err := db.Exec(`
		INSERT INTO sync_logs (run_id, group_id, started_at, completed_at, sync_type, messages_fetched, messages_written, status, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.RunID, nullIfEmpty(l.GroupID), l.StartedAt, l.CompletedAt, l.SyncType,
		l.MessagesFetched, l.MessagesWritten, l.Status, l.ErrorMessage)
	return err
}

// LastSyncLog returns the most recent sync log for a group, or nil.
func (db *DB) LastSyncLog(groupID string) (*SyncLog, error) {
	var l SyncLog
	var completedAt sql.NullInt64
	var errMsg sql.NullString
	err := db.QueryRow(`
		SELECT id, run_id, COALESCE(group_id, ''), started_at, completed_at, sync_type,
			messages_fetched, messages_written, status, error_message
		FROM sync_logs
		WHERE group_id = ?
		ORDER BY id DESC
		LIMIT 1`, groupID).
		Scan(&l.ID, &l.RunID, &l.GroupID, &l.StartedAt, &completedAt, &l.SyncType,
			&l.MessagesFetched, &l.MessagesWritten, &l.Status, &errMsg)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.CompletedAt = completedAt.Int64
	l.ErrorMessage = errMsg.String
	return &l, nil
}
