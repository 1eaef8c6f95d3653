package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertMessageBatch writes a page of messages plus nested favorites,
// attachments, and mentions in a single transaction. Re-applying a batch is
// idempotent: messages overwrite on conflict, favorites are set-like, and
// attachments/mentions are replaced wholesale for each message.
func (db *DB) UpsertMessageBatch(msgs []*Message) error {
	if len(msgs) == 0 {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().Unix()
	for _, m := range msgs {
		if m.UserID != "" {
			if err := upsertUser(tx, m.UserID, m.SenderName, m.SenderAvatarURL, now); err != nil {
				return fmt.Errorf("upsert user %s: %w", m.UserID, err)
			}
		}

		if _, err := tx.Exec(`
			INSERT INTO messages (id, group_id, user_id, source_guid, created_at, text, system, sender_name, sender_avatar_url, raw, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				text = excluded.text,
				system = excluded.system,
				sender_name = excluded.sender_name,
				sender_avatar_url = excluded.sender_avatar_url,
				raw = excluded.raw,
				fetched_at = excluded.fetched_at`,
			m.ID, m.GroupID, nullIfEmpty(m.UserID), m.SourceGUID, m.CreatedAt, m.Text, m.System,
			m.SenderName, m.SenderAvatarURL, m.Raw, now); err != nil {
			return fmt.Errorf("upsert message %s: %w", m.ID, err)
		}

		for _, userID := range m.FavoritedBy {
			if err := ensureUser(tx, userID, now); err != nil {
				return fmt.Errorf("ensure liker %s: %w", userID, err)
			}
			if _, err := tx.Exec(`
				INSERT INTO message_favorites (message_id, user_id, created_at)
				VALUES (?, ?, ?)
				ON CONFLICT(message_id, user_id) DO NOTHING`,
				m.ID, userID, now); err != nil {
				return fmt.Errorf("insert favorite: %w", err)
			}
		}

		// Replace-on-write keeps surrogate-keyed children idempotent.
		if _, err := tx.Exec(`DELETE FROM attachments WHERE message_id = ?`, m.ID); err != nil {
			return fmt.Errorf("clear attachments: %w", err)
		}
		for _, a := range m.Attachments {
			if _, err := tx.Exec(`
				INSERT INTO attachments (message_id, type, url, location_name, latitude, longitude, token, placeholder, charmap, raw)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				m.ID, a.Type, a.URL, a.LocationName, a.Latitude, a.Longitude, a.Token, a.Placeholder, a.Charmap, a.Raw); err != nil {
				return fmt.Errorf("insert attachment: %w", err)
			}
		}

		if _, err := tx.Exec(`DELETE FROM mentions WHERE message_id = ?`, m.ID); err != nil {
			return fmt.Errorf("clear mentions: %w", err)
		}
		for _, mn := range m.Mentions {
			if err := ensureUser(tx, mn.UserID, now); err != nil {
				return fmt.Errorf("ensure mentioned user %s: %w", mn.UserID, err)
			}
			if _, err := tx.Exec(`
				INSERT INTO mentions (message_id, user_id, start_position, length)
				VALUES (?, ?, ?, ?)`,
				m.ID, mn.UserID, mn.StartPosition, mn.Length); err != nil {
				return fmt.Errorf("insert mention: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// upsertUser refreshes a user's current profile from a message snapshot.
func upsertUser(tx *sql.Tx, id, name, avatarURL string, now int64) error {
	_, err := tx.Exec(`
		INSERT INTO users (id, name, avatar_url, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE users.avatar_url END,
			last_seen_at = excluded.last_seen_at`,
		id, name, avatarURL, now, now)
	return err
}

// ensureUser creates a placeholder user row so favorite/mention foreign keys
// hold even when the user never sent a message.
func ensureUser(tx *sql.Tx, id string, now int64) error {
	_, err := tx.Exec(`
		INSERT INTO users (id, name, avatar_url, first_seen_at, last_seen_at)
		VALUES (?, '', '', ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		id, now, now)
	return err
}

// CountMessages returns the number of stored messages for a group.
func (db *DB) CountMessages(groupID string) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE group_id = ?`, groupID).Scan(&n)
	return n, err
}

// ListMessages returns messages for a group in id order (ascending), used by
// tests and exports.
func (db *DB) ListMessages(groupID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT id, group_id, COALESCE(user_id, ''), source_guid, created_at, text, system, sender_name, sender_avatar_url, fetched_at
		FROM messages
		WHERE group_id = ?
		ORDER BY length(id), id
		LIMIT ?`, groupID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.GroupID, &m.UserID, &m.SourceGUID, &m.CreatedAt, &m.Text,
			&m.System, &m.SenderName, &m.SenderAvatarURL, &m.FetchedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
