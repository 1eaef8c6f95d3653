package store

import (
	"database/sql"
	"time"
)

// UpsertGroup inserts or updates group metadata. The sync watermark columns
// are never touched here; only the engine advances them.
func (db *DB) UpsertGroup(g *Group) error {
	_, err := db.Exec(`
		INSERT INTO groups (id, name, description, image_url, creator_user_id, type, share_url, member_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			image_url = excluded.image_url,
			creator_user_id = excluded.creator_user_id,
			type = excluded.type,
			share_url = excluded.share_url,
			member_count = excluded.member_count,
			updated_at = excluded.updated_at`,
		g.ID, g.Name, g.Description, g.ImageURL, g.CreatorUserID, g.Type, g.ShareURL, g.MemberCount, g.CreatedAt, g.UpdatedAt)
	return err
}

// GetGroup returns a group by id, or nil if not stored.
func (db *DB) GetGroup(id string) (*Group, error) {
	var g Group
	var updatedAt, lastSyncedAt sql.NullInt64
	err := db.QueryRow(`
		SELECT id, name, description, image_url, creator_user_id, type, share_url, member_count,
			created_at, updated_at, last_synced_at, last_synced_message_id
		FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.CreatorUserID, &g.Type, &g.ShareURL,
			&g.MemberCount, &g.CreatedAt, &updatedAt, &lastSyncedAt, &g.LastSyncedMessageID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	g.UpdatedAt = updatedAt.Int64
	g.LastSyncedAt = lastSyncedAt.Int64
	return &g, nil
}

// ListGroups returns all stored groups ordered by most recent sync first.
func (db *DB) ListGroups() ([]Group, error) {
	rows, err := db.Query(`
		SELECT id, name, description, image_url, creator_user_id, type, share_url, member_count,
			created_at, updated_at, last_synced_at, last_synced_message_id
		FROM groups
		ORDER BY last_synced_at DESC, name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var groups []Group
	for rows.Next() {
		var g Group
		var updatedAt, lastSyncedAt sql.NullInt64
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.ImageURL, &g.CreatorUserID, &g.Type,
			&g.ShareURL, &g.MemberCount, &g.CreatedAt, &updatedAt, &lastSyncedAt, &g.LastSyncedMessageID); err != nil {
			return nil, err
		}
		g.UpdatedAt = updatedAt.Int64
		g.LastSyncedAt = lastSyncedAt.Int64
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

// UpdateWatermark advances last_synced_message_id to messageID if and only if
// it represents progress. Message ids are decimal strings; comparing length
// first then lexicographically gives numeric order without overflow.
func (db *DB) UpdateWatermark(groupID, messageID string) error {
	now := time.Now().Unix()
	_, err := db.Exec(`
		UPDATE groups
		SET last_synced_message_id = ?, last_synced_at = ?
		WHERE id = ?
		  AND (last_synced_message_id IS NULL
		       OR length(last_synced_message_id) < length(?)
		       OR (length(last_synced_message_id) = length(?) AND last_synced_message_id < ?))`,
		messageID, now, groupID, messageID, messageID, messageID)
	return err
}

// ClearWatermark resets the sync state so the next run performs a full
// backfill.
func (db *DB) ClearWatermark(groupID string) error {
	_, err := db.Exec(`
		UPDATE groups SET last_synced_message_id = NULL, last_synced_at = NULL WHERE id = ?`,
		groupID)
	return err
}
