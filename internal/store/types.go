package store

import "database/sql"

// Group is a backed-up group. LastSyncedMessageID is the sync watermark:
// the highest message id known to be durably stored.
type Group struct {
	ID                  string
	Name                string
	Description         string
	ImageURL            string
	CreatorUserID       string
	Type                string
	ShareURL            string
	MemberCount         int
	CreatedAt           int64
	UpdatedAt           int64
	LastSyncedAt        int64
	LastSyncedMessageID sql.NullString
}

// Message is a stored message. SenderName and SenderAvatarURL snapshot the
// sender at time of send; the users table carries the current profile.
type Message struct {
	ID              string
	GroupID         string
	UserID          string
	SourceGUID      string
	CreatedAt       int64
	Text            sql.NullString
	System          bool
	SenderName      string
	SenderAvatarURL string
	Raw             []byte
	FetchedAt       int64

	FavoritedBy []string
	Attachments []Attachment
	Mentions    []Mention
}

// Attachment belongs to exactly one message; typed opaque payload.
type Attachment struct {
	ID           int64
	MessageID    string
	Type         string
	URL          string
	LocationName string
	Latitude     string
	Longitude    string
	Token        string
	Placeholder  string
	Charmap      []byte
	Raw          []byte
}

// Mention records an @mention of a user within a message.
type Mention struct {
	ID            int64
	MessageID     string
	UserID        string
	StartPosition sql.NullInt64
	Length        sql.NullInt64
}

// SyncLog is one row of the append-only sync audit trail.
type SyncLog struct {
	ID              int64
	RunID           string
	GroupID         string
	StartedAt       int64
	CompletedAt     int64
	SyncType        string
	MessagesFetched int
	MessagesWritten int
	Status          string
	ErrorMessage    string
}
