package store

import (
	"database/sql"
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testGroup(t *testing.T, db *DB, id string) {
	t.Helper()
	if err := db.UpsertGroup(&Group{ID: id, Name: "Group " + id, CreatedAt: 1000}); err != nil {
		t.Fatal(err)
	}
}

func textPtr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestGroupUpsertPreservesWatermark(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	if err := db.UpdateWatermark("g1", "500"); err != nil {
		t.Fatal(err)
	}

	// Metadata refresh must not touch the watermark.
	if err := db.UpsertGroup(&Group{ID: "g1", Name: "Renamed", MemberCount: 12, CreatedAt: 1000}); err != nil {
		t.Fatal(err)
	}

	g, err := db.GetGroup("g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.Name != "Renamed" || g.MemberCount != 12 {
		t.Errorf("metadata not updated: %+v", g)
	}
	if !g.LastSyncedMessageID.Valid || g.LastSyncedMessageID.String != "500" {
		t.Errorf("watermark = %v, want 500 (untouched)", g.LastSyncedMessageID)
	}
}

func TestWatermarkMonotonic(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	steps := []struct {
		id   string
		want string
	}{
		{"500", "500"},
		{"999", "999"},
		{"1000", "1000"}, // longer id is numerically larger
		{"999", "1000"},  // regression attempt is a no-op
		{"998", "1000"},
		{"1001", "1001"},
	}
	for _, s := range steps {
		if err := db.UpdateWatermark("g1", s.id); err != nil {
			t.Fatal(err)
		}
		g, err := db.GetGroup("g1")
		if err != nil {
			t.Fatal(err)
		}
		if g.LastSyncedMessageID.String != s.want {
			t.Errorf("after UpdateWatermark(%s): watermark = %s, want %s", s.id, g.LastSyncedMessageID.String, s.want)
		}
	}
}

func TestClearWatermark(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	if err := db.UpdateWatermark("g1", "42"); err != nil {
		t.Fatal(err)
	}
	if err := db.ClearWatermark("g1"); err != nil {
		t.Fatal(err)
	}

	g, err := db.GetGroup("g1")
	if err != nil {
		t.Fatal(err)
	}
	if g.LastSyncedMessageID.Valid {
		t.Errorf("watermark = %v, want NULL after clear", g.LastSyncedMessageID)
	}
	if g.LastSyncedAt != 0 {
		t.Errorf("last_synced_at = %d, want 0 after clear", g.LastSyncedAt)
	}
}

func TestGetGroupMissing(t *testing.T) {
	db := testDB(t)
	g, err := db.GetGroup("nope")
	if err != nil {
		t.Fatal(err)
	}
	if g != nil {
		t.Errorf("expected nil for missing group, got %+v", g)
	}
}

func batchFixture() []*Message {
	return []*Message{
		{
			ID: "101", GroupID: "g1", UserID: "u1", CreatedAt: 1000,
			Text: textPtr("hello"), SenderName: "Alice",
			FavoritedBy: []string{"u2", "u3"},
			Attachments: []Attachment{
				{Type: "image", URL: "https://i.example/a.png"},
				{Type: "emoji", Placeholder: "x"},
			},
			Mentions: []Mention{
				{UserID: "u2", StartPosition: sql.NullInt64{Int64: 0, Valid: true}, Length: sql.NullInt64{Int64: 4, Valid: true}},
			},
			Raw: []byte(`{"id":"101"}`),
		},
		{
			ID: "102", GroupID: "g1", UserID: "u2", CreatedAt: 1001,
			Text: textPtr("hey"), SenderName: "Bob",
		},
	}
}

func TestMessageBatchIdempotent(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	batch := batchFixture()
	if err := db.UpsertMessageBatch(batch); err != nil {
		t.Fatal(err)
	}
	// Re-apply the same batch, as happens after a retried fetch.
	if err := db.UpsertMessageBatch(batch); err != nil {
		t.Fatal(err)
	}

	if n, _ := db.CountMessages("g1"); n != 2 {
		t.Errorf("messages = %d, want 2", n)
	}

	var likes, atts, mentions int
	if err := db.QueryRow(`SELECT COUNT(*) FROM message_favorites WHERE message_id = '101'`).Scan(&likes); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM attachments WHERE message_id = '101'`).Scan(&atts); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM mentions WHERE message_id = '101'`).Scan(&mentions); err != nil {
		t.Fatal(err)
	}
	if likes != 2 || atts != 2 || mentions != 1 {
		t.Errorf("likes/attachments/mentions = %d/%d/%d, want 2/2/1 (no duplicates)", likes, atts, mentions)
	}
}

func TestMessageBatchOverwritesOnConflict(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	if err := db.UpsertMessageBatch([]*Message{
		{ID: "101", GroupID: "g1", UserID: "u1", CreatedAt: 1000, Text: textPtr("v1"), SenderName: "Old Nick"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertMessageBatch([]*Message{
		{ID: "101", GroupID: "g1", UserID: "u1", CreatedAt: 1000, Text: textPtr("v2"), SenderName: "New Nick"},
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].Text.String != "v2" || msgs[0].SenderName != "New Nick" {
		t.Errorf("message = %+v, want overwritten values", msgs[0])
	}
}

func TestSenderSnapshotPreserved(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	// Same user posts under two different nicknames over time.
	if err := db.UpsertMessageBatch([]*Message{
		{ID: "101", GroupID: "g1", UserID: "u1", CreatedAt: 1000, SenderName: "Early Nick", Text: textPtr("a")},
		{ID: "102", GroupID: "g1", UserID: "u1", CreatedAt: 2000, SenderName: "Later Nick", Text: textPtr("b")},
	}); err != nil {
		t.Fatal(err)
	}

	msgs, err := db.ListMessages("g1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].SenderName != "Early Nick" || msgs[1].SenderName != "Later Nick" {
		t.Errorf("snapshots = %q/%q, want per-message nicknames", msgs[0].SenderName, msgs[1].SenderName)
	}

	// Current profile reflects the most recent snapshot.
	var name string
	if err := db.QueryRow(`SELECT name FROM users WHERE id = 'u1'`).Scan(&name); err != nil {
		t.Fatal(err)
	}
	if name != "Later Nick" {
		t.Errorf("users.name = %q, want Later Nick", name)
	}
}

func TestBatchAtomicOnFailure(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	// Second message violates the groups FK, so the whole batch must roll back.
	err := db.UpsertMessageBatch([]*Message{
		{ID: "101", GroupID: "g1", UserID: "u1", CreatedAt: 1000, Text: textPtr("ok")},
		{ID: "102", GroupID: "missing-group", UserID: "u1", CreatedAt: 1001, Text: textPtr("bad")},
	})
	if err == nil {
		t.Fatal("expected FK violation")
	}

	if n, _ := db.CountMessages("g1"); n != 0 {
		t.Errorf("messages after failed batch = %d, want 0 (atomic)", n)
	}
}

func TestSyncLogAppend(t *testing.T) {
	db := testDB(t)
	testGroup(t, db, "g1")

	if err := db.RecordSyncLog(&SyncLog{
		RunID: "run-1", GroupID: "g1", StartedAt: 100, CompletedAt: 110,
		SyncType: "full", MessagesFetched: 250, MessagesWritten: 250, Status: "completed",
	}); err != nil {
		t.Fatal(err)
	}
	if err := db.RecordSyncLog(&SyncLog{
		RunID: "run-2", GroupID: "g1", StartedAt: 200, CompletedAt: 205,
		SyncType: "incremental", Status: "failed", ErrorMessage: "remote unavailable",
	}); err != nil {
		t.Fatal(err)
	}

	last, err := db.LastSyncLog("g1")
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.RunID != "run-2" {
		t.Fatalf("last sync log = %+v, want run-2", last)
	}
	if last.Status != "failed" || last.ErrorMessage != "remote unavailable" {
		t.Errorf("failed log = %+v", last)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sync_logs WHERE group_id = 'g1'`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("sync_logs rows = %d, want 2 (append-only)", count)
	}
}
