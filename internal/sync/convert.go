package sync

import (
	"database/sql"

	"github.com/spaceisawaste/groupme-backup/internal/groupme"
	"github.com/spaceisawaste/groupme-backup/internal/store"
)

func groupFromRemote(g *groupme.Group) *store.Group {
	return &store.Group{
		ID:            g.ID,
		Name:          g.Name,
		Description:   g.Description,
		ImageURL:      g.ImageURL,
		CreatorUserID: g.CreatorUserID,
		Type:          g.Type,
		ShareURL:      g.ShareURL,
		MemberCount:   len(g.Members),
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func batchFromRemote(groupID string, msgs []groupme.Message) []*store.Message {
	out := make([]*store.Message, 0, len(msgs))
	for i := range msgs {
		out = append(out, messageFromRemote(groupID, &msgs[i]))
	}
	return out
}

func messageFromRemote(groupID string, m *groupme.Message) *store.Message {
	sm := &store.Message{
		ID:              m.ID,
		GroupID:         groupID,
		UserID:          m.UserID,
		SourceGUID:      m.SourceGUID,
		CreatedAt:       m.CreatedAt,
		System:          m.System,
		SenderName:      m.Name,
		SenderAvatarURL: m.AvatarURL,
		Raw:             m.Raw,
		FavoritedBy:     m.FavoritedBy,
	}
	if m.Text != nil {
		sm.Text = sql.NullString{String: *m.Text, Valid: true}
	}

	for _, a := range m.Attachments {
		// Mentions travel as an attachment on the wire but are stored
		// relationally, not as opaque payloads.
		if a.Type == "mentions" {
			for i, userID := range a.UserIDs {
				mn := store.Mention{MessageID: m.ID, UserID: userID}
				if i < len(a.Loci) && len(a.Loci[i]) == 2 {
					mn.StartPosition = sql.NullInt64{Int64: int64(a.Loci[i][0]), Valid: true}
					mn.Length = sql.NullInt64{Int64: int64(a.Loci[i][1]), Valid: true}
				}
				sm.Mentions = append(sm.Mentions, mn)
			}
			continue
		}

		sm.Attachments = append(sm.Attachments, store.Attachment{
			MessageID:    m.ID,
			Type:         a.Type,
			URL:          a.URL,
			LocationName: a.Name,
			Latitude:     a.Lat,
			Longitude:    a.Lng,
			Token:        a.Token,
			Placeholder:  a.Placeholder,
			Charmap:      a.Charmap,
			Raw:          a.Raw,
		})
	}
	return sm
}
