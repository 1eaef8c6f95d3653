package groupme

import "encoding/json"

// Group is a group as returned by the GroupMe API.
type Group struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	ImageURL      string        `json:"image_url"`
	CreatorUserID string        `json:"creator_user_id"`
	Type          string        `json:"type"`
	ShareURL      string        `json:"share_url"`
	CreatedAt     int64         `json:"created_at"`
	UpdatedAt     int64         `json:"updated_at"`
	Members       []GroupMember `json:"members"`
	Messages      MessagesInfo  `json:"messages"`
}

// GroupMember is a member entry inside a group payload.
type GroupMember struct {
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	ImageURL string `json:"image_url"`
}

// MessagesInfo is the message summary embedded in a group payload.
type MessagesInfo struct {
	Count                int64  `json:"count"`
	LastMessageID        string `json:"last_message_id"`
	LastMessageCreatedAt int64  `json:"last_message_created_at"`
}

// Message is a single message as returned by the API. Raw keeps the exact
// source JSON for forward compatibility.
type Message struct {
	ID          string       `json:"id"`
	SourceGUID  string       `json:"source_guid"`
	GroupID     string       `json:"group_id"`
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	AvatarURL   string       `json:"avatar_url"`
	Text        *string      `json:"text"`
	System      bool         `json:"system"`
	CreatedAt   int64        `json:"created_at"`
	FavoritedBy []string     `json:"favorited_by"`
	Attachments []Attachment `json:"attachments"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the message and retains the raw payload.
func (m *Message) UnmarshalJSON(data []byte) error {
	type alias Message
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*m = Message(a)
	m.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// Attachment is a typed message attachment. Fields are sparse by type;
// Raw keeps the complete payload.
type Attachment struct {
	Type        string          `json:"type"`
	URL         string          `json:"url"`
	Name        string          `json:"name"`
	Lat         string          `json:"lat"`
	Lng         string          `json:"lng"`
	Token       string          `json:"token"`
	Placeholder string          `json:"placeholder"`
	Charmap     json.RawMessage `json:"charmap"`

	// Mentions attachments.
	UserIDs []string `json:"user_ids"`
	Loci    [][]int  `json:"loci"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the attachment and retains the raw payload.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	type alias Attachment
	var aa alias
	if err := json.Unmarshal(data, &aa); err != nil {
		return err
	}
	*a = Attachment(aa)
	a.Raw = append(json.RawMessage(nil), data...)
	return nil
}
