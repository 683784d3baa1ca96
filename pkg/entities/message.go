package entities

import "time"

// Media types produced by the classifier. The set is closed: every stored
// message with media carries exactly one of these.
const (
	MediaTypePhoto         = "photo"
	MediaTypeVideo         = "video"
	MediaTypeVideoNote     = "video_note"
	MediaTypeAudio         = "audio"
	MediaTypeVoice         = "voice"
	MediaTypeSticker       = "sticker"
	MediaTypeAnimation     = "animation"
	MediaTypeDocument      = "document"
	MediaTypeDocumentImage = "document_image"
)

// MediaInfo describes a message attachment. The zero value means "no media";
// all other fields are meaningful only when HasMedia is true.
type MediaInfo struct {
	HasMedia  bool
	MediaType string
	FileID    string // source-side reference used for later download
	FileName  string
	FileSize  int64
	MimeType  string
}

// Message is the canonical record for one Telegram message. Ids are only
// unique within a chat, so identity is the (ID, ChatID) pair.
type Message struct {
	ID         int64
	ChatID     int64
	ChatTitle  string // filled on reads by joining chats; not stored per message
	SenderID   int64
	SenderName string
	Content    string
	Timestamp  time.Time
	IsFromMe   bool

	Media MediaInfo

	// LocalPath is set once the attachment has been downloaded. It is the only
	// field mutated after creation outside of content edits.
	LocalPath string
}

func (m *Message) HasText() bool {
	return m.Content != ""
}

// Empty reports whether the message carries no user-visible information and
// must never be persisted.
func (m *Message) Empty() bool {
	return m.Content == "" && !m.Media.HasMedia
}

// MessageContext is a window of messages around one anchor message. Before is
// ordered closest-first (newest of the earlier messages first), After is
// chronological.
type MessageContext struct {
	Message Message
	Before  []Message
	After   []Message
}
