package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Entity is the closed set of peers a message or dialog can point at. The
// concrete types mirror what the wire gives us; everything downstream works
// with canonical records instead.
type Entity interface {
	entity()
	EntityID() int64
}

// User is a direct peer. Self marks the authenticated account.
type User struct {
	ID         int64
	AccessHash int64
	FirstName  string
	LastName   string
	Username   string
	Self       bool
}

// Group is a basic (small) group chat.
type Group struct {
	ID    int64
	Title string
}

// Channel covers both broadcast channels and large non-broadcast groups
// (supergroups); Broadcast tells them apart.
type Channel struct {
	ID         int64
	AccessHash int64
	Title      string
	Username   string
	Broadcast  bool
}

func (*User) entity()    {}
func (*Group) entity()   {}
func (*Channel) entity() {}

func (u *User) EntityID() int64    { return u.ID }
func (g *Group) EntityID() int64   { return g.ID }
func (c *Channel) EntityID() int64 { return c.ID }

// DisplayName builds a human-readable name for an entity. For users it is
// "First Last", falling back to the handle, falling back to "User <id>".
func DisplayName(e Entity) string {
	switch v := e.(type) {
	case *User:
		name := strings.TrimSpace(strings.TrimSpace(v.FirstName) + " " + strings.TrimSpace(v.LastName))
		if name != "" {
			return name
		}
		if v.Username != "" {
			return "@" + v.Username
		}
		return fmt.Sprintf("User %d", v.ID)
	case *Group:
		return v.Title
	case *Channel:
		return v.Title
	default:
		return ""
	}
}

// Dialog is one conversation handle from the dialog list, with its
// latest-activity timestamp when the source reported one.
type Dialog struct {
	Entity          Entity
	LastMessageTime time.Time // zero when unknown
}

// Media is the closed set of attachment payloads a raw message can carry.
type Media interface {
	media()
}

// Photo is a compressed image. The server keeps several resolution variants;
// Sizes lists them all.
type Photo struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	Sizes         []PhotoSize
}

type PhotoSize struct {
	Type string
	Size int64
}

// Document is the generic file payload: videos, audio, stickers, animations
// and plain files all arrive as documents distinguished by their attributes.
type Document struct {
	ID            int64
	AccessHash    int64
	FileReference []byte
	Size          int64
	MimeType      string
	Attributes    []DocumentAttribute
}

// WebPage is a link preview. It is a media payload on the wire but carries
// nothing downloadable.
type WebPage struct{}

func (*Photo) media()    {}
func (*Document) media() {}
func (*WebPage) media()  {}

// DocumentAttribute is the closed set of document annotations the classifier
// inspects.
type DocumentAttribute interface {
	documentAttribute()
}

type AttributeFilename struct {
	FileName string
}

type AttributeAudio struct {
	Duration int
	Voice    bool
}

type AttributeVideo struct {
	Duration     int
	W, H         int
	RoundMessage bool
}

type AttributeSticker struct {
	Alt string
}

type AttributeAnimated struct{}

func (*AttributeFilename) documentAttribute() {}
func (*AttributeAudio) documentAttribute()    {}
func (*AttributeVideo) documentAttribute()    {}
func (*AttributeSticker) documentAttribute()  {}
func (*AttributeAnimated) documentAttribute() {}

// RawMessage is one message as fetched from the source, before normalization.
// Chat and Sender are filled from the entities that came with the same page
// or update and may be nil when the source did not include them.
type RawMessage struct {
	ID       int64
	ChatID   int64
	Chat     Entity
	SenderID int64
	Sender   Entity
	Text     string
	Date     time.Time
	Media    Media // nil when the message has no media payload
}

// MessageIter walks a chat's history newest-first, fetching pages lazily.
// Usage follows bufio.Scanner: Next, then Message, then Err after the loop.
type MessageIter interface {
	Next(ctx context.Context) bool
	Message() *RawMessage
	Err() error
}
