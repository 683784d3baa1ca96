package entities

import "time"

type ChatType string

const (
	ChatTypeUser       ChatType = "user"
	ChatTypeGroup      ChatType = "group"
	ChatTypeSupergroup ChatType = "supergroup"
	ChatTypeChannel    ChatType = "channel"
)

// Chat is the canonical record for one Telegram conversation, keyed by the
// source-side chat id.
type Chat struct {
	ID       int64
	Title    string
	Username string // optional handle, empty if the chat has none

	Type ChatType

	// LastMessageTime is known only when the chat was observed through a
	// dialog listing or a live message. Nil means "not provided": an upsert
	// with a nil value keeps whatever the store already has.
	LastMessageTime *time.Time
}
