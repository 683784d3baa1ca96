package services

import (
	"context"
	"strconv"
	"strings"

	"nuclight.org/telegram-bridge/app/telegram"
	e "nuclight.org/telegram-bridge/pkg/entities"
	"nuclight.org/telegram-bridge/pkg/logger"
)

// Normalizer converts raw Telegram shapes into canonical records. Lookups
// that fail degrade to defaults instead of aborting: a message is worth
// storing even when its sender cannot be resolved.
type Normalizer struct {
	// Log is a logger
	Log logger.Logger

	// Client is the Telegram client used for entity and self lookups
	Client TelegramClient
}

// ProcessChatEntity maps a raw peer to a canonical chat. Returns nil for
// entity kinds that cannot be represented as chats.
func (n *Normalizer) ProcessChatEntity(ent telegram.Entity) *e.Chat {
	switch v := ent.(type) {
	case *telegram.User:
		return &e.Chat{
			ID:       v.ID,
			Title:    telegram.DisplayName(v),
			Username: v.Username,
			Type:     e.ChatTypeUser,
		}
	case *telegram.Group:
		return &e.Chat{
			ID:    v.ID,
			Title: v.Title,
			Type:  e.ChatTypeGroup,
		}
	case *telegram.Channel:
		chatType := e.ChatTypeSupergroup
		if v.Broadcast {
			chatType = e.ChatTypeChannel
		}
		return &e.Chat{
			ID:       v.ID,
			Title:    v.Title,
			Username: v.Username,
			Type:     chatType,
		}
	default:
		n.Log.Warn("unknown chat entity type", "entity", ent)
		return nil
	}
}

// ProcessDialog maps a dialog handle to a canonical chat carrying the
// dialog's latest-activity time.
func (n *Normalizer) ProcessDialog(dialog telegram.Dialog) *e.Chat {
	chat := n.ProcessChatEntity(dialog.Entity)
	if chat == nil {
		return nil
	}
	if !dialog.LastMessageTime.IsZero() {
		t := dialog.LastMessageTime
		chat.LastMessageTime = &t
	}
	return chat
}

// ProcessMessage maps a raw message to a canonical record. Returns nil (not
// an error) for messages that must be skipped: no resolvable chat, or no text
// and no media.
func (n *Normalizer) ProcessMessage(ctx context.Context, raw *telegram.RawMessage) *e.Message {
	if raw == nil {
		return nil
	}

	chatEnt := raw.Chat
	if chatEnt == nil {
		ent, err := n.Client.GetEntity(ctx, raw.ChatID)
		if err != nil {
			n.Log.Debug("skipping message without resolvable chat", "chat_id", raw.ChatID, "message_id", raw.ID)
			return nil
		}
		chatEnt = ent
	}

	media := telegram.ExtractMediaInfo(raw)
	if raw.Text == "" && !media.HasMedia {
		return nil
	}

	chat := n.ProcessChatEntity(chatEnt)
	if chat == nil {
		return nil
	}

	senderName := "Unknown"
	if raw.Sender != nil {
		senderName = telegram.DisplayName(raw.Sender)
	} else if raw.SenderID != 0 {
		if ent, err := n.Client.GetEntity(ctx, raw.SenderID); err == nil {
			senderName = telegram.DisplayName(ent)
		} else {
			n.Log.Debug("could not resolve sender", "sender_id", raw.SenderID, "error", err)
		}
	}

	isFromMe := false
	if me, err := n.Client.Me(ctx); err == nil {
		isFromMe = raw.SenderID == me.ID
	} else {
		n.Log.Debug("could not resolve own account", "error", err)
	}

	return &e.Message{
		ID:         raw.ID,
		ChatID:     chat.ID,
		ChatTitle:  chat.Title,
		SenderID:   raw.SenderID,
		SenderName: senderName,
		Content:    raw.Text,
		Timestamp:  raw.Date,
		IsFromMe:   isFromMe,
		Media:      media,
	}
}

// FindEntityByNameOrID resolves a recipient handle against the live source:
// numeric ids directly, anything else as a username with a leading @
// stripped.
func (n *Normalizer) FindEntityByNameOrID(ctx context.Context, recipient string) (telegram.Entity, error) {
	if chatID, err := strconv.ParseInt(recipient, 10, 64); err == nil {
		return n.Client.GetEntity(ctx, chatID)
	}

	username := strings.TrimPrefix(recipient, "@")
	return n.Client.ResolveUsername(ctx, username)
}
