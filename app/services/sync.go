package services

import (
	"context"
	"errors"
	"fmt"

	"nuclight.org/telegram-bridge/app/storage"
	"nuclight.org/telegram-bridge/app/telegram"
	e "nuclight.org/telegram-bridge/pkg/entities"
	"nuclight.org/telegram-bridge/pkg/logger"
	"nuclight.org/telegram-bridge/pkg/mutex"
)

const (
	// quickSyncMessageLimit caps per-chat history in quick mode.
	quickSyncMessageLimit = 100

	// progressLogInterval is how many stored messages pass between progress
	// log lines during a long sync.
	progressLogInterval = 500
)

// Sync pulls chats and messages from Telegram into the store. Every write is
// an idempotent upsert keyed on natural identity, so both entry points are
// safe to re-run and safe to interleave with the live event path.
type Sync struct {
	// Log is a logger
	Log logger.Logger

	// Client is the Telegram client
	Client TelegramClient

	// Chats is the chat store
	Chats ChatStore

	// Messages is the message store
	Messages MessageStore

	// Normalizer converts raw shapes to canonical records
	Normalizer *Normalizer

	// locks serializes history syncs per chat
	locks mutex.ChatMutex
}

// SyncAllDialogs fetches up to dialogLimit dialogs and syncs each one's
// history. A failing dialog is logged and skipped; the rest of the run
// continues. With fullSync unset and no explicit messageLimit, each chat is
// capped at the quick-sync limit.
func (s *Sync) SyncAllDialogs(ctx context.Context, dialogLimit, messageLimit int, fullSync bool) error {
	s.Log.Info("starting dialog synchronization", "dialog_limit", dialogLimit, "full_sync", fullSync)

	dialogs, err := s.Client.GetDialogs(ctx, dialogLimit)
	if err != nil {
		return fmt.Errorf("fetching dialogs: %w", err)
	}

	for i, dialog := range dialogs {
		log := s.Log.With("chat_id", dialog.Entity.EntityID())
		log.Info("syncing dialog", "n", i+1, "total", len(dialogs))

		if err := s.syncDialog(ctx, dialog, messageLimit, fullSync); err != nil {
			log.Error("syncing dialog", "error", err)
		}
	}

	s.Log.Info("completed dialog synchronization", "dialogs", len(dialogs))
	return nil
}

func (s *Sync) syncDialog(ctx context.Context, dialog telegram.Dialog, messageLimit int, fullSync bool) error {
	chat := s.Normalizer.ProcessDialog(dialog)
	if chat == nil {
		s.Log.Warn("could not process dialog", "chat_id", dialog.Entity.EntityID())
		return nil
	}

	if err := s.Chats.UpsertChat(ctx, *chat); err != nil {
		return fmt.Errorf("upserting chat: %w", err)
	}

	limit := messageLimit
	if !fullSync && limit == 0 {
		limit = quickSyncMessageLimit
	}

	count, err := s.syncMessages(ctx, chat, limit)
	if err != nil {
		return err
	}
	s.Log.Info("synced messages", "chat_title", chat.Title, "count", count)
	return nil
}

// SyncChatHistory syncs one chat's complete history. Repeated calls resume
// from the stored watermark: with no new remote messages the second run
// stores zero rows. The chat record is upserted without a last-message time,
// which is not available from the entity handle alone.
func (s *Sync) SyncChatHistory(ctx context.Context, chatID int64) (bool, string, int) {
	ent, err := s.Client.GetEntity(ctx, chatID)
	if err != nil {
		s.Log.Error("resolving chat for sync", "chat_id", chatID, "error", err)
		if errors.Is(err, telegram.ErrEntityNotFound) {
			return false, fmt.Sprintf("Chat %d not found", chatID), 0
		}
		return false, fmt.Sprintf("Error: %v", err), 0
	}

	chat := s.Normalizer.ProcessChatEntity(ent)
	if chat == nil {
		return false, fmt.Sprintf("Chat %d not found", chatID), 0
	}
	chat.LastMessageTime = nil

	if err := s.Chats.UpsertChat(ctx, *chat); err != nil {
		s.Log.Error("upserting chat", "chat_id", chatID, "error", err)
		return false, fmt.Sprintf("Error: %v", err), 0
	}

	count, err := s.syncMessages(ctx, chat, 0)
	if err != nil {
		s.Log.Error("syncing chat history", "chat_id", chatID, "error", err)
		return false, fmt.Sprintf("Error: %v", err), count
	}

	return true, fmt.Sprintf("Synced %d messages from %s", count, chat.Title), count
}

// syncMessages streams a chat's history from the watermark and upserts each
// normalized message. Returns the number of stored messages. An iteration
// failure aborts this chat's run but keeps everything already committed.
func (s *Sync) syncMessages(ctx context.Context, chat *e.Chat, limit int) (int, error) {
	s.locks.Lock(chat.ID)
	defer s.locks.Unlock(chat.ID)

	minID, err := s.Messages.LastMessageID(ctx, chat.ID)
	if err != nil {
		return 0, fmt.Errorf("reading watermark: %w", err)
	}

	iter, err := s.Client.IterMessages(chat.ID, limit, minID)
	if err != nil {
		return 0, fmt.Errorf("iterating messages: %w", err)
	}

	count := 0
	for iter.Next(ctx) {
		msg := s.Normalizer.ProcessMessage(ctx, iter.Message())
		if msg == nil {
			continue
		}
		if err := s.Messages.UpsertMessage(ctx, *msg); err != nil {
			return count, fmt.Errorf("upserting message: %w", err)
		}
		count++
		if count%progressLogInterval == 0 {
			s.Log.Info("sync progress", "chat_title", chat.Title, "count", count)
		}
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("iterating messages: %w", err)
	}
	return count, nil
}

// HandleNewMessage is the live event path: one message observed on the
// update stream is normalized and upserted together with its chat. Safe to
// run concurrently with an explicit sync because both sides upsert.
func (s *Sync) HandleNewMessage(ctx context.Context, raw *telegram.RawMessage) {
	msg := s.Normalizer.ProcessMessage(ctx, raw)
	if msg == nil {
		return
	}

	chatEnt := raw.Chat
	if chatEnt == nil {
		if ent, err := s.Client.GetEntity(ctx, raw.ChatID); err == nil {
			chatEnt = ent
		}
	}
	if chatEnt != nil {
		if chat := s.Normalizer.ProcessChatEntity(chatEnt); chat != nil {
			t := raw.Date
			chat.LastMessageTime = &t
			if err := s.Chats.UpsertChat(ctx, *chat); err != nil {
				s.Log.Error("upserting chat from event", "chat_id", chat.ID, "error", err)
			}
		}
	}

	if err := s.Messages.UpsertMessage(ctx, *msg); err != nil {
		s.Log.Error("storing message from event", "chat_id", msg.ChatID, "message_id", msg.ID, "error", err)
		return
	}

	s.Log.Info("stored message", "chat_title", msg.ChatTitle, "sender", msg.SenderName, "preview", messagePreview(msg.Content))
}

// messagePreview shortens content for log lines, cutting on a rune boundary
// so multi-byte text stays valid.
func messagePreview(content string) string {
	if content == "" {
		return "[media]"
	}
	runes := []rune(content)
	if len(runes) > 30 {
		return string(runes[:30])
	}
	return content
}

// TelegramClient is the consumed surface of the Telegram client.
type TelegramClient interface {
	IsConnected() bool
	Me(ctx context.Context) (*telegram.User, error)
	GetDialogs(ctx context.Context, limit int) ([]telegram.Dialog, error)
	GetEntity(ctx context.Context, id int64) (telegram.Entity, error)
	ResolveUsername(ctx context.Context, username string) (telegram.Entity, error)
	GetMessage(ctx context.Context, chatID, messageID int64) (*telegram.RawMessage, error)
	IterMessages(chatID int64, limit int, minID int64) (telegram.MessageIter, error)
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.RawMessage, error)
	DownloadMedia(ctx context.Context, msg *telegram.RawMessage, path string) (string, error)
}

// ChatStore is the consumed chat persistence surface.
type ChatStore interface {
	UpsertChat(ctx context.Context, chat e.Chat) error
	GetChats(ctx context.Context, filter storage.ChatFilter) ([]e.Chat, error)
	GetChatByID(ctx context.Context, chatID int64) (*e.Chat, error)
}

// MessageStore is the consumed message persistence surface.
type MessageStore interface {
	UpsertMessage(ctx context.Context, msg e.Message) error
	SetLocalPath(ctx context.Context, messageID, chatID int64, path string) (bool, error)
	GetMessageByID(ctx context.Context, messageID, chatID int64) (*e.Message, error)
	GetMessagesWithMedia(ctx context.Context, chatID *int64, mediaType string, limit, offset int) ([]e.Message, error)
	LastMessageID(ctx context.Context, chatID int64) (int64, error)
}
