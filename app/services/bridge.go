package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"nuclight.org/telegram-bridge/app/storage"
	"nuclight.org/telegram-bridge/app/telegram"
	e "nuclight.org/telegram-bridge/pkg/entities"
	"nuclight.org/telegram-bridge/pkg/logger"
)

// Bridge answers the interactive operations: sending, downloading media and
// listing attachments. Expected failures come back as (ok, message) pairs
// rather than errors so the caller always gets a human-readable outcome.
type Bridge struct {
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

	// DownloadDir is where attachments land when no directory is given
	DownloadDir string
}

// SendMessage resolves the recipient (live first, then the local store) and
// sends the text. The sent message is stored through the same normalize and
// upsert path as synced ones.
func (b *Bridge) SendMessage(ctx context.Context, recipient, text string) (bool, string) {
	if !b.Client.IsConnected() {
		return false, "Not connected to Telegram"
	}

	ent := b.resolveRecipient(ctx, recipient)
	if ent == nil {
		return false, fmt.Sprintf("Recipient not found: %s", recipient)
	}

	sent, err := b.Client.SendMessage(ctx, ent.EntityID(), text)
	if err != nil {
		b.Log.Error("sending message", "recipient", recipient, "error", err)
		return false, fmt.Sprintf("Failed to send message to %s", recipient)
	}

	if msg := b.Normalizer.ProcessMessage(ctx, sent); msg != nil {
		// The chat row must exist before the message references it.
		if chat := b.Normalizer.ProcessChatEntity(ent); chat != nil {
			if err := b.Chats.UpsertChat(ctx, *chat); err != nil {
				b.Log.Error("storing chat for sent message", "error", err)
			}
		}
		if err := b.Messages.UpsertMessage(ctx, *msg); err != nil {
			b.Log.Error("storing sent message", "error", err)
		}
	}
	return true, fmt.Sprintf("Message sent to %s", recipient)
}

// resolveRecipient tries the live lookup first and falls back to the local
// store, so previously-seen contacts stay reachable even when the live
// lookup fails.
func (b *Bridge) resolveRecipient(ctx context.Context, recipient string) telegram.Entity {
	ent, err := b.Normalizer.FindEntityByNameOrID(ctx, recipient)
	if err == nil {
		return ent
	}
	b.Log.Debug("live recipient lookup failed, trying store", "recipient", recipient, "error", err)

	if chatID, parseErr := strconv.ParseInt(recipient, 10, 64); parseErr == nil {
		chat, err := b.Chats.GetChatByID(ctx, chatID)
		if err != nil {
			return nil
		}
		return entityFromChat(chat)
	}

	chats, err := b.Chats.GetChats(ctx, storage.ChatFilter{Query: recipient, Limit: 1})
	if err != nil || len(chats) == 0 {
		return nil
	}
	return entityFromChat(&chats[0])
}

// entityFromChat rebuilds an addressable entity from a stored chat record.
func entityFromChat(chat *e.Chat) telegram.Entity {
	switch chat.Type {
	case e.ChatTypeUser:
		return &telegram.User{ID: chat.ID, FirstName: chat.Title, Username: chat.Username}
	case e.ChatTypeGroup:
		return &telegram.Group{ID: chat.ID, Title: chat.Title}
	case e.ChatTypeChannel:
		return &telegram.Channel{ID: chat.ID, Title: chat.Title, Username: chat.Username, Broadcast: true}
	case e.ChatTypeSupergroup:
		return &telegram.Channel{ID: chat.ID, Title: chat.Title, Username: chat.Username}
	default:
		return nil
	}
}

// DownloadMedia fetches a stored message's attachment to disk. A download
// that already happened and still exists is a no-op success. The database is
// only touched after the file is in place.
func (b *Bridge) DownloadMedia(ctx context.Context, messageID, chatID int64, downloadDir string) (bool, string, string) {
	if !b.Client.IsConnected() {
		return false, "Not connected to Telegram", ""
	}

	msg, err := b.Messages.GetMessageByID(ctx, messageID, chatID)
	if err != nil {
		return false, fmt.Sprintf("Message %d not found in chat %d", messageID, chatID), ""
	}
	if !msg.Media.HasMedia {
		return false, "Message does not have media", ""
	}
	if msg.LocalPath != "" && fileExists(msg.LocalPath) {
		return true, "Media already downloaded", msg.LocalPath
	}

	raw, err := b.Client.GetMessage(ctx, chatID, messageID)
	if err != nil {
		b.Log.Error("fetching message for download", "chat_id", chatID, "message_id", messageID, "error", err)
		return false, "Could not fetch message from Telegram", ""
	}
	if raw.Media == nil {
		return false, "Message no longer has media", ""
	}

	targetDir := downloadDir
	if targetDir == "" {
		targetDir = b.DownloadDir
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return false, fmt.Sprintf("Download error: %v", err), ""
	}

	fileName := msg.Media.FileName
	if fileName == "" {
		fileName = fmt.Sprintf("media_%d", messageID)
	}

	downloaded, err := b.Client.DownloadMedia(ctx, raw, filepath.Join(targetDir, fileName))
	if err != nil {
		b.Log.Error("downloading media", "chat_id", chatID, "message_id", messageID, "error", err)
		return false, fmt.Sprintf("Download error: %v", err), ""
	}

	if _, err := b.Messages.SetLocalPath(ctx, messageID, chatID, downloaded); err != nil {
		b.Log.Error("recording local path", "error", err)
	}
	return true, fmt.Sprintf("Downloaded to %s", downloaded), downloaded
}

// Attachment is one media-bearing message, with its on-disk state.
type Attachment struct {
	MessageID    int64     `json:"message_id"`
	ChatID       int64     `json:"chat_id"`
	SenderName   string    `json:"sender_name"`
	Timestamp    time.Time `json:"timestamp"`
	Content      string    `json:"content,omitempty"`
	MediaType    string    `json:"media_type"`
	FileName     string    `json:"file_name,omitempty"`
	FileSize     int64     `json:"file_size,omitempty"`
	MimeType     string    `json:"mime_type,omitempty"`
	IsDownloaded bool      `json:"is_downloaded"`
	LocalPath    string    `json:"local_path,omitempty"`
}

// GetAttachments lists stored messages with media, newest first.
func (b *Bridge) GetAttachments(ctx context.Context, chatID *int64, mediaType string, limit, offset int) ([]Attachment, error) {
	messages, err := b.Messages.GetMessagesWithMedia(ctx, chatID, mediaType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing media messages: %w", err)
	}

	attachments := make([]Attachment, 0, len(messages))
	for _, msg := range messages {
		attachments = append(attachments, Attachment{
			MessageID:    msg.ID,
			ChatID:       msg.ChatID,
			SenderName:   msg.SenderName,
			Timestamp:    msg.Timestamp,
			Content:      msg.Content,
			MediaType:    msg.Media.MediaType,
			FileName:     msg.Media.FileName,
			FileSize:     msg.Media.FileSize,
			MimeType:     msg.Media.MimeType,
			IsDownloaded: msg.LocalPath != "" && fileExists(msg.LocalPath),
			LocalPath:    msg.LocalPath,
		})
	}
	return attachments, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
