package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"nuclight.org/telegram-bridge/app/storage"
	"nuclight.org/telegram-bridge/app/telegram"
	e "nuclight.org/telegram-bridge/pkg/entities"
)

func newTestBridge(t *testing.T, client *fakeClient) (*Bridge, *storage.SQLite) {
	t.Helper()

	db := newTestStore(t)
	log := testLogger()
	return &Bridge{
		Log:         log,
		Client:      client,
		Chats:       db,
		Messages:    db,
		Normalizer:  &Normalizer{Log: log, Client: client},
		DownloadDir: t.TempDir(),
	}, db
}

func TestSendMessageNotConnected(t *testing.T) {
	bridge, _ := newTestBridge(t, &fakeClient{})

	ok, msg := bridge.SendMessage(context.Background(), "@alice", "hi")
	require.False(t, ok)
	require.Equal(t, "Not connected to Telegram", msg)
}

func TestSendMessageByUsername(t *testing.T) {
	ctx := context.Background()
	alice := &telegram.User{ID: 42, FirstName: "Alice", Username: "alice"}
	client := &fakeClient{
		connected: true,
		me:        &telegram.User{ID: 1, FirstName: "Me", Self: true},
		entities:  map[int64]telegram.Entity{42: alice},
		usernames: map[string]telegram.Entity{"alice": alice},
	}
	bridge, db := newTestBridge(t, client)

	ok, msg := bridge.SendMessage(ctx, "@alice", "hello there")
	require.True(t, ok)
	require.Equal(t, "Message sent to @alice", msg)
	require.Equal(t, []int64{42}, client.sentTo)
	require.Equal(t, []string{"hello there"}, client.sentText)

	// The sent message lands in the store through the normal path.
	stored, err := db.GetMessages(ctx, storage.MessageFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "hello there", stored[0].Content)
	require.True(t, stored[0].IsFromMe)
}

func TestSendMessageStoreFallback(t *testing.T) {
	ctx := context.Background()
	client := &fakeClient{
		connected: true,
		me:        &telegram.User{ID: 1, FirstName: "Me", Self: true},
	}
	bridge, db := newTestBridge(t, client)

	// Known only to the local store, not to the live client.
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 42, Title: "Alice", Username: "alice", Type: e.ChatTypeUser}))

	ok, _ := bridge.SendMessage(ctx, "42", "via id")
	require.True(t, ok)

	ok, _ = bridge.SendMessage(ctx, "Alice", "via title")
	require.True(t, ok)

	require.Equal(t, []int64{42, 42}, client.sentTo)
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	client := &fakeClient{
		connected: true,
		me:        &telegram.User{ID: 1, FirstName: "Me", Self: true},
	}
	bridge, _ := newTestBridge(t, client)

	ok, msg := bridge.SendMessage(context.Background(), "@nobody", "hi")
	require.False(t, ok)
	require.Equal(t, "Recipient not found: @nobody", msg)
}

func TestSendMessageFailure(t *testing.T) {
	alice := &telegram.User{ID: 42, FirstName: "Alice", Username: "alice"}
	client := &fakeClient{
		connected: true,
		me:        &telegram.User{ID: 1, FirstName: "Me", Self: true},
		usernames: map[string]telegram.Entity{"alice": alice},
		sendErr:   errors.New("flood wait"),
	}
	bridge, _ := newTestBridge(t, client)

	ok, msg := bridge.SendMessage(context.Background(), "@alice", "hi")
	require.False(t, ok)
	require.Equal(t, "Failed to send message to @alice", msg)
}

func storeMediaMessage(t *testing.T, db *storage.SQLite, id, chatID int64) {
	t.Helper()

	require.NoError(t, db.UpsertChat(context.Background(), e.Chat{ID: chatID, Title: "c", Type: e.ChatTypeUser}))
	require.NoError(t, db.UpsertMessage(context.Background(), e.Message{
		ID: id, ChatID: chatID, SenderID: 200, SenderName: "Alice",
		Timestamp: time.Now(),
		Media: e.MediaInfo{
			HasMedia:  true,
			MediaType: e.MediaTypePhoto,
			FileID:    "77",
			FileName:  "photo_3.jpg",
			MimeType:  "image/jpeg",
		},
	}))
}

func TestDownloadMedia(t *testing.T) {
	ctx := context.Background()
	chat := &telegram.Group{ID: 10, Title: "g"}
	client := &fakeClient{
		connected: true,
		me:        &telegram.User{ID: 1, FirstName: "Me", Self: true},
		history: map[int64][]*telegram.RawMessage{
			10: {{
				ID: 3, ChatID: 10, Chat: chat, SenderID: 200,
				Media: &telegram.Photo{ID: 77, Sizes: []telegram.PhotoSize{{Type: "y", Size: 100}}},
			}},
		},
	}
	bridge, db := newTestBridge(t, client)
	storeMediaMessage(t, db, 3, 10)

	dir := t.TempDir()
	ok, msg, path := bridge.DownloadMedia(ctx, 3, 10, dir)
	require.True(t, ok, msg)
	require.Equal(t, filepath.Join(dir, "photo_3.jpg"), path)
	require.FileExists(t, path)

	stored, err := db.GetMessageByID(ctx, 3, 10)
	require.NoError(t, err)
	require.Equal(t, path, stored.LocalPath)

	// Repeat download with the file in place is a no-op.
	ok, msg, again := bridge.DownloadMedia(ctx, 3, 10, dir)
	require.True(t, ok)
	require.Equal(t, "Media already downloaded", msg)
	require.Equal(t, path, again)

	// If the file disappears, the download runs again.
	require.NoError(t, os.Remove(path))
	ok, _, again = bridge.DownloadMedia(ctx, 3, 10, dir)
	require.True(t, ok)
	require.Equal(t, path, again)
	require.FileExists(t, path)
}

func TestDownloadMediaMissingMessage(t *testing.T) {
	bridge, _ := newTestBridge(t, &fakeClient{connected: true})

	ok, msg, _ := bridge.DownloadMedia(context.Background(), 1, 2, "")
	require.False(t, ok)
	require.Equal(t, "Message 1 not found in chat 2", msg)
}

func TestDownloadMediaNoMedia(t *testing.T) {
	ctx := context.Background()
	bridge, db := newTestBridge(t, &fakeClient{connected: true})

	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 10, Title: "c", Type: e.ChatTypeUser}))
	require.NoError(t, db.UpsertMessage(ctx, e.Message{
		ID: 1, ChatID: 10, Content: "text only", Timestamp: time.Now(),
	}))

	ok, msg, _ := bridge.DownloadMedia(ctx, 1, 10, "")
	require.False(t, ok)
	require.Equal(t, "Message does not have media", msg)
}

func TestGetAttachments(t *testing.T) {
	ctx := context.Background()
	bridge, db := newTestBridge(t, &fakeClient{connected: true})
	storeMediaMessage(t, db, 3, 10)

	attachments, err := bridge.GetAttachments(ctx, nil, "", 50, 0)
	require.NoError(t, err)
	require.Len(t, attachments, 1)
	require.Equal(t, e.MediaTypePhoto, attachments[0].MediaType)
	require.False(t, attachments[0].IsDownloaded)

	// Record a real file and the attachment shows as downloaded.
	path := filepath.Join(t.TempDir(), "photo_3.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	_, err = db.SetLocalPath(ctx, 3, 10, path)
	require.NoError(t, err)

	attachments, err = bridge.GetAttachments(ctx, nil, "", 50, 0)
	require.NoError(t, err)
	require.True(t, attachments[0].IsDownloaded)
	require.Equal(t, path, attachments[0].LocalPath)

	// Filter by media type.
	attachments, err = bridge.GetAttachments(ctx, nil, e.MediaTypeVideo, 50, 0)
	require.NoError(t, err)
	require.Empty(t, attachments)
}
