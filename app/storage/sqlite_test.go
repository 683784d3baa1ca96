package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	e "nuclight.org/telegram-bridge/pkg/entities"
)

func newTestDB(t *testing.T) *SQLite {
	t.Helper()

	db, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testMessage(id, chatID int64, ts time.Time) e.Message {
	return e.Message{
		ID:         id,
		ChatID:     chatID,
		SenderID:   100,
		SenderName: "Alice",
		Content:    "hello",
		Timestamp:  ts,
	}
}

func TestUpsertChatInsertAndUpdate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{
		ID:              1,
		Title:           "Alice",
		Username:        "alice",
		Type:            e.ChatTypeUser,
		LastMessageTime: &first,
	}))

	chat, err := db.GetChatByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Alice", chat.Title)
	require.Equal(t, "alice", chat.Username)
	require.NotNil(t, chat.LastMessageTime)
	require.True(t, chat.LastMessageTime.Equal(first))

	// Absent optional fields leave the stored values untouched.
	require.NoError(t, db.UpsertChat(ctx, e.Chat{
		ID:    1,
		Title: "Alice Smith",
		Type:  e.ChatTypeUser,
	}))

	chat, err = db.GetChatByID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Alice Smith", chat.Title)
	require.Equal(t, "alice", chat.Username)
	require.NotNil(t, chat.LastMessageTime)
	require.True(t, chat.LastMessageTime.Equal(first))

	// A fresher activity time replaces the stored one.
	second := first.Add(time.Hour)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{
		ID:              1,
		Title:           "Alice Smith",
		Type:            e.ChatTypeUser,
		LastMessageTime: &second,
	}))

	chat, err = db.GetChatByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, chat.LastMessageTime.Equal(second))
}

func TestGetChatByIDNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetChatByID(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetChatsFilterAndSort(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(24 * time.Hour)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "Work Chat", Type: e.ChatTypeGroup, LastMessageTime: &older}))
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 2, Title: "Family", Username: "fam", Type: e.ChatTypeGroup, LastMessageTime: &newer}))
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 3, Title: "News", Type: e.ChatTypeChannel, LastMessageTime: &newer}))

	chats, err := db.GetChats(ctx, ChatFilter{Query: "work"})
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, int64(1), chats[0].ID)

	// Username matches too.
	chats, err = db.GetChats(ctx, ChatFilter{Query: "fam"})
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, int64(2), chats[0].ID)

	chats, err = db.GetChats(ctx, ChatFilter{Type: e.ChatTypeChannel})
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, int64(3), chats[0].ID)

	// Default order is latest activity first.
	chats, err = db.GetChats(ctx, ChatFilter{})
	require.NoError(t, err)
	require.Len(t, chats, 3)
	require.Equal(t, int64(1), chats[2].ID)

	chats, err = db.GetChats(ctx, ChatFilter{SortBy: "title"})
	require.NoError(t, err)
	require.Equal(t, "Family", chats[0].Title)
	require.Equal(t, "News", chats[1].Title)
	require.Equal(t, "Work Chat", chats[2].Title)

	chats, err = db.GetChats(ctx, ChatFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, chats, 1)
}

func TestUpsertMessageSkipsEmpty(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	empty := e.Message{ID: 1, ChatID: 1, Timestamp: time.Now()}
	require.NoError(t, db.UpsertMessage(ctx, empty))

	_, err := db.GetMessageByID(ctx, 1, 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUpsertMessageIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	ts := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	msg := testMessage(10, 1, ts)
	require.NoError(t, db.UpsertMessage(ctx, msg))

	msg.Content = "edited"
	require.NoError(t, db.UpsertMessage(ctx, msg))

	stored, err := db.GetMessageByID(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, "edited", stored.Content)
	require.True(t, stored.Timestamp.Equal(ts))

	all, err := db.GetMessages(ctx, MessageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestUpsertMessagePreservesLocalPath(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	msg := testMessage(10, 1, time.Now())
	msg.Media = e.MediaInfo{HasMedia: true, MediaType: e.MediaTypePhoto, FileName: "photo_10.jpg"}
	require.NoError(t, db.UpsertMessage(ctx, msg))

	ok, err := db.SetLocalPath(ctx, 10, 1, "/tmp/photo_10.jpg")
	require.NoError(t, err)
	require.True(t, ok)

	// Re-syncing the same message must not discard the recorded path.
	require.NoError(t, db.UpsertMessage(ctx, msg))

	stored, err := db.GetMessageByID(ctx, 10, 1)
	require.NoError(t, err)
	require.Equal(t, "/tmp/photo_10.jpg", stored.LocalPath)
}

func TestSetLocalPathMissingMessage(t *testing.T) {
	db := newTestDB(t)

	ok, err := db.SetLocalPath(context.Background(), 99, 1, "/tmp/x")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMessageIdentityIsPerChat(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "a", Type: e.ChatTypeUser}))
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 2, Title: "b", Type: e.ChatTypeUser}))

	require.NoError(t, db.UpsertMessage(ctx, testMessage(10, 1, time.Now())))
	require.NoError(t, db.UpsertMessage(ctx, testMessage(10, 2, time.Now())))

	all, err := db.GetMessages(ctx, MessageFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestGetMessagesFilters(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "First", Type: e.ChatTypeUser}))
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 2, Title: "Second", Type: e.ChatTypeUser}))

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	msgs := []e.Message{
		{ID: 1, ChatID: 1, SenderID: 100, SenderName: "Alice", Content: "the plan", Timestamp: base},
		{ID: 2, ChatID: 1, SenderID: 200, SenderName: "Bob", Content: "sounds good", Timestamp: base.Add(time.Minute)},
		{ID: 3, ChatID: 2, SenderID: 100, SenderName: "Alice", Content: "other chat", Timestamp: base.Add(2 * time.Minute)},
	}
	for _, msg := range msgs {
		require.NoError(t, db.UpsertMessage(ctx, msg))
	}

	chatID := int64(1)
	got, err := db.GetMessages(ctx, MessageFilter{ChatID: &chatID})
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first, and the chat title is joined in.
	require.Equal(t, int64(2), got[0].ID)
	require.Equal(t, "First", got[0].ChatTitle)

	senderID := int64(100)
	got, err = db.GetMessages(ctx, MessageFilter{SenderID: &senderID})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = db.GetMessages(ctx, MessageFilter{Query: "plan"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1), got[0].ID)

	from := base.Add(30 * time.Second)
	to := base.Add(90 * time.Second)
	got, err = db.GetMessages(ctx, MessageFilter{From: &from, To: &to})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(2), got[0].ID)
}

func TestGetMessagesWithMedia(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	base := time.Now()
	text := testMessage(1, 1, base)
	require.NoError(t, db.UpsertMessage(ctx, text))

	photo := testMessage(2, 1, base.Add(time.Minute))
	photo.Media = e.MediaInfo{HasMedia: true, MediaType: e.MediaTypePhoto, FileName: "photo_2.jpg", MimeType: "image/jpeg"}
	require.NoError(t, db.UpsertMessage(ctx, photo))

	video := testMessage(3, 1, base.Add(2*time.Minute))
	video.Media = e.MediaInfo{HasMedia: true, MediaType: e.MediaTypeVideo, FileName: "clip.mp4", MimeType: "video/mp4"}
	require.NoError(t, db.UpsertMessage(ctx, video))

	got, err := db.GetMessagesWithMedia(ctx, nil, "", 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = db.GetMessagesWithMedia(ctx, nil, e.MediaTypeVideo, 50, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "clip.mp4", got[0].Media.FileName)
}

func TestGetMessageContextOrdering(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	// All five share one timestamp, so ordering falls back to message id.
	ts := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	for id := int64(1); id <= 5; id++ {
		require.NoError(t, db.UpsertMessage(ctx, testMessage(id, 1, ts)))
	}

	mctx, err := db.GetMessageContext(ctx, 3, 1, 2, 2)
	require.NoError(t, err)
	require.Equal(t, int64(3), mctx.Message.ID)

	// Before runs closest first, after runs chronologically.
	require.Len(t, mctx.Before, 2)
	require.Equal(t, int64(2), mctx.Before[0].ID)
	require.Equal(t, int64(1), mctx.Before[1].ID)

	require.Len(t, mctx.After, 2)
	require.Equal(t, int64(4), mctx.After[0].ID)
	require.Equal(t, int64(5), mctx.After[1].ID)
}

func TestGetMessageContextMissingAnchor(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetMessageContext(context.Background(), 1, 1, 5, 5)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastMessageID(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	require.NoError(t, db.UpsertChat(ctx, e.Chat{ID: 1, Title: "c", Type: e.ChatTypeUser}))

	id, err := db.LastMessageID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(0), id)

	require.NoError(t, db.UpsertMessage(ctx, testMessage(7, 1, time.Now())))
	require.NoError(t, db.UpsertMessage(ctx, testMessage(3, 1, time.Now())))

	id, err = db.LastMessageID(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)
}
