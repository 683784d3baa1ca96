package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"nuclight.org/telegram-bridge/app/storage"
	"nuclight.org/telegram-bridge/app/telegram"
	"nuclight.org/telegram-bridge/pkg/logger"
)

// fakeClient is an in-memory TelegramClient for service tests.
type fakeClient struct {
	connected bool
	me        *telegram.User
	entities  map[int64]telegram.Entity
	usernames map[string]telegram.Entity
	dialogs   []telegram.Dialog
	history   map[int64][]*telegram.RawMessage

	sentTo   []int64
	sentText []string
	sendErr  error

	entityErr error
}

func (f *fakeClient) IsConnected() bool { return f.connected }

func (f *fakeClient) Me(ctx context.Context) (*telegram.User, error) {
	if f.me == nil {
		return nil, telegram.ErrNotAuthorized
	}
	return f.me, nil
}

func (f *fakeClient) GetDialogs(ctx context.Context, limit int) ([]telegram.Dialog, error) {
	if limit > 0 && limit < len(f.dialogs) {
		return f.dialogs[:limit], nil
	}
	return f.dialogs, nil
}

func (f *fakeClient) GetEntity(ctx context.Context, id int64) (telegram.Entity, error) {
	if f.entityErr != nil {
		return nil, f.entityErr
	}
	ent, ok := f.entities[id]
	if !ok {
		return nil, telegram.ErrEntityNotFound
	}
	return ent, nil
}

func (f *fakeClient) ResolveUsername(ctx context.Context, username string) (telegram.Entity, error) {
	ent, ok := f.usernames[username]
	if !ok {
		return nil, telegram.ErrEntityNotFound
	}
	return ent, nil
}

func (f *fakeClient) GetMessage(ctx context.Context, chatID, messageID int64) (*telegram.RawMessage, error) {
	for _, msg := range f.history[chatID] {
		if msg.ID == messageID {
			return msg, nil
		}
	}
	return nil, telegram.ErrMessageNotFound
}

func (f *fakeClient) IterMessages(chatID int64, limit int, minID int64) (telegram.MessageIter, error) {
	var out []*telegram.RawMessage
	for _, msg := range f.history[chatID] {
		if msg.ID <= minID {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return &fakeIter{messages: out}, nil
}

func (f *fakeClient) SendMessage(ctx context.Context, chatID int64, text string) (*telegram.RawMessage, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentTo = append(f.sentTo, chatID)
	f.sentText = append(f.sentText, text)
	return &telegram.RawMessage{
		ID:       int64(1000 + len(f.sentTo)),
		ChatID:   chatID,
		Chat:     f.entities[chatID],
		SenderID: f.me.ID,
		Sender:   f.me,
		Text:     text,
	}, nil
}

func (f *fakeClient) DownloadMedia(ctx context.Context, msg *telegram.RawMessage, path string) (string, error) {
	if msg.Media == nil {
		return "", telegram.ErrNoMedia
	}
	if err := os.WriteFile(path, []byte("content"), 0644); err != nil {
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

type fakeIter struct {
	messages []*telegram.RawMessage
	pos      int
}

func (it *fakeIter) Next(ctx context.Context) bool {
	if it.pos >= len(it.messages) {
		return false
	}
	it.pos++
	return true
}

func (it *fakeIter) Message() *telegram.RawMessage { return it.messages[it.pos-1] }
func (it *fakeIter) Err() error                    { return nil }

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()

	db, err := storage.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "test.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testLogger() logger.Logger {
	return logger.NewLogger(false)
}
