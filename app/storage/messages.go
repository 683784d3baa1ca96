package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	e "nuclight.org/telegram-bridge/pkg/entities"
)

// UpsertMessage inserts a message or overwrites it in place, keyed by
// (id, chat_id). Messages with no text and no media are dropped without a
// write: they carry no user-visible information. The local_path column is
// owned by SetLocalPath and is never touched here.
func (c *SQLite) UpsertMessage(ctx context.Context, msg e.Message) error {
	if msg.Empty() {
		return nil
	}

	media := msg.Media
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO messages (
			id, chat_id, sender_id, sender_name, content, timestamp, is_from_me,
			has_media, media_type, file_id, file_name, file_size, mime_type
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, chat_id) DO UPDATE SET
			sender_id = excluded.sender_id,
			sender_name = excluded.sender_name,
			content = excluded.content,
			timestamp = excluded.timestamp,
			is_from_me = excluded.is_from_me,
			has_media = excluded.has_media,
			media_type = excluded.media_type,
			file_id = excluded.file_id,
			file_name = excluded.file_name,
			file_size = excluded.file_size,
			mime_type = excluded.mime_type`,
		msg.ID, msg.ChatID, msg.SenderID, msg.SenderName, msg.Content, msg.Timestamp.Unix(), msg.IsFromMe,
		media.HasMedia, nullString(media.MediaType), nullString(media.FileID), nullString(media.FileName),
		nullInt(media.FileSize), nullString(media.MimeType),
	)
	if err != nil {
		return fmt.Errorf("upserting message %d in chat %d: %w", msg.ID, msg.ChatID, err)
	}
	return nil
}

// SetLocalPath records where a message's attachment was downloaded. Returns
// false without error when the message is absent.
func (c *SQLite) SetLocalPath(ctx context.Context, messageID, chatID int64, path string) (bool, error) {
	result, err := c.db.ExecContext(
		ctx,
		`UPDATE messages SET local_path = ? WHERE id = ? AND chat_id = ?`,
		path, messageID, chatID,
	)
	if err != nil {
		return false, fmt.Errorf("setting local path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// MessageFilter narrows GetMessages. Nil pointer fields mean "no filter".
type MessageFilter struct {
	ChatID   *int64
	SenderID *int64
	Query    string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

const messageColumns = `m.id, m.chat_id, COALESCE(c.title, ''), m.sender_id, m.sender_name,
	m.content, m.timestamp, m.is_from_me, m.has_media, m.media_type, m.file_id,
	m.file_name, m.file_size, m.mime_type, m.local_path`

// GetMessages lists messages newest first.
func (c *SQLite) GetMessages(ctx context.Context, filter MessageFilter) ([]e.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m LEFT JOIN chats c ON c.id = m.chat_id WHERE 1=1`
	var args []any

	if filter.ChatID != nil {
		query += ` AND m.chat_id = ?`
		args = append(args, *filter.ChatID)
	}
	if filter.SenderID != nil {
		query += ` AND m.sender_id = ?`
		args = append(args, *filter.SenderID)
	}
	if filter.Query != "" {
		query += ` AND m.content LIKE '%' || ? || '%'`
		args = append(args, filter.Query)
	}
	if filter.From != nil {
		query += ` AND m.timestamp >= ?`
		args = append(args, filter.From.Unix())
	}
	if filter.To != nil {
		query += ` AND m.timestamp <= ?`
		args = append(args, filter.To.Unix())
	}

	query += ` ORDER BY m.timestamp DESC, m.id DESC LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	return c.queryMessages(ctx, query, args...)
}

// GetMessagesWithMedia lists messages carrying attachments, newest first.
func (c *SQLite) GetMessagesWithMedia(ctx context.Context, chatID *int64, mediaType string, limit, offset int) ([]e.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages m LEFT JOIN chats c ON c.id = m.chat_id WHERE m.has_media = 1`
	var args []any

	if chatID != nil {
		query += ` AND m.chat_id = ?`
		args = append(args, *chatID)
	}
	if mediaType != "" {
		query += ` AND m.media_type = ?`
		args = append(args, mediaType)
	}

	query += ` ORDER BY m.timestamp DESC, m.id DESC LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(limit), offset)

	return c.queryMessages(ctx, query, args...)
}

func (c *SQLite) GetMessageByID(ctx context.Context, messageID, chatID int64) (*e.Message, error) {
	row := c.db.QueryRowContext(
		ctx,
		`SELECT `+messageColumns+` FROM messages m LEFT JOIN chats c ON c.id = m.chat_id
			WHERE m.id = ? AND m.chat_id = ?`,
		messageID, chatID,
	)
	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying message %d in chat %d: %w", messageID, chatID, err)
	}
	return &msg, nil
}

// GetMessageContext returns the anchor message with up to beforeN strictly
// earlier and afterN strictly later messages from the same chat. Timestamp
// ties break on message id. Before is ordered closest-first, After
// chronological.
func (c *SQLite) GetMessageContext(ctx context.Context, messageID, chatID int64, beforeN, afterN int) (*e.MessageContext, error) {
	anchor, err := c.GetMessageByID(ctx, messageID, chatID)
	if err != nil {
		return nil, err
	}
	ts := anchor.Timestamp.Unix()

	before, err := c.queryMessages(
		ctx,
		`SELECT `+messageColumns+` FROM messages m LEFT JOIN chats c ON c.id = m.chat_id
			WHERE m.chat_id = ? AND (m.timestamp < ? OR (m.timestamp = ? AND m.id < ?))
			ORDER BY m.timestamp DESC, m.id DESC LIMIT ?`,
		chatID, ts, ts, messageID, beforeN,
	)
	if err != nil {
		return nil, err
	}

	after, err := c.queryMessages(
		ctx,
		`SELECT `+messageColumns+` FROM messages m LEFT JOIN chats c ON c.id = m.chat_id
			WHERE m.chat_id = ? AND (m.timestamp > ? OR (m.timestamp = ? AND m.id > ?))
			ORDER BY m.timestamp ASC, m.id ASC LIMIT ?`,
		chatID, ts, ts, messageID, afterN,
	)
	if err != nil {
		return nil, err
	}

	return &e.MessageContext{Message: *anchor, Before: before, After: after}, nil
}

// LastMessageID returns the highest stored message id for a chat, the minId
// watermark incremental syncs resume from. Zero when the chat has no
// messages.
func (c *SQLite) LastMessageID(ctx context.Context, chatID int64) (int64, error) {
	var id int64
	err := c.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(id), 0) FROM messages WHERE chat_id = ?`,
		chatID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("querying last message id for chat %d: %w", chatID, err)
	}
	return id, nil
}

func (c *SQLite) queryMessages(ctx context.Context, query string, args ...any) ([]e.Message, error) {
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []e.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func scanMessage(row rowScanner) (e.Message, error) {
	var (
		msg       e.Message
		timestamp int64
		mediaType sql.NullString
		fileID    sql.NullString
		fileName  sql.NullString
		fileSize  sql.NullInt64
		mimeType  sql.NullString
		localPath sql.NullString
	)
	err := row.Scan(
		&msg.ID, &msg.ChatID, &msg.ChatTitle, &msg.SenderID, &msg.SenderName,
		&msg.Content, &timestamp, &msg.IsFromMe, &msg.Media.HasMedia, &mediaType,
		&fileID, &fileName, &fileSize, &mimeType, &localPath,
	)
	if err != nil {
		return e.Message{}, err
	}
	msg.Timestamp = time.Unix(timestamp, 0)
	msg.Media.MediaType = mediaType.String
	msg.Media.FileID = fileID.String
	msg.Media.FileName = fileName.String
	msg.Media.FileSize = fileSize.Int64
	msg.Media.MimeType = mimeType.String
	msg.LocalPath = localPath.String
	return msg, nil
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
