package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	e "nuclight.org/telegram-bridge/pkg/entities"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(ctx context.Context, filePath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", "file:"+filePath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite3 database: %w", err)
	}

	client := &SQLite{
		db: db,
	}

	err = client.init(ctx)
	if err != nil {
		return nil, fmt.Errorf("initializing sqlite3 database: %w", err)
	}

	return client, nil
}

func (c *SQLite) Close() error {
	return c.db.Close()
}

//go:embed init.sql
var initQuery string

func (c *SQLite) init(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, initQuery)
	return err
}

// UpsertChat inserts a chat or updates it in place, keyed by id. A nil
// LastMessageTime or empty username means "not provided" and never unsets a
// value an earlier sync recorded.
func (c *SQLite) UpsertChat(ctx context.Context, chat e.Chat) error {
	_, err := c.db.ExecContext(
		ctx,
		`INSERT INTO chats (id, title, username, type, last_message_time)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				type = excluded.type,
				username = COALESCE(excluded.username, username),
				last_message_time = COALESCE(excluded.last_message_time, last_message_time)`,
		chat.ID, chat.Title, nullString(chat.Username), string(chat.Type), nullTime(chat.LastMessageTime),
	)
	if err != nil {
		return fmt.Errorf("upserting chat %d: %w", chat.ID, err)
	}
	return nil
}

// ChatFilter narrows GetChats. Zero values mean "no filter"; Limit defaults
// to 50.
type ChatFilter struct {
	Query  string
	Type   e.ChatType
	Limit  int
	Offset int
	SortBy string // "title" for title ascending, anything else sorts by last activity
}

func (c *SQLite) GetChats(ctx context.Context, filter ChatFilter) ([]e.Chat, error) {
	query := `SELECT id, title, username, type, last_message_time FROM chats WHERE 1=1`
	var args []any

	if filter.Query != "" {
		query += ` AND (title LIKE '%' || ? || '%' OR username LIKE '%' || ? || '%')`
		args = append(args, filter.Query, filter.Query)
	}
	if filter.Type != "" {
		query += ` AND type = ?`
		args = append(args, string(filter.Type))
	}

	if filter.SortBy == "title" {
		query += ` ORDER BY title ASC`
	} else {
		query += ` ORDER BY last_message_time DESC`
	}

	query += ` LIMIT ? OFFSET ?`
	args = append(args, limitOrDefault(filter.Limit), filter.Offset)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []e.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

func (c *SQLite) GetChatByID(ctx context.Context, chatID int64) (*e.Chat, error) {
	row := c.db.QueryRowContext(
		ctx,
		`SELECT id, title, username, type, last_message_time FROM chats WHERE id = ?`,
		chatID,
	)
	chat, err := scanChat(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying chat %d: %w", chatID, err)
	}
	return &chat, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (e.Chat, error) {
	var (
		chat     e.Chat
		username sql.NullString
		chatType string
		lastTime sql.NullInt64
	)
	if err := row.Scan(&chat.ID, &chat.Title, &username, &chatType, &lastTime); err != nil {
		return e.Chat{}, err
	}
	chat.Username = username.String
	chat.Type = e.ChatType(chatType)
	if lastTime.Valid {
		t := time.Unix(lastTime.Int64, 0)
		chat.LastMessageTime = &t
	}
	return chat, nil
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 50
	}
	return limit
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}
