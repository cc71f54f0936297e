package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// resolveChat returns the id of the chat for remoteID, creating it when
// missing. updated_at only moves forward; a non-empty name replaces the
// stored one.
func resolveChat(ctx context.Context, q querier, remoteID, name string, at time.Time) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `
		INSERT INTO chats (id, remote_id, name, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
			updated_at = MAX(chats.updated_at, excluded.updated_at)
		RETURNING id`,
		newID(), remoteID, name, millis(at)).Scan(&id)
	return id, err
}

// ListChats returns chats most recently active first, with message counts.
func (db *DB) ListChats(ctx context.Context) ([]ChatSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.remote_id, c.name, c.updated_at,
			(SELECT COUNT(*) FROM messages m WHERE m.chat_id = c.id)
		FROM chats c
		ORDER BY c.updated_at DESC, c.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []ChatSummary
	for rows.Next() {
		var c ChatSummary
		var updated int64
		if err := rows.Scan(&c.ID, &c.RemoteID, &c.Name, &updated, &c.MessageCount); err != nil {
			return nil, err
		}
		c.UpdatedAt = fromMillis(updated)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChatByRemoteID returns a single chat by its JID, or ErrNotFound.
func (db *DB) GetChatByRemoteID(ctx context.Context, remoteID string) (*Chat, error) {
	var c Chat
	var updated int64
	err := db.QueryRowContext(ctx, `SELECT id, remote_id, name, updated_at FROM chats WHERE remote_id = ?`, remoteID).
		Scan(&c.ID, &c.RemoteID, &c.Name, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

// Stats holds row counts for the status endpoint.
type Stats struct {
	Contacts  int64 `json:"contacts"`
	Chats     int64 `json:"chats"`
	Messages  int64 `json:"messages"`
	Scheduled int64 `json:"scheduled"`
}

// Stats counts rows in the main tables.
func (db *DB) Stats(ctx context.Context) (*Stats, error) {
	var s Stats
	err := db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM contacts),
			(SELECT COUNT(*) FROM chats),
			(SELECT COUNT(*) FROM messages),
			(SELECT COUNT(*) FROM scheduled_messages WHERE status = 'Pending')`).
		Scan(&s.Contacts, &s.Chats, &s.Messages, &s.Scheduled)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
