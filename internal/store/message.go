package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// MessageExists reports whether a message with the given remote id is stored.
func (db *DB) MessageExists(ctx context.Context, remoteID string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE remote_id = ?`, remoteID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SaveMessage records in.Message under its chat, creating the chat when
// needed. A message whose remote id is already stored is skipped and the
// chat is left untouched. On insert, in.Message.ID and ChatID are filled.
func (db *DB) SaveMessage(ctx context.Context, in *IncomingMessage) (bool, error) {
	var inserted bool
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		inserted, err = saveMessage(ctx, tx, in)
		return err
	})
	return inserted, err
}

// SaveMessages records a batch in one transaction and returns how many
// were new.
func (db *DB) SaveMessages(ctx context.Context, batch []IncomingMessage) (int, error) {
	n := 0
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range batch {
			inserted, err := saveMessage(ctx, tx, &batch[i])
			if err != nil {
				return err
			}
			if inserted {
				n++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func saveMessage(ctx context.Context, q querier, in *IncomingMessage) (bool, error) {
	m := &in.Message
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM messages WHERE remote_id = ?`, m.RemoteID).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	chatID, err := resolveChat(ctx, q, in.ChatRemoteID, in.ChatName, ts)
	if err != nil {
		return false, err
	}

	id := m.ID
	if id == "" {
		id = newID()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, remote_id, sender, body, from_me, media_type, media_path, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO NOTHING`,
		id, chatID, m.RemoteID, m.Sender, m.Body, m.FromMe, m.MediaType, m.MediaPath, millis(ts))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil || n == 0 {
		return false, err
	}
	m.ID, m.ChatID, m.Timestamp = id, chatID, ts
	return true, nil
}

// ListMessages returns up to limit messages of a chat in timestamp order,
// starting after the message whose id is cursor. nextCursor is empty on the
// last page.
func (db *DB) ListMessages(ctx context.Context, chatID, cursor string, limit int) ([]Message, string, error) {
	if limit <= 0 {
		limit = 50
	}

	afterTS, afterID := int64(-1), ""
	if cursor != "" {
		err := db.QueryRowContext(ctx, `SELECT timestamp, id FROM messages WHERE id = ? AND chat_id = ?`, cursor, chatID).
			Scan(&afterTS, &afterID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		if err != nil {
			return nil, "", err
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, chat_id, remote_id, sender, body, from_me, media_type, media_path, timestamp
		FROM messages
		WHERE chat_id = ? AND (timestamp > ? OR (timestamp = ? AND id > ?))
		ORDER BY timestamp ASC, id ASC
		LIMIT ?`, chatID, afterTS, afterTS, afterID, limit+1)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		if err := rows.Scan(&m.ID, &m.ChatID, &m.RemoteID, &m.Sender, &m.Body, &m.FromMe, &m.MediaType, &m.MediaPath, &ts); err != nil {
			return nil, "", err
		}
		m.Timestamp = fromMillis(ts)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	next := ""
	if len(msgs) > limit {
		msgs = msgs[:limit]
		next = msgs[limit-1].ID
	}
	return msgs, next, nil
}
