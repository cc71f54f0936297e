package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ListQuickReplies returns all templates ordered by shortcut.
func (db *DB) ListQuickReplies(ctx context.Context) ([]QuickReply, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, shortcut, content, created_at FROM quick_replies ORDER BY shortcut ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []QuickReply
	for rows.Next() {
		var q QuickReply
		var created int64
		if err := rows.Scan(&q.ID, &q.Shortcut, &q.Content, &created); err != nil {
			return nil, err
		}
		q.CreatedAt = fromMillis(created)
		out = append(out, q)
	}
	return out, rows.Err()
}

// GetQuickReply returns a template by id, or ErrNotFound.
func (db *DB) GetQuickReply(ctx context.Context, id string) (*QuickReply, error) {
	var q QuickReply
	var created int64
	err := db.QueryRowContext(ctx, `SELECT id, shortcut, content, created_at FROM quick_replies WHERE id = ?`, id).
		Scan(&q.ID, &q.Shortcut, &q.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	q.CreatedAt = fromMillis(created)
	return &q, nil
}

// CreateQuickReply stores a new template.
func (db *DB) CreateQuickReply(ctx context.Context, shortcut, content string) (*QuickReply, error) {
	q := QuickReply{ID: newID(), Shortcut: shortcut, Content: content, CreatedAt: time.Now().UTC()}
	_, err := db.ExecContext(ctx, `INSERT INTO quick_replies (id, shortcut, content, created_at) VALUES (?, ?, ?, ?)`,
		q.ID, q.Shortcut, q.Content, millis(q.CreatedAt))
	if err != nil {
		return nil, err
	}
	q.CreatedAt = fromMillis(millis(q.CreatedAt))
	return &q, nil
}

// DeleteQuickReply removes a template. Returns ErrNotFound when absent.
func (db *DB) DeleteQuickReply(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM quick_replies WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
