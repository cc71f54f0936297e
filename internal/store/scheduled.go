package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const scheduledSelect = `
	SELECT s.id, s.content, s.scheduled_at, s.contact_id, s.status, s.last_error, s.message_id,
		s.created_at, s.updated_at, COALESCE(c.remote_id, ''), COALESCE(c.name, '')
	FROM scheduled_messages s
	LEFT JOIN contacts c ON c.id = s.contact_id`

func scanScheduled(row interface{ Scan(...any) error }) (*ScheduledMessage, error) {
	var s ScheduledMessage
	var at, created, updated int64
	err := row.Scan(&s.ID, &s.Content, &at, &s.ContactID, &s.Status, &s.LastError, &s.MessageID,
		&created, &updated, &s.ContactRemoteID, &s.ContactName)
	if err != nil {
		return nil, err
	}
	s.ScheduledAt, s.CreatedAt, s.UpdatedAt = fromMillis(at), fromMillis(created), fromMillis(updated)
	return &s, nil
}

func collectScheduled(rows *sql.Rows) ([]ScheduledMessage, error) {
	defer func() { _ = rows.Close() }()
	var out []ScheduledMessage
	for rows.Next() {
		s, err := scanScheduled(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// CreateScheduled inserts a Pending scheduled message. ID and timestamps are
// assigned here.
func (db *DB) CreateScheduled(ctx context.Context, s *ScheduledMessage, now time.Time) (*ScheduledMessage, error) {
	id := newID()
	_, err := db.ExecContext(ctx, `
		INSERT INTO scheduled_messages (id, content, scheduled_at, contact_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'Pending', ?, ?)`,
		id, s.Content, millis(s.ScheduledAt), s.ContactID, millis(now), millis(now))
	if err != nil {
		return nil, err
	}
	return db.GetScheduled(ctx, id)
}

// GetScheduled returns a scheduled message by id, or ErrNotFound.
func (db *DB) GetScheduled(ctx context.Context, id string) (*ScheduledMessage, error) {
	s, err := scanScheduled(db.QueryRowContext(ctx, scheduledSelect+` WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

// ListScheduled returns every scheduled message ordered by status
// (Pending, Dispatching, Sent, Failed) then by due time.
func (db *DB) ListScheduled(ctx context.Context) ([]ScheduledMessage, error) {
	rows, err := db.QueryContext(ctx, scheduledSelect+`
		ORDER BY CASE s.status
			WHEN 'Pending' THEN 0
			WHEN 'Dispatching' THEN 1
			WHEN 'Sent' THEN 2
			ELSE 3 END,
			s.scheduled_at ASC, s.id`)
	if err != nil {
		return nil, err
	}
	return collectScheduled(rows)
}

// DueScheduled returns Pending rows with scheduled_at <= now, earliest first.
func (db *DB) DueScheduled(ctx context.Context, now time.Time) ([]ScheduledMessage, error) {
	rows, err := db.QueryContext(ctx, scheduledSelect+`
		WHERE s.status = 'Pending' AND s.scheduled_at <= ?
		ORDER BY s.scheduled_at ASC, s.created_at ASC, s.id`, millis(now))
	if err != nil {
		return nil, err
	}
	return collectScheduled(rows)
}

// ClaimScheduled atomically moves a due row from Pending to Dispatching and
// returns its content as of the claim. ok is false when the row is no longer
// Pending or was rescheduled past now.
func (db *DB) ClaimScheduled(ctx context.Context, id string, now time.Time) (content string, ok bool, err error) {
	err = db.QueryRowContext(ctx, `
		UPDATE scheduled_messages SET status = 'Dispatching', updated_at = ?
		WHERE id = ? AND status = 'Pending' AND scheduled_at <= ?
		RETURNING content`, millis(now), id, millis(now)).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return content, true, nil
}

// MarkScheduledSent records a successful dispatch of a claimed row.
func (db *DB) MarkScheduledSent(ctx context.Context, id, messageID string, now time.Time) error {
	return db.finishScheduled(ctx, id, StatusSent, "", messageID, now)
}

// MarkScheduledFailed records a failed dispatch of a claimed row.
func (db *DB) MarkScheduledFailed(ctx context.Context, id, errMsg string, now time.Time) error {
	return db.finishScheduled(ctx, id, StatusFailed, errMsg, "", now)
}

func (db *DB) finishScheduled(ctx context.Context, id string, to ScheduledStatus, errMsg, messageID string, now time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_messages SET status = ?, last_error = ?, message_id = ?, updated_at = ?
		WHERE id = ? AND status = 'Dispatching'`,
		to, errMsg, messageID, millis(now), id)
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

// UpdatePendingScheduled applies content and/or time changes to a Pending
// row. Returns ErrNotFound if no Pending row has that id.
func (db *DB) UpdatePendingScheduled(ctx context.Context, id string, content *string, at *time.Time, now time.Time) (*ScheduledMessage, error) {
	var atMillis any
	if at != nil {
		atMillis = millis(*at)
	}
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_messages SET
			content = COALESCE(?, content),
			scheduled_at = COALESCE(?, scheduled_at),
			updated_at = ?
		WHERE id = ? AND status = 'Pending'`,
		content, atMillis, millis(now), id)
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return db.GetScheduled(ctx, id)
}

// DeletePendingScheduled removes a Pending row. Returns ErrNotFound if no
// Pending row has that id.
func (db *DB) DeletePendingScheduled(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM scheduled_messages WHERE id = ? AND status = 'Pending'`, id)
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

// FailInterrupted marks rows stuck in Dispatching as Failed. Such rows were
// claimed by a process that stopped before recording the outcome, so the
// send may or may not have happened.
func (db *DB) FailInterrupted(ctx context.Context, now time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE scheduled_messages SET status = 'Failed', last_error = 'interrupted', updated_at = ?
		WHERE status = 'Dispatching'`, millis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
