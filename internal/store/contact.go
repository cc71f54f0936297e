package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertContact inserts a contact or refreshes its names, keyed by remote id.
// Empty names never overwrite known ones.
func (db *DB) UpsertContact(ctx context.Context, c *Contact) (*Contact, error) {
	if err := upsertContact(ctx, db, c, time.Now()); err != nil {
		return nil, err
	}
	return db.GetContactByRemoteID(ctx, c.RemoteID)
}

// BulkUpsertContacts upserts many contacts in a single transaction.
func (db *DB) BulkUpsertContacts(ctx context.Context, contacts []Contact) error {
	now := time.Now()
	return db.withTx(ctx, func(tx *sql.Tx) error {
		for i := range contacts {
			if err := upsertContact(ctx, tx, &contacts[i], now); err != nil {
				return err
			}
		}
		return nil
	})
}

func upsertContact(ctx context.Context, q querier, c *Contact, now time.Time) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO contacts (id, remote_id, name, push_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(remote_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
			updated_at = excluded.updated_at`,
		newID(), c.RemoteID, c.Name, c.PushName, millis(now), millis(now))
	return err
}

const contactColumns = `id, remote_id, name, push_name, created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	var created, updated int64
	if err := row.Scan(&c.ID, &c.RemoteID, &c.Name, &c.PushName, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt, c.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &c, nil
}

// GetContact returns a contact by id, or ErrNotFound.
func (db *DB) GetContact(ctx context.Context, id string) (*Contact, error) {
	c, err := scanContact(db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// GetContactByRemoteID returns a contact by JID, or ErrNotFound.
func (db *DB) GetContactByRemoteID(ctx context.Context, remoteID string) (*Contact, error) {
	c, err := scanContact(db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE remote_id = ?`, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// ListContacts returns contacts most recently updated first, each with its
// number of scheduled messages.
func (db *DB) ListContacts(ctx context.Context) ([]ContactSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.remote_id, c.name, c.push_name, c.created_at, c.updated_at,
			(SELECT COUNT(*) FROM scheduled_messages s WHERE s.contact_id = c.id)
		FROM contacts c
		ORDER BY c.updated_at DESC, c.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ContactSummary
	for rows.Next() {
		var s ContactSummary
		var created, updated int64
		if err := rows.Scan(&s.ID, &s.RemoteID, &s.Name, &s.PushName, &created, &updated, &s.ScheduledCount); err != nil {
			return nil, err
		}
		s.CreatedAt, s.UpdatedAt = fromMillis(created), fromMillis(updated)
		out = append(out, s)
	}
	return out, rows.Err()
}
