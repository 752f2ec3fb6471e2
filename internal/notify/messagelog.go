package notify

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message directions.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// LogEntry is one inbound or outbound message.
type LogEntry struct {
	ID        int64
	Direction string
	Channel   string
	Contact   string
	Template  string
	Payload   string
	Status    string
	CreatedAt time.Time
}

// MessageLog persists message_logs rows.
type MessageLog struct {
	db *sql.DB
}

// NewMessageLog returns nil when db is nil so callers can skip logging.
func NewMessageLog(db *sql.DB) *MessageLog {
	if db == nil {
		return nil
	}
	return &MessageLog{db: db}
}

// Record inserts an entry.
func (l *MessageLog) Record(ctx context.Context, e LogEntry) error {
	if l == nil || l.db == nil {
		return nil
	}
	if e.Status == "" {
		e.Status = "queued"
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO message_logs (direction, channel, contact, template, payload, status)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.Direction, e.Channel, e.Contact, e.Template, e.Payload, e.Status)
	if err != nil {
		return fmt.Errorf("notify: record message: %w", err)
	}
	return nil
}

// Recent lists the latest entries for a contact, newest first.
func (l *MessageLog) Recent(ctx context.Context, contact string, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, direction, channel, contact, template, payload, status, created_at
		FROM message_logs
		WHERE contact = $1
		ORDER BY created_at DESC
		LIMIT $2`, contact, limit)
	if err != nil {
		return nil, fmt.Errorf("notify: list messages: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Direction, &e.Channel, &e.Contact, &e.Template, &e.Payload, &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("notify: scan message: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeContact deletes every entry for a contact.
func (l *MessageLog) PurgeContact(ctx context.Context, contact string) (int64, error) {
	if l == nil || l.db == nil {
		return 0, nil
	}
	res, err := l.db.ExecContext(ctx, `DELETE FROM message_logs WHERE contact = $1`, contact)
	if err != nil {
		return 0, fmt.Errorf("notify: purge messages: %w", err)
	}
	return res.RowsAffected()
}
