// Package waitlist records patients who want an earlier slot than the ones
// offered.
package waitlist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/clinic-scheduling-assistant/internal/timeexpr"
)

// ErrInvalidWeekday is returned for weekday names we do not recognize.
var ErrInvalidWeekday = errors.New("waitlist: invalid weekday")

var weekdays = map[string]string{
	"lunes":     "lunes",
	"martes":    "martes",
	"miercoles": "miercoles",
	"jueves":    "jueves",
	"viernes":   "viernes",
	"sabado":    "sabado",
	"domingo":   "domingo",
}

// Entry is one waitlist request.
type Entry struct {
	ID          uuid.UUID `json:"id"`
	PatientID   uuid.UUID `json:"patient_id"`
	Preferences string    `json:"preferences"`
	Weekdays    []string  `json:"weekdays"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists waitlist_entries.
type Store struct {
	db *sql.DB
}

// NewStore creates a store backed by database/sql.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		panic("waitlist: db cannot be nil")
	}
	return &Store{db: db}
}

// NormalizeWeekdays folds accents and case and drops duplicates.
func NormalizeWeekdays(in []string) ([]string, error) {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		folded := timeexpr.Fold(raw)
		if folded == "" {
			continue
		}
		day, ok := weekdays[folded]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidWeekday, strings.TrimSpace(raw))
		}
		if _, dup := seen[day]; dup {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	return out, nil
}

// Add inserts a waiting entry.
func (s *Store) Add(ctx context.Context, e *Entry) error {
	days, err := NormalizeWeekdays(e.Weekdays)
	if err != nil {
		return err
	}
	e.Weekdays = days
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	e.Status = "waiting"
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO waitlist_entries (id, patient_id, preferences, weekdays, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		e.ID, e.PatientID, e.Preferences, pq.Array(e.Weekdays), e.Status).Scan(&e.CreatedAt)
	if err != nil {
		return fmt.Errorf("waitlist: add entry: %w", err)
	}
	return nil
}

// ListWaiting returns waiting entries, oldest first. When weekday is set only
// entries with no preference or a matching one are returned.
func (s *Store) ListWaiting(ctx context.Context, weekday string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, patient_id, preferences, weekdays, status, created_at
		FROM waitlist_entries
		WHERE status = 'waiting'
		  AND ($1 = '' OR cardinality(weekdays) = 0 OR $1 = ANY(weekdays))
		ORDER BY created_at ASC`, timeexpr.Fold(weekday))
	if err != nil {
		return nil, fmt.Errorf("waitlist: list entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.PatientID, &e.Preferences, pq.Array(&e.Weekdays), &e.Status, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("waitlist: scan entry: %w", err)
		}
		if e.Weekdays == nil {
			e.Weekdays = []string{}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
