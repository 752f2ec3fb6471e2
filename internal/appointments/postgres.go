package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository on pgx.
type PostgresRepository struct {
	db  DB
	loc *time.Location
}

// NewPostgresRepository creates a repository; loc is the clinic timezone.
func NewPostgresRepository(db DB, loc *time.Location) *PostgresRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &PostgresRepository{db: db, loc: loc}
}

const patientColumns = `id, contact, name, consent_messages, created_at`

const appointmentColumns = `id, patient_id, type, start_at, status, channel, event_id, created_at, updated_at`

func (r *PostgresRepository) GetOrCreatePatient(ctx context.Context, contact string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO patients (id, contact, consent_messages, created_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (contact) DO UPDATE SET contact = EXCLUDED.contact
		RETURNING `+patientColumns, uuid.New(), contact, time.Now().UTC())
	p, err := scanPatient(row)
	if err != nil {
		return nil, fmt.Errorf("appointments: get or create patient: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetPatientByContact(ctx context.Context, contact string) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE contact = $1`, contact)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get patient: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	p, err := scanPatient(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get patient by id: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) SetPatientName(ctx context.Context, id uuid.UUID, name string) error {
	if _, err := r.db.Exec(ctx, `UPDATE patients SET name = $2 WHERE id = $1`, id, name); err != nil {
		return fmt.Errorf("appointments: set patient name: %w", err)
	}
	return nil
}

func (r *PostgresRepository) SetConsent(ctx context.Context, contact string, consent bool) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE patients SET consent_messages = $2 WHERE contact = $1`, contact, consent)
	if err != nil {
		return false, fmt.Errorf("appointments: set consent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// PurgePatient deletes the patient; appointments cascade.
func (r *PostgresRepository) PurgePatient(ctx context.Context, contact string) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM patients WHERE contact = $1`, contact)
	if err != nil {
		return false, fmt.Errorf("appointments: purge patient: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) LatestActive(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status IN ('reserved', 'confirmed')
		ORDER BY start_at DESC
		LIMIT 1`, patientID)
	a, err := r.scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: latest active: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	a, err := r.scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get appointment: %w", err)
	}
	return a, nil
}

func (r *PostgresRepository) InsertAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	if a.Type == "" {
		a.Type = DefaultType
	}
	if a.Channel == "" {
		a.Channel = ChannelWhatsApp
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.PatientID, a.Type, toNaive(a.StartAt, r.loc), string(a.Status), string(a.Channel), a.EventID, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("insert appointment", err)
	}
	return nil
}

func (r *PostgresRepository) UpdateAppointment(ctx context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.db.Exec(ctx, `
		UPDATE appointments
		SET start_at = $2, status = $3, event_id = $4, type = $5, updated_at = $6
		WHERE id = $1`,
		a.ID, toNaive(a.StartAt, r.loc), string(a.Status), a.EventID, a.Type, a.UpdatedAt,
	)
	if err != nil {
		return wrapWriteErr("update appointment", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: update appointment %s: %w", a.ID, ErrNotFound)
	}
	return nil
}

// BusyStarts implements slots.BusySource.
func (r *PostgresRepository) BusyStarts(ctx context.Context, from, to time.Time, excludeID string) ([]time.Time, error) {
	rows, err := r.db.Query(ctx, `
		SELECT start_at
		FROM appointments
		WHERE start_at >= $1 AND start_at < $2 AND status <> 'canceled' AND id::text <> $3
		ORDER BY start_at ASC`, toNaive(from, r.loc), toNaive(to, r.loc), excludeID)
	if err != nil {
		return nil, fmt.Errorf("appointments: busy starts: %w", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var start time.Time
		if err := rows.Scan(&start); err != nil {
			return nil, fmt.Errorf("appointments: scan busy start: %w", err)
		}
		out = append(out, fromNaive(start, r.loc))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: busy starts rows: %w", err)
	}
	return out, nil
}

// ListStartingBetween returns non-canceled appointments of consenting patients
// starting in [from, to).
func (r *PostgresRepository) ListStartingBetween(ctx context.Context, from, to time.Time) ([]Upcoming, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.id, a.patient_id, a.type, a.start_at, a.status, a.channel, a.event_id, a.created_at, a.updated_at,
		       p.id, p.contact, p.name, p.consent_messages, p.created_at
		FROM appointments a
		JOIN patients p ON p.id = a.patient_id
		WHERE a.start_at >= $1 AND a.start_at < $2 AND a.status IN ('reserved', 'confirmed') AND p.consent_messages
		ORDER BY a.start_at ASC`, toNaive(from, r.loc), toNaive(to, r.loc))
	if err != nil {
		return nil, fmt.Errorf("appointments: list upcoming: %w", err)
	}
	defer rows.Close()

	var out []Upcoming
	for rows.Next() {
		var (
			u               Upcoming
			status, channel string
			start           time.Time
		)
		if err := rows.Scan(
			&u.Appointment.ID, &u.Appointment.PatientID, &u.Appointment.Type, &start, &status, &channel,
			&u.Appointment.EventID, &u.Appointment.CreatedAt, &u.Appointment.UpdatedAt,
			&u.Patient.ID, &u.Patient.Contact, &u.Patient.Name, &u.Patient.ConsentMessages, &u.Patient.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("appointments: scan upcoming: %w", err)
		}
		u.Appointment.StartAt = fromNaive(start, r.loc)
		u.Appointment.Status = Status(status)
		u.Appointment.Channel = Channel(channel)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list upcoming rows: %w", err)
	}
	return out, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.Contact, &p.Name, &p.ConsentMessages, &p.CreatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresRepository) scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a               Appointment
		status, channel string
		start           time.Time
	)
	if err := row.Scan(&a.ID, &a.PatientID, &a.Type, &start, &status, &channel, &a.EventID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.StartAt = fromNaive(start, r.loc)
	a.Status = Status(status)
	a.Channel = Channel(channel)
	return &a, nil
}

func wrapWriteErr(action string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("appointments: %s: %w", action, ErrSlotTaken)
	}
	return fmt.Errorf("appointments: %s: %w", action, err)
}
