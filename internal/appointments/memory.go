package appointments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process Repository for development and tests. It
// enforces the same uniqueness rules as the database indexes.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]*Patient
	byContact    map[string]uuid.UUID
	appointments map[uuid.UUID]*Appointment
	loc          *time.Location
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository(loc *time.Location) *MemoryRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]*Patient),
		byContact:    make(map[string]uuid.UUID),
		appointments: make(map[uuid.UUID]*Appointment),
		loc:          loc,
	}
}

func (r *MemoryRepository) GetOrCreatePatient(_ context.Context, contact string) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.byContact[contact]; ok {
		p := *r.patients[id]
		return &p, nil
	}
	p := &Patient{ID: uuid.New(), Contact: contact, ConsentMessages: true, CreatedAt: time.Now().UTC()}
	r.patients[p.ID] = p
	r.byContact[contact] = p.ID
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) GetPatientByContact(_ context.Context, contact string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byContact[contact]
	if !ok {
		return nil, ErrNotFound
	}
	p := *r.patients[id]
	return &p, nil
}

func (r *MemoryRepository) GetPatient(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MemoryRepository) SetPatientName(_ context.Context, id uuid.UUID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.patients[id]
	if !ok {
		return ErrNotFound
	}
	p.Name = &name
	return nil
}

func (r *MemoryRepository) SetConsent(_ context.Context, contact string, consent bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byContact[contact]
	if !ok {
		return false, nil
	}
	r.patients[id].ConsentMessages = consent
	return true, nil
}

func (r *MemoryRepository) PurgePatient(_ context.Context, contact string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byContact[contact]
	if !ok {
		return false, nil
	}
	delete(r.byContact, contact)
	delete(r.patients, id)
	for apptID, a := range r.appointments {
		if a.PatientID == id {
			delete(r.appointments, apptID)
		}
	}
	return true, nil
}

func (r *MemoryRepository) LatestActive(_ context.Context, patientID uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *Appointment
	for _, a := range r.appointments {
		if a.PatientID != patientID || !a.Status.Active() {
			continue
		}
		if latest == nil || a.StartAt.After(latest.StartAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneAppointment(latest), nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAppointment(a), nil
}

func (r *MemoryRepository) InsertAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
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
	if err := r.checkUnique(a); err != nil {
		return err
	}
	r.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[a.ID]; !ok {
		return ErrNotFound
	}
	if err := r.checkUnique(a); err != nil {
		return err
	}
	a.UpdatedAt = time.Now().UTC()
	r.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *MemoryRepository) checkUnique(a *Appointment) error {
	if !a.Status.Active() {
		return nil
	}
	for id, other := range r.appointments {
		if id == a.ID || !other.Status.Active() {
			continue
		}
		if other.PatientID == a.PatientID || other.StartAt.Equal(a.StartAt) {
			return ErrSlotTaken
		}
	}
	return nil
}

func (r *MemoryRepository) BusyStarts(_ context.Context, from, to time.Time, excludeID string) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []time.Time
	for id, a := range r.appointments {
		if a.Status == StatusCanceled || id.String() == excludeID {
			continue
		}
		if !a.StartAt.Before(from) && a.StartAt.Before(to) {
			out = append(out, a.StartAt.In(r.loc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *MemoryRepository) ListStartingBetween(_ context.Context, from, to time.Time) ([]Upcoming, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Upcoming
	for _, a := range r.appointments {
		if !a.Status.Active() || a.StartAt.Before(from) || !a.StartAt.Before(to) {
			continue
		}
		p, ok := r.patients[a.PatientID]
		if !ok || !p.ConsentMessages {
			continue
		}
		out = append(out, Upcoming{Appointment: *cloneAppointment(a), Patient: *p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Appointment.StartAt.Before(out[j].Appointment.StartAt) })
	return out, nil
}

// Count returns the number of stored appointments.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.appointments)
}

func cloneAppointment(a *Appointment) *Appointment {
	cp := *a
	if a.EventID != nil {
		id := *a.EventID
		cp.EventID = &id
	}
	return &cp
}
