package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memStore is an in-memory Repository and Directory. It enforces the same
// active slot uniqueness as the Postgres partial index.
type memStore struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	appointments map[uuid.UUID]Appointment
	events       []EventLog

	// hooks for race tests
	beforeCreate       func()
	beforeUpdate       func()
	skipFindActive     bool
	statusUpdateMisses int
}

func newMemStore() *memStore {
	return &memStore{
		patients:     map[uuid.UUID]Patient{},
		doctors:      map[uuid.UUID]Doctor{},
		appointments: map[uuid.UUID]Appointment{},
	}
}

func (m *memStore) addPatient() uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.patients[id] = Patient{ID: id, Name: "patient"}
	return id
}

func (m *memStore) addDoctor(hours *WorkingHours) uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New()
	m.doctors[id] = Doctor{ID: id, Name: "doctor", WorkingHours: hours}
	return id
}

// put stores a row directly, bypassing the service.
func (m *memStore) put(a Appointment) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Duration == 0 {
		a.Duration = DefaultDuration
	}
	if a.Type == "" {
		a.Type = TypeConsultation
	}
	if a.Reason == "" {
		a.Reason = "checkup"
	}
	a.Date = DateOnly(a.Date)
	m.appointments[a.ID] = a
	return a
}

func (m *memStore) get(id uuid.UUID) (Appointment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	return a, ok
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, e := range m.events {
		out[i] = e.EventType
	}
	return out
}

func (m *memStore) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (m *memStore) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (m *memStore) ListDoctors(_ context.Context) ([]Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memStore) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (m *memStore) findActiveLocked(doctorID uuid.UUID, date time.Time, clock string, except uuid.UUID) *Appointment {
	for _, a := range m.appointments {
		if a.ID != except && a.DoctorID == doctorID && a.Date.Equal(DateOnly(date)) && a.Time == clock && a.Status.Active() {
			found := a
			return &found
		}
	}
	return nil
}

func (m *memStore) FindActiveAt(_ context.Context, doctorID uuid.UUID, date time.Time, clock string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.skipFindActive {
		return nil, ErrAppointmentNotFound
	}
	if a := m.findActiveLocked(doctorID, date, clock, uuid.Nil); a != nil {
		return a, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memStore) BookedTimes(_ context.Context, doctorID uuid.UUID, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date.Equal(DateOnly(date)) && a.Status.Active() {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func matches(a Appointment, f Filter) bool {
	if f.PatientID != nil && a.PatientID != *f.PatientID {
		return false
	}
	if f.DoctorID != nil && a.DoctorID != *f.DoctorID {
		return false
	}
	if f.From != nil || f.To != nil {
		if f.From != nil && a.Date.Before(DateOnly(*f.From)) {
			return false
		}
		if f.To != nil && a.Date.After(DateOnly(*f.To)) {
			return false
		}
	} else if f.Date != nil && !a.Date.Equal(DateOnly(*f.Date)) {
		return false
	}
	if len(f.Statuses) > 0 {
		ok := false
		for _, s := range f.Statuses {
			if a.Status == s {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if f.Type != nil && a.Type != *f.Type {
		return false
	}
	return true
}

func (m *memStore) ListAppointments(_ context.Context, f Filter) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Appointment{}
	for _, a := range m.appointments {
		if matches(a, f) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Time < out[j].Time
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *memStore) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	if m.beforeCreate != nil {
		m.beforeCreate()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Status.Active() && m.findActiveLocked(a.DoctorID, a.Date, a.Time, a.ID) != nil {
		return nil, ErrSlotAlreadyBooked
	}
	c := *a
	c.CreatedAt, c.UpdatedAt = time.Now(), time.Now()
	m.appointments[c.ID] = c
	return &c, nil
}

func (m *memStore) UpdateAppointment(_ context.Context, a *Appointment, from AppointmentStatus) (*Appointment, error) {
	if m.beforeUpdate != nil {
		hook := m.beforeUpdate
		m.beforeUpdate = nil
		hook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.appointments[a.ID]
	if !ok || cur.Status != from {
		return nil, ErrAppointmentNotFound
	}
	if a.Status.Active() && m.findActiveLocked(cur.DoctorID, a.Date, a.Time, a.ID) != nil {
		return nil, ErrSlotAlreadyBooked
	}
	cur.Status = a.Status
	cur.Date, cur.Time, cur.Duration = a.Date, a.Time, a.Duration
	cur.Reason, cur.Type, cur.Notes, cur.ReminderSent = a.Reason, a.Type, a.Notes, a.ReminderSent
	cur.UpdatedAt = time.Now()
	m.appointments[a.ID] = cur
	return &cur, nil
}

func (m *memStore) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusUpdateMisses > 0 {
		m.statusUpdateMisses--
		return nil, ErrAppointmentNotFound
	}
	cur, ok := m.appointments[id]
	if !ok || cur.Status != from {
		return nil, ErrAppointmentNotFound
	}
	cur.Status = to
	cur.UpdatedAt = time.Now()
	m.appointments[id] = cur
	return &cur, nil
}

func (m *memStore) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(m.appointments, id)
	return nil
}

func (m *memStore) CountByStatus(_ context.Context, f Filter) (map[AppointmentStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[AppointmentStatus]int{}
	for _, a := range m.appointments {
		if matches(a, f) {
			out[a.Status]++
		}
	}
	return out, nil
}

func (m *memStore) CountByMonth(_ context.Context, f Filter) ([]MonthCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[[2]int]int{}
	for _, a := range m.appointments {
		if matches(a, f) {
			counts[[2]int{a.Date.Year(), int(a.Date.Month())}]++
		}
	}
	out := make([]MonthCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, MonthCount{Year: k[0], Month: time.Month(k[1]), Count: n})
	}
	return out, nil
}

func (m *memStore) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}
