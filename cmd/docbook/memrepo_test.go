package main

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/domain/doctor"
)

type memDoctors struct {
	mu      sync.Mutex
	doctors map[uuid.UUID]doctor.Doctor
	days    map[uuid.UUID][]string
}

func newMemDoctors() *memDoctors {
	return &memDoctors{doctors: map[uuid.UUID]doctor.Doctor{}, days: map[uuid.UUID][]string{}}
}

func (m *memDoctors) Create(_ context.Context, d *doctor.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = uuid.New()
	d.CreatedAt, d.UpdatedAt = time.Now(), time.Now()
	m.doctors[d.ID] = *d
	return nil
}

func (m *memDoctors) GetByID(_ context.Context, id uuid.UUID) (*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, doctor.ErrNotFound
	}
	return &d, nil
}

func (m *memDoctors) Update(_ context.Context, d *doctor.Doctor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[d.ID]; !ok {
		return doctor.ErrNotFound
	}
	m.doctors[d.ID] = *d
	return nil
}

func (m *memDoctors) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[id]; !ok {
		return doctor.ErrNotFound
	}
	delete(m.doctors, id)
	delete(m.days, id)
	return nil
}

func (m *memDoctors) List(_ context.Context) ([]*doctor.Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*doctor.Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memDoctors) Days(_ context.Context, id uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.days[id]...), nil
}

func (m *memDoctors) DaysFor(_ context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID][]string, len(ids))
	for _, id := range ids {
		out[id] = append([]string(nil), m.days[id]...)
	}
	return out, nil
}

func (m *memDoctors) SetDays(_ context.Context, id uuid.UUID, days []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.doctors[id]; !ok {
		return doctor.ErrNotFound
	}
	m.days[id] = append([]string(nil), days...)
	return nil
}

func (m *memDoctors) HasDay(_ context.Context, id uuid.UUID, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.days[id] {
		if d == day {
			return true, nil
		}
	}
	return false, nil
}

type memAppointments struct {
	mu    sync.Mutex
	appts map[uuid.UUID]appointment.Appointment
}

func newMemAppointments() *memAppointments {
	return &memAppointments{appts: map[uuid.UUID]appointment.Appointment{}}
}

func (m *memAppointments) occupied(doctorID uuid.UUID, at time.Time, exclude uuid.UUID) bool {
	for id, a := range m.appts {
		if id != exclude && a.DoctorID == doctorID && a.DateTime.Equal(at) && a.Active() {
			return true
		}
	}
	return false
}

func (m *memAppointments) CreateIfFree(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.occupied(a.DoctorID, a.DateTime, uuid.Nil) {
		return appointment.ErrSlotTaken
	}
	a.ID = uuid.New()
	a.CreatedAt, a.UpdatedAt = time.Now(), time.Now()
	m.appts[a.ID] = *a
	return nil
}

func (m *memAppointments) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	return &a, nil
}

func (m *memAppointments) Update(_ context.Context, a *appointment.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[a.ID]; !ok {
		return appointment.ErrNotFound
	}
	m.appts[a.ID] = *a
	return nil
}

func (m *memAppointments) UpdateStatus(_ context.Context, id uuid.UUID, status string) (*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now()
	m.appts[id] = a
	return &a, nil
}

func (m *memAppointments) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appts[id]; !ok {
		return appointment.ErrNotFound
	}
	delete(m.appts, id)
	return nil
}

func (m *memAppointments) Occupied(_ context.Context, doctorID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.occupied(doctorID, at, exclude), nil
}

func (m *memAppointments) sorted() []*appointment.Appointment {
	out := make([]*appointment.Appointment, 0, len(m.appts))
	for _, a := range m.appts {
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].DateTime.After(out[j].DateTime)
		}
		return out[i].ID.String() > out[j].ID.String()
	})
	return out
}

func (m *memAppointments) ListByUser(_ context.Context, userID string) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	for _, a := range m.sorted() {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAppointments) ListAdmin(_ context.Context, status string, after *appointment.Appointment, limit int) ([]*appointment.Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*appointment.Appointment
	passed := after == nil
	for _, a := range m.sorted() {
		if !passed {
			passed = a.ID == after.ID
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memAppointments) ListDueForReminder(context.Context, time.Time, time.Time, int) ([]*appointment.Appointment, error) {
	return nil, nil
}

func (m *memAppointments) MarkReminded(context.Context, uuid.UUID, time.Time) error { return nil }
