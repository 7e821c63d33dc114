// Package store is the client-side cache of appointments and doctors. All
// mutation goes through the Store methods.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/docbook/docbook/internal/client"
)

var ErrNotFound = errors.New("not in store")

// Backend loads the records the store caches. *client.Client satisfies it.
type Backend interface {
	ListDoctors(ctx context.Context, includeAvailability bool) ([]client.Doctor, error)
	UserAppointments(ctx context.Context, userID string) ([]client.Appointment, error)
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	UserID   string
	DoctorID string
	Status   string
	Date     string
	// Active drops cancelled appointments.
	Active bool
}

func (f Filter) match(a client.Appointment) bool {
	switch {
	case f.UserID != "" && a.UserID != f.UserID:
		return false
	case f.DoctorID != "" && a.DoctorID != f.DoctorID:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.Date != "" && a.Date != f.Date:
		return false
	case f.Active && a.Status == client.StatusCancelled:
		return false
	}
	return true
}

type Store struct {
	mu      sync.RWMutex
	appts   map[string]client.Appointment
	doctors map[string]client.Doctor
	order   []string
}

func New() *Store {
	return &Store{
		appts:   make(map[string]client.Appointment),
		doctors: make(map[string]client.Doctor),
	}
}

// Upsert inserts or replaces the appointment with the same id.
func (s *Store) Upsert(a client.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appts[a.ID] = a
}

func (s *Store) Get(id string) (client.Appointment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	return a, ok
}

func (s *Store) SetStatus(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return fmt.Errorf("appointment %s: %w", id, ErrNotFound)
	}
	a.Status = status
	s.appts[id] = a
	return nil
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.appts, id)
}

// List returns matching appointments ordered by start instant, then id.
func (s *Store) List(f Filter) []client.Appointment {
	s.mu.RLock()
	out := make([]client.Appointment, 0, len(s.appts))
	for _, a := range s.appts {
		if f.match(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].DateTime.Equal(out[j].DateTime) {
			return out[i].DateTime.Before(out[j].DateTime)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.appts)
}

// SetDoctors replaces the cached doctor list, keeping the given order.
func (s *Store) SetDoctors(docs []client.Doctor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doctors = make(map[string]client.Doctor, len(docs))
	s.order = s.order[:0]
	for _, d := range docs {
		if _, dup := s.doctors[d.ID]; !dup {
			s.order = append(s.order, d.ID)
		}
		s.doctors[d.ID] = d
	}
}

func (s *Store) Doctors() []client.Doctor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]client.Doctor, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.doctors[id])
	}
	return out
}

func (s *Store) Doctor(id string) (client.Doctor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.doctors[id]
	return d, ok
}

// LoadDoctors refreshes the doctor list, availability included.
func (s *Store) LoadDoctors(ctx context.Context, b Backend) ([]client.Doctor, error) {
	docs, err := b.ListDoctors(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}
	s.SetDoctors(docs)
	return s.Doctors(), nil
}

// LoadUserAppointments replaces the cached appointments of userID with the
// backend's view.
func (s *Store) LoadUserAppointments(ctx context.Context, b Backend, userID string) ([]client.Appointment, error) {
	list, err := b.UserAppointments(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load appointments of %s: %w", userID, err)
	}
	s.mu.Lock()
	for id, a := range s.appts {
		if a.UserID == userID {
			delete(s.appts, id)
		}
	}
	for _, a := range list {
		s.appts[a.ID] = a
	}
	s.mu.Unlock()
	return s.List(Filter{UserID: userID}), nil
}
