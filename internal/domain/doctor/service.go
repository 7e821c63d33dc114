package doctor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/docbook/docbook/internal/slots"
)

type Service struct {
	repo Repository
	loc  *time.Location
}

// NewService builds the doctor service. loc is the operating timezone that
// availability days are interpreted in.
func NewService(repo Repository, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, loc: loc}
}

func validate(d *Doctor) error {
	d.Name = strings.TrimSpace(d.Name)
	d.Specialty = strings.TrimSpace(d.Specialty)
	d.Email = strings.TrimSpace(d.Email)
	if d.Name == "" {
		return fmt.Errorf("name is required")
	}
	if d.Specialty == "" {
		return fmt.Errorf("specialty is required")
	}
	if d.Fee < 0 {
		return fmt.Errorf("fee must not be negative")
	}
	if d.ExperienceYears < 0 {
		return fmt.Errorf("experienceYears must not be negative")
	}
	return nil
}

func (s *Service) Create(ctx context.Context, d *Doctor) error {
	if err := validate(d); err != nil {
		return err
	}
	return s.repo.Create(ctx, d)
}

// Get returns one doctor, with the availability set when withDays is true.
func (s *Service) Get(ctx context.Context, id uuid.UUID, withDays bool) (*Doctor, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if withDays {
		days, err := s.repo.Days(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load availability: %w", err)
		}
		if d.Availability, err = s.dayStarts(days); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, withDays bool) ([]*Doctor, error) {
	items, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if !withDays || len(items) == 0 {
		return items, nil
	}

	ids := make([]uuid.UUID, len(items))
	for i, d := range items {
		ids[i] = d.ID
	}
	byDoctor, err := s.repo.DaysFor(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	for _, d := range items {
		if d.Availability, err = s.dayStarts(byDoctor[d.ID]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

func (s *Service) Update(ctx context.Context, d *Doctor) error {
	if err := validate(d); err != nil {
		return err
	}
	return s.repo.Update(ctx, d)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// Availability returns the doctor's day-level availability as day-start instants.
func (s *Service) Availability(ctx context.Context, id uuid.UUID) ([]time.Time, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	days, err := s.repo.Days(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.dayStarts(days)
}

// SetAvailability replaces the availability set. Each entry is a plain date or
// an instant; instants are reduced to their calendar date in the operating
// timezone and duplicates collapse.
func (s *Service) SetAvailability(ctx context.Context, id uuid.UUID, entries []string) ([]time.Time, error) {
	days, err := NormalizeDays(entries, s.loc)
	if err != nil {
		return nil, err
	}
	if err := s.repo.SetDays(ctx, id, days); err != nil {
		return nil, err
	}
	return s.dayStarts(days)
}

// OpenOn reports whether the doctor accepts bookings on the calendar date.
func (s *Service) OpenOn(ctx context.Context, id uuid.UUID, date string) (bool, error) {
	return s.repo.HasDay(ctx, id, date)
}

func (s *Service) dayStarts(days []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(days))
	for _, day := range days {
		t, err := slots.DayStart(day, s.loc)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// NormalizeDays parses, deduplicates and sorts availability entries.
func NormalizeDays(entries []string, loc *time.Location) ([]string, error) {
	seen := make(map[string]bool, len(entries))
	days := make([]string, 0, len(entries))
	for _, e := range entries {
		day, err := slots.ParseDate(e, loc)
		if err != nil {
			return nil, err
		}
		if !seen[day] {
			seen[day] = true
			days = append(days, day)
		}
	}
	sort.Strings(days)
	return days, nil
}
