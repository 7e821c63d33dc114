package appointment

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/platform/events"
	"github.com/docbook/docbook/internal/slots"
	"github.com/docbook/docbook/pkg/pagination"
)

var ErrInvalidCursor = errors.New("unknown lastDoc cursor")

// Calendar answers the day-level gate for a doctor.
type Calendar interface {
	OpenOn(ctx context.Context, doctorID uuid.UUID, date string) (bool, error)
}

type Service struct {
	repo     Repository
	calendar Calendar
	loc      *time.Location
	pub      events.Publisher
	logger   zerolog.Logger
}

func NewService(repo Repository, calendar Calendar, loc *time.Location, pub events.Publisher, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, calendar: calendar, loc: loc, pub: pub, logger: logger}
}

// IsAvailable reports whether the doctor can be booked at the instant: the
// instant must be a catalogue slot, the day must be in the doctor's
// availability set and no active appointment may hold it.
func (s *Service) IsAvailable(ctx context.Context, doctorID uuid.UUID, at time.Time) (bool, error) {
	return s.available(ctx, doctorID, at, uuid.Nil)
}

func (s *Service) available(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error) {
	if _, err := slots.LabelOf(at, s.loc); err != nil {
		return false, nil
	}
	open, err := s.calendar.OpenOn(ctx, doctorID, slots.Day(at, s.loc))
	if err != nil {
		return false, fmt.Errorf("check doctor availability: %w", err)
	}
	if !open {
		return false, nil
	}
	taken, err := s.repo.Occupied(ctx, doctorID, at.UTC(), exclude)
	if err != nil {
		return false, fmt.Errorf("check slot occupancy: %w", err)
	}
	return !taken, nil
}

// normalize fills Date/Time from DateTime or DateTime from Date/Time and
// rejects inconsistent combinations.
func (s *Service) normalize(a *Appointment) error {
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.PatientEmail = strings.TrimSpace(a.PatientEmail)
	a.PatientPhone = strings.TrimSpace(a.PatientPhone)
	a.Reason = strings.TrimSpace(a.Reason)

	if a.DoctorID == uuid.Nil {
		return fmt.Errorf("doctorId is required")
	}
	if a.PatientName == "" {
		return fmt.Errorf("patientName is required")
	}
	if a.PatientEmail == "" {
		return fmt.Errorf("patientEmail is required")
	}
	if _, err := mail.ParseAddress(a.PatientEmail); err != nil {
		return fmt.Errorf("patientEmail is invalid")
	}
	if a.PatientPhone == "" {
		return fmt.Errorf("patientPhone is required")
	}

	if a.DateTime.IsZero() {
		if a.Date == "" || a.Time == "" {
			return fmt.Errorf("dateTime or date and time are required")
		}
		at, err := slots.Instant(a.Date, a.Time, s.loc)
		if err != nil {
			return err
		}
		a.DateTime = at
		return nil
	}

	a.DateTime = a.DateTime.UTC()
	label, err := slots.LabelOf(a.DateTime, s.loc)
	if err != nil {
		return err
	}
	day := slots.Day(a.DateTime, s.loc)
	if (a.Date != "" && a.Date != day) || (a.Time != "" && a.Time != label) {
		return fmt.Errorf("date and time do not match dateTime")
	}
	a.Date, a.Time = day, label
	return nil
}

// Create books an appointment after re-checking the slot. The check and the
// insert are not atomic across concurrent writers.
func (s *Service) Create(ctx context.Context, a *Appointment) error {
	if strings.TrimSpace(a.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if err := s.normalize(a); err != nil {
		return err
	}
	if a.Status == "" {
		a.Status = StatusConfirmed
	}
	if a.Status != StatusPending && a.Status != StatusConfirmed {
		return fmt.Errorf("invalid status for a new appointment: %s", a.Status)
	}

	ok, err := s.IsAvailable(ctx, a.DoctorID, a.DateTime)
	if err != nil {
		return err
	}
	if !ok {
		return ErrSlotTaken
	}
	if err := s.repo.CreateIfFree(ctx, a); err != nil {
		return err
	}

	s.logger.Info().
		Str("appointment_id", a.ID.String()).
		Str("doctor_id", a.DoctorID.String()).
		Time("date_time", a.DateTime).
		Msg("appointment booked")
	events.Emit(ctx, s.pub, s.logger, events.AppointmentCreated, a.ID.String(), a)
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*Appointment, error) {
	items, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

// UpdateStatus moves an appointment to status. Reactivating a cancelled
// appointment re-checks its slot.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("invalid status: %s", status)
	}
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if !current.Active() {
		ok, err := s.available(ctx, current.DoctorID, current.DateTime, current.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrSlotTaken
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	eventType := events.AppointmentUpdated
	if status == StatusCancelled {
		eventType = events.AppointmentCancelled
	}
	events.Emit(ctx, s.pub, s.logger, eventType, id.String(), updated)
	return updated, nil
}

// Update replaces the editable fields. Moving an active appointment to a new
// doctor or instant re-checks the target slot. a is only modified when the
// update is stored.
func (s *Service) Update(ctx context.Context, a *Appointment) error {
	current, err := s.repo.GetByID(ctx, a.ID)
	if err != nil {
		return err
	}
	next := *a
	if err := s.normalize(&next); err != nil {
		return err
	}
	if next.Status == "" {
		next.Status = current.Status
	}
	if !ValidStatus(next.Status) {
		return fmt.Errorf("invalid status: %s", next.Status)
	}

	moved := next.DoctorID != current.DoctorID || !next.DateTime.Equal(current.DateTime)
	reactivated := !current.Active() && next.Active()
	if next.Active() && (moved || reactivated) {
		ok, err := s.available(ctx, next.DoctorID, next.DateTime, next.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrSlotTaken
		}
	}

	if err := s.repo.Update(ctx, &next); err != nil {
		return err
	}
	*a = next
	events.Emit(ctx, s.pub, s.logger, events.AppointmentUpdated, a.ID.String(), a)
	return nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	events.Emit(ctx, s.pub, s.logger, events.AppointmentDeleted, id.String(), map[string]string{"id": id.String()})
	return nil
}

// AdminList returns one keyset page, newest first. status filters when set.
func (s *Service) AdminList(ctx context.Context, status string, p pagination.Params) (pagination.Page[*Appointment], error) {
	if status != "" && !ValidStatus(status) {
		return pagination.Page[*Appointment]{}, fmt.Errorf("invalid status: %s", status)
	}

	var after *Appointment
	if p.LastDoc != "" {
		id, err := uuid.Parse(p.LastDoc)
		if err != nil {
			return pagination.Page[*Appointment]{}, ErrInvalidCursor
		}
		after, err = s.repo.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			return pagination.Page[*Appointment]{}, ErrInvalidCursor
		}
		if err != nil {
			return pagination.Page[*Appointment]{}, err
		}
	}

	items, err := s.repo.ListAdmin(ctx, status, after, p.Fetch())
	if err != nil {
		return pagination.Page[*Appointment]{}, err
	}
	return pagination.Trim(p, items, func(a *Appointment) string { return a.ID.String() }), nil
}

// DueForReminder lists active, not yet reminded appointments starting after
// now and no later than now+window.
func (s *Service) DueForReminder(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*Appointment, error) {
	return s.repo.ListDueForReminder(ctx, now.UTC(), now.Add(window).UTC(), limit)
}

func (s *Service) MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error {
	return s.repo.MarkReminded(ctx, id, at.UTC())
}
