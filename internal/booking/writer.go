package booking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/client"
	"github.com/docbook/docbook/internal/slots"
	"github.com/docbook/docbook/internal/store"
)

// API is the part of the REST surface the writer drives.
type API interface {
	SlotChecker
	CreateAppointment(ctx context.Context, in client.NewAppointment) (*client.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*client.Appointment, error)
	UpdateStatus(ctx context.Context, id, status string) (*client.Appointment, error)
}

type BookingRequest struct {
	DoctorID     string
	Date         string
	Time         string
	PatientName  string
	PatientEmail string
	PatientPhone string
	Reason       string
	// Status is confirmed when empty. Only admins may book pending.
	Status string
}

// Confirmation carries what the success view shows.
type Confirmation struct {
	Appointment client.Appointment
	DoctorID    string
	Date        string
	Time        string
	DateTime    time.Time
}

type Writer struct {
	api      API
	store    *store.Store
	loc      *time.Location
	leadTime time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

type WriterOption func(*Writer)

// WithLeadTime sets how close to its start an appointment can still be cancelled.
func WithLeadTime(d time.Duration) WriterOption {
	return func(w *Writer) {
		if d > 0 {
			w.leadTime = d
		}
	}
}

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

func NewWriter(api API, st *store.Store, loc *time.Location, logger zerolog.Logger, opts ...WriterOption) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	if st == nil {
		st = store.New()
	}
	w := &Writer{api: api, store: st, loc: loc, leadTime: LeadTime, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Store() *store.Store { return w.store }

func (r BookingRequest) validate() error {
	fields := []struct{ name, value string }{
		{"doctorId", r.DoctorID},
		{"date", r.Date},
		{"time", r.Time},
		{"patientName", r.PatientName},
		{"patientEmail", r.PatientEmail},
		{"patientPhone", r.PatientPhone},
	}
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidRequest, strings.Join(missing, ", "))
	}
	return nil
}

// Book rechecks the chosen slot and writes the appointment when it is still
// free. The check and the write are separate round trips; the server's own
// recheck answering 409 is reported as ErrSlotTaken as well. Nothing is
// retried.
func (w *Writer) Book(ctx context.Context, sess Session, req BookingRequest) (*Confirmation, error) {
	if !sess.Authenticated() {
		return nil, ErrNoIdentity
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	status := req.Status
	switch status {
	case "":
		status = client.StatusConfirmed
	case client.StatusConfirmed:
	case client.StatusPending:
		if !sess.IsAdmin() {
			return nil, fmt.Errorf("%w: only admins may book pending appointments", ErrInvalidRequest)
		}
	default:
		return nil, fmt.Errorf("%w: status %q", ErrInvalidRequest, req.Status)
	}

	date, err := slots.ParseDate(req.Date, w.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	at, err := slots.Instant(date, req.Time, w.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	label, err := slots.LabelOf(at, w.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	log := w.logger.With().
		Str("user_id", sess.UserID).
		Str("doctor_id", req.DoctorID).
		Time("date_time", at).
		Logger()

	free, err := w.api.CheckSlot(ctx, req.DoctorID, at)
	if err != nil {
		return nil, fmt.Errorf("final availability check: %w", err)
	}
	if !free {
		log.Info().Msg("slot taken before write")
		return nil, ErrSlotTaken
	}

	created, err := w.api.CreateAppointment(ctx, client.NewAppointment{
		DoctorID:     req.DoctorID,
		UserID:       sess.UserID,
		PatientName:  strings.TrimSpace(req.PatientName),
		PatientEmail: strings.TrimSpace(req.PatientEmail),
		PatientPhone: strings.TrimSpace(req.PatientPhone),
		Reason:       strings.TrimSpace(req.Reason),
		Date:         date,
		Time:         label,
		DateTime:     at,
		Status:       status,
	})
	if err != nil {
		if client.IsConflict(err) {
			log.Info().Msg("server rejected write, slot taken")
			return nil, fmt.Errorf("%w: %v", ErrSlotTaken, err)
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	w.store.Upsert(*created)
	log.Info().Str("appointment_id", created.ID).Msg("appointment booked")

	return &Confirmation{
		Appointment: *created,
		DoctorID:    req.DoctorID,
		Date:        date,
		Time:        label,
		DateTime:    at,
	}, nil
}
