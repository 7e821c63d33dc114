package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

type State string

const (
	StateSelectingDate   State = "selecting-date"
	StateSelectingSlot   State = "selecting-slot"
	StateEnteringDetails State = "entering-details"
	StateSubmitting      State = "submitting"
	StateSuccess         State = "success"
	StateClosed          State = "closed"
)

var (
	ErrSubmitInFlight    = errors.New("a submission is already in flight")
	ErrInvalidTransition = errors.New("not allowed in the current state")
	// ErrSuperseded is returned for a date whose result arrived after a newer
	// date was selected. The result is discarded.
	ErrSuperseded      = errors.New("superseded by a newer date selection")
	ErrSlotUnavailable = errors.New("slot is not available")
)

// Details are the patient fields entered on the booking form.
type Details struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	Reason       string
}

// Flow drives one booking attempt for one doctor.
type Flow struct {
	resolver     *Resolver
	writer       *Writer
	session      Session
	doctorID     string
	availability []time.Time

	mu           sync.Mutex
	state        State
	gen          uint64
	date         string
	partition    *Partition
	slot         string
	err          error
	confirmation *Confirmation
}

func NewFlow(resolver *Resolver, writer *Writer, sess Session, doctorID string, availability []time.Time) *Flow {
	return &Flow{
		resolver:     resolver,
		writer:       writer,
		session:      sess,
		doctorID:     doctorID,
		availability: availability,
		state:        StateSelectingDate,
	}
}

func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Flow) Date() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.date
}

func (f *Flow) Slot() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slot
}

// Partition returns the partition of the current date, if resolved.
func (f *Flow) Partition() (Partition, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.partition == nil {
		return Partition{}, false
	}
	return *f.partition, true
}

// Err is the message of the last failed submission.
func (f *Flow) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *Flow) Confirmation() *Confirmation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmation
}

func (f *Flow) transition(to State, from ...State) error {
	for _, s := range from {
		if f.state == s {
			f.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.state, to)
}

// SelectDate resolves the slot partition for date. A newer SelectDate call
// wins over an older one still in flight.
func (f *Flow) SelectDate(ctx context.Context, date string) (Partition, error) {
	f.mu.Lock()
	switch f.state {
	case StateSelectingDate, StateSelectingSlot, StateEnteringDetails:
	default:
		state := f.state
		f.mu.Unlock()
		return Partition{}, fmt.Errorf("%w: select date in %s", ErrInvalidTransition, state)
	}
	f.gen++
	gen := f.gen
	f.mu.Unlock()

	p, err := f.resolver.Resolve(ctx, f.doctorID, f.availability, date)

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen || f.state == StateClosed {
		return p, ErrSuperseded
	}
	if err != nil {
		return Partition{}, err
	}
	f.date = p.Date
	f.partition = &p
	f.slot = ""
	f.state = StateSelectingSlot
	return p, nil
}

// SelectSlot picks one of the available slots of the current partition.
func (f *Flow) SelectSlot(label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateSelectingSlot && f.state != StateEnteringDetails {
		return fmt.Errorf("%w: select slot in %s", ErrInvalidTransition, f.state)
	}
	if f.partition == nil || !f.partition.IsAvailable(label) {
		return fmt.Errorf("%w: %s", ErrSlotUnavailable, label)
	}
	f.slot = label
	f.state = StateEnteringDetails
	return nil
}

// Submit books the selected slot. On a conflict the partition is refreshed
// and the flow goes back to slot selection; other failures keep the form.
func (f *Flow) Submit(ctx context.Context, d Details) (*Confirmation, error) {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return nil, ErrSubmitInFlight
	}
	if err := f.transition(StateSubmitting, StateEnteringDetails); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	req := BookingRequest{
		DoctorID:     f.doctorID,
		Date:         f.date,
		Time:         f.slot,
		PatientName:  d.PatientName,
		PatientEmail: d.PatientEmail,
		PatientPhone: d.PatientPhone,
		Reason:       d.Reason,
	}
	f.err = nil
	f.mu.Unlock()

	conf, err := f.writer.Book(ctx, f.session, req)

	f.mu.Lock()
	if f.state == StateClosed {
		f.mu.Unlock()
		return conf, err
	}
	switch {
	case err == nil:
		f.state = StateSuccess
		f.confirmation = conf
		f.mu.Unlock()
		return conf, nil
	case errors.Is(err, ErrSlotTaken):
		f.err = err
		f.slot = ""
		f.state = StateSelectingSlot
		f.gen++
		gen, date := f.gen, f.date
		f.mu.Unlock()
		f.refresh(ctx, gen, date)
		return nil, err
	default:
		f.err = err
		f.state = StateEnteringDetails
		f.mu.Unlock()
		return nil, err
	}
}

func (f *Flow) refresh(ctx context.Context, gen uint64, date string) {
	p, err := f.resolver.Resolve(ctx, f.doctorID, f.availability, date)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if gen == f.gen && f.state == StateSelectingSlot {
		f.partition = &p
	}
}

// Close abandons the attempt from any state.
func (f *Flow) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateClosed
	f.gen++
}
