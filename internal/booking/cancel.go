package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docbook/docbook/internal/client"
)

// LeadTime is the default minimum distance between now and an appointment's
// start for it to be cancellable.
const LeadTime = 2 * time.Hour

var (
	ErrCancellationWindow = errors.New("appointment starts too soon to cancel")
	ErrAlreadyCancelled   = errors.New("appointment already cancelled")
)

// CheckCancellable rejects instants closer than lead to now, past ones included.
func CheckCancellable(at, now time.Time, lead time.Duration) error {
	if at.Sub(now) < lead {
		return fmt.Errorf("%w: starts %s, cancellations close %s before", ErrCancellationWindow,
			at.UTC().Format(time.RFC3339), lead)
	}
	return nil
}

// Cancel sets the appointment's status to cancelled on the backend and in the
// store. Rejections leave both unchanged.
func (w *Writer) Cancel(ctx context.Context, sess Session, id string) (*client.Appointment, error) {
	if !sess.Authenticated() {
		return nil, ErrNoIdentity
	}

	appt, ok := w.store.Get(id)
	if !ok {
		fetched, err := w.api.GetAppointment(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get appointment: %w", err)
		}
		appt = *fetched
	}

	if appt.UserID != sess.UserID && !sess.IsAdmin() {
		return nil, ErrNotOwner
	}
	if appt.Status == client.StatusCancelled {
		return nil, ErrAlreadyCancelled
	}
	if err := CheckCancellable(appt.DateTime, w.now(), w.leadTime); err != nil {
		return nil, err
	}

	updated, err := w.api.UpdateStatus(ctx, id, client.StatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	w.store.Upsert(*updated)
	w.logger.Info().
		Str("user_id", sess.UserID).
		Str("appointment_id", id).
		Msg("appointment cancelled")
	return updated, nil
}
