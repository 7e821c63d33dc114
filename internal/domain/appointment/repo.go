package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("appointment not found")
	ErrSlotTaken = errors.New("slot is not available")
)

type Repository interface {
	// CreateIfFree inserts a unless another active appointment holds the same
	// doctor and instant, in which case it returns ErrSlotTaken.
	CreateIfFree(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error)
	Delete(ctx context.Context, id uuid.UUID) error

	// Occupied reports whether an active appointment other than exclude holds
	// the doctor at the instant.
	Occupied(ctx context.Context, doctorID uuid.UUID, at time.Time, exclude uuid.UUID) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]*Appointment, error)
	// ListAdmin returns up to limit appointments ordered by instant then id,
	// newest first, strictly after the cursor appointment when one is given.
	ListAdmin(ctx context.Context, status string, after *Appointment, limit int) ([]*Appointment, error)

	ListDueForReminder(ctx context.Context, from, to time.Time, limit int) ([]*Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}
