package doctor

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("doctor not found")

// Repository persists doctors and their day-level availability. Days are
// calendar dates in "YYYY-MM-DD" form.
type Repository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	Update(ctx context.Context, d *Doctor) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Doctor, error)

	Days(ctx context.Context, id uuid.UUID) ([]string, error)
	DaysFor(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error)
	SetDays(ctx context.Context, id uuid.UUID, days []string) error
	HasDay(ctx context.Context, id uuid.UUID, day string) (bool, error)
}
