package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/docbook/docbook/internal/slots"
)

// SlotChecker answers the single-slot availability question.
// *client.Client satisfies it.
type SlotChecker interface {
	CheckSlot(ctx context.Context, doctorID string, at time.Time) (bool, error)
}

// Partition splits the slot catalogue of one date. Every list keeps
// catalogue order; Available and Booked are disjoint and together cover the
// catalogue.
type Partition struct {
	Date      string   `json:"date"`
	Available []string `json:"available"`
	Booked    []string `json:"booked"`
	// Unchecked lists slots whose check failed and were treated as available.
	Unchecked []string `json:"unchecked,omitempty"`
	// Degraded is set when the batch as a whole failed and every slot was
	// treated as available.
	Degraded bool `json:"degraded,omitempty"`
}

func (p Partition) IsAvailable(label string) bool {
	for _, l := range p.Available {
		if l == label {
			return true
		}
	}
	return false
}

type Resolver struct {
	checker SlotChecker
	loc     *time.Location
	limit   int
	logger  zerolog.Logger
}

type ResolverOption func(*Resolver)

// WithConcurrency bounds the number of checks in flight. The default runs the
// whole catalogue at once.
func WithConcurrency(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.limit = n
		}
	}
}

func NewResolver(checker SlotChecker, loc *time.Location, logger zerolog.Logger, opts ...ResolverOption) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{checker: checker, loc: loc, limit: slots.Size(), logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve partitions the catalogue for date. A date missing from the
// doctor's availability set comes back fully booked without any check.
func (r *Resolver) Resolve(ctx context.Context, doctorID string, availability []time.Time, date string) (Partition, error) {
	day, err := slots.ParseDate(date, r.loc)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	labels := slots.Catalogue()
	p := Partition{Date: day}

	if !slots.Contains(availability, day, r.loc) {
		p.Available = []string{}
		p.Booked = labels
		return p, nil
	}

	const (
		booked = iota
		free
		unchecked
	)
	results := make([]int, len(labels))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i, label := range labels {
		i, label := i, label
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			at, err := slots.Instant(day, label, r.loc)
			if err != nil {
				return err
			}
			ok, err := r.checker.CheckSlot(gctx, doctorID, at)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn().Err(err).
					Str("doctor_id", doctorID).
					Str("date", day).
					Str("slot", label).
					Msg("slot check failed, treating slot as available")
				results[i] = unchecked
				return nil
			}
			if ok {
				results[i] = free
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		r.logger.Warn().Err(err).
			Str("doctor_id", doctorID).
			Str("date", day).
			Msg("availability batch failed, treating day as available")
		p.Available = labels
		p.Booked = []string{}
		p.Degraded = true
		return p, nil
	}

	p.Available = make([]string, 0, len(labels))
	p.Booked = make([]string, 0, len(labels))
	for i, label := range labels {
		switch results[i] {
		case free:
			p.Available = append(p.Available, label)
		case unchecked:
			p.Available = append(p.Available, label)
			p.Unchecked = append(p.Unchecked, label)
		default:
			p.Booked = append(p.Booked, label)
		}
	}
	return p, nil
}
