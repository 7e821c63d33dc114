// Package reminder periodically announces upcoming appointments so that a
// notification consumer can contact the patient.
package reminder

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/domain/appointment"
	"github.com/docbook/docbook/internal/platform/events"
)

const batchSize = 200

// Source lists appointments that still need a reminder and records that one
// was sent. The appointment service satisfies it.
type Source interface {
	DueForReminder(ctx context.Context, now time.Time, window time.Duration, limit int) ([]*appointment.Appointment, error)
	MarkReminded(ctx context.Context, id uuid.UUID, at time.Time) error
}

type Job struct {
	source Source
	pub    events.Publisher
	logger zerolog.Logger
	window time.Duration
	now    func() time.Time

	// running guards against overlapping sweeps when one outlasts the schedule.
	running sync.Mutex
}

func NewJob(source Source, pub events.Publisher, logger zerolog.Logger, window time.Duration) *Job {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Job{source: source, pub: pub, logger: logger, window: window, now: time.Now}
}

// Sweep publishes one reminder per due appointment and returns how many were
// sent. An appointment is marked only after its event was accepted, so a
// failed publish is retried on the next sweep.
func (j *Job) Sweep(ctx context.Context) (int, error) {
	if !j.running.TryLock() {
		j.logger.Debug().Msg("reminder sweep already running")
		return 0, nil
	}
	defer j.running.Unlock()

	now := j.now()
	due, err := j.source.DueForReminder(ctx, now, j.window, batchSize)
	if err != nil {
		return 0, fmt.Errorf("list due appointments: %w", err)
	}

	sent := 0
	for _, a := range due {
		ev, err := events.New(events.AppointmentReminder, a.ID.String(), a)
		if err != nil {
			return sent, err
		}
		if err := j.pub.Publish(ctx, ev); err != nil {
			j.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("publish reminder")
			continue
		}
		if err := j.source.MarkReminded(ctx, a.ID, now); err != nil {
			j.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("mark reminded")
			continue
		}
		sent++
	}
	if sent > 0 {
		j.logger.Info().Int("sent", sent).Int("due", len(due)).Msg("reminders published")
	}
	return sent, nil
}

// Start schedules Sweep on the cron spec and returns the running scheduler.
// Stop it with Stop(), which waits for a sweep in progress.
func (j *Job) Start(ctx context.Context, spec string) (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if _, err := j.Sweep(ctx); err != nil {
			j.logger.Error().Err(err).Msg("reminder sweep failed")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule reminders %q: %w", spec, err)
	}
	c.Start()
	j.logger.Info().Str("schedule", spec).Dur("window", j.window).Msg("reminder job started")
	return c, nil
}
