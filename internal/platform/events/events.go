// Package events publishes appointment lifecycle events to downstream
// consumers such as notification senders.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	AppointmentCreated   = "appointment.created"
	AppointmentCancelled = "appointment.cancelled"
	AppointmentUpdated   = "appointment.updated"
	AppointmentDeleted   = "appointment.deleted"
	AppointmentReminder  = "appointment.reminder"
)

// Event is a single lifecycle notification. Key groups events for the same
// aggregate onto one partition.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Key        string          `json:"key"`
	OccurredAt time.Time       `json:"occurredAt"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a fresh id and a JSON encoding of data.
func New(eventType, key string, data interface{}) (Event, error) {
	ev := Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LogPublisher writes events to the log. It is the default when no broker is
// configured.
type LogPublisher struct {
	logger zerolog.Logger
}

func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info().
		Str("event_id", event.ID).
		Str("event_type", event.Type).
		Str("key", event.Key).
		RawJSON("data", dataOrNull(event.Data)).
		Msg("event")
	return nil
}

func dataOrNull(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	return raw
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Emit builds and publishes an event, logging instead of failing. Callers use
// it after the state change is already committed.
func Emit(ctx context.Context, pub Publisher, logger zerolog.Logger, eventType, key string, data interface{}) {
	if pub == nil {
		return
	}
	ev, err := New(eventType, key, data)
	if err != nil {
		logger.Error().Err(err).Str("event_type", eventType).Msg("encode event")
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("event_type", eventType).Str("key", key).Msg("publish event")
	}
}
