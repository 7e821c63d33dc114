// Package slots defines the fixed hourly slot catalogue and the calendar
// arithmetic done in the single operating timezone.
package slots

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	// DateLayout is the plain calendar-date format used on the wire.
	DateLayout = "2006-01-02"
	// LabelLayout is the HH:MM time-of-day format of a slot label.
	LabelLayout = "15:04"

	FirstHour = 8
	LastHour  = 16
	Duration  = time.Hour
)

var (
	ErrUnknownLabel = errors.New("not a catalogue slot")
	ErrInvalidDate  = errors.New("invalid calendar date")
)

var catalogue = func() []string {
	labels := make([]string, 0, LastHour-FirstHour+1)
	for h := FirstHour; h <= LastHour; h++ {
		labels = append(labels, fmt.Sprintf("%02d:00", h))
	}
	return labels
}()

// Catalogue returns the slot labels of one business day in order, 08:00 to 16:00.
func Catalogue() []string {
	out := make([]string, len(catalogue))
	copy(out, catalogue)
	return out
}

// Size is the number of slots per business day.
func Size() int { return len(catalogue) }

// LoadZone resolves the operating timezone by IANA name. An empty name means UTC.
func LoadZone(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load operating timezone %q: %w", name, err)
	}
	return loc, nil
}

// ParseLabel returns the hour of a catalogue label.
func ParseLabel(label string) (int, error) {
	t, err := time.Parse(LabelLayout, strings.TrimSpace(label))
	if err != nil || t.Minute() != 0 || t.Hour() < FirstHour || t.Hour() > LastHour {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return t.Hour(), nil
}

// ParseDate parses a calendar date. Both "YYYY-MM-DD" and an RFC 3339 instant
// are accepted; an instant is reduced to its calendar date in loc.
func ParseDate(s string, loc *time.Location) (string, error) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseInLocation(DateLayout, s, loc); err == nil {
		return d.Format(DateLayout), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Day(t, loc), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// Instant returns the UTC instant of the slot label on the calendar date,
// with the wall clock interpreted in loc.
func Instant(date, label string, loc *time.Location) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	hour, err := ParseLabel(label)
	if err != nil {
		return time.Time{}, err
	}
	at := time.Date(d.Year(), d.Month(), d.Day(), hour, 0, 0, 0, loc)
	if local := at.In(loc); local.Hour() != hour || local.Format(DateLayout) != date {
		return time.Time{}, fmt.Errorf("%w: %s %s does not exist in %s", ErrInvalidDate, date, label, loc)
	}
	return at.UTC(), nil
}

// DayStart is the instant a day-level availability entry is anchored to:
// the first slot of the business day.
func DayStart(date string, loc *time.Location) (time.Time, error) {
	return Instant(date, catalogue[0], loc)
}

// Day returns the calendar date of t in loc.
func Day(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// SameDay reports calendar-date equality of a and b in loc, ignoring time of day.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return Day(a, loc) == Day(b, loc)
}

// LabelOf returns the catalogue label of an instant. Instants that do not fall
// exactly on a slot start are rejected.
func LabelOf(t time.Time, loc *time.Location) (string, error) {
	local := t.In(loc)
	if local.Minute() != 0 || local.Second() != 0 || local.Nanosecond() != 0 ||
		local.Hour() < FirstHour || local.Hour() > LastHour {
		return "", fmt.Errorf("%w: %s", ErrUnknownLabel, t.Format(time.RFC3339))
	}
	return local.Format(LabelLayout), nil
}

// Contains reports whether the availability set holds the calendar date.
func Contains(availability []time.Time, date string, loc *time.Location) bool {
	for _, a := range availability {
		if Day(a, loc) == date {
			return true
		}
	}
	return false
}
