package booking

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/client"
	"github.com/docbook/docbook/internal/slots"
	"github.com/docbook/docbook/internal/store"
)

const testDoctor = "doc-brown"

var (
	testDay      = "2025-04-25"
	availability = []time.Time{
		time.Date(2025, 4, 25, 8, 0, 0, 0, time.UTC),
		time.Date(2025, 4, 26, 8, 0, 0, 0, time.UTC),
	}
	user  = Session{UserID: "u-1", Role: "user", Token: "t"}
	admin = Session{UserID: "admin-1", Role: "admin", Token: "t"}
)

func slotAt(date, label string) time.Time {
	at, err := slots.Instant(date, label, time.UTC)
	if err != nil {
		panic(err)
	}
	return at
}

// fakeAPI is an in-memory backend. Occupancy is keyed by instant.
type fakeAPI struct {
	mu        sync.Mutex
	taken     map[time.Time]bool
	failing   map[time.Time]error
	appts     map[string]client.Appointment
	checks    int
	creates   int
	updates   int
	createErr error
	nextID    int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		taken:   map[time.Time]bool{},
		failing: map[time.Time]error{},
		appts:   map[string]client.Appointment{},
	}
}

func (f *fakeAPI) take(at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.taken[at] = true
}

func (f *fakeAPI) fail(at time.Time, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[at] = err
}

func (f *fakeAPI) counts() (checks, creates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checks, f.creates
}

func (f *fakeAPI) CheckSlot(_ context.Context, _ string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if err, ok := f.failing[at]; ok {
		return false, err
	}
	return !f.taken[at], nil
}

func (f *fakeAPI) CreateAppointment(_ context.Context, in client.NewAppointment) (*client.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.taken[in.DateTime] {
		return nil, &client.APIError{StatusCode: http.StatusConflict, Message: "slot already booked"}
	}
	f.nextID++
	a := client.Appointment{
		ID:           fmt.Sprintf("appt-%d", f.nextID),
		DoctorID:     in.DoctorID,
		UserID:       in.UserID,
		PatientName:  in.PatientName,
		PatientEmail: in.PatientEmail,
		PatientPhone: in.PatientPhone,
		Reason:       in.Reason,
		Date:         in.Date,
		Time:         in.Time,
		DateTime:     in.DateTime,
		Status:       in.Status,
	}
	f.appts[a.ID] = a
	f.taken[a.DateTime] = true
	return &a, nil
}

func (f *fakeAPI) GetAppointment(_ context.Context, id string) (*client.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appts[id]
	if !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Message: "appointment not found"}
	}
	return &a, nil
}

func (f *fakeAPI) UpdateStatus(_ context.Context, id, status string) (*client.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	a, ok := f.appts[id]
	if !ok {
		return nil, &client.APIError{StatusCode: http.StatusNotFound, Message: "appointment not found"}
	}
	a.Status = status
	if status == client.StatusCancelled {
		delete(f.taken, a.DateTime)
	}
	f.appts[id] = a
	return &a, nil
}

func (f *fakeAPI) seed(a client.Appointment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appts[a.ID] = a
	if a.Status != client.StatusCancelled {
		f.taken[a.DateTime] = true
	}
}

// gatedAPI blocks CheckSlot until the gate opens, and signals the first
// blocked call on started.
type gatedAPI struct {
	*fakeAPI
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
	match   func(time.Time) bool
}

func newGatedAPI(inner *fakeAPI, match func(time.Time) bool) *gatedAPI {
	return &gatedAPI{fakeAPI: inner, gate: make(chan struct{}), started: make(chan struct{}), match: match}
}

func (g *gatedAPI) CheckSlot(ctx context.Context, doctorID string, at time.Time) (bool, error) {
	if g.match == nil || g.match(at) {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return g.fakeAPI.CheckSlot(ctx, doctorID, at)
}

func newWriter(api API, now time.Time) *Writer {
	return NewWriter(api, store.New(), time.UTC, zerolog.Nop(), WithClock(func() time.Time { return now }))
}

func validRequest(label string) BookingRequest {
	return BookingRequest{
		DoctorID:     testDoctor,
		Date:         testDay,
		Time:         label,
		PatientName:  "Pat Doe",
		PatientEmail: "pat@example.com",
		PatientPhone: "555-0100",
		Reason:       "checkup",
	}
}
