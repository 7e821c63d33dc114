package booking

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/docbook/docbook/internal/client"
)

var now = time.Date(2025, 4, 25, 9, 0, 0, 0, time.UTC)

func TestBook(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)

	conf, err := w.Book(context.Background(), user, validRequest("10:00"))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	want := slotAt(testDay, "10:00")
	if !conf.DateTime.Equal(want) || conf.Date != testDay || conf.Time != "10:00" {
		t.Errorf("unexpected confirmation %+v", conf)
	}
	if conf.Appointment.UserID != user.UserID || conf.Appointment.Status != client.StatusConfirmed {
		t.Errorf("unexpected appointment %+v", conf.Appointment)
	}
	if _, ok := w.Store().Get(conf.Appointment.ID); !ok {
		t.Error("expected appointment in store")
	}
	if checks, creates := api.counts(); checks != 1 || creates != 1 {
		t.Errorf("expected one check and one create, got %d/%d", checks, creates)
	}
}

func TestBook_ConflictBeforeWrite(t *testing.T) {
	api := newFakeAPI()
	api.take(slotAt(testDay, "10:00"))
	w := newWriter(api, now)

	_, err := w.Book(context.Background(), user, validRequest("10:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if _, creates := api.counts(); creates != 0 {
		t.Errorf("create must not be called on conflict, got %d calls", creates)
	}
	if w.Store().Len() != 0 {
		t.Error("store must be unchanged on conflict")
	}
}

func TestBook_ServerConflict(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &client.APIError{StatusCode: http.StatusConflict, Message: "slot already booked"}
	w := newWriter(api, now)

	_, err := w.Book(context.Background(), user, validRequest("10:00"))
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if w.Store().Len() != 0 {
		t.Error("store must be unchanged on conflict")
	}
}

func TestBook_BackendErrorNotRetried(t *testing.T) {
	api := newFakeAPI()
	api.createErr = &client.APIError{StatusCode: http.StatusBadRequest, Message: "patientEmail is invalid"}
	w := newWriter(api, now)

	_, err := w.Book(context.Background(), user, validRequest("10:00"))
	if err == nil || errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected plain backend error, got %v", err)
	}
	if client.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("expected wrapped 400, got %v", err)
	}
	if _, creates := api.counts(); creates != 1 {
		t.Errorf("expected exactly one create, got %d", creates)
	}
}

func TestBook_FinalCheckFailureAborts(t *testing.T) {
	api := newFakeAPI()
	api.fail(slotAt(testDay, "10:00"), client.ErrTransport)
	w := newWriter(api, now)

	_, err := w.Book(context.Background(), user, validRequest("10:00"))
	if !errors.Is(err, client.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if _, creates := api.counts(); creates != 0 {
		t.Error("create must not run after a failed final check")
	}
}

func TestBook_NoIdentity(t *testing.T) {
	api := newFakeAPI()
	_, err := newWriter(api, now).Book(context.Background(), Session{}, validRequest("10:00"))
	if !errors.Is(err, ErrNoIdentity) {
		t.Fatalf("expected ErrNoIdentity, got %v", err)
	}
	if checks, _ := api.counts(); checks != 0 {
		t.Error("no call may be made without identity")
	}
}

func TestBook_InvalidRequests(t *testing.T) {
	tests := []struct {
		name   string
		sess   Session
		mutate func(*BookingRequest)
	}{
		{"missing name", user, func(r *BookingRequest) { r.PatientName = " " }},
		{"missing phone", user, func(r *BookingRequest) { r.PatientPhone = "" }},
		{"off catalogue", user, func(r *BookingRequest) { r.Time = "17:00" }},
		{"half hour", user, func(r *BookingRequest) { r.Time = "10:30" }},
		{"bad date", user, func(r *BookingRequest) { r.Date = "tomorrow" }},
		{"pending as user", user, func(r *BookingRequest) { r.Status = client.StatusPending }},
		{"cancelled status", admin, func(r *BookingRequest) { r.Status = client.StatusCancelled }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			req := validRequest("10:00")
			tt.mutate(&req)
			_, err := newWriter(api, now).Book(context.Background(), tt.sess, req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("expected ErrInvalidRequest, got %v", err)
			}
			if checks, _ := api.counts(); checks != 0 {
				t.Error("invalid requests must not reach the backend")
			}
		})
	}
}

func TestBook_NonexistentLocalTime(t *testing.T) {
	loc, err := time.LoadLocation("Pacific/Apia")
	if err != nil {
		t.Fatalf("load zone: %v", err)
	}
	api := newFakeAPI()
	w := NewWriter(api, nil, loc, zerolog.Nop(), WithClock(func() time.Time { return now }))

	req := validRequest("08:00")
	req.Date = "2011-12-30"
	if _, err := w.Book(context.Background(), user, req); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if checks, creates := api.counts(); checks != 0 || creates != 0 {
		t.Errorf("expected no backend calls, got %d checks %d creates", checks, creates)
	}
}

func TestBook_AdminPending(t *testing.T) {
	req := validRequest("10:00")
	req.Status = client.StatusPending
	conf, err := newWriter(newFakeAPI(), now).Book(context.Background(), admin, req)
	if err != nil {
		t.Fatal(err)
	}
	if conf.Appointment.Status != client.StatusPending {
		t.Errorf("expected pending, got %q", conf.Appointment.Status)
	}
}

func seeded(api *fakeAPI, id, owner string, at time.Time) client.Appointment {
	a := client.Appointment{
		ID:       id,
		DoctorID: testDoctor,
		UserID:   owner,
		Date:     testDay,
		Time:     at.Format("15:04"),
		DateTime: at,
		Status:   client.StatusConfirmed,
	}
	api.seed(a)
	return a
}

func TestCheckCancellable(t *testing.T) {
	tests := []struct {
		name  string
		ahead time.Duration
		ok    bool
	}{
		{"three hours", 3 * time.Hour, true},
		{"exactly lead time", 2 * time.Hour, true},
		{"just inside window", 2*time.Hour - time.Second, false},
		{"one hour", time.Hour, false},
		{"in the past", -time.Hour, false},
	}
	for _, tt := range tests {
		err := CheckCancellable(now.Add(tt.ahead), now, LeadTime)
		if tt.ok && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
		if !tt.ok && !errors.Is(err, ErrCancellationWindow) {
			t.Errorf("%s: expected ErrCancellationWindow, got %v", tt.name, err)
		}
	}
}

// Scenario: an appointment three hours out is cancelled on both sides.
func TestCancel_ThreeHoursAhead(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)
	a := seeded(api, "appt-9", user.UserID, now.Add(3*time.Hour))
	w.Store().Upsert(a)

	got, err := w.Cancel(context.Background(), user, a.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got.Status != client.StatusCancelled {
		t.Errorf("expected cancelled, got %q", got.Status)
	}
	cached, _ := w.Store().Get(a.ID)
	if cached.Status != client.StatusCancelled {
		t.Errorf("store status = %q", cached.Status)
	}
	backend, _ := api.GetAppointment(context.Background(), a.ID)
	if backend.Status != client.StatusCancelled {
		t.Errorf("backend status = %q", backend.Status)
	}
}

func TestCancel_InsideWindow(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)
	a := seeded(api, "appt-1", user.UserID, now.Add(time.Hour))
	w.Store().Upsert(a)

	_, err := w.Cancel(context.Background(), user, a.ID)
	if !errors.Is(err, ErrCancellationWindow) {
		t.Fatalf("expected ErrCancellationWindow, got %v", err)
	}
	cached, _ := w.Store().Get(a.ID)
	if cached.Status != client.StatusConfirmed {
		t.Error("store must be unchanged")
	}
	if api.updates != 0 {
		t.Error("backend must not be called")
	}
}

func TestCancel_FetchesWhenNotCached(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)
	a := seeded(api, "appt-2", user.UserID, now.Add(5*time.Hour))

	if _, err := w.Cancel(context.Background(), user, a.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	cached, ok := w.Store().Get(a.ID)
	if !ok || cached.Status != client.StatusCancelled {
		t.Errorf("expected cancelled appointment cached, got %+v", cached)
	}
}

func TestCancel_Rejections(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)
	other := seeded(api, "appt-3", "someone-else", now.Add(5*time.Hour))

	if _, err := w.Cancel(context.Background(), user, other.ID); !errors.Is(err, ErrNotOwner) {
		t.Errorf("expected ErrNotOwner, got %v", err)
	}
	if w.Store().Len() != 0 {
		t.Error("rejected cancel must not cache the fetched appointment")
	}
	if _, err := w.Cancel(context.Background(), Session{}, other.ID); !errors.Is(err, ErrNoIdentity) {
		t.Errorf("expected ErrNoIdentity, got %v", err)
	}
	if _, err := w.Cancel(context.Background(), user, "missing"); !client.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	if _, err := w.Cancel(context.Background(), admin, other.ID); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	if _, err := w.Cancel(context.Background(), admin, other.ID); !errors.Is(err, ErrAlreadyCancelled) {
		t.Errorf("expected ErrAlreadyCancelled, got %v", err)
	}
}

func TestCancel_CustomLeadTime(t *testing.T) {
	api := newFakeAPI()
	w := NewWriter(api, nil, time.UTC, zerolog.Nop(), WithLeadTime(6*time.Hour), WithClock(func() time.Time { return now }))
	a := seeded(api, "appt-4", user.UserID, now.Add(5*time.Hour))
	if _, err := w.Cancel(context.Background(), user, a.ID); !errors.Is(err, ErrCancellationWindow) {
		t.Errorf("expected ErrCancellationWindow, got %v", err)
	}
	if w.Store().Len() != 0 {
		t.Error("rejected cancel must not cache the fetched appointment")
	}
}

func TestCancel_InsideWindowNotCached(t *testing.T) {
	api := newFakeAPI()
	w := newWriter(api, now)
	a := seeded(api, "appt-5", user.UserID, now.Add(time.Hour))

	if _, err := w.Cancel(context.Background(), user, a.ID); !errors.Is(err, ErrCancellationWindow) {
		t.Fatalf("expected ErrCancellationWindow, got %v", err)
	}
	if _, ok := w.Store().Get(a.ID); ok || w.Store().Len() != 0 {
		t.Error("store must be unchanged")
	}
}
