package appointment

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusConfirmed: true, StatusCancelled: true,
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool { return validStatuses[s] }

// Appointment maps to the appointment table. Date and Time are the calendar
// date and slot label of DateTime in the operating timezone.
type Appointment struct {
	ID           uuid.UUID  `json:"id"`
	DoctorID     uuid.UUID  `json:"doctorId"`
	UserID       string     `json:"userId"`
	PatientName  string     `json:"patientName"`
	PatientEmail string     `json:"patientEmail"`
	PatientPhone string     `json:"patientPhone"`
	Reason       string     `json:"reason,omitempty"`
	Date         string     `json:"date"`
	Time         string     `json:"time"`
	DateTime     time.Time  `json:"dateTime"`
	Status       string     `json:"status"`
	RemindedAt   *time.Time `json:"remindedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Active reports whether the appointment still occupies its slot.
func (a *Appointment) Active() bool { return a.Status != StatusCancelled }

type StatusBody struct {
	Status string `json:"status"`
}

type AvailabilityResponse struct {
	IsAvailable bool `json:"isAvailable"`
}

// AdminPage is one page of the admin listing.
type AdminPage struct {
	Appointments []*Appointment `json:"appointments"`
	LastDoc      string         `json:"lastDoc,omitempty"`
	HasMore      bool           `json:"hasMore"`
}
