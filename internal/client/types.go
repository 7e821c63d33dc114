package client

import (
	"time"
)

// Appointment statuses as sent by the server.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

type Doctor struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Specialty       string      `json:"specialty"`
	Fee             float64     `json:"fee"`
	ExperienceYears int         `json:"experienceYears"`
	About           string      `json:"about,omitempty"`
	Email           string      `json:"email,omitempty"`
	Availability    []time.Time `json:"availability,omitempty"`
}

type Appointment struct {
	ID           string    `json:"id"`
	DoctorID     string    `json:"doctorId"`
	UserID       string    `json:"userId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	PatientPhone string    `json:"patientPhone"`
	Reason       string    `json:"reason,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	DateTime     time.Time `json:"dateTime"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// NewAppointment is the body of POST /appointments.
type NewAppointment struct {
	DoctorID     string    `json:"doctorId"`
	UserID       string    `json:"userId"`
	PatientName  string    `json:"patientName"`
	PatientEmail string    `json:"patientEmail"`
	PatientPhone string    `json:"patientPhone"`
	Reason       string    `json:"reason,omitempty"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	DateTime     time.Time `json:"dateTime"`
	Status       string    `json:"status,omitempty"`
}

type AdminQuery struct {
	Status  string
	Limit   int
	LastDoc string
}

type AdminPage struct {
	Appointments []Appointment `json:"appointments"`
	LastDoc      string        `json:"lastDoc"`
	HasMore      bool          `json:"hasMore"`
}
