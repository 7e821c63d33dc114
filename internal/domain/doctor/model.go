package doctor

import (
	"time"

	"github.com/google/uuid"
)

// Doctor maps to the doctor table. Availability holds day-level entries as
// instants anchored to the start of the business day; it is only populated
// when requested.
type Doctor struct {
	ID              uuid.UUID   `json:"id"`
	Name            string      `json:"name"`
	Specialty       string      `json:"specialty"`
	Fee             float64     `json:"fee"`
	ExperienceYears int         `json:"experienceYears"`
	About           string      `json:"about,omitempty"`
	Email           string      `json:"email,omitempty"`
	Availability    []time.Time `json:"availability,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// AvailabilityBody is the request and response body of the availability routes.
// Entries may be plain dates or instants on the way in; they are always
// day-start instants on the way out.
type AvailabilityBody struct {
	Availability []string `json:"availability"`
}
