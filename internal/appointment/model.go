package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status permits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Appointment is the authoritative booking record. DurationMinutes is copied
// from the doctor's slot duration at creation and never changes afterwards;
// ScheduledTime and Status change only through the Service.
type Appointment struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	DoctorID        uuid.UUID
	ScheduledTime   time.Time
	DurationMinutes int
	Status          Status
	Reason          string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// EndTime returns the exclusive end of the appointment's interval.
func (a *Appointment) EndTime() time.Time {
	return a.ScheduledTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
