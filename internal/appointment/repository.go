package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

var (
	ErrUnknownDoctor       = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks and availability: scheduled appointments of one
	// doctor whose interval overlaps [from, to). Matching on the interval
	// rather than the start date keeps bookings that spill past midnight
	// visible to both days.
	ListScheduledByDoctorWindow(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// Query operations
	ListAll(ctx context.Context, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDate(ctx context.Context, day time.Time) ([]Appointment, error)

	// Creation and updates
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledTime time.Time, reason string) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// Completion worker
	FindScheduledEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

// CalendarSource resolves a doctor's working calendar. The doctor directory
// itself is an external collaborator; the core only reads calendars.
type CalendarSource interface {
	GetCalendar(ctx context.Context, doctorID uuid.UUID) (*schedule.DoctorCalendar, error)
}
