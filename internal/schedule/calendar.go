package schedule

import (
	"time"

	"github.com/google/uuid"
)

// WorkingInterval is one block of a doctor's working hours, expressed as
// minutes from midnight. [StartMinute, EndMinute) is half-open.
type WorkingInterval struct {
	StartMinute int
	EndMinute   int
}

// DoctorCalendar defines a doctor's weekly working hours and the fixed slot
// duration appointments with that doctor take. Intervals within a weekday are
// non-overlapping and sorted by start.
type DoctorCalendar struct {
	DoctorID            uuid.UUID
	SlotDurationMinutes int
	WeeklyHours         map[time.Weekday][]WorkingInterval
}

// Slot is a candidate appointment interval, half-open [Start, End).
type Slot struct {
	Start time.Time
	End   time.Time
}

type SlotStatus string

const (
	SlotFree     SlotStatus = "free"
	SlotOccupied SlotStatus = "occupied"
)

// AvailabilitySlot is a Slot tagged free or occupied. Derived on every query,
// never persisted.
type AvailabilitySlot struct {
	Slot
	Status SlotStatus
}

// Booking is the minimal view of a scheduled appointment the conflict
// detector needs.
type Booking struct {
	ID              uuid.UUID
	Start           time.Time
	DurationMinutes int
}

// End returns the exclusive end of the booking's interval.
func (b Booking) End() time.Time {
	return b.Start.Add(time.Duration(b.DurationMinutes) * time.Minute)
}
