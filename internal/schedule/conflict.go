package schedule

import (
	"time"

	"github.com/google/uuid"
)

// overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. An interval ending exactly when another begins is not a
// conflict.
func overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Annotate tags each slot free or occupied against the given scheduled
// bookings. Input slot order is preserved.
func Annotate(slots []Slot, existing []Booking) []AvailabilitySlot {
	out := make([]AvailabilitySlot, 0, len(slots))
	for _, s := range slots {
		status := SlotFree
		for _, b := range existing {
			if overlaps(s.Start, s.End, b.Start, b.End()) {
				status = SlotOccupied
				break
			}
		}
		out = append(out, AvailabilitySlot{Slot: s, Status: status})
	}
	return out
}

// CheckOverlap validates a proposed interval against existing bookings.
// exclude names an appointment to skip, so a reschedule does not conflict
// with itself; pass uuid.Nil at creation. A conflict is a normal outcome,
// reported as the conflicting booking ID, not an error.
func CheckOverlap(start time.Time, durationMinutes int, existing []Booking, exclude uuid.UUID) (conflict uuid.UUID, ok bool) {
	end := start.Add(time.Duration(durationMinutes) * time.Minute)
	for _, b := range existing {
		if exclude != uuid.Nil && b.ID == exclude {
			continue
		}
		if overlaps(start, end, b.Start, b.End()) {
			return b.ID, false
		}
	}
	return uuid.Nil, true
}
