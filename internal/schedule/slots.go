package schedule

import "time"

// GenerateSlots partitions each working interval of the date's weekday into
// consecutive slots of the calendar's fixed duration. A trailing remainder
// shorter than the duration is dropped rather than returned as a partial
// slot. The result is chronologically ordered and deduplicated; conflict
// annotation keyed by slot identity depends on that.
//
// Pure function of calendar + date; the time portion of date is ignored.
func GenerateSlots(cal *DoctorCalendar, date time.Time) []Slot {
	if cal == nil || cal.SlotDurationMinutes <= 0 {
		return nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	intervals := cal.WeeklyHours[dayStart.Weekday()]

	var slots []Slot
	for _, iv := range intervals {
		for m := iv.StartMinute; m+cal.SlotDurationMinutes <= iv.EndMinute; m += cal.SlotDurationMinutes {
			start := dayStart.Add(time.Duration(m) * time.Minute)
			end := start.Add(time.Duration(cal.SlotDurationMinutes) * time.Minute)

			// Calendars are required to carry sorted, non-overlapping
			// intervals, but a duplicated interval must not yield a
			// duplicated slot.
			if n := len(slots); n > 0 && !slots[n-1].Start.Before(start) {
				continue
			}

			slots = append(slots, Slot{Start: start, End: end})
		}
	}

	return slots
}
