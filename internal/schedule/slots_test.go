package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func mondayCalendar(slotMinutes int, intervals ...WorkingInterval) *DoctorCalendar {
	return &DoctorCalendar{
		DoctorID:            uuid.New(),
		SlotDurationMinutes: slotMinutes,
		WeeklyHours: map[time.Weekday][]WorkingInterval{
			time.Monday: intervals,
		},
	}
}

func TestGenerateSlotsMorningBlock(t *testing.T) {
	cal := mondayCalendar(30, WorkingInterval{StartMinute: 9 * 60, EndMinute: 12 * 60})

	slots := GenerateSlots(cal, monday)

	require.Len(t, slots, 6)
	for i, wantHour := range []int{9, 9, 10, 10, 11, 11} {
		require.Equal(t, wantHour, slots[i].Start.Hour())
		require.Equal(t, (i%2)*30, slots[i].Start.Minute())
		require.Equal(t, 30*time.Minute, slots[i].End.Sub(slots[i].Start))
	}
	require.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), slots[0].Start)
	require.Equal(t, time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC), slots[5].Start)
}

func TestGenerateSlotsOrderedAndNonOverlapping(t *testing.T) {
	cal := mondayCalendar(20,
		WorkingInterval{StartMinute: 8 * 60, EndMinute: 11*60 + 30},
		WorkingInterval{StartMinute: 13 * 60, EndMinute: 17 * 60},
	)

	slots := GenerateSlots(cal, monday)
	require.NotEmpty(t, slots)

	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].End.Before(slots[i].Start) || slots[i-1].End.Equal(slots[i].Start),
			"slot %d overlaps slot %d", i-1, i)
	}
}

func TestGenerateSlotsDropsTrailingRemainder(t *testing.T) {
	// 105 minutes of working time fits three 30-minute slots; the last 15
	// minutes must not become a partial slot.
	cal := mondayCalendar(30, WorkingInterval{StartMinute: 9 * 60, EndMinute: 10*60 + 45})

	slots := GenerateSlots(cal, monday)

	require.Len(t, slots, 3)
	require.Equal(t, time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), slots[2].End)
}

func TestGenerateSlotsOffDay(t *testing.T) {
	cal := mondayCalendar(30, WorkingInterval{StartMinute: 9 * 60, EndMinute: 12 * 60})

	sunday := monday.AddDate(0, 0, -1)
	require.Empty(t, GenerateSlots(cal, sunday))
}

func TestGenerateSlotsDeduplicatesRepeatedIntervals(t *testing.T) {
	iv := WorkingInterval{StartMinute: 9 * 60, EndMinute: 10 * 60}
	cal := mondayCalendar(30, iv, iv)

	slots := GenerateSlots(cal, monday)

	require.Len(t, slots, 2)
	for i := 1; i < len(slots); i++ {
		require.True(t, slots[i-1].Start.Before(slots[i].Start))
	}
}

func TestGenerateSlotsIgnoresTimePortionOfDate(t *testing.T) {
	cal := mondayCalendar(30, WorkingInterval{StartMinute: 9 * 60, EndMinute: 12 * 60})

	afternoon := monday.Add(15*time.Hour + 42*time.Minute)
	require.Equal(t, GenerateSlots(cal, monday), GenerateSlots(cal, afternoon))
}

func TestGenerateSlotsNilAndZeroDuration(t *testing.T) {
	require.Empty(t, GenerateSlots(nil, monday))
	require.Empty(t, GenerateSlots(mondayCalendar(0, WorkingInterval{StartMinute: 0, EndMinute: 60}), monday))
}
