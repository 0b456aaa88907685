package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/config"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
)

var (
	ErrSlotUnavailable   = errors.New("requested time conflicts with an existing appointment")
	ErrInvalidTransition = errors.New("appointment status does not permit this transition")
	ErrScheduleBusy      = errors.New("doctor schedule is being modified, please retry")
)

// Service owns the appointment state machine. Every mutation for a doctor
// runs under that doctor's lock, so read-existing -> conflict-check -> commit
// is atomic per doctor and two scheduled appointments can never overlap.
type Service struct {
	repo      Repository
	calendars CalendarSource
	locker    redisclient.Locker
	cfg       config.Config
}

func NewService(repo Repository, calendars CalendarSource, locker redisclient.Locker, cfg config.Config) *Service {
	return &Service{
		repo:      repo,
		calendars: calendars,
		locker:    locker,
		cfg:       cfg,
	}
}

// Create books a new appointment. The duration is taken from the doctor's
// calendar at creation time and is immutable afterwards.
func (s *Service) Create(ctx context.Context, patientID, doctorID uuid.UUID, scheduledTime time.Time, reason string) (*Appointment, error) {
	cal, err := s.calendars.GetCalendar(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrUnknownDoctor) {
			return nil, err
		}
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	var created *Appointment

	err = s.locker.WithDoctorLock(ctx, doctorID, func(lockCtx context.Context) error {
		from, to := conflictWindow(scheduledTime, cal.SlotDurationMinutes)
		existing, err := s.repo.ListScheduledByDoctorWindow(lockCtx, doctorID, from, to)
		if err != nil {
			return fmt.Errorf("list existing appointments: %w", err)
		}

		if conflictID, ok := schedule.CheckOverlap(scheduledTime, cal.SlotDurationMinutes, bookings(existing), uuid.Nil); !ok {
			return fmt.Errorf("%w: conflicts with %s", ErrSlotUnavailable, conflictID)
		}

		appt, err := s.repo.CreateAppointment(lockCtx, &Appointment{
			ID:              uuid.New(),
			PatientID:       patientID,
			DoctorID:        doctorID,
			ScheduledTime:   scheduledTime,
			DurationMinutes: cal.SlotDurationMinutes,
			Reason:          reason,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id":     patientID.String(),
			"doctor_id":      doctorID.String(),
			"scheduled_time": scheduledTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return created, nil
}

// Reschedule moves a scheduled appointment to a new time and/or updates its
// reason. The appointment being moved is excluded from the conflict check so
// rescheduling to its own time succeeds.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newTime *time.Time, newReason *string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	scheduledTime := appt.ScheduledTime
	if newTime != nil {
		scheduledTime = *newTime
	}
	reason := appt.Reason
	if newReason != nil {
		reason = *newReason
	}

	var updated *Appointment

	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		if newTime != nil {
			from, to := conflictWindow(scheduledTime, appt.DurationMinutes)
			existing, err := s.repo.ListScheduledByDoctorWindow(lockCtx, appt.DoctorID, from, to)
			if err != nil {
				return fmt.Errorf("list existing appointments: %w", err)
			}
			if conflictID, ok := schedule.CheckOverlap(scheduledTime, appt.DurationMinutes, bookings(existing), id); !ok {
				return fmt.Errorf("%w: conflicts with %s", ErrSlotUnavailable, conflictID)
			}
		}

		a, err := s.repo.UpdateSchedule(lockCtx, id, scheduledTime, reason)
		if err != nil {
			// The row was there a moment ago; losing it means a terminal
			// transition won the race.
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("update schedule: %w", err)
		}

		updated = a

		s.logEvent(lockCtx, id, EventAppointmentRescheduled, map[string]any{
			"scheduled_time": scheduledTime,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// Cancel moves a scheduled appointment to cancelled. Cancelled is terminal.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCancelled, EventAppointmentCancelled)
}

// Complete moves a scheduled appointment to completed. Completed is terminal.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCompleted, EventAppointmentCompleted)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to Status, eventType string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidTransition
	}

	var updated *Appointment

	err = s.locker.WithDoctorLock(ctx, appt.DoctorID, func(lockCtx context.Context) error {
		a, err := s.repo.UpdateAppointmentStatus(lockCtx, id, StatusScheduled, to)
		if err != nil {
			if errors.Is(err, ErrAppointmentNotFound) {
				return ErrInvalidTransition
			}
			return fmt.Errorf("transition to %s: %w", to, err)
		}

		updated = a
		s.logEvent(lockCtx, id, eventType, map[string]any{})
		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrScheduleBusy
		}
		return nil, err
	}

	return updated, nil
}

// GetAvailability computes the bookable slots for a doctor on a date, each
// tagged free or occupied. The result is a snapshot, not a reservation.
func (s *Service) GetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.AvailabilitySlot, error) {
	cal, err := s.calendars.GetCalendar(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrUnknownDoctor) {
			return nil, err
		}
		return nil, fmt.Errorf("load calendar: %w", err)
	}

	slots := schedule.GenerateSlots(cal, date)
	if len(slots) == 0 {
		return []schedule.AvailabilitySlot{}, nil
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	existing, err := s.repo.ListScheduledByDoctorWindow(ctx, doctorID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("list existing appointments: %w", err)
	}

	return schedule.Annotate(slots, bookings(existing)), nil
}

// GetByID retrieves an appointment by ID.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// ListAll pages through every appointment regardless of status or owner,
// newest first.
func (s *Service) ListAll(ctx context.Context, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListAll(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}

// ListByPatient pages through a patient's appointments, newest first.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListByDoctor pages through a doctor's appointments, newest first.
func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

// ListByDate retrieves all appointments whose scheduled time falls on the
// given calendar date.
func (s *Service) ListByDate(ctx context.Context, day time.Time) ([]Appointment, error) {
	appts, err := s.repo.ListByDate(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("list appointments by date: %w", err)
	}
	return appts, nil
}

// CompletePastAppointments is intended to be called by the worker
// periodically. It completes scheduled appointments whose interval ended more
// than the configured grace ago. The status CAS makes each transition safe
// without the doctor lock.
func (s *Service) CompletePastAppointments(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.cfg.CompletionGrace)

	ended, err := s.repo.FindScheduledEndedBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("find ended appointments: %w", err)
	}

	for _, appt := range ended {
		_, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, StatusScheduled, StatusCompleted)
		if err != nil {
			// Losing the CAS means a terminal transition beat the sweep; no
			// transition happened here, so no event either.
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to complete appointment %s: %v", appt.ID, err)
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventAppointmentCompleted, map[string]any{
			"reason": "sweep",
		})
	}

	return nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal event payload for %s: %v", eventType, err)
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}

func bookings(appts []Appointment) []schedule.Booking {
	out := make([]schedule.Booking, 0, len(appts))
	for _, a := range appts {
		out = append(out, schedule.Booking{
			ID:              a.ID,
			Start:           a.ScheduledTime,
			DurationMinutes: a.DurationMinutes,
		})
	}
	return out
}

// conflictWindow is the interval a proposed booking must be checked against.
// It is exactly the proposed interval; the repository matches any scheduled
// appointment overlapping it, including ones that started the previous day.
func conflictWindow(start time.Time, durationMinutes int) (time.Time, time.Time) {
	return start, start.Add(time.Duration(durationMinutes) * time.Minute)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
