package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicdesk/clinic-scheduling/internal/schedule"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

const appointmentColumns = `id, patient_id, doctor_id, scheduled_time, duration_minutes, status, reason, created_at, updated_at`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.ScheduledTime,
		&a.DurationMinutes,
		&a.Status,
		&a.Reason,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// storageErr tags collaborator failures so the gateway can surface them as
// storage_unavailable rather than a generic internal error.
func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

func dayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return start, start.AddDate(0, 0, 1)
}

// Interface methods

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)

	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, storageErr("get appointment", err)
	}
	return a, nil
}

func (r *PgRepository) ListScheduledByDoctorWindow(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	// Overlap on the appointment interval, not the start date, so a booking
	// that starts before the window but runs into it is still returned.
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND status = 'scheduled'
		  AND scheduled_time < $3
		  AND scheduled_time + make_interval(mins => duration_minutes) > $2
		ORDER BY scheduled_time
	`, doctorID, from, to)
	if err != nil {
		return nil, storageErr("list scheduled by doctor/window", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("list scheduled by doctor/window", err)
	}
	return result, nil
}

func (r *PgRepository) ListAll(ctx context.Context, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY scheduled_time DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, storageErr("list all", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("list all", err)
	}
	return result, nil
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, storageErr("list by patient", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("list by patient", err)
	}
	return result, nil
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY scheduled_time DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, storageErr("list by doctor", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("list by doctor", err)
	}
	return result, nil
}

func (r *PgRepository) ListByDate(ctx context.Context, day time.Time) ([]Appointment, error) {
	from, to := dayBounds(day)

	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_time >= $1
		  AND scheduled_time < $2
		ORDER BY scheduled_time
	`, from, to)
	if err != nil {
		return nil, storageErr("list by date", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("list by date", err)
	}
	return result, nil
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, scheduled_time, duration_minutes, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 'scheduled', $6, now(), now())
		RETURNING `+appointmentColumns+`
	`, a.ID, a.PatientID, a.DoctorID, a.ScheduledTime, a.DurationMinutes, a.Reason)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, storageErr("create appointment", err)
	}
	return created, nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, scheduledTime time.Time, reason string) (*Appointment, error) {
	// Guarded on status so a reschedule racing a terminal transition loses.
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET scheduled_time = $2,
		    reason = $3,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'scheduled'
		RETURNING `+appointmentColumns+`
	`, id, scheduledTime, reason)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, storageErr("update schedule", err)
	}
	return updated, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, storageErr("update appointment status", err)
	}
	return updated, nil
}

func (r *PgRepository) FindScheduledEndedBefore(ctx context.Context, cutoff time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND scheduled_time + make_interval(mins => duration_minutes) < $1
	`, cutoff)
	if err != nil {
		return nil, storageErr("find ended scheduled", err)
	}

	result, err := collectAppointments(rows)
	if err != nil {
		return nil, storageErr("find ended scheduled", err)
	}
	return result, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

// GetCalendar loads a doctor's slot duration and weekly working hours.
func (r *PgRepository) GetCalendar(ctx context.Context, doctorID uuid.UUID) (*schedule.DoctorCalendar, error) {
	cal := &schedule.DoctorCalendar{
		DoctorID:    doctorID,
		WeeklyHours: make(map[time.Weekday][]schedule.WorkingInterval),
	}

	row := r.db.QueryRow(ctx, `
		SELECT slot_duration_minutes
		FROM doctors
		WHERE id = $1
	`, doctorID)
	if err := row.Scan(&cal.SlotDurationMinutes); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownDoctor
		}
		return nil, storageErr("get doctor", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT weekday, start_minute, end_minute
		FROM doctor_working_hours
		WHERE doctor_id = $1
		ORDER BY weekday, start_minute
	`, doctorID)
	if err != nil {
		return nil, storageErr("get working hours", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var iv schedule.WorkingInterval
		if err := rows.Scan(&weekday, &iv.StartMinute, &iv.EndMinute); err != nil {
			return nil, storageErr("get working hours", err)
		}
		wd := time.Weekday(weekday)
		cal.WeeklyHours[wd] = append(cal.WeeklyHours[wd], iv)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("get working hours", err)
	}

	return cal, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
