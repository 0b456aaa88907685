package appointment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

var apptCols = []string{
	"id", "patient_id", "doctor_id", "scheduled_time", "duration_minutes",
	"status", "reason", "created_at", "updated_at",
}

func apptRow(a Appointment) *pgxmock.Rows {
	return pgxmock.NewRows(apptCols).AddRow(
		a.ID, a.PatientID, a.DoctorID, a.ScheduledTime, a.DurationMinutes,
		a.Status, a.Reason, a.CreatedAt, a.UpdatedAt,
	)
}

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return NewPgRepository(mock), mock
}

func sampleAppointment() Appointment {
	now := time.Now().UTC().Truncate(time.Second)
	return Appointment{
		ID:              uuid.New(),
		PatientID:       uuid.New(),
		DoctorID:        uuid.New(),
		ScheduledTime:   now.Add(24 * time.Hour),
		DurationMinutes: 30,
		Status:          StatusScheduled,
		Reason:          "checkup",
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func TestPgGetAppointmentByID(t *testing.T) {
	repo, mock := newMockRepo(t)
	want := sampleAppointment()

	mock.ExpectQuery(`SELECT .+ FROM appointments\s+WHERE id =`).
		WithArgs(want.ID).
		WillReturnRows(apptRow(want))

	got, err := repo.GetAppointmentByID(context.Background(), want.ID)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.Equal(t, want.Status, got.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM appointments\s+WHERE id =`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), id)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NotErrorIs(t, err, ErrStorageUnavailable)
}

func TestPgGetAppointmentByIDStorageError(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM appointments\s+WHERE id =`).
		WithArgs(id).
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetAppointmentByID(context.Background(), id)
	require.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestPgCreateAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	want := sampleAppointment()

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(want.ID, want.PatientID, want.DoctorID, want.ScheduledTime, want.DurationMinutes, want.Reason).
		WillReturnRows(apptRow(want))

	got, err := repo.CreateAppointment(context.Background(), &want)
	require.NoError(t, err)
	require.Equal(t, want.ID, got.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatusCAS(t *testing.T) {
	repo, mock := newMockRepo(t)
	want := sampleAppointment()
	want.Status = StatusCancelled

	mock.ExpectQuery(`UPDATE appointments\s+SET status =`).
		WithArgs(want.ID, StatusCancelled, StatusScheduled).
		WillReturnRows(apptRow(want))

	got, err := repo.UpdateAppointmentStatus(context.Background(), want.ID, StatusScheduled, StatusCancelled)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)

	// No row matching the guard means the transition lost a race.
	mock.ExpectQuery(`UPDATE appointments\s+SET status =`).
		WithArgs(want.ID, StatusCompleted, StatusScheduled).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.UpdateAppointmentStatus(context.Background(), want.ID, StatusScheduled, StatusCompleted)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgListScheduledByDoctorWindow(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()
	from := a.ScheduledTime
	to := from.Add(30 * time.Minute)

	mock.ExpectQuery(`SELECT .+ FROM appointments\s+WHERE doctor_id =`).
		WithArgs(a.DoctorID, from, to).
		WillReturnRows(apptRow(a))

	got, err := repo.ListScheduledByDoctorWindow(context.Background(), a.DoctorID, from, to)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListAll(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := sampleAppointment()

	mock.ExpectQuery(`SELECT .+ FROM appointments\s+ORDER BY scheduled_time DESC\s+LIMIT`).
		WithArgs(20, 0).
		WillReturnRows(apptRow(a))

	got, err := repo.ListAll(context.Background(), 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, a.ID, got[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetCalendar(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()

	mock.ExpectQuery(`SELECT slot_duration_minutes\s+FROM doctors`).
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows([]string{"slot_duration_minutes"}).AddRow(30))

	mock.ExpectQuery(`SELECT weekday, start_minute, end_minute\s+FROM doctor_working_hours`).
		WithArgs(doctorID).
		WillReturnRows(pgxmock.NewRows([]string{"weekday", "start_minute", "end_minute"}).
			AddRow(1, 540, 720).
			AddRow(1, 780, 1020).
			AddRow(2, 540, 720))

	cal, err := repo.GetCalendar(context.Background(), doctorID)
	require.NoError(t, err)
	require.Equal(t, 30, cal.SlotDurationMinutes)
	require.Len(t, cal.WeeklyHours[time.Monday], 2)
	require.Len(t, cal.WeeklyHours[time.Tuesday], 1)
	require.Equal(t, 540, cal.WeeklyHours[time.Monday][0].StartMinute)
}

func TestPgGetCalendarUnknownDoctor(t *testing.T) {
	repo, mock := newMockRepo(t)
	doctorID := uuid.New()

	mock.ExpectQuery(`SELECT slot_duration_minutes\s+FROM doctors`).
		WithArgs(doctorID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetCalendar(context.Background(), doctorID)
	require.ErrorIs(t, err, ErrUnknownDoctor)
}

func TestPgInsertEvent(t *testing.T) {
	repo, mock := newMockRepo(t)
	apptID := uuid.New()

	mock.ExpectExec(`INSERT INTO event_logs`).
		WithArgs("APPOINTMENT_CREATED", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     "APPOINTMENT_CREATED",
		AppointmentID: &apptID,
		Payload:       []byte(`{}`),
		CreatedAt:     time.Now(),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
