package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/clinicdesk/clinic-scheduling/internal/appointment"
	redisclient "github.com/clinicdesk/clinic-scheduling/internal/redis"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "could not parse JSON")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		patientID, _ := uuid.Parse(req.PatientID)
		doctorID, _ := uuid.Parse(req.DoctorID)

		scheduledTime, err := time.Parse(time.RFC3339, req.ScheduledTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "scheduled_time must be RFC 3339")
			return
		}

		appt, err := svc.Create(r.Context(), patientID, doctorID, scheduledTime.UTC(), req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "could not parse JSON")
			return
		}
		if req.ScheduledTime == nil && req.Reason == nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
			return
		}

		var newTime *time.Time
		if req.ScheduledTime != nil {
			t, err := time.Parse(time.RFC3339, *req.ScheduledTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "scheduled_time must be RFC 3339")
				return
			}
			utc := t.UTC()
			newTime = &utc
		}

		appt, err := svc.Reschedule(r.Context(), id, newTime, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.Cancel)
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return transitionHandler(svc.Complete)
}

func transitionHandler(op func(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := op(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetByID(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler serves the paginated full listing plus the
// by-patient, by-doctor and by-date queries; at most one filter may be
// present.
func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		patientParam := q.Get("patient_id")
		doctorParam := q.Get("doctor_id")
		dateParam := q.Get("date")

		filters := 0
		for _, p := range []string{patientParam, doctorParam, dateParam} {
			if p != "" {
				filters++
			}
		}
		if filters > 1 {
			writeError(w, http.StatusBadRequest, "invalid_request", "at most one of patient_id, doctor_id, date may be given")
			return
		}

		limit, ok := intQuery(w, "limit", q.Get("limit"), 20)
		if !ok {
			return
		}
		offset, ok := intQuery(w, "offset", q.Get("offset"), 0)
		if !ok {
			return
		}

		var (
			appts []appointment.Appointment
			err   error
		)

		switch {
		case patientParam != "":
			patientID, parseErr := uuid.Parse(patientParam)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "patient_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByPatient(r.Context(), patientID, limit, offset)
		case doctorParam != "":
			doctorID, parseErr := uuid.Parse(doctorParam)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "doctor_id must be a valid UUID")
				return
			}
			appts, err = svc.ListByDoctor(r.Context(), doctorID, limit, offset)
		case dateParam != "":
			day, parseErr := time.Parse(dateLayout, dateParam)
			if parseErr != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
				return
			}
			appts, err = svc.ListByDate(r.Context(), day)
		default:
			appts, err = svc.ListAll(r.Context(), limit, offset)
		}

		if err != nil {
			handleServiceError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			out = append(out, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func availabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "doctor id must be a valid UUID")
			return
		}

		dateParam := r.URL.Query().Get("date")
		if dateParam == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "date is required")
			return
		}
		day, err := time.Parse(dateLayout, dateParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "date must be YYYY-MM-DD")
			return
		}

		slots, err := svc.GetAvailability(r.Context(), doctorID, day)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := AvailabilityResponse{
			DoctorID: doctorID,
			Date:     day.Format(dateLayout),
			Slots:    make([]AvailabilitySlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, AvailabilitySlotResponse{
				Start:  s.Start,
				End:    s.End,
				Status: string(s.Status),
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// handleServiceError maps core failure kinds to the external error taxonomy.
// Every kind is surfaced verbatim; nothing is retried or downgraded.
func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, appointment.ErrUnknownDoctor):
		writeError(w, http.StatusNotFound, "unknown_doctor", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrScheduleBusy),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "schedule_busy", "doctor schedule is being modified, please retry shortly")
	case errors.Is(err, appointment.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// intQuery parses an optional integer query parameter. A value that is
// present but not an integer is rejected rather than silently replaced.
func intQuery(w http.ResponseWriter, name, raw string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be an integer")
		return 0, false
	}
	return n, true
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:              a.ID,
		PatientID:       a.PatientID,
		DoctorID:        a.DoctorID,
		ScheduledTime:   a.ScheduledTime,
		DurationMinutes: a.DurationMinutes,
		Status:          string(a.Status),
		Reason:          a.Reason,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
}
