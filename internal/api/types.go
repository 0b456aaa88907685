package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateAppointmentRequest struct {
	PatientID     string `json:"patient_id" validate:"required,uuid"`
	DoctorID      string `json:"doctor_id" validate:"required,uuid"`
	ScheduledTime string `json:"scheduled_time" validate:"required"`
	Reason        string `json:"reason"`
}

type UpdateAppointmentRequest struct {
	ScheduledTime *string `json:"scheduled_time,omitempty"`
	Reason        *string `json:"reason,omitempty"`
}

type AppointmentResponse struct {
	ID              uuid.UUID `json:"id"`
	PatientID       uuid.UUID `json:"patient_id"`
	DoctorID        uuid.UUID `json:"doctor_id"`
	ScheduledTime   time.Time `json:"scheduled_time"`
	DurationMinutes int       `json:"duration_minutes"`
	Status          string    `json:"status"`
	Reason          string    `json:"reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type AvailabilitySlotResponse struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

type AvailabilityResponse struct {
	DoctorID uuid.UUID                  `json:"doctor_id"`
	Date     string                     `json:"date"`
	Slots    []AvailabilitySlotResponse `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
