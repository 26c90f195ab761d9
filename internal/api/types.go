package api

import "github.com/google/uuid"

type BookAppointmentRequest struct {
	PatientID      string `json:"patient_id"`
	PractitionerID string `json:"practitioner_id,omitempty"`
	ServiceUnitID  string `json:"service_unit_id,omitempty"`
	Date           string `json:"date"`       // YYYY-MM-DD
	StartTime      string `json:"start_time"` // HH:MM
	EndTime        string `json:"end_time,omitempty"`
	DurationMin    int    `json:"duration_min,omitempty"`
	Type           string `json:"appointment_type,omitempty"`
}

type AppointmentResponse struct {
	ID             uuid.UUID  `json:"id"`
	PatientID      uuid.UUID  `json:"patient_id"`
	PractitionerID *uuid.UUID `json:"practitioner_id,omitempty"`
	ServiceUnitID  *uuid.UUID `json:"service_unit_id,omitempty"`
	Date           string     `json:"date"`
	StartTime      string     `json:"start_time"`
	EndTime        string     `json:"end_time"`
	Type           string     `json:"appointment_type,omitempty"`
	Status         string     `json:"status"`
}

type StatusTriggerRequest struct {
	Trigger string `json:"trigger"`
}

type SlotResponse struct {
	StartTime     string     `json:"start_time"`
	EndTime       string     `json:"end_time"`
	ServiceUnitID *uuid.UUID `json:"service_unit_id,omitempty"`
}

type SlotsResponse struct {
	Date  string         `json:"date"`
	Slots []SlotResponse `json:"slots"`
}

type RecurringRequest struct {
	PatientID      string   `json:"patient_id"`
	PractitionerID string   `json:"practitioner_id"`
	ServiceUnitID  string   `json:"service_unit_id,omitempty"`
	Date           string   `json:"date"` // series base date, YYYY-MM-DD
	StartTime      string   `json:"start_time"`
	EndTime        string   `json:"end_time"`
	RepeatOn       string   `json:"repeat_on"` // Daily, Weekly, Monthly, Yearly
	Interval       int      `json:"interval,omitempty"`
	RepeatDays     []string `json:"repeat_days,omitempty"` // weekday names, weekly only
	UntilDate      string   `json:"until_date,omitempty"`
	MaxOccurrences int      `json:"max_occurrences,omitempty"`
	Type           string   `json:"appointment_type,omitempty"`
}

type CandidateDateResponse struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Booked    bool   `json:"booked"`
}

type RecurringDatesResponse struct {
	Total     int                     `json:"total"`
	Available bool                    `json:"available"`
	Dates     []CandidateDateResponse `json:"dates"`
}

type QueuedResponse struct {
	Queued bool `json:"queued"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
