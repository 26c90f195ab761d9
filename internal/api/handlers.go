package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	redisclient "github.com/marleyhealth/scheduling/internal/redis"
	"github.com/marleyhealth/scheduling/internal/scheduling"
)

const dateLayout = "2006-01-02"

func bookAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, ok := appointmentFromRequest(w, req)
		if !ok {
			return
		}

		created, err := svc.Book(r.Context(), appt)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(created))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// Triggers a client may apply directly; date rollovers belong to the worker.
var explicitTriggers = map[scheduling.Trigger]bool{
	scheduling.TriggerConfirm:         true,
	scheduling.TriggerCheckIn:         true,
	scheduling.TriggerCheckOut:        true,
	scheduling.TriggerCancel:          true,
	scheduling.TriggerClose:           true,
	scheduling.TriggerNeedsReschedule: true,
}

func statusTriggerHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
			return
		}

		var req StatusTriggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		trigger := scheduling.Trigger(req.Trigger)
		if !explicitTriggers[trigger] {
			writeError(w, http.StatusBadRequest, "invalid_trigger", "unknown status trigger")
			return
		}

		appt, err := svc.ApplyTrigger(r.Context(), id, trigger)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func slotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitioner, err := uuid.Parse(r.URL.Query().Get("practitioner_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}

		date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var serviceUnit *uuid.UUID
		if s := r.URL.Query().Get("service_unit_id"); s != "" {
			id, err := uuid.Parse(s)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_service_unit_id", "service_unit_id must be a valid UUID")
				return
			}
			serviceUnit = &id
		}

		slots, err := svc.AvailableSlots(r.Context(), practitioner, serviceUnit, date)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := SlotsResponse{Date: date.Format(dateLayout), Slots: make([]SlotResponse, 0, len(slots))}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				StartTime:     s.Start.String(),
				EndTime:       s.End.String(),
				ServiceUnitID: s.ServiceUnit,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func recurringDatesHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRecurringRequest(w, r)
		if !ok {
			return
		}

		result, err := svc.RecurringDates(r.Context(), req)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := RecurringDatesResponse{
			Total:     result.Total,
			Available: result.Available,
			Dates:     make([]CandidateDateResponse, 0, len(result.Dates)),
		}
		for _, d := range result.Dates {
			resp.Dates = append(resp.Dates, CandidateDateResponse{
				Date:      d.Date.Format(dateLayout),
				StartTime: d.From.String(),
				EndTime:   d.To.String(),
				Booked:    d.Booked,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func enqueueRecurringHandler(queue *scheduling.RecurrenceQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeRecurringRequest(w, r)
		if !ok {
			return
		}

		// Reject obviously invalid series before queueing; expansion errors
		// after this point are logged by the worker.
		if err := req.Spec.Validate(); err != nil {
			handleBookingError(w, err)
			return
		}

		if !queue.Enqueue(req) {
			writeError(w, http.StatusServiceUnavailable, "queue_full", "recurring creation queue is full, retry later")
			return
		}

		writeJSON(w, http.StatusAccepted, QueuedResponse{Queued: true})
	}
}

func decodeRecurringRequest(w http.ResponseWriter, r *http.Request) (scheduling.RecurrenceRequest, bool) {
	var req RecurringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return scheduling.RecurrenceRequest{}, false
	}

	patient, err := uuid.Parse(req.PatientID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return scheduling.RecurrenceRequest{}, false
	}
	practitioner, err := uuid.Parse(req.PractitionerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
		return scheduling.RecurrenceRequest{}, false
	}

	var serviceUnit *uuid.UUID
	if req.ServiceUnitID != "" {
		id, err := uuid.Parse(req.ServiceUnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_unit_id", "service_unit_id must be a valid UUID")
			return scheduling.RecurrenceRequest{}, false
		}
		serviceUnit = &id
	}

	base, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return scheduling.RecurrenceRequest{}, false
	}

	from, err := scheduling.ParseTimeOfDay(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
		return scheduling.RecurrenceRequest{}, false
	}
	to, err := scheduling.ParseTimeOfDay(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
		return scheduling.RecurrenceRequest{}, false
	}

	spec := scheduling.RecurrenceSpec{
		RepeatOn:       scheduling.Frequency(req.RepeatOn),
		Interval:       req.Interval,
		MaxOccurrences: req.MaxOccurrences,
		From:           from,
		To:             to,
	}

	if req.UntilDate != "" {
		until, err := time.Parse(dateLayout, req.UntilDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_until_date", "until_date must be YYYY-MM-DD")
			return scheduling.RecurrenceRequest{}, false
		}
		spec.Until = &until
	}

	for _, name := range req.RepeatDays {
		wd, ok := weekdayByName[name]
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_repeat_day", "repeat_days must be weekday names")
			return scheduling.RecurrenceRequest{}, false
		}
		spec.Weekdays = append(spec.Weekdays, wd)
	}

	return scheduling.RecurrenceRequest{
		Spec:         spec,
		Patient:      patient,
		Practitioner: practitioner,
		ServiceUnit:  serviceUnit,
		Base:         base,
		Type:         req.Type,
	}, true
}

var weekdayByName = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

func appointmentFromRequest(w http.ResponseWriter, req BookAppointmentRequest) (scheduling.Appointment, bool) {
	patient, err := uuid.Parse(req.PatientID)
	if err != nil && req.Type != scheduling.TypeUnavailable {
		writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
		return scheduling.Appointment{}, false
	}

	appt := scheduling.Appointment{
		Patient:     patient,
		DurationMin: req.DurationMin,
		Type:        req.Type,
	}

	if req.PractitionerID != "" {
		id, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return scheduling.Appointment{}, false
		}
		appt.Practitioner = &id
	}
	if req.ServiceUnitID != "" {
		id, err := uuid.Parse(req.ServiceUnitID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_service_unit_id", "service_unit_id must be a valid UUID")
			return scheduling.Appointment{}, false
		}
		appt.ServiceUnit = &id
	}

	appt.Date, err = time.Parse(dateLayout, req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return scheduling.Appointment{}, false
	}

	appt.Start, err = scheduling.ParseTimeOfDay(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
		return scheduling.Appointment{}, false
	}

	if req.EndTime != "" {
		appt.End, err = scheduling.ParseTimeOfDay(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return scheduling.Appointment{}, false
		}
	}

	return appt, true
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	start, end := a.Interval()
	return AppointmentResponse{
		ID:             a.ID,
		PatientID:      a.Patient,
		PractitionerID: a.Practitioner,
		ServiceUnitID:  a.ServiceUnit,
		Date:           a.Date.Format(dateLayout),
		StartTime:      start.String(),
		EndTime:        end.String(),
		Type:           a.Type,
		Status:         string(a.Status),
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	var mandatoryErr *scheduling.MandatoryError
	var overlapErr *scheduling.OverlapError
	var unavailErr *scheduling.UnavailableError
	var capErr *scheduling.MaximumCapacityError
	var dupErr *scheduling.DuplicateEntryError

	switch {
	case errors.As(err, &mandatoryErr), errors.Is(err, scheduling.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, scheduling.ErrServiceUnitNotFound):
		writeError(w, http.StatusNotFound, "service_unit_not_found", err.Error())
	case errors.Is(err, scheduling.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.As(err, &overlapErr):
		writeError(w, http.StatusConflict, "appointment_overlap", err.Error())
	case errors.As(err, &unavailErr):
		writeError(w, http.StatusConflict, "practitioner_unavailable", err.Error())
	case errors.As(err, &capErr):
		writeError(w, http.StatusConflict, "service_unit_full", err.Error())
	case errors.As(err, &dupErr):
		writeError(w, http.StatusConflict, "duplicate_appointment", err.Error())
	case errors.Is(err, scheduling.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, scheduling.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
