package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/marleyhealth/scheduling/internal/config"
	"github.com/marleyhealth/scheduling/internal/observability/metrics"
	redisclient "github.com/marleyhealth/scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventStatusChanged        = "APPOINTMENT_STATUS_CHANGED"
)

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	cfg     config.Config
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, m *metrics.SchedulingMetrics) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		cfg:     cfg,
		metrics: m,
		now:     time.Now,
	}
}

// lockScope picks the entity whose bookings the critical section guards.
func lockScope(a Appointment) string {
	switch {
	case a.Practitioner != nil:
		return "practitioner:" + a.Practitioner.String()
	case a.ServiceUnit != nil:
		return "unit:" + a.ServiceUnit.String()
	default:
		return "patient:" + a.Patient.String()
	}
}

// Book validates and persists an appointment. The conflict scan and the
// insert run under a per-(scope, day) lock so concurrent requests cannot
// both pass the read-then-write overlap check.
func (s *Service) Book(ctx context.Context, a Appointment) (*Appointment, error) {
	start := s.now()

	if a.End == 0 && a.DurationMin == 0 {
		a.DurationMin = s.cfg.DefaultDurationMin
	}
	if err := a.Validate(); err != nil {
		s.metrics.ObserveBooking("invalid")
		return nil, err
	}

	if !a.IsBlock() {
		if _, err := s.repo.GetPatientByID(ctx, a.Patient); err != nil {
			if errors.Is(err, ErrPatientNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load patient: %w", err)
		}
	}
	if a.Practitioner != nil {
		if _, err := s.repo.GetPractitionerByID(ctx, *a.Practitioner); err != nil {
			if errors.Is(err, ErrPractitionerNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load practitioner: %w", err)
		}
	}

	var unit *ServiceUnit
	if a.ServiceUnit != nil {
		var err error
		unit, err = s.repo.GetServiceUnit(ctx, *a.ServiceUnit)
		if err != nil {
			if errors.Is(err, ErrServiceUnitNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("load service unit: %w", err)
		}
	}

	a.Status = InitialStatus(a, s.now())

	var created *Appointment
	day := DateOnly(a.Date).Format("2006-01-02")

	err := s.locker.WithBookingLock(ctx, lockScope(a), day, func(lockCtx context.Context) error {
		// Re-scan inside the critical section
		existing, err := s.repo.ListForDate(lockCtx, a.Date, Scope{
			Practitioner: a.Practitioner,
			ServiceUnit:  a.ServiceUnit,
			Patient:      a.Patient,
		})
		if err != nil {
			return fmt.Errorf("scan same-day appointments: %w", err)
		}

		if err := s.checkDuplicate(a, existing); err != nil {
			return err
		}
		if err := CheckOverlap(a, existing, unit); err != nil {
			return err
		}

		appt, err := s.repo.InsertAppointment(lockCtx, a)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentCreated, map[string]any{
			"date":   day,
			"start":  a.Start.String(),
			"status": string(appt.Status),
			"type":   a.Type,
		})
		return nil
	})

	s.metrics.ObserveBookingLatency(s.now().Sub(start).Seconds())

	if err != nil {
		s.observeBookingError(err)
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.metrics.ObserveBooking("created")
	return created, nil
}

// checkDuplicate rejects a second regular booking for the same patient and
// service unit on the same date, regardless of time.
func (s *Service) checkDuplicate(a Appointment, existing []Appointment) error {
	if a.IsBlock() || a.ServiceUnit == nil {
		return nil
	}
	for _, ex := range existing {
		if ex.ID == a.ID || ex.Status.Terminal() || ex.IsBlock() {
			continue
		}
		if ex.Patient == a.Patient && sameID(ex.ServiceUnit, a.ServiceUnit) {
			return &DuplicateEntryError{Existing: ex.ID}
		}
	}
	return nil
}

func (s *Service) observeBookingError(err error) {
	var overlapErr *OverlapError
	var unavailErr *UnavailableError
	var capErr *MaximumCapacityError
	var dupErr *DuplicateEntryError

	switch {
	case errors.As(err, &overlapErr):
		s.metrics.ObserveConflict("overlap")
	case errors.As(err, &unavailErr):
		s.metrics.ObserveConflict("unavailable")
	case errors.As(err, &capErr):
		s.metrics.ObserveConflict("capacity")
	case errors.As(err, &dupErr):
		s.metrics.ObserveConflict("duplicate")
	default:
		s.metrics.ObserveBooking("error")
		return
	}
	s.metrics.ObserveBooking("conflict")
}

// Cancel is idempotent: cancelling a cancelled appointment returns it
// unchanged. Closed appointments stay closed and the cancel is rejected.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if appt.Status == StatusCancelled {
		return appt, nil
	}

	next, err := Transition(appt.Status, TriggerCancel)
	if err != nil || next != StatusCancelled {
		return nil, ErrInvalidStatusTransition
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, StatusCancelled)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another status change; report it as a
			// transition failure rather than a missing record.
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventAppointmentCancelled, map[string]any{
		"previous_status": string(appt.Status),
	})

	return updated, nil
}

// ApplyTrigger runs one explicit state-machine step.
func (s *Service) ApplyTrigger(ctx context.Context, id uuid.UUID, trigger Trigger) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	next, err := Transition(appt.Status, trigger)
	if err != nil {
		return nil, err
	}
	if next == appt.Status {
		return appt, nil
	}

	updated, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, next)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, ErrInvalidStatusTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from":    string(appt.Status),
		"to":      string(next),
		"trigger": string(trigger),
	})

	return updated, nil
}

// Close marks an appointment Closed, used when an imaging work-item
// completes against it.
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	_, err := s.ApplyTrigger(ctx, id, TriggerClose)
	return err
}

// GetAppointment retrieves an appointment by ID.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetAppointmentByID(ctx, id)
}

// RefreshStatuses applies date-driven transitions, intended to be called by
// the worker periodically. Failures on individual appointments are logged
// and skipped.
func (s *Service) RefreshStatuses(ctx context.Context) error {
	today := s.now()
	stale, err := s.repo.ListForStatusRefresh(ctx, today)
	if err != nil {
		return fmt.Errorf("list appointments for status refresh: %w", err)
	}

	for _, appt := range stale {
		trigger := DateTrigger(appt.Date, today)
		next, err := Transition(appt.Status, trigger)
		if err != nil || next == appt.Status {
			continue
		}

		if _, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, next); err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				log.Printf("failed to refresh status of appointment %s: %v", appt.ID, err)
			}
			continue
		}
		s.logEvent(ctx, appt.ID, EventStatusChanged, map[string]any{
			"from":    string(appt.Status),
			"to":      string(next),
			"trigger": string(trigger),
		})
	}

	return nil
}

// AvailableSlots returns bookable slots for a practitioner on a date.
func (s *Service) AvailableSlots(ctx context.Context, practitioner uuid.UUID, serviceUnit *uuid.UUID, date time.Time) ([]TimeSlot, error) {
	schedule, err := s.repo.GetSchedule(ctx, practitioner, serviceUnit)
	if err != nil {
		return nil, err
	}

	bookings, err := s.repo.ListForDate(ctx, date, Scope{Practitioner: &practitioner})
	if err != nil {
		return nil, fmt.Errorf("scan same-day appointments: %w", err)
	}

	return AvailableSlots(*schedule, bookings, date, s.now()), nil
}

// RecurrenceRequest is a bulk-creation job for a recurring series.
type RecurrenceRequest struct {
	Spec         RecurrenceSpec
	Patient      uuid.UUID
	Practitioner uuid.UUID
	ServiceUnit  *uuid.UUID
	Base         time.Time
	Type         string
}

type RecurrenceResult struct {
	Total     int
	Dates     []CandidateDate
	Available bool
}

// RecurringDates expands the series and flags each occurrence whose slot is
// already taken. Flagged dates remain in the result for review.
func (s *Service) RecurringDates(ctx context.Context, req RecurrenceRequest) (*RecurrenceResult, error) {
	schedule, err := s.repo.GetSchedule(ctx, req.Practitioner, req.ServiceUnit)
	if err != nil {
		return nil, err
	}

	isHoliday := func(d time.Time) bool {
		h, err := s.repo.IsHoliday(ctx, d)
		if err != nil {
			log.Printf("holiday lookup failed for %s: %v", d.Format("2006-01-02"), err)
			return false
		}
		return h
	}

	dates, available, err := ExpandDates(req.Spec, req.Base, *schedule, isHoliday, s.now(), s.cfg.MaxRecurrenceDates)
	if err != nil {
		return nil, err
	}

	practitioner := req.Practitioner
	result := &RecurrenceResult{Available: available}
	for _, d := range dates {
		candidate := Appointment{
			Patient:      req.Patient,
			Practitioner: &practitioner,
			ServiceUnit:  req.ServiceUnit,
			Date:         d,
			Start:        req.Spec.From,
			End:          req.Spec.To,
			Type:         req.Type,
		}

		existing, err := s.repo.ListForDate(ctx, d, Scope{
			Practitioner: &practitioner,
			ServiceUnit:  req.ServiceUnit,
			Patient:      req.Patient,
		})
		if err != nil {
			return nil, fmt.Errorf("scan appointments for %s: %w", d.Format("2006-01-02"), err)
		}

		booked := CheckOverlap(candidate, existing, nil) != nil
		result.Dates = append(result.Dates, CandidateDate{
			Date:   d,
			From:   req.Spec.From,
			To:     req.Spec.To,
			Booked: booked,
		})
	}
	result.Total = len(result.Dates)

	return result, nil
}

// CreateRecurring books every unflagged occurrence of the series.
// Individual failures are logged and skipped, not retried.
func (s *Service) CreateRecurring(ctx context.Context, req RecurrenceRequest) error {
	result, err := s.RecurringDates(ctx, req)
	if err != nil {
		return err
	}

	practitioner := req.Practitioner
	for _, d := range result.Dates {
		if d.Booked {
			continue
		}
		_, err := s.Book(ctx, Appointment{
			Patient:      req.Patient,
			Practitioner: &practitioner,
			ServiceUnit:  req.ServiceUnit,
			Date:         d.Date,
			Start:        d.From,
			End:          d.To,
			Type:         req.Type,
		})
		if err != nil {
			log.Printf("recurring occurrence %s not created: %v", d.Date.Format("2006-01-02"), err)
		}
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
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		log.Printf("failed to insert event log %s for appointment %s: %v", eventType, appointmentID, err)
	}
}
