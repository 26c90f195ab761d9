package scheduling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrAppointmentNotFound    = errors.New("appointment not found")
	ErrPatientNotFound        = errors.New("patient not found")
	ErrPractitionerNotFound   = errors.New("practitioner not found")
	ErrServiceUnitNotFound    = errors.New("service unit not found")
	ErrScheduleNotFound       = errors.New("practitioner schedule not found")
	ErrSlotBeingBooked        = errors.New("slot is currently being booked, please retry")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// MandatoryError reports a missing required field.
type MandatoryError struct {
	Field string
}

func (e *MandatoryError) Error() string {
	return fmt.Sprintf("missing required field %s", e.Field)
}

type ConflictKind string

const (
	ConflictBooking     ConflictKind = "booking"
	ConflictUnavailable ConflictKind = "unavailable"
)

// Conflict names one colliding record.
type Conflict struct {
	ID   uuid.UUID
	Kind ConflictKind
}

// OverlapError is raised when a proposed interval collides with existing
// bookings or unavailability blocks. It names every colliding record so the
// caller can surface them; the save is rejected as a whole.
type OverlapError struct {
	Conflicts []Conflict
}

func (e *OverlapError) Error() string {
	ids := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		ids[i] = c.ID.String()
	}
	return fmt.Sprintf("cannot overlap appointment %s", strings.Join(ids, ", "))
}

// UnavailableError rejects a regular booking that overlaps a block.
type UnavailableError struct {
	Block uuid.UUID
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("practitioner is marked unavailable during this time (see appointment %s)", e.Block)
}

// MaximumCapacityError rejects a booking beyond the service unit capacity.
type MaximumCapacityError struct {
	ServiceUnit uuid.UUID
	Capacity    int
}

func (e *MaximumCapacityError) Error() string {
	return fmt.Sprintf("service unit %s cannot exceed maximum capacity %d", e.ServiceUnit, e.Capacity)
}

// DuplicateEntryError rejects a second booking for the same patient, scope
// and date.
type DuplicateEntryError struct {
	Existing uuid.UUID
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("patient already has appointment %s booked for the same day", e.Existing)
}
