package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusScheduled      Status = "Scheduled"
	StatusConfirmed      Status = "Confirmed"
	StatusOpen           Status = "Open"
	StatusCheckedIn      Status = "Checked In"
	StatusCheckedOut     Status = "Checked Out"
	StatusUnavailable    Status = "Unavailable"
	StatusCancelled      Status = "Cancelled"
	StatusNoShow         Status = "No Show"
	StatusClosed         Status = "Closed"
	StatusNeedsReschedule Status = "Needs Rescheduling"
)

// Terminal statuses are sticky: no trigger moves an appointment out of them
// and they are excluded from conflict scans.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusClosed
}

// TypeUnavailable marks an appointment as an unavailability block. Blocks
// occupy their scope for the interval and reject regular bookings.
const TypeUnavailable = "Unavailable"

// TimeOfDay is minutes since midnight. Schedule templates and appointment
// intervals are wall-clock times on a civil date, so plain minute arithmetic
// is all the overlap math needs.
type TimeOfDay int

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS"; seconds are discarded.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid time of day %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// At anchors the time of day on the given civil date.
func (t TimeOfDay) At(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), int(t)/60, int(t)%60, 0, 0, date.Location())
}

// TimeOfDayFrom truncates a timestamp to minutes since midnight.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

type Appointment struct {
	ID           uuid.UUID
	Patient      uuid.UUID
	Practitioner *uuid.UUID
	ServiceUnit  *uuid.UUID
	Date         time.Time // civil date at midnight
	Start        TimeOfDay
	End          TimeOfDay // zero means derive from DurationMin
	DurationMin  int
	Type         string
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Interval returns the half-open [start, end) minutes of the appointment,
// deriving the end from the duration when no explicit end is set.
func (a Appointment) Interval() (TimeOfDay, TimeOfDay) {
	if a.End > a.Start {
		return a.Start, a.End
	}
	return a.Start, a.Start + TimeOfDay(a.DurationMin)
}

// Validate enforces the interval invariants: end after start, and duration
// consistent with end-start within one minute when both are present.
func (a Appointment) Validate() error {
	if a.Patient == uuid.Nil && !a.IsBlock() {
		return &MandatoryError{Field: "patient"}
	}
	if a.Practitioner == nil && a.ServiceUnit == nil {
		return &MandatoryError{Field: "practitioner or service_unit"}
	}
	if a.Date.IsZero() {
		return &MandatoryError{Field: "date"}
	}

	start, end := a.Interval()
	if end <= start {
		return fmt.Errorf("%w: end time %s must be after start time %s", ErrValidation, end, start)
	}
	if a.End > a.Start && a.DurationMin > 0 {
		diff := int(a.End-a.Start) - a.DurationMin
		if diff < -1 || diff > 1 {
			return fmt.Errorf("%w: duration %dm does not match interval %s-%s", ErrValidation, a.DurationMin, a.Start, a.End)
		}
	}
	return nil
}

// IsBlock reports whether the appointment is an unavailability block.
func (a Appointment) IsBlock() bool {
	return a.Type == TypeUnavailable
}

type ServiceUnit struct {
	ID                  uuid.UUID
	Name                string
	OverlapAppointments bool
	Capacity            int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID          uuid.UUID
	Name        string
	Email       *string
	Gender      string
	DateOfBirth time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ScheduleSlot is one (weekday, window) template of a practitioner schedule.
type ScheduleSlot struct {
	Weekday time.Weekday
	From    TimeOfDay
	To      TimeOfDay
}

type PractitionerSchedule struct {
	ID           uuid.UUID
	Practitioner uuid.UUID
	ServiceUnit  *uuid.UUID
	Disabled     bool
	Slots        []ScheduleSlot
}

// TimeSlot is a bookable candidate produced by the slot calculator.
type TimeSlot struct {
	Start       TimeOfDay
	End         TimeOfDay
	ServiceUnit *uuid.UUID
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// DateOnly strips the clock from a timestamp, keeping the location.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two timestamps fall on the same civil date.
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
