package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Scope narrows a same-date conflict scan. Any populated field matches.
type Scope struct {
	Practitioner *uuid.UUID
	ServiceUnit  *uuid.UUID
	Patient      uuid.UUID
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error)
	GetServiceUnit(ctx context.Context, id uuid.UUID) (*ServiceUnit, error)
	GetSchedule(ctx context.Context, practitioner uuid.UUID, serviceUnit *uuid.UUID) (*PractitionerSchedule, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	// For conflict scans: all non-terminal appointments on the date touching
	// the scope.
	ListForDate(ctx context.Context, date time.Time, scope Scope) ([]Appointment, error)

	// For the status worker: non-terminal appointments dated today or earlier.
	ListForStatusRefresh(ctx context.Context, today time.Time) ([]Appointment, error)

	IsHoliday(ctx context.Context, date time.Time) (bool, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
