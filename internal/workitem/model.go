package workitem

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/marleyhealth/scheduling/internal/scheduling"
)

// Status of a unified procedure step as seen by modalities.
type Status string

const (
	StatusScheduled  Status = "Scheduled"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// Terminal reports whether no further modality action can move the item.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// WorkItem is one scheduled imaging procedure step. Patient attributes are
// denormalized at scheduling time so the worklist survives later edits to
// the patient record.
type WorkItem struct {
	ID              uuid.UUID
	UPSInstanceUID  string
	Appointment     *uuid.UUID
	AccessionNumber string

	PatientRef  string
	PatientName string
	Gender      string
	DateOfBirth *time.Time

	ProcedureCode string
	Modality      string
	StationAE     string

	ScheduledDate *time.Time
	ScheduledTime scheduling.TimeOfDay

	Status           Status
	StudyInstanceUID string
	ClaimedBy        string
	CancelledBy      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ModalityMessage is one logged DICOM exchange with a modality.
type ModalityMessage struct {
	ID              int64
	AETitle         string
	Type            string
	Reference       string
	RequestPayload  json.RawMessage
	ResponsePayload json.RawMessage
	StatusCode      string
	StatusText      string
	CreatedAt       time.Time
}
