package workitem

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/marleyhealth/scheduling/internal/config"
	"github.com/marleyhealth/scheduling/internal/observability/metrics"
)

// AppointmentCloser closes the clinic appointment a completed work item is
// linked to.
type AppointmentCloser interface {
	Close(ctx context.Context, id uuid.UUID) error
}

type Service struct {
	repo         Repository
	appointments AppointmentCloser
	cfg          config.Config
	metrics      *metrics.WorklistMetrics
	now          func() time.Time
}

func NewService(repo Repository, appointments AppointmentCloser, cfg config.Config, m *metrics.WorklistMetrics) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		cfg:          cfg,
		metrics:      m,
		now:          time.Now,
	}
}

// generateUID derives a UPS instance UID from the configured org root and
// the current timestamp, microsecond precision.
func (s *Service) generateUID() string {
	now := s.now()
	return fmt.Sprintf("%s.%s%06d", s.cfg.UIDRoot, now.Format("20060102150405"), now.Nanosecond()/1000)
}

// List returns the worklist as DICOMWeb datasets. Items scheduled without a
// UPS instance UID get one generated and persisted on the way out.
func (s *Service) List(ctx context.Context, filters map[string]string) ([]map[string]any, error) {
	items, err := s.repo.Find(ctx, ParseFilters(filters))
	if err != nil {
		return nil, fmt.Errorf("find work items: %w", err)
	}

	result := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if item.UPSInstanceUID == "" {
			uid := s.generateUID()
			if err := s.repo.AssignUID(ctx, item.ID, uid); err != nil {
				log.Printf("failed to assign ups instance uid to work item %s: %v", item.ID, err)
				continue
			}
			item.UPSInstanceUID = uid
		}
		result = append(result, Dataset(item))
	}

	return result, nil
}

// getOrCreate resolves a work item by any reference; an unknown UPS UID
// creates a fresh Scheduled item (N-CREATE semantics).
func (s *Service) getOrCreate(ctx context.Context, uid string) (*WorkItem, error) {
	item, err := s.repo.GetByReference(ctx, uid)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, ErrWorkItemNotFound) {
		return nil, fmt.Errorf("load work item: %w", err)
	}

	created, err := s.repo.Insert(ctx, WorkItem{
		UPSInstanceUID: uid,
		Status:         StatusScheduled,
	})
	if err != nil {
		return nil, fmt.Errorf("create work item for unknown uid %s: %w", uid, err)
	}
	log.Printf("work item %s did not exist, created a new one", uid)
	return created, nil
}

// Claim puts a Scheduled work item In Progress for one modality. The first
// claimant wins; everyone else gets a typed rejection.
func (s *Service) Claim(ctx context.Context, uid string, data map[string]any, aeTitle string) (*WorkItem, error) {
	item, err := s.getOrCreate(ctx, uid)
	if err != nil {
		return nil, err
	}

	switch {
	case item.Status == StatusCompleted:
		return nil, ErrAlreadyCompleted
	case item.Status == StatusCancelled:
		return nil, ErrCancelled
	case item.Status == StatusInProgress || item.ClaimedBy != "":
		return nil, ErrAlreadyClaimed
	}

	claimedBy := attrValue(data, tagClaimingAE)
	if claimedBy == "" {
		claimedBy = aeTitle
	}
	studyUID := attrValue(data, tagStudyInstanceUID)

	return s.repo.MarkInProgress(ctx, item.ID, claimedBy, studyUID)
}

// Cancel marks the work item Cancelled regardless of its current state.
func (s *Service) Cancel(ctx context.Context, uid, aeTitle string) (*WorkItem, error) {
	item, err := s.getOrCreate(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.repo.MarkCancelled(ctx, item.ID, aeTitle)
}

// HandleEvent applies an N-SET style progress report. Completion with a
// study UID closes the linked clinic appointment.
func (s *Service) HandleEvent(ctx context.Context, uid string, data map[string]any, aeTitle string) (*WorkItem, error) {
	item, err := s.repo.GetByReference(ctx, uid)
	if err != nil {
		return nil, err
	}

	newStatus := StatusCompleted
	if v, ok := data["Status"].(string); ok && v != "" {
		newStatus = Status(v)
	}
	if newStatus != StatusInProgress && newStatus != StatusCompleted {
		return nil, ErrInvalidEventStatus
	}

	updated, err := s.repo.MarkStatus(ctx, item.ID, newStatus, aeTitle)
	if err != nil {
		return nil, fmt.Errorf("update work item status: %w", err)
	}

	if newStatus == StatusCompleted && updated.StudyInstanceUID != "" && updated.Appointment != nil {
		if err := s.appointments.Close(ctx, *updated.Appointment); err != nil {
			log.Printf("failed to close appointment %s for completed work item %s: %v",
				updated.Appointment, updated.UPSInstanceUID, err)
		}
	}

	return updated, nil
}

// modalityUpdatableFields allow-lists the columns a modality may touch via
// PUT. Anything else in the body is ignored.
var modalityUpdatableFields = map[string]string{
	"patient_name":       "patient_name",
	"gender":             "gender",
	"modality":           "modality",
	"station_ae":         "station_ae",
	"procedure_code":     "procedure_code",
	"study_instance_uid": "study_instance_uid",
}

// UpdateFromModality applies an allow-listed field update.
func (s *Service) UpdateFromModality(ctx context.Context, uid string, updates map[string]any) (*WorkItem, error) {
	item, err := s.repo.GetByReference(ctx, uid)
	if err != nil {
		return nil, err
	}

	fields := make(map[string]any)
	for key, val := range updates {
		if column, ok := modalityUpdatableFields[key]; ok {
			fields[column] = val
		}
	}

	return s.repo.UpdateFields(ctx, item.ID, fields)
}

// Get resolves a work item by UPS UID, study UID or accession number.
func (s *Service) Get(ctx context.Context, ref string) (*WorkItem, error) {
	return s.repo.GetByReference(ctx, ref)
}

// LogExchange records a DICOM exchange in the modality message log and the
// exchange counter. Logging failures never fail the exchange itself.
func (s *Service) LogExchange(ctx context.Context, msg ModalityMessage) {
	s.metrics.ObserveExchange(msg.Type, msg.StatusCode)
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	if err := s.repo.LogExchange(ctx, msg); err != nil {
		log.Printf("failed to log modality message (%s, %s): %v", msg.Type, msg.AETitle, err)
	}
}
