package workitem

import (
	"context"

	"github.com/google/uuid"
)

// Repository contains all DB interactions needed by the worklist service.
type Repository interface {
	Find(ctx context.Context, q Query) ([]WorkItem, error)

	// GetByReference resolves a work item by UPS instance UID, study
	// instance UID or accession number, whichever matches first.
	GetByReference(ctx context.Context, ref string) (*WorkItem, error)

	Insert(ctx context.Context, w WorkItem) (*WorkItem, error)

	// AssignUID backfills a generated UPS instance UID on a row that was
	// scheduled without one.
	AssignUID(ctx context.Context, id uuid.UUID, uid string) error

	// MarkInProgress claims the item. The update is conditional on the row
	// still being Scheduled and unclaimed, so exactly one claimant wins.
	MarkInProgress(ctx context.Context, id uuid.UUID, claimedBy, studyUID string) (*WorkItem, error)

	MarkCancelled(ctx context.Context, id uuid.UUID, cancelledBy string) (*WorkItem, error)

	// MarkStatus applies an N-SET style status change and records the
	// reporting station.
	MarkStatus(ctx context.Context, id uuid.UUID, status Status, stationAE string) (*WorkItem, error)

	// UpdateFields applies an allow-listed column update map.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) (*WorkItem, error)

	LogExchange(ctx context.Context, msg ModalityMessage) error
}
