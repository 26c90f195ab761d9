package workitem

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/marleyhealth/scheduling/internal/config"
)

// fakeRepo is an in-memory Repository.
type fakeRepo struct {
	items    map[uuid.UUID]WorkItem
	messages []ModalityMessage
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[uuid.UUID]WorkItem)}
}

func (r *fakeRepo) add(w WorkItem) WorkItem {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	if w.Status == "" {
		w.Status = StatusScheduled
	}
	r.items[w.ID] = w
	return w
}

func (r *fakeRepo) Find(_ context.Context, q Query) ([]WorkItem, error) {
	var result []WorkItem
	for _, w := range r.items {
		if w.Status == q.Status {
			result = append(result, w)
		}
	}
	return result, nil
}

func (r *fakeRepo) GetByReference(_ context.Context, ref string) (*WorkItem, error) {
	for _, w := range r.items {
		if w.UPSInstanceUID == ref || w.StudyInstanceUID == ref || w.AccessionNumber == ref {
			item := w
			return &item, nil
		}
	}
	return nil, ErrWorkItemNotFound
}

func (r *fakeRepo) Insert(_ context.Context, w WorkItem) (*WorkItem, error) {
	created := r.add(w)
	return &created, nil
}

func (r *fakeRepo) AssignUID(_ context.Context, id uuid.UUID, uid string) error {
	w, ok := r.items[id]
	if !ok || w.UPSInstanceUID != "" {
		return ErrWorkItemNotFound
	}
	w.UPSInstanceUID = uid
	r.items[id] = w
	return nil
}

func (r *fakeRepo) MarkInProgress(_ context.Context, id uuid.UUID, claimedBy, studyUID string) (*WorkItem, error) {
	w, ok := r.items[id]
	if !ok || w.Status != StatusScheduled || w.ClaimedBy != "" {
		return nil, ErrAlreadyClaimed
	}
	w.Status = StatusInProgress
	w.ClaimedBy = claimedBy
	w.StudyInstanceUID = studyUID
	r.items[id] = w
	return &w, nil
}

func (r *fakeRepo) MarkCancelled(_ context.Context, id uuid.UUID, cancelledBy string) (*WorkItem, error) {
	w, ok := r.items[id]
	if !ok {
		return nil, ErrWorkItemNotFound
	}
	w.Status = StatusCancelled
	w.CancelledBy = cancelledBy
	r.items[id] = w
	return &w, nil
}

func (r *fakeRepo) MarkStatus(_ context.Context, id uuid.UUID, status Status, stationAE string) (*WorkItem, error) {
	w, ok := r.items[id]
	if !ok {
		return nil, ErrWorkItemNotFound
	}
	w.Status = status
	if stationAE != "" {
		w.StationAE = stationAE
	}
	r.items[id] = w
	return &w, nil
}

func (r *fakeRepo) UpdateFields(_ context.Context, id uuid.UUID, fields map[string]any) (*WorkItem, error) {
	w, ok := r.items[id]
	if !ok {
		return nil, ErrWorkItemNotFound
	}
	for field, val := range fields {
		s, _ := val.(string)
		switch field {
		case "patient_name":
			w.PatientName = s
		case "gender":
			w.Gender = s
		case "modality":
			w.Modality = s
		case "station_ae":
			w.StationAE = s
		case "procedure_code":
			w.ProcedureCode = s
		case "study_instance_uid":
			w.StudyInstanceUID = s
		}
	}
	r.items[id] = w
	return &w, nil
}

func (r *fakeRepo) LogExchange(_ context.Context, msg ModalityMessage) error {
	r.messages = append(r.messages, msg)
	return nil
}

type fakeCloser struct {
	closed []uuid.UUID
	err    error
}

func (c *fakeCloser) Close(_ context.Context, id uuid.UUID) error {
	if c.err != nil {
		return c.err
	}
	c.closed = append(c.closed, id)
	return nil
}

func newTestService(repo *fakeRepo, closer *fakeCloser) *Service {
	svc := NewService(repo, closer, config.Config{
		UIDRoot: "1.2.826.0.1.3680043.10.1145",
	}, nil)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 9, 0, 0, 123456000, time.UTC) }
	return svc
}

const testUID = "1.2.826.0.1.3680043.10.1145.100"

func TestClaim_FirstClaimantWins(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID})
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.Claim(context.Background(), testUID, nil, "CT_AE_1")
	if err != nil {
		t.Fatalf("first claim failed: %v", err)
	}
	if item.Status != StatusInProgress {
		t.Fatalf("expected In Progress, got %s", item.Status)
	}
	if item.ClaimedBy != "CT_AE_1" {
		t.Fatalf("claim should record the AE title, got %q", item.ClaimedBy)
	}

	_, err = svc.Claim(context.Background(), testUID, nil, "CT_AE_2")
	if !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("second claimant must be rejected, got %v", err)
	}
}

func TestClaim_BodyOverridesAETitle(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID})
	svc := newTestService(repo, &fakeCloser{})

	body := map[string]any{
		"00400241": map[string]any{"vr": "AE", "Value": []any{"WORKSTATION_9"}},
		"0020000D": map[string]any{"vr": "UI", "Value": []any{"1.2.3.4.5"}},
	}

	item, err := svc.Claim(context.Background(), testUID, body, "CT_AE_1")
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if item.ClaimedBy != "WORKSTATION_9" {
		t.Fatalf("body AE should win over the header, got %q", item.ClaimedBy)
	}
	if item.StudyInstanceUID != "1.2.3.4.5" {
		t.Fatalf("study uid not recorded, got %q", item.StudyInstanceUID)
	}
}

func TestClaim_CompletedRejected(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, Status: StatusCompleted})
	svc := newTestService(repo, &fakeCloser{})

	_, err := svc.Claim(context.Background(), testUID, nil, "CT_AE_1")
	if !errors.Is(err, ErrAlreadyCompleted) {
		t.Fatalf("expected ErrAlreadyCompleted, got %v", err)
	}
}

func TestClaim_UnknownUIDCreates(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.Claim(context.Background(), testUID, nil, "CT_AE_1")
	if err != nil {
		t.Fatalf("claim of unknown uid should create the item: %v", err)
	}
	if item.UPSInstanceUID != testUID {
		t.Fatalf("created item should carry the requested uid, got %q", item.UPSInstanceUID)
	}
	if item.Status != StatusInProgress {
		t.Fatalf("created item should be claimed immediately, got %s", item.Status)
	}
}

func TestHandleEvent_CompletionClosesAppointment(t *testing.T) {
	repo := newFakeRepo()
	apptID := uuid.New()
	repo.add(WorkItem{
		UPSInstanceUID:   testUID,
		Appointment:      &apptID,
		Status:           StatusInProgress,
		StudyInstanceUID: "1.2.3.4.5",
	})
	closer := &fakeCloser{}
	svc := newTestService(repo, closer)

	item, err := svc.HandleEvent(context.Background(), testUID, map[string]any{"Status": "Completed"}, "CT_AE_1")
	if err != nil {
		t.Fatalf("event failed: %v", err)
	}
	if item.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", item.Status)
	}
	if len(closer.closed) != 1 || closer.closed[0] != apptID {
		t.Fatalf("linked appointment should be closed, got %v", closer.closed)
	}
}

func TestHandleEvent_NoStudyUIDLeavesAppointmentOpen(t *testing.T) {
	repo := newFakeRepo()
	apptID := uuid.New()
	repo.add(WorkItem{
		UPSInstanceUID: testUID,
		Appointment:    &apptID,
		Status:         StatusInProgress,
	})
	closer := &fakeCloser{}
	svc := newTestService(repo, closer)

	if _, err := svc.HandleEvent(context.Background(), testUID, map[string]any{"Status": "Completed"}, "CT_AE_1"); err != nil {
		t.Fatalf("event failed: %v", err)
	}
	if len(closer.closed) != 0 {
		t.Fatal("completion without a study uid must not close the appointment")
	}
}

func TestHandleEvent_CloseFailureDoesNotFailExchange(t *testing.T) {
	repo := newFakeRepo()
	apptID := uuid.New()
	repo.add(WorkItem{
		UPSInstanceUID:   testUID,
		Appointment:      &apptID,
		Status:           StatusInProgress,
		StudyInstanceUID: "1.2.3.4.5",
	})
	svc := newTestService(repo, &fakeCloser{err: errors.New("appointment gone")})

	item, err := svc.HandleEvent(context.Background(), testUID, map[string]any{"Status": "Completed"}, "CT_AE_1")
	if err != nil {
		t.Fatalf("close failures are logged, not returned: %v", err)
	}
	if item.Status != StatusCompleted {
		t.Fatalf("expected Completed, got %s", item.Status)
	}
}

func TestHandleEvent_InvalidStatus(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, Status: StatusInProgress})
	svc := newTestService(repo, &fakeCloser{})

	_, err := svc.HandleEvent(context.Background(), testUID, map[string]any{"Status": "Paused"}, "CT_AE_1")
	if !errors.Is(err, ErrInvalidEventStatus) {
		t.Fatalf("expected ErrInvalidEventStatus, got %v", err)
	}
}

func TestHandleEvent_DefaultsToCompleted(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, Status: StatusInProgress})
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.HandleEvent(context.Background(), testUID, map[string]any{}, "CT_AE_1")
	if err != nil {
		t.Fatalf("event failed: %v", err)
	}
	if item.Status != StatusCompleted {
		t.Fatalf("missing Status should default to Completed, got %s", item.Status)
	}
}

func TestUpdateFromModality_AllowList(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, Modality: "CT"})
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.UpdateFromModality(context.Background(), testUID, map[string]any{
		"modality":   "MR",
		"status":     "Completed", // not allow-listed
		"claimed_by": "SNEAKY_AE", // not allow-listed
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if item.Modality != "MR" {
		t.Fatalf("allow-listed field not applied, got %q", item.Modality)
	}
	if item.Status != StatusScheduled {
		t.Fatalf("status must not be updatable via PUT, got %s", item.Status)
	}
	if item.ClaimedBy != "" {
		t.Fatalf("claimed_by must not be updatable via PUT, got %q", item.ClaimedBy)
	}
}

func TestUpdateFromModality_ByAccessionNumber(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, AccessionNumber: "ACC42"})
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.UpdateFromModality(context.Background(), "ACC42", map[string]any{"modality": "US"})
	if err != nil {
		t.Fatalf("accession number lookup failed: %v", err)
	}
	if item.Modality != "US" {
		t.Fatalf("expected US, got %q", item.Modality)
	}
}

func TestList_GeneratesMissingUIDs(t *testing.T) {
	repo := newFakeRepo()
	withUID := repo.add(WorkItem{UPSInstanceUID: testUID})
	missing := repo.add(WorkItem{AccessionNumber: "ACC7"})
	svc := newTestService(repo, &fakeCloser{})

	datasets, err := svc.List(context.Background(), nil)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(datasets))
	}

	if got := repo.items[missing.ID].UPSInstanceUID; got == "" {
		t.Fatal("missing uid should be generated and persisted")
	}
	if got := repo.items[withUID.ID].UPSInstanceUID; got != testUID {
		t.Fatalf("existing uid must not change, got %q", got)
	}
}

func TestCancel_AnyState(t *testing.T) {
	repo := newFakeRepo()
	repo.add(WorkItem{UPSInstanceUID: testUID, Status: StatusInProgress, ClaimedBy: "CT_AE_1"})
	svc := newTestService(repo, &fakeCloser{})

	item, err := svc.Cancel(context.Background(), testUID, "CT_AE_2")
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if item.Status != StatusCancelled {
		t.Fatalf("expected Cancelled, got %s", item.Status)
	}
	if item.CancelledBy != "CT_AE_2" {
		t.Fatalf("cancel should record the requesting AE, got %q", item.CancelledBy)
	}
}
