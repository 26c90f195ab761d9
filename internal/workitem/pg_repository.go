package workitem

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marleyhealth/scheduling/internal/scheduling"
)

// querier is the subset of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db querier
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{db: pool}
}

func newPgRepositoryWithQuerier(db querier) *PgRepository {
	return &PgRepository{db: db}
}

const workItemColumns = `id, ups_instance_uid, appointment_id, accession_number, patient_ref,
		       patient_name, gender, date_of_birth, procedure_code, modality, station_ae,
		       scheduled_date, scheduled_minute, status, study_instance_uid, claimed_by,
		       cancelled_by, created_at, updated_at`

func scanWorkItem(row pgx.Row) (*WorkItem, error) {
	var w WorkItem
	var scheduledMinute int
	var studyUID, claimedBy, cancelledBy *string

	err := row.Scan(
		&w.ID,
		&w.UPSInstanceUID,
		&w.Appointment,
		&w.AccessionNumber,
		&w.PatientRef,
		&w.PatientName,
		&w.Gender,
		&w.DateOfBirth,
		&w.ProcedureCode,
		&w.Modality,
		&w.StationAE,
		&w.ScheduledDate,
		&scheduledMinute,
		&w.Status,
		&studyUID,
		&claimedBy,
		&cancelledBy,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWorkItemNotFound
		}
		return nil, err
	}

	w.ScheduledTime = scheduling.TimeOfDay(scheduledMinute)
	if studyUID != nil {
		w.StudyInstanceUID = *studyUID
	}
	if claimedBy != nil {
		w.ClaimedBy = *claimedBy
	}
	if cancelledBy != nil {
		w.CancelledBy = *cancelledBy
	}
	return &w, nil
}

// filterClause renders one exact-match condition, converting DICOM DA/TM
// values for date and time columns.
func filterClause(field string, idx int, value string) (string, any) {
	switch field {
	case "date_of_birth", "scheduled_date":
		return fmt.Sprintf("%s = to_date($%d, 'YYYYMMDD')", field, idx), value
	case "scheduled_time":
		return fmt.Sprintf("scheduled_minute = $%d", idx), tmToMinute(value)
	default:
		return fmt.Sprintf("%s = $%d", field, idx), value
	}
}

// tmToMinute converts a DICOM TM value (HHMMSS, seconds optional) to
// minutes since midnight. Unparseable values map to -1 and match nothing.
func tmToMinute(v string) int {
	if len(v) < 4 {
		return -1
	}
	h, err1 := strconv.Atoi(v[:2])
	m, err2 := strconv.Atoi(v[2:4])
	if err1 != nil || err2 != nil || h > 23 || m > 59 {
		return -1
	}
	return h*60 + m
}

func (r *PgRepository) Find(ctx context.Context, q Query) ([]WorkItem, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT ` + workItemColumns + `
		FROM work_items
		WHERE status = $1`)
	args := []any{q.Status}

	// Deterministic clause order
	for _, field := range sortedKeys(q.Exact) {
		clause, arg := filterClause(field, len(args)+1, q.Exact[field])
		sb.WriteString(" AND " + clause)
		args = append(args, arg)
	}
	for _, field := range sortedKeys(q.Like) {
		sb.WriteString(fmt.Sprintf(" AND %s ILIKE $%d", field, len(args)+1))
		args = append(args, q.Like[field])
	}
	for _, field := range sortedRangeKeys(q.Ranges) {
		rng := q.Ranges[field]
		if rng.From != "" {
			sb.WriteString(fmt.Sprintf(" AND %s >= to_date($%d, 'YYYYMMDD')", field, len(args)+1))
			args = append(args, rng.From)
		}
		if rng.To != "" {
			sb.WriteString(fmt.Sprintf(" AND %s <= to_date($%d, 'YYYYMMDD')", field, len(args)+1))
			args = append(args, rng.To)
		}
	}
	sb.WriteString(" ORDER BY scheduled_date, scheduled_minute")

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) GetByReference(ctx context.Context, ref string) (*WorkItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE ups_instance_uid = $1
		   OR study_instance_uid = $1
		   OR accession_number = $1
		LIMIT 1
	`, ref)
	return scanWorkItem(row)
}

func (r *PgRepository) Insert(ctx context.Context, w WorkItem) (*WorkItem, error) {
	id := w.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO work_items (id, ups_instance_uid, appointment_id, accession_number, patient_ref,
		                        patient_name, gender, date_of_birth, procedure_code, modality,
		                        station_ae, scheduled_date, scheduled_minute, status,
		                        created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, now(), now())
		RETURNING `+workItemColumns+`
	`, id, w.UPSInstanceUID, w.Appointment, w.AccessionNumber, w.PatientRef,
		w.PatientName, w.Gender, w.DateOfBirth, w.ProcedureCode, w.Modality,
		w.StationAE, w.ScheduledDate, int(w.ScheduledTime), w.Status)

	return scanWorkItem(row)
}

func (r *PgRepository) AssignUID(ctx context.Context, id uuid.UUID, uid string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE work_items
		SET ups_instance_uid = $2,
		    updated_at = now()
		WHERE id = $1
		  AND ups_instance_uid = ''
	`, id, uid)
	if err != nil {
		return fmt.Errorf("assign ups instance uid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrWorkItemNotFound
	}
	return nil
}

func (r *PgRepository) MarkInProgress(ctx context.Context, id uuid.UUID, claimedBy, studyUID string) (*WorkItem, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE work_items
		SET status = 'In Progress',
		    claimed_by = $2,
		    study_instance_uid = NULLIF($3, ''),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'Scheduled'
		  AND claimed_by IS NULL
		RETURNING `+workItemColumns+`
	`, id, claimedBy, studyUID)

	w, err := scanWorkItem(row)
	if errors.Is(err, ErrWorkItemNotFound) {
		// Row exists, the conditional update lost the race.
		return nil, ErrAlreadyClaimed
	}
	return w, err
}

func (r *PgRepository) MarkCancelled(ctx context.Context, id uuid.UUID, cancelledBy string) (*WorkItem, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE work_items
		SET status = 'Cancelled',
		    cancelled_by = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+workItemColumns+`
	`, id, cancelledBy)
	return scanWorkItem(row)
}

func (r *PgRepository) MarkStatus(ctx context.Context, id uuid.UUID, status Status, stationAE string) (*WorkItem, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE work_items
		SET status = $2,
		    station_ae = COALESCE(NULLIF($3, ''), station_ae),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+workItemColumns+`
	`, id, status, stationAE)
	return scanWorkItem(row)
}

func (r *PgRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) (*WorkItem, error) {
	if len(fields) == 0 {
		return r.getByID(ctx, id)
	}

	var sb strings.Builder
	sb.WriteString("UPDATE work_items SET updated_at = now()")
	args := []any{id}

	for _, field := range sortedAnyKeys(fields) {
		sb.WriteString(fmt.Sprintf(", %s = $%d", field, len(args)+1))
		args = append(args, fields[field])
	}
	sb.WriteString(" WHERE id = $1 RETURNING " + workItemColumns)

	row := r.db.QueryRow(ctx, sb.String(), args...)
	return scanWorkItem(row)
}

func (r *PgRepository) getByID(ctx context.Context, id uuid.UUID) (*WorkItem, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+workItemColumns+`
		FROM work_items
		WHERE id = $1
	`, id)
	return scanWorkItem(row)
}

func (r *PgRepository) LogExchange(ctx context.Context, msg ModalityMessage) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO modality_messages (ae_title, message_type, reference, request_payload,
		                               response_payload, status_code, status_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
	`, msg.AETitle, msg.Type, msg.Reference, msg.RequestPayload,
		msg.ResponsePayload, msg.StatusCode, msg.StatusText, nullableTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert modality message: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedRangeKeys(m map[string]Range) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedAnyKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
