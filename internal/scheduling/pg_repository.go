package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
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

// Helpers

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	var email *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&email,
		&p.Gender,
		&p.DateOfBirth,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}

	p.Email = email
	return &p, nil
}

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	var specialty *string

	err := row.Scan(
		&p.ID,
		&p.Name,
		&specialty,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}

	p.Specialty = specialty
	return &p, nil
}

func scanServiceUnit(row pgx.Row) (*ServiceUnit, error) {
	var u ServiceUnit

	err := row.Scan(
		&u.ID,
		&u.Name,
		&u.OverlapAppointments,
		&u.Capacity,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceUnitNotFound
		}
		return nil, err
	}

	return &u, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var practitioner, serviceUnit *uuid.UUID
	var start, end int

	err := row.Scan(
		&a.ID,
		&a.Patient,
		&practitioner,
		&serviceUnit,
		&a.Date,
		&start,
		&end,
		&a.DurationMin,
		&a.Type,
		&a.Status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.Practitioner = practitioner
	a.ServiceUnit = serviceUnit
	a.Start = TimeOfDay(start)
	a.End = TimeOfDay(end)
	return &a, nil
}

const appointmentColumns = `id, patient_id, practitioner_id, service_unit_id, appointment_date,
		       start_minute, end_minute, duration_min, appointment_type, status, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, gender, date_of_birth, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPractitionerByID(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, specialty, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) GetServiceUnit(ctx context.Context, id uuid.UUID) (*ServiceUnit, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, overlap_appointments, capacity, created_at, updated_at
		FROM service_units
		WHERE id = $1
	`, id)
	return scanServiceUnit(row)
}

func (r *PgRepository) GetSchedule(ctx context.Context, practitioner uuid.UUID, serviceUnit *uuid.UUID) (*PractitionerSchedule, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, practitioner_id, service_unit_id, disabled
		FROM practitioner_schedules
		WHERE practitioner_id = $1
		  AND ($2::uuid IS NULL OR service_unit_id = $2)
		ORDER BY created_at
		LIMIT 1
	`, practitioner, serviceUnit)

	var s PractitionerSchedule
	if err := row.Scan(&s.ID, &s.Practitioner, &s.ServiceUnit, &s.Disabled); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT weekday, from_minute, to_minute
		FROM schedule_time_slots
		WHERE schedule_id = $1
		ORDER BY weekday, from_minute
	`, s.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var weekday, from, to int
		if err := rows.Scan(&weekday, &from, &to); err != nil {
			return nil, err
		}
		s.Slots = append(s.Slots, ScheduleSlot{
			Weekday: time.Weekday(weekday),
			From:    TimeOfDay(from),
			To:      TimeOfDay(to),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &s, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) InsertAppointment(ctx context.Context, a Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	start, end := a.Interval()

	row := r.db.QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, practitioner_id, service_unit_id, appointment_date,
		                          start_minute, end_minute, duration_min, appointment_type, status,
		                          created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, id, a.Patient, a.Practitioner, a.ServiceUnit, DateOnly(a.Date),
		int(start), int(end), a.DurationMin, a.Type, a.Status)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) ListForDate(ctx context.Context, date time.Time, scope Scope) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date = $1
		  AND status NOT IN ('Cancelled', 'Closed')
		  AND (
			($2::uuid IS NOT NULL AND practitioner_id = $2) OR
			($3::uuid IS NOT NULL AND service_unit_id = $3) OR
			($4::uuid IS NOT NULL AND patient_id = $4)
		  )
	`, DateOnly(date), scope.Practitioner, scope.ServiceUnit, nilIfZero(scope.Patient))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListForStatusRefresh(ctx context.Context, today time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE appointment_date <= $1
		  AND status NOT IN ('Cancelled', 'Closed', 'No Show', 'Checked Out', 'Unavailable')
	`, DateOnly(today))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) IsHoliday(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM holidays h
			JOIN holiday_lists hl ON hl.id = h.holiday_list_id
			WHERE hl.from_date <= $1
			  AND hl.to_date >= $1
			  AND h.holiday_date = $1
		)
	`, DateOnly(date)).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nilIfZero(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
