package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, newPgRepositoryWithQuerier(mock)
}

var appointmentCols = []string{
	"id", "patient_id", "practitioner_id", "service_unit_id", "appointment_date",
	"start_minute", "end_minute", "duration_min", "appointment_type", "status",
	"created_at", "updated_at",
}

func TestPgGetPatientByID(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	dob := day(1990, 5, 12)
	now := time.Now()
	email := "jane@example.com"

	mock.ExpectQuery(`SELECT id, name, email, gender, date_of_birth, created_at, updated_at\s+FROM patients`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "email", "gender", "date_of_birth", "created_at", "updated_at"}).
			AddRow(id, "Jane Doe", &email, "F", dob, now, now))

	p, err := repo.GetPatientByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", p.Name)
	require.NotNil(t, p.Email)
	assert.Equal(t, email, *p.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetPatientByID_NotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery(`FROM patients`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetPatientByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrPatientNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetAppointmentByID_NotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery(`FROM appointments`).
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetAppointmentByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertAppointment(t *testing.T) {
	mock, repo := newMockRepo(t)

	patient := uuid.New()
	practitioner := uuid.New()
	date := day(2025, 1, 10)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO appointments`).
		WithArgs(pgxmock.AnyArg(), patient, &practitioner, (*uuid.UUID)(nil), date,
			540, 570, 0, "", StatusScheduled).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(uuid.New(), patient, &practitioner, (*uuid.UUID)(nil), date,
				540, 570, 0, "", StatusScheduled, now, now))

	appt, err := repo.InsertAppointment(context.Background(), Appointment{
		Patient:      patient,
		Practitioner: &practitioner,
		Date:         date,
		Start:        mins(9, 0),
		End:          mins(9, 30),
		Status:       StatusScheduled,
	})
	require.NoError(t, err)
	assert.Equal(t, mins(9, 0), appt.Start)
	assert.Equal(t, mins(9, 30), appt.End)
	assert.Equal(t, StatusScheduled, appt.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatus_ConditionalMiss(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()

	// The row exists but another writer already moved it off Scheduled, so
	// the conditional UPDATE matches nothing.
	mock.ExpectQuery(`UPDATE appointments`).
		WithArgs(id, StatusConfirmed, StatusScheduled).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusScheduled, StatusConfirmed)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgListForDate(t *testing.T) {
	mock, repo := newMockRepo(t)

	practitioner := uuid.New()
	date := day(2025, 1, 10)
	now := time.Now()

	mock.ExpectQuery(`FROM appointments`).
		WithArgs(date, &practitioner, (*uuid.UUID)(nil), (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows(appointmentCols).
			AddRow(uuid.New(), uuid.New(), &practitioner, (*uuid.UUID)(nil), date,
				540, 570, 30, "consult", StatusScheduled, now, now).
			AddRow(uuid.New(), uuid.New(), &practitioner, (*uuid.UUID)(nil), date,
				600, 630, 30, "consult", StatusConfirmed, now, now))

	appts, err := repo.ListForDate(context.Background(), date, Scope{Practitioner: &practitioner})
	require.NoError(t, err)
	require.Len(t, appts, 2)
	assert.Equal(t, mins(9, 0), appts[0].Start)
	assert.Equal(t, mins(10, 0), appts[1].Start)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetSchedule(t *testing.T) {
	mock, repo := newMockRepo(t)

	practitioner := uuid.New()
	scheduleID := uuid.New()

	mock.ExpectQuery(`FROM practitioner_schedules`).
		WithArgs(practitioner, (*uuid.UUID)(nil)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "practitioner_id", "service_unit_id", "disabled"}).
			AddRow(scheduleID, practitioner, (*uuid.UUID)(nil), false))

	mock.ExpectQuery(`FROM schedule_time_slots`).
		WithArgs(scheduleID).
		WillReturnRows(pgxmock.NewRows([]string{"weekday", "from_minute", "to_minute"}).
			AddRow(1, 540, 570).
			AddRow(3, 600, 630))

	s, err := repo.GetSchedule(context.Background(), practitioner, nil)
	require.NoError(t, err)
	require.Len(t, s.Slots, 2)
	assert.Equal(t, time.Monday, s.Slots[0].Weekday)
	assert.Equal(t, mins(9, 0), s.Slots[0].From)
	assert.Equal(t, time.Wednesday, s.Slots[1].Weekday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgIsHoliday(t *testing.T) {
	mock, repo := newMockRepo(t)

	date := day(2025, 1, 1)
	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(date).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	holiday, err := repo.IsHoliday(context.Background(), date)
	require.NoError(t, err)
	assert.True(t, holiday)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgInsertEvent(t *testing.T) {
	mock, repo := newMockRepo(t)

	apptID := uuid.New()
	created := time.Now()

	mock.ExpectExec(`INSERT INTO event_logs`).
		WithArgs("APPOINTMENT_CREATED", &apptID, []byte(`{"date":"2025-01-10"}`), &created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.InsertEvent(context.Background(), EventLog{
		EventType:     "APPOINTMENT_CREATED",
		AppointmentID: &apptID,
		Payload:       []byte(`{"date":"2025-01-10"}`),
		CreatedAt:     created,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
