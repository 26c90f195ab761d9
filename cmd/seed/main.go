package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marleyhealth/scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	units, err := seedServiceUnits(context.Background(), pool)
	if err != nil {
		log.Fatalf("seed service units: %v", err)
	}
	if err := seedPractitioners(context.Background(), pool, units, 100); err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 9000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedServiceUnits(ctx context.Context, pool *pgxpool.Pool) ([]uuid.UUID, error) {
	units := []struct {
		name     string
		overlap  bool
		capacity int
	}{
		{"Consultation Room 1", false, 1},
		{"Consultation Room 2", false, 1},
		{"Procedure Room", false, 1},
		{"CT Suite", false, 1},
		{"MRI Suite", false, 1},
		{"X-Ray Room", true, 3},
		{"Ultrasound Room", true, 2},
		{"Day Ward", true, 8},
	}

	log.Printf("seeding %d service units", len(units))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, len(units))
	for _, u := range units {
		id := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO service_units (id, name, overlap_appointments, capacity, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, u.name, u.overlap, u.capacity)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("service units seeded")
	return ids, nil
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, units []uuid.UUID, count int) error {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Radiology",
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Neurology",
		"Pediatrics",
		"Psychiatry",
		"Ophthalmology",
		"ENT",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}

		unit := units[gofakeit.Number(0, len(units)-1)]
		if err := seedSchedule(ctx, tx, id, unit); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("practitioners seeded")
	return nil
}

// seedSchedule gives a practitioner a Monday-Friday schedule with a
// morning and an afternoon block on a single service unit.
func seedSchedule(ctx context.Context, tx pgx.Tx, practitioner, unit uuid.UUID) error {
	scheduleID := uuid.New()
	_, err := tx.Exec(ctx, `
		INSERT INTO practitioner_schedules (id, practitioner_id, service_unit_id, disabled, created_at, updated_at)
		VALUES ($1, $2, $3, false, now(), now())
	`, scheduleID, practitioner, unit)
	if err != nil {
		return err
	}

	blocks := []struct{ from, to int }{
		{9 * 60, 13 * 60},
		{14 * 60, 17 * 60},
	}
	for weekday := int(time.Monday); weekday <= int(time.Friday); weekday++ {
		for _, b := range blocks {
			_, err := tx.Exec(ctx, `
				INSERT INTO schedule_time_slots (schedule_id, weekday, from_minute, to_minute)
				VALUES ($1, $2, $3, $4)
			`, scheduleID, weekday, b.from, b.to)
			if err != nil {
				return err
			}
		}
	}

	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	genders := []string{"Male", "Female", "Other"}

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()
			gender := genders[gofakeit.Number(0, len(genders)-1)]
			dob := gofakeit.DateRange(
				time.Date(1935, 1, 1, 0, 0, 0, 0, time.UTC),
				time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC),
			)

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, gender, date_of_birth, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, now(), now())
			`, id, name, email, gender, dob)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	log.Println("patients seeded")
	return nil
}
