package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/clinic-scheduling/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id          uuid PRIMARY KEY,
	name        text NOT NULL,
	email       text,
	created_at  timestamptz NOT NULL DEFAULT now(),
	updated_at  timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctors (
	id                     uuid PRIMARY KEY,
	name                   text NOT NULL,
	specialty              text,
	slot_duration_minutes  int NOT NULL DEFAULT 30,
	created_at             timestamptz NOT NULL DEFAULT now(),
	updated_at             timestamptz NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS doctor_working_hours (
	doctor_id     uuid NOT NULL REFERENCES doctors (id),
	weekday       int NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	start_minute  int NOT NULL,
	end_minute    int NOT NULL,
	PRIMARY KEY (doctor_id, weekday, start_minute)
);

CREATE TABLE IF NOT EXISTS appointments (
	id                uuid PRIMARY KEY,
	patient_id        uuid NOT NULL,
	doctor_id         uuid NOT NULL REFERENCES doctors (id),
	scheduled_time    timestamptz NOT NULL,
	duration_minutes  int NOT NULL,
	status            text NOT NULL,
	reason            text NOT NULL DEFAULT '',
	created_at        timestamptz NOT NULL DEFAULT now(),
	updated_at        timestamptz NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS appointments_doctor_time_idx
	ON appointments (doctor_id, scheduled_time)
	WHERE status = 'scheduled';

CREATE TABLE IF NOT EXISTS event_logs (
	id              bigserial PRIMARY KEY,
	event_type      text NOT NULL,
	appointment_id  uuid,
	payload         jsonb,
	created_at      timestamptz NOT NULL DEFAULT now()
);
`

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

	if _, err := pool.Exec(context.Background(), schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	log.Println("schema applied")

	gofakeit.Seed(time.Now().UnixNano())

	if err := seedDoctors(context.Background(), pool, 50); err != nil {
		log.Fatalf("seed doctors: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d doctors", count)

	specialties := []string{
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
	slotDurations := []int{15, 20, 30, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]
		slotDur := slotDurations[gofakeit.Number(0, len(slotDurations)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, specialty, slot_duration_minutes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, spec, slotDur)
		if err != nil {
			return err
		}

		// Mon-Fri, morning and afternoon blocks.
		morningEnd := 12 * 60
		afternoonStart := 13 * 60
		afternoonEnd := afternoonStart + gofakeit.Number(3, 5)*60
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO doctor_working_hours (doctor_id, weekday, start_minute, end_minute)
				VALUES ($1, $2, $3, $4), ($1, $2, $5, $6)
			`, id, weekday, 9*60, morningEnd, afternoonStart, afternoonEnd)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

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

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
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
