package main

import (
	"context"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/hackgods/clinic-appointment-scheduling/internal/db"
	"github.com/hackgods/clinic-appointment-scheduling/internal/logging"
)

var log = logging.Default()

// shifts are the non default schedules handed to some doctors. The rest use
// the clinic hours from config.
var shifts = [][4]string{
	{"07:00", "15:00", "11:00", "11:30"},
	{"10:00", "18:00", "14:00", "14:30"},
	{"08:00", "12:00", "10:00", "10:00"},
}

func main() {
	_ = godotenv.Load()
	log = logging.New(os.Getenv("LOG_LEVEL"))
	log.Info("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Error("POSTGRES_DSN is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn, 4)
	if err != nil {
		log.Error("connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	if err := seedDoctors(context.Background(), pool, faker, 40); err != nil {
		log.Error("seed doctors", "error", err)
		os.Exit(1)
	}
	if err := seedPatients(context.Background(), pool, faker, 5000); err != nil {
		log.Error("seed patients", "error", err)
		os.Exit(1)
	}

	log.Info("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info("seeding doctors", "count", count)

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

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := 0; i < count; i++ {
		specialty := specialties[faker.Number(0, len(specialties)-1)]

		// every third doctor keeps the clinic default hours
		var hours []any
		if i%3 == 0 {
			hours = []any{nil, nil, nil, nil}
		} else {
			s := shifts[faker.Number(0, len(shifts)-1)]
			hours = []any{s[0], s[1], s[2], s[3]}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, name, email, specialization, work_start, work_end, break_start, break_end, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		`, uuid.New(), "Dr. "+faker.Name(), faker.Email(), specialty, hours[0], hours[1], hours[2], hours[3])
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info("seeding patients", "count", count)

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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), faker.Name(), faker.Email())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info("patients seeded", "done", end, "total", count)
	}

	return nil
}
