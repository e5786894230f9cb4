package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

var specializations = []string{
	"General Dentistry",
	"Orthodontics",
	"Endodontics",
	"Periodontics",
	"Prosthodontics",
	"Oral Surgery",
	"Pediatric Dentistry",
	"Cosmetic Dentistry",
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		os.Exit(1)
	}
	if cfg.StoreBackend != config.StorePostgres {
		fmt.Fprintln(os.Stderr, "seed requires STORE_BACKEND=postgres")
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Open(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	faker := gofakeit.New(0)

	if err := seedDoctors(context.Background(), log, pool, faker); err != nil {
		log.Fatal("seed doctors", zap.Error(err))
	}
	if err := seedPatients(context.Background(), log, pool, faker, getInt("SEED_PATIENTS", 500)); err != nil {
		log.Fatal("seed patients", zap.Error(err))
	}

	log.Info("seed complete")
}

// seedDoctors upserts one row per scheduled doctor key so the booking page
// selectors resolve. Re-running keeps existing ids.
func seedDoctors(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker) error {
	keys := availability.DefaultDoctorKeys
	log.Info("seeding doctors", zap.Int("count", len(keys)))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, key := range keys {
		name := displayName(key)
		spec := specializations[i%len(specializations)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (doctor_key, name, specialization, contact, license, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, now(), now())
			ON CONFLICT (doctor_key) DO UPDATE
			SET name = EXCLUDED.name,
			    specialization = EXCLUDED.specialization,
			    updated_at = now()
		`, key, name, spec, faker.Phone(), fmt.Sprintf("KDC-%05d", faker.Number(1, 99999)))
		if err != nil {
			return fmt.Errorf("upsert %s: %w", key, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Info("doctors seeded")
	return nil
}

func seedPatients(ctx context.Context, log *zap.Logger, pool *pgxpool.Pool, faker *gofakeit.Faker, count int) error {
	log.Info("seeding patients", zap.Int("count", count))

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
			contact := faker.Email()
			if i%3 == 0 {
				contact = faker.Phone()
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (name, age, contact, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, faker.Name(), faker.Number(3, 90), contact)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info("patients seeded", zap.Int("done", end), zap.Int("total", count))
	}

	return nil
}

// displayName turns "dr-anoop" into "Dr. Anoop".
func displayName(key string) string {
	name := strings.TrimPrefix(key, "dr-")
	if name == "" {
		return key
	}
	return "Dr. " + strings.ToUpper(name[:1]) + name[1:]
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
