package services

import (
	"autoservice/internal/models"
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresSampleStore keeps duration samples in PostgreSQL, for technicians
// sharing one estimator across workstations.
type PostgresSampleStore struct {
	db *sql.DB
}

func NewPostgresSampleStore(db *sql.DB) *PostgresSampleStore {
	return &PostgresSampleStore{db: db}
}

// OpenPostgresSampleStore connects to dsn and makes sure the table exists
func OpenPostgresSampleStore(ctx context.Context, dsn string) (*PostgresSampleStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	store := NewPostgresSampleStore(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (r *PostgresSampleStore) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS duration_samples (
			id          BIGSERIAL PRIMARY KEY,
			target_id   TEXT NOT NULL,
			cpu_cores   DOUBLE PRECISION NOT NULL,
			cpu_threads DOUBLE PRECISION NOT NULL,
			cpu_mhz     DOUBLE PRECISION NOT NULL,
			ram_gb      DOUBLE PRECISION NOT NULL,
			disk_ssd    DOUBLE PRECISION NOT NULL,
			gpu_present DOUBLE PRECISION NOT NULL,
			duration_ns BIGINT NOT NULL CHECK (duration_ns > 0),
			recorded_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS duration_samples_target_idx ON duration_samples (target_id, recorded_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create duration_samples table: %w", err)
	}
	return nil
}

// Append inserts samples in one transaction
func (r *PostgresSampleStore) Append(ctx context.Context, samples []models.ServiceTimeSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO duration_samples
			(target_id, cpu_cores, cpu_threads, cpu_mhz, ram_gb, disk_ssd, gpu_present, duration_ns, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		fp := s.Fingerprint
		_, err := stmt.ExecContext(ctx,
			s.TargetID,
			fp.CPUCores, fp.CPUThreads, fp.CPUMHz, fp.RAMGB, fp.DiskSSD, fp.GPUPresent,
			int64(s.Duration),
			s.RecordedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresSampleStore) Load(ctx context.Context) ([]models.ServiceTimeSample, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT target_id, cpu_cores, cpu_threads, cpu_mhz, ram_gb, disk_ssd, gpu_present, duration_ns, recorded_at
		FROM duration_samples
		ORDER BY recorded_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []models.ServiceTimeSample
	for rows.Next() {
		var s models.ServiceTimeSample
		var ns int64
		fp := &s.Fingerprint
		if err := rows.Scan(&s.TargetID,
			&fp.CPUCores, &fp.CPUThreads, &fp.CPUMHz, &fp.RAMGB, &fp.DiskSSD, &fp.GPUPresent,
			&ns, &s.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Duration = time.Duration(ns)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return out, nil
}

func (r *PostgresSampleStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM duration_samples WHERE recorded_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

func (r *PostgresSampleStore) Close() error {
	return r.db.Close()
}
