package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// Store wraps the Postgres connection. All methods use raw SQL through the
// shared *sql.DB; callers own transactions when they need them.
type Store struct {
	DB *sql.DB
}

// JobRecord is the durable view of a research job. The live phase-by-phase
// state rides in job_checkpoints; this row tracks identity and lifecycle.
type JobRecord struct {
	ID         string
	UserID     string
	Query      string
	Context    string
	Depth      string
	Status     string
	Error      string
	Resumable  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// ReportRecord is the published result of a completed job.
type ReportRecord struct {
	JobID      string
	Synthesis  string
	Strategic  string
	QASummary  string
	Stats      []byte
	HumanHours float64
	CostUSD    float64
	CreatedAt  time.Time
}

// WatchRecord is a standing query re-run on a cron schedule.
type WatchRecord struct {
	ID           string
	UserID       string
	Query        string
	Depth        string
	ScheduleCron string
	LastRunAt    *time.Time
	CreatedAt    time.Time
}

// New builds a Store from DATABASE_URL or the POSTGRES_* environment.
func New(ctx context.Context) (*Store, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		host := getenvDefault("POSTGRES_HOST", "localhost")
		port := getenvDefault("POSTGRES_PORT", "5432")
		user := os.Getenv("POSTGRES_USER")
		pass := os.Getenv("POSTGRES_PASSWORD")
		db := os.Getenv("POSTGRES_DB")
		ssl := getenvDefault("POSTGRES_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, ssl)
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

// User operations
func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Job operations
func (s *Store) CreateJob(ctx context.Context, rec JobRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO jobs (id, user_id, query, context, depth, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`,
		rec.ID, rec.UserID, rec.Query, rec.Context, rec.Depth, rec.Status)
	return err
}

func (s *Store) SetJobStatus(ctx context.Context, id, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE jobs SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	return err
}

// FinishJob records a terminal status. errMsg may be nil; resumable marks a
// failure that a checkpoint can pick up later.
func (s *Store) FinishJob(ctx context.Context, id, status string, errMsg *string, resumable bool) error {
	_, err := s.DB.ExecContext(ctx, `
UPDATE jobs SET status=$2, error=$3, resumable=$4, finished_at=NOW(), updated_at=NOW() WHERE id=$1`,
		id, status, errMsg, resumable)
	return err
}

func (s *Store) GetJob(ctx context.Context, id string) (JobRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, user_id, query, context, depth, status, COALESCE(error,''), resumable, created_at, updated_at, finished_at
FROM jobs WHERE id=$1`, id)
	var rec JobRecord
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Query, &rec.Context, &rec.Depth, &rec.Status,
		&rec.Error, &rec.Resumable, &rec.CreatedAt, &rec.UpdatedAt, &rec.FinishedAt); err != nil {
		if err == sql.ErrNoRows {
			return JobRecord{}, false, nil
		}
		return JobRecord{}, false, err
	}
	return rec, true, nil
}

func (s *Store) ListJobs(ctx context.Context, userID string, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, user_id, query, context, depth, status, COALESCE(error,''), resumable, created_at, updated_at, finished_at
FROM jobs WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Query, &rec.Context, &rec.Depth, &rec.Status,
			&rec.Error, &rec.Resumable, &rec.CreatedAt, &rec.UpdatedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListInterruptedJobs returns failed jobs with a checkpoint to resume from.
func (s *Store) ListInterruptedJobs(ctx context.Context) ([]JobRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT j.id, j.user_id, j.query, j.context, j.depth, j.status, COALESCE(j.error,''), j.resumable, j.created_at, j.updated_at, j.finished_at
FROM jobs j
JOIN job_checkpoints c ON c.job_id = j.id
WHERE j.status='failed' AND j.resumable
ORDER BY j.updated_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRecord
	for rows.Next() {
		var rec JobRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Query, &rec.Context, &rec.Depth, &rec.Status,
			&rec.Error, &rec.Resumable, &rec.CreatedAt, &rec.UpdatedAt, &rec.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Checkpoint operations. One row per job, last writer wins.
func (s *Store) UpsertJobCheckpoint(ctx context.Context, jobID, phase string, snapshot []byte) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO job_checkpoints (job_id, phase, snapshot, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (job_id) DO UPDATE SET
  phase      = EXCLUDED.phase,
  snapshot   = EXCLUDED.snapshot,
  updated_at = NOW();
`, jobID, phase, snapshot)
	return err
}

func (s *Store) GetJobCheckpoint(ctx context.Context, jobID string) (phase string, snapshot []byte, ok bool, err error) {
	row := s.DB.QueryRowContext(ctx, `SELECT phase, snapshot FROM job_checkpoints WHERE job_id=$1`, jobID)
	if err = row.Scan(&phase, &snapshot); err != nil {
		if err == sql.ErrNoRows {
			return "", nil, false, nil
		}
		return "", nil, false, err
	}
	return phase, snapshot, true, nil
}

func (s *Store) DeleteJobCheckpoint(ctx context.Context, jobID string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM job_checkpoints WHERE job_id=$1`, jobID)
	return err
}

// Report operations
func (s *Store) SaveReport(ctx context.Context, rec ReportRecord) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO reports (job_id, synthesis, strategic, qa_summary, stats, human_hours, cost_usd, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,NOW())
ON CONFLICT (job_id) DO UPDATE SET
  synthesis   = EXCLUDED.synthesis,
  strategic   = EXCLUDED.strategic,
  qa_summary  = EXCLUDED.qa_summary,
  stats       = EXCLUDED.stats,
  human_hours = EXCLUDED.human_hours,
  cost_usd    = EXCLUDED.cost_usd;
`, rec.JobID, rec.Synthesis, rec.Strategic, rec.QASummary, rec.Stats, rec.HumanHours, rec.CostUSD)
	return err
}

func (s *Store) GetReport(ctx context.Context, jobID string) (ReportRecord, bool, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT job_id, synthesis, strategic, qa_summary, stats, human_hours, cost_usd, created_at
FROM reports WHERE job_id=$1`, jobID)
	var rec ReportRecord
	if err := row.Scan(&rec.JobID, &rec.Synthesis, &rec.Strategic, &rec.QASummary,
		&rec.Stats, &rec.HumanHours, &rec.CostUSD, &rec.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return ReportRecord{}, false, nil
		}
		return ReportRecord{}, false, err
	}
	return rec, true, nil
}

// Watch operations
func (s *Store) CreateWatch(ctx context.Context, userID, query, depth, scheduleCron string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO watches (user_id, query, depth, schedule_cron) VALUES ($1,$2,$3,$4) RETURNING id`,
		userID, query, depth, scheduleCron).Scan(&id)
	return id, err
}

func (s *Store) ListWatches(ctx context.Context, userID string) ([]WatchRecord, error) {
	return s.queryWatches(ctx, `
SELECT id, user_id, query, depth, schedule_cron, last_run_at, created_at
FROM watches WHERE user_id=$1 ORDER BY created_at DESC`, userID)
}

func (s *Store) ListAllWatches(ctx context.Context) ([]WatchRecord, error) {
	return s.queryWatches(ctx, `
SELECT id, user_id, query, depth, schedule_cron, last_run_at, created_at
FROM watches ORDER BY created_at ASC`)
}

func (s *Store) queryWatches(ctx context.Context, q string, args ...interface{}) ([]WatchRecord, error) {
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WatchRecord
	for rows.Next() {
		var rec WatchRecord
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Query, &rec.Depth, &rec.ScheduleCron, &rec.LastRunAt, &rec.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) SetWatchLastRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE watches SET last_run_at=$2 WHERE id=$1`, id, at)
	return err
}

func (s *Store) DeleteWatch(ctx context.Context, id, userID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM watches WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
