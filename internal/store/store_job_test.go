package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return &Store{DB: db}, mock, func() { db.Close() }
}

func TestCreateJob(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	query := regexp.QuoteMeta(`
INSERT INTO jobs (id, user_id, query, context, depth, status, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW(),NOW())`)
	mock.ExpectExec(query).
		WithArgs("job-1", "user-1", "battery supply chains", "", "deep", "pending").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.CreateJob(context.Background(), JobRecord{
		ID: "job-1", UserID: "user-1", Query: "battery supply chains", Depth: "deep", Status: "pending",
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetJobNotFound(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT id, user_id, query`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := st.GetJob(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestGetJobScansRow(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, query`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "query", "context", "depth", "status", "error", "resumable", "created_at", "updated_at", "finished_at",
		}).AddRow("job-1", "user-1", "q", "ctx", "deep", "failed", "interrupted", true, now, now, nil))

	rec, ok, err := st.GetJob(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("GetJob: ok=%v err=%v", ok, err)
	}
	if rec.Status != "failed" || !rec.Resumable || rec.Error != "interrupted" {
		t.Fatalf("rec = %+v", rec)
	}
	if rec.FinishedAt != nil {
		t.Fatalf("unfinished job has finished_at")
	}
}

func TestFinishJob(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	msg := "all studies failed"
	mock.ExpectExec(`UPDATE jobs SET status=\$2, error=\$3, resumable=\$4, finished_at=NOW\(\), updated_at=NOW\(\) WHERE id=\$1`).
		WithArgs("job-1", "failed", "all studies failed", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.FinishJob(context.Background(), "job-1", "failed", &msg, true); err != nil {
		t.Fatalf("FinishJob: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestUpsertJobCheckpoint(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	query := regexp.QuoteMeta(`
INSERT INTO job_checkpoints (job_id, phase, snapshot, updated_at)
VALUES ($1,$2,$3,NOW())
ON CONFLICT (job_id) DO UPDATE SET
  phase      = EXCLUDED.phase,
  snapshot   = EXCLUDED.snapshot,
  updated_at = NOW();
`)
	snap := []byte(`{"job_id":"job-1","depth":"deep"}`)
	mock.ExpectExec(query).
		WithArgs("job-1", "studies", snap).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := st.UpsertJobCheckpoint(context.Background(), "job-1", "studies", snap); err != nil {
		t.Fatalf("UpsertJobCheckpoint: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetJobCheckpoint(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT phase, snapshot FROM job_checkpoints WHERE job_id=\$1`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{"phase", "snapshot"}).
			AddRow("studies", []byte(`{"job_id":"job-1"}`)))

	phase, snap, ok, err := st.GetJobCheckpoint(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("GetJobCheckpoint: ok=%v err=%v", ok, err)
	}
	if phase != "studies" || len(snap) == 0 {
		t.Fatalf("phase=%q snap=%q", phase, snap)
	}
}

func TestGetJobCheckpointMissing(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectQuery(`SELECT phase, snapshot FROM job_checkpoints`).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"phase", "snapshot"}))

	_, _, ok, err := st.GetJobCheckpoint(context.Background(), "nope")
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v, want absent without error", ok, err)
	}
}

func TestSaveAndGetReport(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	stats := []byte(`{"web_searches":12}`)
	mock.ExpectExec(`INSERT INTO reports`).
		WithArgs("job-1", "synthesis text", "strategy text", "qa text", stats, 6.5, 1.25).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := st.SaveReport(context.Background(), ReportRecord{
		JobID: "job-1", Synthesis: "synthesis text", Strategic: "strategy text",
		QASummary: "qa text", Stats: stats, HumanHours: 6.5, CostUSD: 1.25,
	})
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	now := time.Now()
	mock.ExpectQuery(`SELECT job_id, synthesis, strategic, qa_summary`).
		WithArgs("job-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"job_id", "synthesis", "strategic", "qa_summary", "stats", "human_hours", "cost_usd", "created_at",
		}).AddRow("job-1", "synthesis text", "strategy text", "qa text", stats, 6.5, 1.25, now))

	rec, ok, err := st.GetReport(context.Background(), "job-1")
	if err != nil || !ok {
		t.Fatalf("GetReport: ok=%v err=%v", ok, err)
	}
	if rec.Synthesis != "synthesis text" || rec.HumanHours != 6.5 {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestDeleteWatchNotFound(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	mock.ExpectExec(`DELETE FROM watches WHERE id=\$1 AND user_id=\$2`).
		WithArgs("w-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := st.DeleteWatch(context.Background(), "w-1", "user-1"); err == nil {
		t.Fatalf("expected error for missing watch")
	}
}

func TestListWatches(t *testing.T) {
	st, mock, done := newMockStore(t)
	defer done()

	now := time.Now()
	mock.ExpectQuery(`SELECT id, user_id, query, depth, schedule_cron`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "user_id", "query", "depth", "schedule_cron", "last_run_at", "created_at",
		}).
			AddRow("w-1", "user-1", "chip exports", "deep", "0 7 * * *", now, now).
			AddRow("w-2", "user-1", "rates decision", "standard", "0 */6 * * *", nil, now))

	watches, err := st.ListWatches(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("ListWatches: %v", err)
	}
	if len(watches) != 2 {
		t.Fatalf("got %d watches", len(watches))
	}
	if watches[0].LastRunAt == nil || watches[1].LastRunAt != nil {
		t.Fatalf("last_run_at scanned wrong: %+v", watches)
	}
}
