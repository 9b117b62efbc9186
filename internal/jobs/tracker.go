// Package jobs tracks research job lifecycle: registry, status transitions
// and progress fan-in from running pipelines.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Error text recorded on jobs cut short by shutdown. They keep their last
// checkpoint and resume from it.
const interruptedMsg = "interrupted by shutdown; resume available"

// Job is the tracker's view of one research job.
type Job struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id,omitempty"`
	Query     string         `json:"query"`
	Context   string         `json:"context,omitempty"`
	Depth     research.Depth `json:"depth"`
	Status    Status         `json:"status"`
	Phase     string         `json:"phase,omitempty"`
	Progress  float64        `json:"progress"`
	Error     string         `json:"error,omitempty"`
	Resumable bool           `json:"resumable"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	// Result is set once the pipeline finishes.
	Result *research.Job `json:"result,omitempty"`
}

// Tracker is the in-process job registry. The store mirror is optional and
// best-effort for status writes; the in-memory state is the serving truth
// while the process lives. Implements research.EventSink.
type Tracker struct {
	mu   sync.Mutex
	jobs map[string]*Job

	store  *store.Store
	redis  *redis.Client
	logger *log.Logger
}

func NewTracker(st *store.Store, rdb *redis.Client, logger *log.Logger) *Tracker {
	if logger == nil {
		logger = log.New(log.Writer(), "[JOBS] ", log.LstdFlags)
	}
	return &Tracker{jobs: make(map[string]*Job), store: st, redis: rdb, logger: logger}
}

// Create registers a new pending job and returns its generated id.
func (t *Tracker) Create(ctx context.Context, userID, query, background string, depth research.Depth) (Job, error) {
	job := &Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		Query:     query,
		Context:   background,
		Depth:     depth,
		Status:    StatusPending,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if t.store != nil {
		err := t.store.CreateJob(ctx, store.JobRecord{
			ID: job.ID, UserID: userID, Query: query, Context: background,
			Depth: string(depth), Status: string(StatusPending),
		})
		if err != nil {
			return Job{}, fmt.Errorf("persist job: %w", err)
		}
	}
	t.mu.Lock()
	t.jobs[job.ID] = job
	t.mu.Unlock()
	return *job, nil
}

// Start transitions a job to running.
func (t *Tracker) Start(ctx context.Context, id string) error {
	if err := t.transition(id, StatusRunning, "", false); err != nil {
		return err
	}
	t.mirrorStatus(ctx, id, StatusRunning)
	return nil
}

// Complete records the finished pipeline result.
func (t *Tracker) Complete(ctx context.Context, id string, result *research.Job) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if ok {
		job.Status = StatusCompleted
		job.Progress = 1
		job.Error = ""
		job.Resumable = false
		job.Result = result
		job.UpdatedAt = time.Now()
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	if t.store != nil {
		if err := t.store.FinishJob(ctx, id, string(StatusCompleted), nil, false); err != nil {
			t.logger.Printf("finish mirror failed for job %s: %v", id, err)
		}
	}
	return nil
}

// Fail records a terminal failure. resumable jobs can be restarted from
// their last checkpoint.
func (t *Tracker) Fail(ctx context.Context, id, msg string, resumable bool) error {
	if err := t.transition(id, StatusFailed, msg, resumable); err != nil {
		return err
	}
	if t.store != nil {
		errMsg := msg
		if err := t.store.FinishJob(ctx, id, string(StatusFailed), &errMsg, resumable); err != nil {
			t.logger.Printf("finish mirror failed for job %s: %v", id, err)
		}
	}
	return nil
}

// Resume moves a failed job back to running. Only failed jobs resume.
func (t *Tracker) Resume(ctx context.Context, id string) error {
	t.mu.Lock()
	job, ok := t.jobs[id]
	if ok && job.Status != StatusFailed {
		t.mu.Unlock()
		return fmt.Errorf("job %s is %s, only failed jobs resume", id, job.Status)
	}
	if ok {
		job.Status = StatusRunning
		job.Error = ""
		job.UpdatedAt = time.Now()
	}
	t.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	t.mirrorStatus(ctx, id, StatusRunning)
	return nil
}

// Adopt registers a job recovered from the store, e.g. when resuming after
// a restart.
func (t *Tracker) Adopt(rec store.JobRecord) Job {
	job := &Job{
		ID:        rec.ID,
		UserID:    rec.UserID,
		Query:     rec.Query,
		Context:   rec.Context,
		Depth:     research.Depth(rec.Depth),
		Status:    Status(rec.Status),
		Error:     rec.Error,
		Resumable: rec.Resumable,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
	t.mu.Lock()
	if existing, ok := t.jobs[job.ID]; ok {
		job = existing
	} else {
		t.jobs[job.ID] = job
	}
	t.mu.Unlock()
	return *job
}

// Get returns a snapshot of one job.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// List returns snapshots of all jobs for a user, most recent first is the
// caller's concern.
func (t *Tracker) List(userID string) []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if userID == "" || job.UserID == userID {
			out = append(out, *job)
		}
	}
	return out
}

// MarkInterrupted fails every running job so a later process can resume it
// from its checkpoint. Called on shutdown.
func (t *Tracker) MarkInterrupted(ctx context.Context) {
	t.mu.Lock()
	var interrupted []string
	for id, job := range t.jobs {
		if job.Status == StatusRunning {
			job.Status = StatusFailed
			job.Error = interruptedMsg
			job.Resumable = true
			job.UpdatedAt = time.Now()
			interrupted = append(interrupted, id)
		}
	}
	t.mu.Unlock()
	for _, id := range interrupted {
		t.logger.Printf("job %s interrupted, marked resumable", id)
		if t.store != nil {
			msg := interruptedMsg
			if err := t.store.FinishJob(ctx, id, string(StatusFailed), &msg, true); err != nil {
				t.logger.Printf("interrupt mirror failed for job %s: %v", id, err)
			}
		}
	}
}

func (t *Tracker) transition(id string, status Status, msg string, resumable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("unknown job %s", id)
	}
	job.Status = status
	job.Error = msg
	job.Resumable = resumable
	job.UpdatedAt = time.Now()
	return nil
}

func (t *Tracker) mirrorStatus(ctx context.Context, id string, status Status) {
	if t.store == nil {
		return
	}
	if err := t.store.SetJobStatus(ctx, id, string(status)); err != nil {
		t.logger.Printf("status mirror failed for job %s: %v", id, err)
	}
}

// Publish consumes pipeline progress events. The pipeline never touches job
// records directly; this is its only write path into the tracker.
func (t *Tracker) Publish(e research.Event) {
	t.mu.Lock()
	job, ok := t.jobs[e.JobID]
	if ok {
		switch e.Kind {
		case research.EventPhaseStarted, research.EventPhaseProgress, research.EventPhaseCompleted:
			job.Phase = e.Phase
			if e.Progress > job.Progress {
				job.Progress = e.Progress
			}
		case research.EventUnitFailed:
			// Unit failures are advisory; the pipeline decides whether the
			// job as a whole fails.
		}
		job.UpdatedAt = time.Now()
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	if e.Kind == research.EventUnitFailed {
		t.logger.Printf("job %s: %s unit failed: %s %s", e.JobID, e.Phase, e.Message, e.Err)
	}
	t.publishRedis(e)
}

// publishRedis mirrors progress to a Redis channel so other processes (or a
// UI) can follow along. Best-effort.
func (t *Tracker) publishRedis(e research.Event) {
	if t.redis == nil {
		return
	}
	payload, err := json.Marshal(map[string]interface{}{
		"job_id":   e.JobID,
		"kind":     string(e.Kind),
		"phase":    e.Phase,
		"progress": e.Progress,
		"message":  e.Message,
		"error":    e.Err,
	})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := t.redis.Publish(ctx, "briefer:progress:"+e.JobID, payload).Err(); err != nil {
		t.logger.Printf("redis progress publish failed for job %s: %v", e.JobID, err)
	}
}
