package jobs

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/mohammad-safakhou/briefer/internal/research"
)

func newTestTracker() *Tracker {
	return NewTracker(nil, nil, log.New(io.Discard, "", 0))
}

func TestCreateAssignsIDAndPending(t *testing.T) {
	tr := newTestTracker()
	job, err := tr.Create(context.Background(), "user-1", "battery supply chains", "", research.DepthDeep)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if job.ID == "" {
		t.Fatalf("no job id assigned")
	}
	if job.Status != StatusPending {
		t.Fatalf("status = %v, want pending", job.Status)
	}

	got, ok := tr.Get(job.ID)
	if !ok || got.Query != "battery supply chains" {
		t.Fatalf("Get: ok=%v job=%+v", ok, got)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	job, _ := tr.Create(ctx, "u", "q", "", research.DepthDeep)

	if err := tr.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if got, _ := tr.Get(job.ID); got.Status != StatusRunning {
		t.Fatalf("status = %v, want running", got.Status)
	}

	result := &research.Job{JobID: job.ID, MasterSynthesis: "done"}
	if err := tr.Complete(ctx, job.ID, result); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got, _ := tr.Get(job.ID)
	if got.Status != StatusCompleted || got.Progress != 1 {
		t.Fatalf("job = %+v", got)
	}
	if got.Result == nil || got.Result.MasterSynthesis != "done" {
		t.Fatalf("result not recorded: %+v", got.Result)
	}
}

func TestFailAndResume(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	job, _ := tr.Create(ctx, "u", "q", "", research.DepthDeep)
	_ = tr.Start(ctx, job.ID)

	if err := tr.Fail(ctx, job.ID, "all studies failed", true); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	got, _ := tr.Get(job.ID)
	if got.Status != StatusFailed || !got.Resumable || got.Error == "" {
		t.Fatalf("job = %+v", got)
	}

	if err := tr.Resume(ctx, job.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	got, _ = tr.Get(job.ID)
	if got.Status != StatusRunning || got.Error != "" {
		t.Fatalf("job = %+v", got)
	}
}

func TestResumeRejectsNonFailedJobs(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	job, _ := tr.Create(ctx, "u", "q", "", research.DepthDeep)

	if err := tr.Resume(ctx, job.ID); err == nil {
		t.Fatalf("pending job must not resume")
	}
	_ = tr.Start(ctx, job.ID)
	if err := tr.Resume(ctx, job.ID); err == nil {
		t.Fatalf("running job must not resume")
	}
	_ = tr.Complete(ctx, job.ID, &research.Job{JobID: job.ID})
	if err := tr.Resume(ctx, job.ID); err == nil {
		t.Fatalf("completed job must not resume")
	}
	if err := tr.Resume(ctx, "unknown"); err == nil {
		t.Fatalf("unknown job must not resume")
	}
}

func TestMarkInterruptedFailsOnlyRunningJobs(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()

	running, _ := tr.Create(ctx, "u", "q1", "", research.DepthDeep)
	_ = tr.Start(ctx, running.ID)
	pending, _ := tr.Create(ctx, "u", "q2", "", research.DepthDeep)
	done, _ := tr.Create(ctx, "u", "q3", "", research.DepthDeep)
	_ = tr.Start(ctx, done.ID)
	_ = tr.Complete(ctx, done.ID, &research.Job{JobID: done.ID})

	tr.MarkInterrupted(ctx)

	if got, _ := tr.Get(running.ID); got.Status != StatusFailed || !got.Resumable {
		t.Fatalf("running job = %+v, want failed resumable", got)
	}
	if got, _ := tr.Get(pending.ID); got.Status != StatusPending {
		t.Fatalf("pending job disturbed: %+v", got)
	}
	if got, _ := tr.Get(done.ID); got.Status != StatusCompleted {
		t.Fatalf("completed job disturbed: %+v", got)
	}
}

func TestPublishUpdatesPhaseAndProgress(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	job, _ := tr.Create(ctx, "u", "q", "", research.DepthDeep)
	_ = tr.Start(ctx, job.ID)

	tr.Publish(research.Event{JobID: job.ID, Kind: research.EventPhaseStarted, Phase: "planning", Progress: 0.11})
	got, _ := tr.Get(job.ID)
	if got.Phase != "planning" || got.Progress != 0.11 {
		t.Fatalf("job = %+v", got)
	}

	// Progress never goes backwards.
	tr.Publish(research.Event{JobID: job.ID, Kind: research.EventPhaseStarted, Phase: "studies", Progress: 0.05})
	got, _ = tr.Get(job.ID)
	if got.Phase != "studies" || got.Progress != 0.11 {
		t.Fatalf("progress regressed: %+v", got)
	}

	// Unit failures never change job status.
	tr.Publish(research.Event{JobID: job.ID, Kind: research.EventUnitFailed, Phase: "studies", Message: "s2"})
	if got, _ := tr.Get(job.ID); got.Status != StatusRunning {
		t.Fatalf("unit failure flipped status: %+v", got)
	}

	// Events for unknown jobs are dropped.
	tr.Publish(research.Event{JobID: "ghost", Kind: research.EventPhaseStarted, Phase: "planning"})
}

func TestSnapshotsAreCopies(t *testing.T) {
	tr := newTestTracker()
	ctx := context.Background()
	job, _ := tr.Create(ctx, "u", "q", "", research.DepthDeep)

	snap, _ := tr.Get(job.ID)
	snap.Status = StatusFailed
	if got, _ := tr.Get(job.ID); got.Status != StatusPending {
		t.Fatalf("snapshot mutation leaked into tracker")
	}
}
