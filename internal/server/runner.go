package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/jobs"
	"github.com/mohammad-safakhou/briefer/internal/kb"
	"github.com/mohammad-safakhou/briefer/internal/research"
	"github.com/mohammad-safakhou/briefer/internal/store"
	"github.com/mohammad-safakhou/briefer/internal/telemetry"
)

// Pipeline is the slice of the orchestrator the runner needs.
type Pipeline interface {
	Execute(ctx context.Context, req research.Request) *research.Job
	Resume(ctx context.Context, jobID string) (*research.Job, error)
}

// Runner drives a research job in the background: it runs the pipeline,
// persists the report, mirrors outcome into the tracker and ships the
// document to the knowledge base.
type Runner struct {
	Orch    Pipeline
	Tracker *jobs.Tracker
	Store   *store.Store
	KB      *kb.Client
	Metrics *telemetry.Metrics
	Costs   *telemetry.CostTracker
	Logger  *log.Logger
}

func (r *Runner) Execute(jobID string, req research.Request) {
	ctx := context.Background()
	if err := r.Tracker.Start(ctx, jobID); err != nil {
		r.Logger.Printf("job %s: start: %v", jobID, err)
		return
	}
	started := time.Now()
	result := r.Orch.Execute(ctx, req)
	r.finish(ctx, jobID, result, started)
}

func (r *Runner) Resume(jobID string) {
	ctx := context.Background()
	started := time.Now()
	result, err := r.Orch.Resume(ctx, jobID)
	if err != nil {
		r.Logger.Printf("job %s: resume: %v", jobID, err)
		_ = r.Tracker.Fail(ctx, jobID, err.Error(), false)
		return
	}
	r.finish(ctx, jobID, result, started)
}

func (r *Runner) finish(ctx context.Context, jobID string, result *research.Job, started time.Time) {
	elapsed := time.Since(started).Seconds()
	depth := string(result.Depth)

	if result.MasterSynthesis == "" {
		resumable := false
		if _, _, ok, err := r.Store.GetJobCheckpoint(ctx, jobID); err == nil && ok {
			resumable = true
		}
		if err := r.Tracker.Fail(ctx, jobID, "research produced no synthesis", resumable); err != nil {
			r.Logger.Printf("job %s: fail: %v", jobID, err)
		}
		if r.Metrics != nil {
			r.Metrics.RecordJob(depth, string(jobs.StatusFailed), elapsed,
				result.Stats.PromptTokens, result.Stats.CompletionTokens, result.Stats.CostUSD)
		}
		return
	}

	stats, err := json.Marshal(result.Stats)
	if err != nil {
		stats = []byte("{}")
	}
	rec := store.ReportRecord{
		JobID:      jobID,
		Synthesis:  result.MasterSynthesis,
		Strategic:  result.Strategic,
		QASummary:  result.QASummary,
		Stats:      stats,
		HumanHours: result.Stats.HumanHours(result.Depth),
		CostUSD:    result.Stats.CostUSD,
	}
	if err := r.Store.SaveReport(ctx, rec); err != nil {
		r.Logger.Printf("job %s: save report: %v", jobID, err)
		_ = r.Tracker.Fail(ctx, jobID, "failed to persist report", true)
		return
	}
	if err := r.Tracker.Complete(ctx, jobID, result); err != nil {
		r.Logger.Printf("job %s: complete: %v", jobID, err)
	}

	if r.Metrics != nil {
		r.Metrics.RecordJob(depth, string(jobs.StatusCompleted), elapsed,
			result.Stats.PromptTokens, result.Stats.CompletionTokens, result.Stats.CostUSD)
	}
	if r.Costs != nil {
		r.Costs.Track("pipeline", result.Stats.PromptTokens+result.Stats.CompletionTokens, result.Stats.CostUSD)
	}

	if r.KB.Enabled() {
		doc := kb.Document{
			JobID:     jobID,
			Query:     result.Query,
			Depth:     depth,
			Synthesis: result.MasterSynthesis,
			Strategic: result.Strategic,
			QASummary: result.QASummary,
			CreatedAt: time.Now().UTC(),
		}
		uploadCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := r.KB.Upload(uploadCtx, doc); err != nil {
			r.Logger.Printf("job %s: kb upload: %v", jobID, err)
		}
	}
}
