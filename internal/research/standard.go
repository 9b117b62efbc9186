package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
)

const unpackSystem = `Break the query into at most 5 independent research
sub-questions. Return strict JSON: {"questions":["..."]}`

const followUpSystem = `Given research findings, list at most 3 follow-up
questions that would most improve the answer. Return strict JSON:
{"questions":["..."]}`

const standardSynthesisSystem = `Combine the research findings into one
answer to the original query. Keep inline source URLs, flag single-source
claims, and drop claims without a verifiable URL.`

// RunQuick answers with a single researcher call: no planning, no
// refinement.
func (o *Orchestrator) RunQuick(ctx context.Context, req Request) *Job {
	job := &Job{JobID: req.JobID, Query: req.Query, Context: req.Context, Depth: DepthQuick, StartedAt: time.Now()}
	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: "research", Progress: 0.1})
	job.MasterSynthesis = o.researcher.Research(ctx, req.Query, &job.Stats)
	o.saveFinal(ctx, job)
	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseCompleted, Phase: "research", Progress: 1.0})
	job.FinishedAt = time.Now()
	return job
}

// RunStandard is the two-phase variant: unpack the query into sub-questions,
// research them concurrently, pursue a handful of follow-ups, then
// synthesize exactly once.
func (o *Orchestrator) RunStandard(ctx context.Context, req Request) *Job {
	job := &Job{JobID: req.JobID, Query: req.Query, Context: req.Context, Depth: DepthStandard, StartedAt: time.Now()}

	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: "unpack", Progress: 0.05})
	questions := o.extractQuestions(ctx, unpackSystem, req.Query, o.cfg.StandardQuestions, &job.Stats)
	if len(questions) == 0 {
		questions = []string{req.Query}
	}

	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: "research", Progress: 0.2})
	findings := o.researchAll(ctx, questions, &job.Stats)

	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: "follow_up", Progress: 0.5})
	followUps := o.extractQuestions(ctx, followUpSystem, formatFindings(questions, findings), o.cfg.StandardFollowUps, &job.Stats)
	var followFindings []string
	if len(followUps) > 0 {
		followFindings = o.researchAll(ctx, followUps, &job.Stats)
	}

	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: "synthesis", Progress: 0.8})
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n\n", req.Query)
	if req.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n\n", req.Context)
	}
	b.WriteString(formatFindings(questions, findings))
	if len(followUps) > 0 {
		b.WriteString("\nFollow-up findings:\n")
		b.WriteString(formatFindings(followUps, followFindings))
	}
	text, usage, err := o.llm.Generate(ctx, standardSynthesisSystem, b.String(), o.routing.Model("synthesis"))
	job.Stats.PromptTokens += usage.PromptTokens
	job.Stats.CompletionTokens += usage.CompletionTokens
	job.Stats.CostUSD += usage.Cost
	if err != nil {
		o.logger.Printf("job %s: standard synthesis failed: %v", job.JobID, err)
	} else {
		job.MasterSynthesis = strings.TrimSpace(text)
	}

	o.saveFinal(ctx, job)
	o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseCompleted, Phase: "synthesis", Progress: 1.0})
	job.FinishedAt = time.Now()
	return job
}

// extractQuestions asks the model for a question list and clamps it to max.
// Parse failures return nil; callers fall back as appropriate.
func (o *Orchestrator) extractQuestions(ctx context.Context, system, prompt string, max int, stats *Stats) []string {
	text, usage, err := o.llm.Generate(ctx, system, prompt, o.routing.Model("analysis"))
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		return nil
	}
	var parsed struct {
		Questions []string `json:"questions"`
	}
	if !jsonx.Decode(text, &parsed) {
		return nil
	}
	out := parsed.Questions
	if max > 0 && len(out) > max {
		out = out[:max]
	}
	return out
}

// researchAll answers questions concurrently under the shared semaphore,
// collecting results by stable question index.
func (o *Orchestrator) researchAll(ctx context.Context, questions []string, stats *Stats) []string {
	texts := make([]string, len(questions))
	perTask := make([]Stats, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			if err := o.sem.Acquire(ctx); err != nil {
				return
			}
			defer o.sem.Release()
			texts[i] = o.researcher.Research(ctx, q, &perTask[i])
		}(i, q)
	}
	wg.Wait()
	for i := range questions {
		stats.Merge(perTask[i])
		if texts[i] == "" {
			texts[i] = noFindings
		}
	}
	return texts
}

func formatFindings(questions, findings []string) string {
	var b strings.Builder
	for i, q := range questions {
		text := noFindings
		if i < len(findings) && findings[i] != "" {
			text = findings[i]
		}
		fmt.Fprintf(&b, "[question_%d] %s\n%s\n\n", i, q, text)
	}
	return b.String()
}

// saveFinal writes the terminal checkpoint for quick/standard runs so their
// results survive like deep runs do.
func (o *Orchestrator) saveFinal(ctx context.Context, job *Job) {
	if err := o.checkpoints.Save(ctx, job.JobID, PhaseMaster, job); err != nil {
		o.logger.Printf("checkpoint save failed for job %s: %v", job.JobID, err)
	}
}
