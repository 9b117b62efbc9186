package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mohammad-safakhou/briefer/config"
	"github.com/mohammad-safakhou/briefer/provider"
)

var pipelineTracer trace.Tracer = otel.Tracer("briefer/internal/research")

const masterSynthesisSystem = `You combine several study write-ups into one
executive briefing. Rules:
- Weight claims by cross-study corroboration as well as source count: three
  or more independent sources is high confidence, one or two is medium, a
  single or biased source is low and must be flagged "[LOW CONFIDENCE]".
- Drop claims without a verifiable source URL.
- Lead with the answer to the original query, then supporting sections.
- Keep inline URLs next to the claims they support.`

const verifyMergeSystem = `Revise the briefing using the verification notes.
Strengthen or remove claims the fact-checker disputed, incorporate credible
counterpoints from the devil's advocate, and keep all surviving source URLs.`

// Orchestrator wires the pipeline components and drives jobs through the
// depth variants. One orchestrator serves all jobs; per-job state lives in
// the Job value and the shared semaphore bounds concurrency across them.
type Orchestrator struct {
	cfg     config.ResearchConfig
	routing config.LLMRoutingConfig
	llm     provider.Provider

	analyzer   *Analyzer
	planner    *Planner
	studies    *StudyRunner
	evaluator  *Evaluator
	validator  *Validator
	strategist *Strategist
	qa         *QARunner
	researcher *Researcher

	// sem bounds researcher calls and QA clusters pipeline-wide; studySem
	// bounds concurrent studies separately so a study holding a slot can
	// never starve its own researchers.
	sem         Semaphore
	studySem    Semaphore
	checkpoints CheckpointManager
	sink        EventSink
	logger      *log.Logger
}

// NewOrchestrator builds the full component graph from configuration.
func NewOrchestrator(cfg *config.Config, llm provider.Provider, tools Toolset, checkpoints CheckpointManager, sink EventSink, logger *log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	if checkpoints == nil {
		checkpoints = NoopCheckpointManager{}
	}
	if sink == nil {
		sink = NopSink{}
	}
	rc := cfg.Research
	sem := NewSemaphore(rc.MaxConcurrent)
	routing := cfg.LLM.Routing

	researcher := NewResearcher(llm, routing.Model("research"), tools, logger)
	gaps := NewGapAnalyzer(llm, routing.Model("analysis"), rc.MaxGapsPerRound, rc.StageRetries, rc.StageBackoff)
	runner := NewStudyRunner(researcher, gaps, llm, routing.Model("synthesis"), sem,
		rc.StudyMaxRounds, rc.StageRetries, rc.StageBackoff, rc.SynthesisTimeout, logger)

	return &Orchestrator{
		cfg:         rc,
		routing:     routing,
		llm:         llm,
		analyzer:    NewAnalyzer(llm, routing.Model("analysis")),
		planner:     NewPlanner(llm, routing.Model("planning"), logger),
		studies:     runner,
		evaluator:   NewEvaluator(llm, routing.Model("analysis"), rc.RefinementThreshold),
		validator:   NewValidator(llm, routing.Model("analysis")),
		strategist:  NewStrategist(llm, routing.Model("synthesis")),
		qa:          NewQARunner(llm, routing.Model("synthesis"), researcher, sem, rc.MaxQAClusters, logger),
		researcher:  researcher,
		sem:         sem,
		studySem:    NewSemaphore(rc.MaxConcurrentStudies),
		checkpoints: checkpoints,
		sink:        sink,
		logger:      logger,
	}
}

// Execute routes a request to its depth variant and runs it to completion.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Job {
	depth := ResolveDepth(req.Depth, req.Query)
	switch depth {
	case DepthQuick:
		return o.RunQuick(ctx, req)
	case DepthDeep:
		return o.RunDeep(ctx, req)
	default:
		return o.RunStandard(ctx, req)
	}
}

// RunDeep runs the full nine-phase pipeline from scratch.
func (o *Orchestrator) RunDeep(ctx context.Context, req Request) *Job {
	job := &Job{
		JobID:     req.JobID,
		Query:     req.Query,
		Context:   req.Context,
		Depth:     DepthDeep,
		StartedAt: time.Now(),
	}
	return o.runDeepFrom(ctx, job, "")
}

// Resume restarts a checkpointed deep job at the phase after the last one
// that completed. Prior phases are not recomputed. Quick and standard runs
// have no phase machine to re-enter; they rerun from scratch.
func (o *Orchestrator) Resume(ctx context.Context, jobID string) (*Job, error) {
	phase, snap, ok, err := o.checkpoints.Load(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no checkpoint for job %s", jobID)
	}
	req := Request{JobID: snap.JobID, Query: snap.Query, Context: snap.Context, Depth: snap.Depth}
	switch snap.Depth {
	case DepthQuick:
		o.logger.Printf("resuming job %s: quick runs restart from scratch", jobID)
		return o.RunQuick(ctx, req), nil
	case DepthStandard:
		o.logger.Printf("resuming job %s: standard runs restart from scratch", jobID)
		return o.RunStandard(ctx, req), nil
	}
	o.logger.Printf("resuming job %s after phase %q", jobID, phase)
	return o.runDeepFrom(ctx, snap, phase), nil
}

type phaseStep struct {
	tag string
	// run returns false to halt the pipeline after this phase.
	run func(context.Context, *Job) bool
}

func (o *Orchestrator) runDeepFrom(ctx context.Context, job *Job, lastDone string) *Job {
	steps := []phaseStep{
		{PhaseAnalysis, o.phaseAnalysis},
		{PhasePlanning, o.phasePlanning},
		{PhaseStudies, o.phaseStudies},
		{PhaseMaster, o.phaseMaster},
		{PhaseValidation, o.phaseValidation},
		{PhaseRefinement, o.phaseRefinement},
		{PhaseVerification, o.phaseVerification},
		{PhaseStrategy, o.phaseStrategy},
		{PhaseQA, o.phaseQA},
	}
	start := phaseIndex(lastDone) + 1

	for i := start; i < len(steps); i++ {
		step := steps[i]
		o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseStarted, Phase: step.tag, Progress: phaseProgress(i)})

		sctx, span := pipelineTracer.Start(ctx, "pipeline."+step.tag, trace.WithAttributes(
			attribute.String("job.id", job.JobID),
			attribute.String("job.depth", string(DepthDeep)),
		))
		keepGoing := step.run(sctx, job)
		if !keepGoing {
			span.SetStatus(codes.Error, "pipeline halted")
			span.End()
			break
		}
		span.End()

		// Checkpoints mark completed phase boundaries only; a halted phase
		// leaves the previous checkpoint in place so resume re-runs it.
		if err := o.checkpoints.Save(ctx, job.JobID, step.tag, job); err != nil {
			o.logger.Printf("checkpoint save failed for job %s phase %s: %v", job.JobID, step.tag, err)
		}
		o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseCompleted, Phase: step.tag, Progress: phaseProgress(i + 1)})
	}
	job.FinishedAt = time.Now()
	return job
}

func phaseProgress(i int) float64 {
	return float64(i) / float64(len(phaseOrder))
}

// --- phases ---

func (o *Orchestrator) phaseAnalysis(ctx context.Context, job *Job) bool {
	analysis := o.analyzer.Analyze(ctx, job.Query, &job.Stats)
	job.Analysis = &analysis
	return true
}

func (o *Orchestrator) phasePlanning(ctx context.Context, job *Job) bool {
	analysis := DefaultAnalysis()
	if job.Analysis != nil {
		analysis = *job.Analysis
	}
	job.Plan = o.planner.Plan(ctx, job.Query, job.Context, analysis, &job.Stats)
	return true
}

// phaseStudies fans the plan out as concurrent study runners under the
// shared semaphore. A failed study yields an empty synthesis and never
// disturbs its siblings; zero usable syntheses halts the pipeline.
func (o *Orchestrator) phaseStudies(ctx context.Context, job *Job) bool {
	job.Studies = o.runStudies(ctx, job, job.Plan)
	for _, s := range job.Studies {
		if s.Synthesis != "" {
			return true
		}
	}
	o.sink.Publish(Event{JobID: job.JobID, Kind: EventUnitFailed, Phase: PhaseStudies, Err: "all studies failed"})
	o.logger.Printf("job %s: no study produced a synthesis, aborting", job.JobID)
	return false
}

// runStudies executes specs concurrently and returns results in spec order.
func (o *Orchestrator) runStudies(ctx context.Context, job *Job, specs []StudySpec) []StudyResult {
	results := make([]StudyResult, len(specs))
	perStudy := make([]Stats, len(specs))
	var wg sync.WaitGroup
	for i, spec := range specs {
		wg.Add(1)
		go func(i int, spec StudySpec) {
			defer wg.Done()
			if err := o.studySem.Acquire(ctx); err != nil {
				results[i] = StudyResult{Title: spec.Title, Angle: spec.Angle, Questions: spec.Questions}
				return
			}
			defer o.studySem.Release()
			results[i] = o.studies.Run(ctx, spec, &perStudy[i])
		}(i, spec)
	}
	wg.Wait()
	for i := range specs {
		job.Stats.Merge(perStudy[i])
		if results[i].Synthesis == "" {
			o.sink.Publish(Event{JobID: job.JobID, Kind: EventUnitFailed, Phase: PhaseStudies, Message: specs[i].Title})
		}
	}
	return results
}

func (o *Orchestrator) phaseMaster(ctx context.Context, job *Job) bool {
	text := o.masterSynthesize(ctx, job, "")
	if text == "" {
		o.logger.Printf("job %s: master synthesis failed", job.JobID)
		return false
	}
	job.MasterSynthesis = text
	return true
}

// masterSynthesize combines all non-empty study syntheses, with optional
// refinement notes folded into the prompt.
func (o *Orchestrator) masterSynthesize(ctx context.Context, job *Job, notes string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original query: %s\n", job.Query)
	if job.Context != "" {
		fmt.Fprintf(&b, "Context: %s\n", job.Context)
	}
	b.WriteString("\n")
	for i, s := range job.Studies {
		if s.Synthesis == "" {
			continue
		}
		fmt.Fprintf(&b, "=== Study %d: %s (%s) ===\n%s\n\n", i+1, s.Title, s.Angle, s.Synthesis)
	}
	if notes != "" {
		fmt.Fprintf(&b, "=== Refinement instructions ===\n%s\n", notes)
	}

	attempts := o.cfg.StageRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, o.cfg.SynthesisTimeout)
		text, usage, err := o.llm.Generate(sctx, masterSynthesisSystem, b.String(), o.routing.Model("synthesis"))
		cancel()
		job.Stats.PromptTokens += usage.PromptTokens
		job.Stats.CompletionTokens += usage.CompletionTokens
		job.Stats.CostUSD += usage.Cost
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		if err != nil {
			o.logger.Printf("job %s: master synthesis attempt %d: %v", job.JobID, attempt+1, err)
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(o.cfg.StageBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ""
			}
		}
	}
	return ""
}

func (o *Orchestrator) phaseValidation(ctx context.Context, job *Job) bool {
	if v := o.validator.Validate(ctx, job.MasterSynthesis, &job.Stats); v != nil {
		job.Validation = v
	} else {
		o.logger.Printf("job %s: claim validation failed, continuing", job.JobID)
	}
	return true
}

// phaseRefinement scores the synthesis and, while refinement is warranted,
// runs gap questions as full studies and regenerates the briefing. The loop
// is bounded by RefinementRounds no matter what the evaluator reports.
func (o *Orchestrator) phaseRefinement(ctx context.Context, job *Job) bool {
	for round := 0; round < o.cfg.RefinementRounds; round++ {
		ev := o.evaluator.Evaluate(ctx, job.Query, job.MasterSynthesis, &job.Stats)
		o.recordEvaluation(job, ev)
		if !ev.RefinementNeeded {
			return true
		}

		questions := o.evaluator.GapQuestions(ev, o.cfg.MaxGapQuestions)
		if len(questions) == 0 {
			return true
		}
		o.sink.Publish(Event{JobID: job.JobID, Kind: EventPhaseProgress, Phase: PhaseRefinement,
			Message: fmt.Sprintf("refinement round %d: %d gap studies", round+1, len(questions))})

		gapSpecs := make([]StudySpec, len(questions))
		for i, q := range questions {
			gapSpecs[i] = StudySpec{Title: q, Angle: "gap refinement", Questions: []string{q}}
		}
		gapResults := o.runStudies(ctx, job, gapSpecs)
		// Append-only: originals are never removed.
		job.Studies = append(job.Studies, gapResults...)

		refined := o.masterSynthesize(ctx, job, o.refinementNotes(ev, job.Validation))
		if refined == "" {
			// A failed refinement must never erase good results.
			o.logger.Printf("job %s: refinement round %d produced nothing, keeping prior synthesis", job.JobID, round+1)
			return true
		}
		job.MasterSynthesis = refined
		job.RefinementRounds++
	}
	// Score the final state so verification sees the latest number.
	ev := o.evaluator.Evaluate(ctx, job.Query, job.MasterSynthesis, &job.Stats)
	o.recordEvaluation(job, ev)
	return true
}

func (o *Orchestrator) recordEvaluation(job *Job, ev Evaluation) {
	job.SynthesisScore = ev.OverallScore
	job.ScoreBreakdown = map[string]float64{
		"completeness":     ev.Scores.Completeness,
		"evidence_quality": ev.Scores.EvidenceQuality,
		"actionability":    ev.Scores.Actionability,
		"balance":          ev.Scores.Balance,
	}
}

func (o *Orchestrator) refinementNotes(ev Evaluation, validation *Validation) string {
	var b strings.Builder
	if len(ev.WeakClaims) > 0 {
		b.WriteString("Strengthen or remove these weak claims:\n")
		for _, c := range ev.WeakClaims {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	if len(ev.MissingPerspectives) > 0 {
		b.WriteString("Address these missing perspectives:\n")
		for _, p := range ev.MissingPerspectives {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if validation != nil && len(validation.Contradictions) > 0 {
		b.WriteString("Resolve these contradictions:\n")
		for _, c := range validation.Contradictions {
			fmt.Fprintf(&b, "- %q vs %q (%s)\n", c.ClaimA, c.ClaimB, c.LikelyResolution)
		}
	}
	return b.String()
}

// phaseVerification runs a fact-checker pass, and a devil's-advocate pass
// when the score stays low or the topic is controversial, then merges both
// into a revised briefing. Entirely best-effort.
func (o *Orchestrator) phaseVerification(ctx context.Context, job *Job) bool {
	controversial := job.Analysis != nil && job.Analysis.Controversial
	needsFactCheck := job.Analysis != nil && job.Analysis.NeedsFactChecking
	lowScore := job.SynthesisScore > 0 && job.SynthesisScore < o.cfg.VerifyThreshold
	if !lowScore && !needsFactCheck {
		return true
	}

	factCheck := o.researcher.ResearchAs(ctx, factCheckerSystem,
		"Verify the key claims in this briefing:\n\n"+job.MasterSynthesis, &job.Stats)

	var advocacy string
	if lowScore || controversial {
		advocacy = o.researcher.ResearchAs(ctx, devilsAdvocateSystem,
			"Challenge this briefing's thesis:\n\n"+job.MasterSynthesis, &job.Stats)
	}
	if factCheck == "" && advocacy == "" {
		return true
	}

	var notes strings.Builder
	if factCheck != "" {
		notes.WriteString("Fact-check notes:\n" + factCheck + "\n\n")
	}
	if advocacy != "" {
		notes.WriteString("Devil's advocate notes:\n" + advocacy + "\n")
	}
	prompt := "Briefing:\n" + job.MasterSynthesis + "\n\nVerification notes:\n" + notes.String()
	text, usage, err := o.llm.Generate(ctx, verifyMergeSystem, prompt, o.routing.Model("synthesis"))
	job.Stats.PromptTokens += usage.PromptTokens
	job.Stats.CompletionTokens += usage.CompletionTokens
	job.Stats.CostUSD += usage.Cost
	if err != nil || strings.TrimSpace(text) == "" {
		o.logger.Printf("job %s: verification merge failed, keeping prior synthesis", job.JobID)
		return true
	}
	job.MasterSynthesis = strings.TrimSpace(text)
	return true
}

func (o *Orchestrator) phaseStrategy(ctx context.Context, job *Job) bool {
	job.Strategic = o.strategist.Analyze(ctx, job.Query, job.MasterSynthesis, &job.Stats)
	return true
}

func (o *Orchestrator) phaseQA(ctx context.Context, job *Job) bool {
	clusters := o.qa.Anticipate(ctx, job.MasterSynthesis, &job.Stats)
	if len(clusters) == 0 {
		o.logger.Printf("job %s: no QA clusters parsed, skipping", job.JobID)
		return true
	}
	job.QAClusters = o.qa.Research(ctx, clusters, &job.Stats)
	job.QASummary = Summary(job.QAClusters)
	return true
}
