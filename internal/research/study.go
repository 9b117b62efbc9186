package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/mohammad-safakhou/briefer/provider"
)

const noFindings = "No research findings available for this question."

const studySynthesisSystem = `You synthesize one study's research rounds into
a single document. Rules:
- Weight claims by corroboration: three or more independent sources is high
  confidence, one or two is medium, a single or biased source is low and must
  be flagged "[LOW CONFIDENCE]".
- Drop any claim that lacks a verifiable source URL.
- Keep inline URLs next to the claims they support.
- Organize by theme, not by round.`

// StudyRunner drives one study through its round loop:
// ROUND_RUNNING(k) -> GAP_CHECK(k) -> {ROUND_RUNNING(k+1) | SYNTHESIZING}.
type StudyRunner struct {
	researcher *Researcher
	gaps       *GapAnalyzer
	llm        provider.Provider
	synthModel string

	sem       Semaphore
	maxRounds int
	// Extra attempts for round and synthesis stages, linear backoff.
	stageRetries int
	stageBackoff time.Duration
	synthTimeout time.Duration

	logger *log.Logger
}

func NewStudyRunner(researcher *Researcher, gaps *GapAnalyzer, llm provider.Provider, synthModel string, sem Semaphore, maxRounds, stageRetries int, stageBackoff, synthTimeout time.Duration, logger *log.Logger) *StudyRunner {
	if maxRounds <= 0 {
		maxRounds = 3
	}
	if stageBackoff <= 0 {
		stageBackoff = 5 * time.Second
	}
	if synthTimeout <= 0 {
		synthTimeout = 180 * time.Second
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STUDY] ", log.LstdFlags)
	}
	return &StudyRunner{
		researcher:   researcher,
		gaps:         gaps,
		llm:          llm,
		synthModel:   synthModel,
		sem:          sem,
		maxRounds:    maxRounds,
		stageRetries: stageRetries,
		stageBackoff: stageBackoff,
		synthTimeout: synthTimeout,
		logger:       logger,
	}
}

// Run executes the study to completion. It never fails past this boundary:
// total failure yields a StudyResult with an empty synthesis.
func (sr *StudyRunner) Run(ctx context.Context, spec StudySpec, stats *Stats) StudyResult {
	result := StudyResult{Title: spec.Title, Angle: spec.Angle, Questions: spec.Questions}
	questions := spec.Questions
	if len(questions) == 0 {
		questions = []string{spec.Title}
		result.Questions = questions
	}
	system := roleSystem(spec.RecommendedRole)

	for round := 0; round < sr.maxRounds; round++ {
		findings := sr.runRound(ctx, system, round, questions, stats)
		result.Rounds = append(result.Rounds, findings)

		if round == sr.maxRounds-1 {
			break
		}
		report := sr.gaps.Analyze(ctx, spec.Title, findings, stats)
		if report.Escalate || len(report.Gaps) == 0 {
			break
		}
		// The loop pursues gaps, not a backlog: unanswered questions from
		// this round are discarded.
		questions = report.Gaps
	}

	result.Synthesis = sr.synthesize(ctx, spec, result.Rounds, stats)
	stats.StudiesRun++
	return result
}

// runRound answers all of one round's questions through concurrent
// researchers under the shared semaphore, collecting results by stable
// question index. A round where every researcher came back empty is treated
// as transient and retried with linear backoff.
func (sr *StudyRunner) runRound(ctx context.Context, system string, round int, questions []string, stats *Stats) Round {
	attempts := sr.stageRetries + 1
	var findings Round
	for attempt := 0; attempt < attempts; attempt++ {
		findings = sr.dispatchRound(ctx, system, round, questions, stats)
		if roundHasFindings(findings) {
			return findings
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(sr.stageBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return findings
			}
		}
	}
	return findings
}

func (sr *StudyRunner) dispatchRound(ctx context.Context, system string, round int, questions []string, stats *Stats) Round {
	texts := make([]string, len(questions))
	perTask := make([]Stats, len(questions))
	var wg sync.WaitGroup
	for i, q := range questions {
		wg.Add(1)
		go func(i int, q string) {
			defer wg.Done()
			if err := sr.sem.Acquire(ctx); err != nil {
				return
			}
			defer sr.sem.Release()
			texts[i] = sr.researcher.ResearchAs(ctx, system, q, &perTask[i])
		}(i, q)
	}
	wg.Wait()

	findings := make(Round, len(questions))
	for i := range questions {
		stats.Merge(perTask[i])
		key := fmt.Sprintf("round_%d_researcher_%d", round, i)
		if strings.TrimSpace(texts[i]) == "" {
			findings[key] = noFindings
		} else {
			findings[key] = texts[i]
		}
	}
	return findings
}

func roundHasFindings(findings Round) bool {
	for _, v := range findings {
		if v != noFindings {
			return true
		}
	}
	return false
}

// synthesize combines every round's findings into one document, retrying on
// error with linear backoff. Exhausted retries return "".
func (sr *StudyRunner) synthesize(ctx context.Context, spec StudySpec, rounds []Round, stats *Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Study: %s\nAngle: %s\nQuestions: %s\n\n", spec.Title, spec.Angle, strings.Join(spec.Questions, "; "))
	for i, round := range rounds {
		fmt.Fprintf(&b, "--- Round %d ---\n%s\n", i+1, formatRound(round))
	}

	attempts := sr.stageRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		sctx, cancel := context.WithTimeout(ctx, sr.synthTimeout)
		text, usage, err := sr.llm.Generate(sctx, studySynthesisSystem, b.String(), sr.synthModel)
		cancel()
		stats.PromptTokens += usage.PromptTokens
		stats.CompletionTokens += usage.CompletionTokens
		stats.CostUSD += usage.Cost
		if err == nil && strings.TrimSpace(text) != "" {
			return strings.TrimSpace(text)
		}
		if err != nil {
			sr.logger.Printf("study %q synthesis attempt %d failed: %v", spec.Title, attempt+1, err)
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(sr.stageBackoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return ""
			}
		}
	}
	return ""
}
