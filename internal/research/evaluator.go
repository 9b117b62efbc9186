package research

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

const evaluatorSystem = `You grade an executive research briefing. Score each
dimension 0-10 and return strict JSON:
{"overall_score":float,"scores":{"completeness":float,"evidence_quality":float,
"actionability":float,"balance":float},
"gaps":[{"description":"...","priority":"high|medium|low","research_question":"..."}],
"weak_claims":["..."],"missing_perspectives":["..."],"refinement_needed":bool}`

// Evaluator scores a master synthesis and decides whether refinement is
// warranted.
type Evaluator struct {
	llm       provider.Provider
	model     string
	threshold float64
}

func NewEvaluator(llm provider.Provider, model string, threshold float64) *Evaluator {
	if threshold <= 0 {
		threshold = 8.0
	}
	return &Evaluator{llm: llm, model: model, threshold: threshold}
}

// Evaluate is best-effort: failures return a conservative default (score 5.0,
// refinement needed) rather than an error.
func (e *Evaluator) Evaluate(ctx context.Context, query, synthesis string, stats *Stats) Evaluation {
	fallback := Evaluation{OverallScore: 5.0, RefinementNeeded: true}
	prompt := "Query: " + query + "\n\nBriefing:\n" + synthesis
	text, usage, err := e.llm.Generate(ctx, evaluatorSystem, prompt, e.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		return fallback
	}
	var ev Evaluation
	if !jsonx.Decode(text, &ev) {
		return fallback
	}
	// refinement_needed is derived, not trusted: below threshold or any
	// high-priority gap forces it.
	ev.RefinementNeeded = ev.OverallScore < e.threshold || hasHighPriorityGap(ev.Gaps)
	return ev
}

// GapQuestions extracts up to max actionable research questions from the
// evaluation, high and medium priority only.
func (e *Evaluator) GapQuestions(ev Evaluation, max int) []string {
	if max <= 0 {
		max = 6
	}
	out := make([]string, 0, max)
	for _, pass := range []string{"high", "medium"} {
		for _, g := range ev.Gaps {
			if len(out) >= max {
				return out
			}
			if strings.EqualFold(g.Priority, pass) && strings.TrimSpace(g.ResearchQuestion) != "" {
				out = append(out, g.ResearchQuestion)
			}
		}
	}
	return out
}

func hasHighPriorityGap(gaps []EvalGap) bool {
	for _, g := range gaps {
		if strings.EqualFold(g.Priority, "high") {
			return true
		}
	}
	return false
}
