package research

import (
	"context"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

const analyzerSystem = `Classify a research query. Return strict JSON:
{"domains":["..."],"complexity":"simple|moderate|complex",
"controversial":bool,"needs_fact_checking":bool,"suggested_studies":int}
suggested_studies is how many independent sub-studies (2-12) the query
deserves.`

// Analyzer classifies the query before planning. Best-effort: any failure
// yields DefaultAnalysis so the pipeline never blocks here.
type Analyzer struct {
	llm   provider.Provider
	model string
}

func NewAnalyzer(llm provider.Provider, model string) *Analyzer {
	return &Analyzer{llm: llm, model: model}
}

func (a *Analyzer) Analyze(ctx context.Context, query string, stats *Stats) QueryAnalysis {
	out := DefaultAnalysis()
	text, usage, err := a.llm.Generate(ctx, analyzerSystem, query, a.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		return out
	}
	var parsed QueryAnalysis
	if !jsonx.Decode(text, &parsed) {
		return out
	}
	// Merge over defaults so partially-shaped output still helps.
	if len(parsed.Domains) > 0 {
		out.Domains = parsed.Domains
	}
	if parsed.Complexity != "" {
		out.Complexity = parsed.Complexity
	}
	out.Controversial = parsed.Controversial
	out.NeedsFactChecking = parsed.NeedsFactChecking
	if parsed.SuggestedStudies >= minStudies && parsed.SuggestedStudies <= maxStudies {
		out.SuggestedStudies = parsed.SuggestedStudies
	}
	return out
}
