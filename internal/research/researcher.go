package research

import (
	"context"
	"log"
	"strings"

	"github.com/mohammad-safakhou/briefer/provider"
)

const researcherSystem = `You are a research analyst answering one question.
Use your tools to find evidence before answering; you may call several tools
in any order. Rules:
- Every factual claim must cite a concrete source URL.
- Omit claims you cannot verify; do not hedge them in.
- Stay within the geographic, temporal and topical scope of the question.
- If a claim rests on a single source, append "(single source)".
Write the findings as plain prose with inline URLs.`

// Researcher answers a single question with tool access. It is best-effort
// by contract: tool and model failures degrade to an empty result, never an
// error, so callers only check for "".
type Researcher struct {
	llm    provider.Provider
	model  string
	tools  Toolset
	logger *log.Logger
}

func NewResearcher(llm provider.Provider, model string, tools Toolset, logger *log.Logger) *Researcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESEARCHER] ", log.LstdFlags)
	}
	return &Researcher{llm: llm, model: model, tools: tools, logger: logger}
}

// Research answers the question with the default analyst instructions.
func (r *Researcher) Research(ctx context.Context, question string, stats *Stats) string {
	return r.ResearchAs(ctx, researcherSystem, question, stats)
}

// ResearchAs answers the question under custom role instructions (used by
// fact-checker and devil's-advocate passes). Empty string means no findings.
func (r *Researcher) ResearchAs(ctx context.Context, system, question string, stats *Stats) string {
	tools := r.tools.BuildTools(stats)
	text, usage, err := r.llm.Invoke(ctx, system, question, r.model, tools)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		r.logger.Printf("research failed for %q: %v", snippet(question, 80), err)
		return ""
	}
	return strings.TrimSpace(text)
}

func snippet(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
