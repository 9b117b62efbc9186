package research

import (
	"context"
	"strings"

	"github.com/mohammad-safakhou/briefer/provider"
)

const strategySystem = `Apply 2-3 business analysis frameworks to the
briefing (choose the most fitting among SWOT, Porter's Five Forces, market
sizing, PESTLE, scenario analysis). Ground every judgment in the briefing's
evidence; do not introduce unsourced facts.`

// Strategist runs the strategic-analysis phase. Best-effort: "" means the
// phase contributed nothing.
type Strategist struct {
	llm   provider.Provider
	model string
}

func NewStrategist(llm provider.Provider, model string) *Strategist {
	return &Strategist{llm: llm, model: model}
}

func (s *Strategist) Analyze(ctx context.Context, query, synthesis string, stats *Stats) string {
	prompt := "Query: " + query + "\n\nBriefing:\n" + synthesis
	text, usage, err := s.llm.Generate(ctx, strategySystem, prompt, s.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
