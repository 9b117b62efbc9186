package research

import (
	"context"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

const validatorSystem = `You check a research briefing for internal
contradictions. Return strict JSON:
{"claims_extracted":int,
"contradictions":[{"claim_a":"...","claim_b":"...","sources_a":["url"],
"sources_b":["url"],"severity":"high|medium|low","likely_resolution":"..."}],
"consistency_rating":"high|medium|low","notes":"..."}`

// Validator detects contradictory claims in a synthesis. Best-effort: a nil
// result means validation failed and the phase is skipped.
type Validator struct {
	llm   provider.Provider
	model string
}

func NewValidator(llm provider.Provider, model string) *Validator {
	return &Validator{llm: llm, model: model}
}

func (v *Validator) Validate(ctx context.Context, synthesis string, stats *Stats) *Validation {
	text, usage, err := v.llm.Generate(ctx, validatorSystem, synthesis, v.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		return nil
	}
	var out Validation
	if !jsonx.Decode(text, &out) {
		return nil
	}
	return &out
}
