package research

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

// GapReport is the gap analyzer's verdict for one round of findings.
// Escalate true means the study should stop iterating and synthesize.
type GapReport struct {
	Escalate bool     `json:"escalate"`
	Gaps     []string `json:"gaps"`
}

const gapSystem = `You review research findings for coverage gaps.
Return strict JSON: {"escalate": bool, "gaps": ["question", ...]}.
Set escalate=true when the findings sufficiently answer the study's questions
or when further research is unlikely to help. List at most 3 follow-up
questions, most important first.`

// GapAnalyzer decides whether a study round loop should continue.
type GapAnalyzer struct {
	llm     provider.Provider
	model   string
	maxGaps int
	retries int
	backoff time.Duration
}

func NewGapAnalyzer(llm provider.Provider, model string, maxGaps, retries int, backoff time.Duration) *GapAnalyzer {
	if maxGaps <= 0 {
		maxGaps = 3
	}
	return &GapAnalyzer{llm: llm, model: model, maxGaps: maxGaps, retries: retries, backoff: backoff}
}

// Analyze always returns a well-formed report: a model error (after the
// stage retries) or malformed output coerces to {escalate: true, gaps: []}
// so a bad round stops the loop instead of spinning it. Malformed output is
// not retried; the call only repeats on transport failure.
func (g *GapAnalyzer) Analyze(ctx context.Context, studyTitle string, findings Round, stats *Stats) GapReport {
	prompt := fmt.Sprintf("Study: %s\n\nFindings this round:\n%s", studyTitle, formatRound(findings))
	attempts := g.retries + 1
	var text string
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		var usage provider.Usage
		text, usage, err = g.llm.Generate(ctx, gapSystem, prompt, g.model)
		stats.PromptTokens += usage.PromptTokens
		stats.CompletionTokens += usage.CompletionTokens
		stats.CostUSD += usage.Cost
		if err == nil {
			break
		}
		if attempt < attempts-1 {
			select {
			case <-time.After(g.backoff * time.Duration(attempt+1)):
			case <-ctx.Done():
				return GapReport{Escalate: true}
			}
		}
	}
	if err != nil {
		return GapReport{Escalate: true}
	}
	var report GapReport
	if !jsonx.Decode(text, &report) {
		return GapReport{Escalate: true}
	}
	if report.Gaps == nil {
		report.Gaps = []string{}
	}
	if len(report.Gaps) > g.maxGaps {
		report.Gaps = report.Gaps[:g.maxGaps]
	}
	return report
}

// formatRound renders findings in stable key order so prompts are
// deterministic for a given round.
func formatRound(findings Round) string {
	keys := make([]string, 0, len(findings))
	for k := range findings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "[%s]\n%s\n\n", k, findings[k])
	}
	return b.String()
}
