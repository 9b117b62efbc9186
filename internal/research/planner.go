package research

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

const (
	minStudies = 2
	maxStudies = 12
)

const plannerSystem = `You are a research planner. Decompose the query into
independent studies, each with a distinct angle and 2-4 concrete research
questions. Return strict JSON:
{"studies":[{"title":"...","angle":"...","questions":["..."],"recommended_role":"domain_expert|fact_checker|"}]}
Scale the number of studies to the query's complexity.`

// Planner decomposes a top-level query into study specifications.
type Planner struct {
	llm    provider.Provider
	model  string
	logger *log.Logger
}

func NewPlanner(llm provider.Provider, model string, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{llm: llm, model: model, logger: logger}
}

// Plan produces 2-12 studies. It never fails: malformed or empty planner
// output falls back to a single study covering the query verbatim.
func (p *Planner) Plan(ctx context.Context, query, background string, analysis QueryAnalysis, stats *Stats) []StudySpec {
	prompt := fmt.Sprintf("Query: %s", query)
	if background != "" {
		prompt += "\nContext: " + background
	}
	if analysis.SuggestedStudies > 0 {
		prompt += fmt.Sprintf("\nComplexity: %s. Aim for about %d studies.", analysis.Complexity, analysis.SuggestedStudies)
	}

	text, usage, err := p.llm.Generate(ctx, plannerSystem, prompt, p.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		p.logger.Printf("planning failed, falling back to single study: %v", err)
		return fallbackPlan(query)
	}

	var parsed struct {
		Studies []StudySpec `json:"studies"`
	}
	if !jsonx.Decode(text, &parsed) {
		p.logger.Printf("planner output unparseable, falling back to single study")
		return fallbackPlan(query)
	}

	specs := make([]StudySpec, 0, len(parsed.Studies))
	for _, s := range parsed.Studies {
		if strings.TrimSpace(s.Title) == "" {
			continue
		}
		if len(s.Questions) == 0 {
			s.Questions = []string{s.Title}
		}
		specs = append(specs, s)
	}
	if len(specs) == 0 {
		return fallbackPlan(query)
	}
	if len(specs) > maxStudies {
		specs = specs[:maxStudies]
	}
	if len(specs) < minStudies {
		// A one-study plan from the model is kept as-is; padding with
		// invented studies would dilute the query.
		return specs
	}
	return specs
}

func fallbackPlan(query string) []StudySpec {
	return []StudySpec{{
		Title:     query,
		Angle:     "general",
		Questions: []string{query},
	}}
}
