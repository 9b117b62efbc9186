package research

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/mohammad-safakhou/briefer/internal/jsonx"
	"github.com/mohammad-safakhou/briefer/provider"
)

const qaAnticipatorSystem = `Given a research briefing, anticipate the 5-15
follow-up questions a demanding reader would ask. Group them into at most 5
thematic clusters. Return strict JSON:
{"clusters":[{"theme":"...","questions":["..."]}]}`

const qaSynthesisSystem = `Answer a cluster of follow-up questions using the
researched findings. Keep source URLs inline; answer each question directly
and note where evidence is thin.`

// QARunner generates anticipated follow-up questions, researches each
// cluster concurrently and synthesizes per-cluster answers.
type QARunner struct {
	llm         provider.Provider
	model       string
	researcher  *Researcher
	sem         Semaphore
	maxClusters int
	logger      *log.Logger
}

func NewQARunner(llm provider.Provider, model string, researcher *Researcher, sem Semaphore, maxClusters int, logger *log.Logger) *QARunner {
	if maxClusters <= 0 {
		maxClusters = 5
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[QA] ", log.LstdFlags)
	}
	return &QARunner{llm: llm, model: model, researcher: researcher, sem: sem, maxClusters: maxClusters, logger: logger}
}

// Anticipate extracts question clusters from the synthesis. No clusters
// parsed means the Q&A phase is skipped.
func (q *QARunner) Anticipate(ctx context.Context, synthesis string, stats *Stats) []QAClusterResult {
	text, usage, err := q.llm.Generate(ctx, qaAnticipatorSystem, synthesis, q.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		q.logger.Printf("qa anticipation failed: %v", err)
		return nil
	}
	var parsed struct {
		Clusters []struct {
			Theme     string   `json:"theme"`
			Questions []string `json:"questions"`
		} `json:"clusters"`
	}
	if !jsonx.Decode(text, &parsed) {
		return nil
	}
	out := make([]QAClusterResult, 0, q.maxClusters)
	for _, c := range parsed.Clusters {
		if len(out) >= q.maxClusters {
			break
		}
		if strings.TrimSpace(c.Theme) == "" || len(c.Questions) == 0 {
			continue
		}
		out = append(out, QAClusterResult{Theme: c.Theme, Questions: c.Questions})
	}
	return out
}

// Research answers every cluster concurrently under the shared semaphore and
// fills in Findings. A failed cluster keeps empty findings; siblings are
// unaffected.
func (q *QARunner) Research(ctx context.Context, clusters []QAClusterResult, stats *Stats) []QAClusterResult {
	perCluster := make([]Stats, len(clusters))
	var wg sync.WaitGroup
	for i := range clusters {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := q.sem.Acquire(ctx); err != nil {
				return
			}
			defer q.sem.Release()
			clusters[i].Findings = q.researchCluster(ctx, clusters[i], &perCluster[i])
		}(i)
	}
	wg.Wait()
	for i := range clusters {
		stats.Merge(perCluster[i])
		if clusters[i].Findings != "" {
			stats.QAClusters++
		}
	}
	return clusters
}

func (q *QARunner) researchCluster(ctx context.Context, cluster QAClusterResult, stats *Stats) string {
	var findings strings.Builder
	for i, question := range cluster.Questions {
		text := q.researcher.Research(ctx, question, stats)
		if text == "" {
			text = noFindings
		}
		fmt.Fprintf(&findings, "[question_%d] %s\n%s\n\n", i, question, text)
	}

	prompt := fmt.Sprintf("Theme: %s\nQuestions: %s\n\nFindings:\n%s",
		cluster.Theme, strings.Join(cluster.Questions, "; "), findings.String())
	text, usage, err := q.llm.Generate(ctx, qaSynthesisSystem, prompt, q.model)
	stats.PromptTokens += usage.PromptTokens
	stats.CompletionTokens += usage.CompletionTokens
	stats.CostUSD += usage.Cost
	if err != nil {
		q.logger.Printf("qa cluster %q synthesis failed: %v", cluster.Theme, err)
		return ""
	}
	return strings.TrimSpace(text)
}

// Summary concatenates per-cluster answers into one Q&A document.
func Summary(clusters []QAClusterResult) string {
	var parts []string
	for _, c := range clusters {
		if c.Findings == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", c.Theme, c.Findings))
	}
	return strings.Join(parts, "\n\n---\n\n")
}
