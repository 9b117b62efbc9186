// Package telemetry exposes Prometheus metrics and LLM cost accounting for
// the research pipeline.
package telemetry

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments the service records into.
type Metrics struct {
	JobsStarted  *prometheus.CounterVec
	JobsFinished *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	TokensUsed   *prometheus.CounterVec
	CostUSD      prometheus.Counter
	ToolCalls    *prometheus.CounterVec
}

// NewMetrics registers the instrument set on reg. Use
// prometheus.DefaultRegisterer in the service, a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		JobsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_jobs_started_total",
			Help: "Research jobs started, by depth.",
		}, []string{"depth"}),
		JobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_jobs_finished_total",
			Help: "Research jobs finished, by depth and terminal status.",
		}, []string{"depth", "status"}),
		JobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "briefer_job_duration_seconds",
			Help:    "Wall-clock duration of research jobs.",
			Buckets: []float64{1, 5, 15, 60, 180, 600, 1800, 3600},
		}, []string{"depth"}),
		TokensUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_llm_tokens_total",
			Help: "LLM tokens consumed, by direction.",
		}, []string{"direction"}),
		CostUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "briefer_llm_cost_usd_total",
			Help: "Cumulative LLM spend in USD.",
		}),
		ToolCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "briefer_tool_calls_total",
			Help: "Research tool invocations, by tool.",
		}, []string{"tool"}),
	}
	reg.MustRegister(m.JobsStarted, m.JobsFinished, m.JobDuration, m.TokensUsed, m.CostUSD, m.ToolCalls)
	return m
}

// RecordJob folds one finished job into the instruments.
func (m *Metrics) RecordJob(depth, status string, seconds float64, promptTokens, completionTokens int, costUSD float64) {
	m.JobsFinished.WithLabelValues(depth, status).Inc()
	m.JobDuration.WithLabelValues(depth).Observe(seconds)
	m.TokensUsed.WithLabelValues("prompt").Add(float64(promptTokens))
	m.TokensUsed.WithLabelValues("completion").Add(float64(completionTokens))
	m.CostUSD.Add(costUSD)
}

// CostTracker accumulates LLM spend per model across the process lifetime.
type CostTracker struct {
	mu          sync.Mutex
	modelCosts  map[string]float64
	totalCost   float64
	totalTokens int64
}

func NewCostTracker() *CostTracker {
	return &CostTracker{modelCosts: make(map[string]float64)}
}

// Track records one model call's spend.
func (t *CostTracker) Track(model string, tokens int, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.modelCosts[model] += costUSD
	t.totalCost += costUSD
	t.totalTokens += int64(tokens)
}

// ModelCost is one row of a cost snapshot.
type ModelCost struct {
	Model string  `json:"model"`
	Cost  float64 `json:"cost_usd"`
}

// Snapshot returns the current totals and per-model spend, most expensive
// model first.
func (t *CostTracker) Snapshot() (total float64, tokens int64, models []ModelCost) {
	t.mu.Lock()
	defer t.mu.Unlock()
	models = make([]ModelCost, 0, len(t.modelCosts))
	for model, cost := range t.modelCosts {
		models = append(models, ModelCost{Model: model, Cost: cost})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].Cost > models[j].Cost })
	return t.totalCost, t.totalTokens, models
}
