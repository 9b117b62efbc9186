// Package research implements the multi-depth research pipeline: planning,
// concurrent study execution, iterative gap filling, synthesis, evaluation
// and refinement, verification, strategic analysis and anticipated Q&A.
package research

import (
	"context"
	"time"
)

// Depth selects the pipeline variant for a job.
type Depth string

const (
	DepthQuick    Depth = "quick"
	DepthStandard Depth = "standard"
	DepthDeep     Depth = "deep"
)

// Request is the intake for one research job.
type Request struct {
	JobID   string `json:"job_id"`
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Depth   Depth  `json:"depth"`
}

// StudySpec describes one independently-researched sub-topic. Output of
// planning, read-only input to the study runner.
type StudySpec struct {
	Title           string   `json:"title"`
	Angle           string   `json:"angle"`
	Questions       []string `json:"questions"`
	RecommendedRole string   `json:"recommended_role,omitempty"`
}

// Round holds one iteration's findings keyed by researcher key
// ("round_<r>_researcher_<i>"), so synthesis prompts can reference
// findings deterministically by question index.
type Round map[string]string

// StudyResult is the full record of one study: every round's findings plus
// the final synthesis. Synthesis is written once; empty means the study
// failed outright.
type StudyResult struct {
	Title     string   `json:"title"`
	Angle     string   `json:"angle"`
	Questions []string `json:"questions"`
	Rounds    []Round  `json:"rounds"`
	Synthesis string   `json:"synthesis"`
}

// QAClusterResult is one anticipated-question theme with researched findings.
type QAClusterResult struct {
	Theme     string   `json:"theme"`
	Questions []string `json:"questions"`
	Findings  string   `json:"findings"`
}

// QueryAnalysis classifies the query up front; every field has a safe default.
type QueryAnalysis struct {
	Domains           []string `json:"domains"`
	Complexity        string   `json:"complexity"`
	Controversial     bool     `json:"controversial"`
	NeedsFactChecking bool     `json:"needs_fact_checking"`
	SuggestedStudies  int      `json:"suggested_studies"`
}

// DefaultAnalysis is used whenever query analysis fails or parses badly.
func DefaultAnalysis() QueryAnalysis {
	return QueryAnalysis{
		Domains:          []string{"general"},
		Complexity:       "moderate",
		SuggestedStudies: 4,
	}
}

// EvalGap is one coverage hole flagged by the evaluator.
type EvalGap struct {
	Description      string `json:"description"`
	Priority         string `json:"priority"`
	ResearchQuestion string `json:"research_question"`
}

// Evaluation scores a synthesis on fixed dimensions.
type Evaluation struct {
	OverallScore float64 `json:"overall_score"`
	Scores       struct {
		Completeness    float64 `json:"completeness"`
		EvidenceQuality float64 `json:"evidence_quality"`
		Actionability   float64 `json:"actionability"`
		Balance         float64 `json:"balance"`
	} `json:"scores"`
	Gaps                []EvalGap `json:"gaps"`
	WeakClaims          []string  `json:"weak_claims"`
	MissingPerspectives []string  `json:"missing_perspectives"`
	RefinementNeeded    bool      `json:"refinement_needed"`
}

// Contradiction is a pair of conflicting claims found during validation.
type Contradiction struct {
	ClaimA           string   `json:"claim_a"`
	ClaimB           string   `json:"claim_b"`
	SourcesA         []string `json:"sources_a"`
	SourcesB         []string `json:"sources_b"`
	Severity         string   `json:"severity"`
	LikelyResolution string   `json:"likely_resolution"`
}

// Validation is the claim-validation report over a synthesis.
type Validation struct {
	ClaimsExtracted   int             `json:"claims_extracted"`
	Contradictions    []Contradiction `json:"contradictions"`
	ConsistencyRating string          `json:"consistency_rating"`
	Notes             string          `json:"notes"`
}

// Job is the root aggregate: everything a pipeline run accumulates. It is
// the unit of checkpointing, so every field must serialize.
type Job struct {
	JobID   string `json:"job_id"`
	Query   string `json:"query"`
	Context string `json:"context,omitempty"`
	Depth   Depth  `json:"depth"`

	Analysis *QueryAnalysis `json:"analysis,omitempty"`
	Plan     []StudySpec    `json:"plan,omitempty"`
	// Studies is append-only: refinement adds gap studies, never removes.
	Studies          []StudyResult      `json:"studies,omitempty"`
	MasterSynthesis  string             `json:"master_synthesis,omitempty"`
	SynthesisScore   float64            `json:"synthesis_score,omitempty"`
	ScoreBreakdown   map[string]float64 `json:"score_breakdown,omitempty"`
	Validation       *Validation        `json:"validation,omitempty"`
	RefinementRounds int                `json:"refinement_rounds"`
	Strategic        string             `json:"strategic,omitempty"`
	QAClusters       []QAClusterResult  `json:"qa_clusters,omitempty"`
	QASummary        string             `json:"qa_summary,omitempty"`

	Stats      Stats     `json:"stats"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Semaphore is a counting semaphore bounding one class of fan-out. The
// orchestrator keeps two: one for researcher and QA-cluster calls, one for
// whole studies.
type Semaphore chan struct{}

func NewSemaphore(n int) Semaphore {
	if n <= 0 {
		n = 3
	}
	return make(Semaphore, n)
}

func (s Semaphore) Acquire(ctx context.Context) error {
	select {
	case s <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s Semaphore) Release() { <-s }
