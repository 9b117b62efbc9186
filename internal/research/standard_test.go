package research

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func TestRunQuickSingleResearcherCall(t *testing.T) {
	stub := &stubProvider{
		invoke: func(system, prompt string) (string, error) {
			return "quick findings http://example.com", nil
		},
	}
	cp := NewMemoryCheckpointManager()
	o := newTestOrchestrator(stub, cp, nil, nil)

	job := o.Execute(context.Background(), Request{JobID: "j-quick", Query: "quick research: who owns ARM?"})

	if job.Depth != DepthQuick {
		t.Fatalf("depth = %v, want quick", job.Depth)
	}
	if job.MasterSynthesis != "quick findings http://example.com" {
		t.Fatalf("synthesis = %q", job.MasterSynthesis)
	}
	if got := stub.countCalls(researcherSystem); got != 1 {
		t.Fatalf("researcher called %d times, want 1", got)
	}
	if len(stub.calls) != 1 {
		t.Fatalf("quick depth made %d model calls, want exactly 1", len(stub.calls))
	}
	if _, _, ok, _ := cp.Load(context.Background(), "j-quick"); !ok {
		t.Fatalf("quick results should be checkpointed")
	}
}

func TestRunStandardSynthesizesOnce(t *testing.T) {
	stub := &stubProvider{
		generate: func(system, prompt string) (string, error) {
			switch system {
			case unpackSystem:
				return `{"questions":["sub1","sub2","sub3"]}`, nil
			case followUpSystem:
				return `{"questions":["follow1","follow2"]}`, nil
			case standardSynthesisSystem:
				if !strings.Contains(prompt, "sub1") || !strings.Contains(prompt, "follow1") {
					return "", fmt.Errorf("synthesis prompt missing findings")
				}
				return "standard answer http://example.com", nil
			}
			return "", fmt.Errorf("unexpected system %.40q", system)
		},
	}
	o := newTestOrchestrator(stub, nil, nil, nil)

	job := o.Execute(context.Background(), Request{JobID: "j-std", Query: "what happened to SVB"})

	if job.Depth != DepthStandard {
		t.Fatalf("depth = %v, want standard", job.Depth)
	}
	if job.MasterSynthesis != "standard answer http://example.com" {
		t.Fatalf("synthesis = %q", job.MasterSynthesis)
	}
	if got := stub.countCalls(standardSynthesisSystem); got != 1 {
		t.Fatalf("synthesis ran %d times, want exactly 1", got)
	}
	// 3 sub-questions plus 2 follow-ups.
	if got := stub.countCalls(researcherSystem); got != 5 {
		t.Fatalf("researcher called %d times, want 5", got)
	}
	if got := stub.countCalls(evaluatorSystem); got != 0 {
		t.Fatalf("standard depth must not evaluate or refine")
	}
}

func TestRunStandardClampsQuestionCounts(t *testing.T) {
	stub := &stubProvider{
		generate: func(system, prompt string) (string, error) {
			switch system {
			case unpackSystem:
				return `{"questions":["s1","s2","s3","s4","s5","s6","s7"]}`, nil
			case followUpSystem:
				return `{"questions":["f1","f2","f3","f4","f5"]}`, nil
			case standardSynthesisSystem:
				return "answer", nil
			}
			return "", fmt.Errorf("unexpected system %.40q", system)
		},
	}
	o := newTestOrchestrator(stub, nil, nil, nil)

	o.RunStandard(context.Background(), Request{JobID: "j-clamp", Query: "anything"})

	// 5 sub-questions plus 3 follow-ups after clamping.
	if got := stub.countCalls(researcherSystem); got != 8 {
		t.Fatalf("researcher called %d times, want 8", got)
	}
}

func TestRunStandardFallsBackToVerbatimQuery(t *testing.T) {
	stub := &stubProvider{
		generate: func(system, prompt string) (string, error) {
			switch system {
			case unpackSystem, followUpSystem:
				return "not json", nil
			case standardSynthesisSystem:
				if !strings.Contains(prompt, "the exact query") {
					return "", fmt.Errorf("verbatim query missing from prompt")
				}
				return "answer", nil
			}
			return "", fmt.Errorf("unexpected system %.40q", system)
		},
	}
	o := newTestOrchestrator(stub, nil, nil, nil)

	job := o.RunStandard(context.Background(), Request{JobID: "j-fb", Query: "the exact query"})
	if job.MasterSynthesis != "answer" {
		t.Fatalf("synthesis = %q", job.MasterSynthesis)
	}
	if got := stub.countCalls(researcherSystem); got != 1 {
		t.Fatalf("researcher called %d times, want 1 (the query itself)", got)
	}
}

func TestResumeRerunsFailedStandardFromScratch(t *testing.T) {
	var mu sync.Mutex
	failSynthesis := true
	stub := &stubProvider{
		generate: func(system, prompt string) (string, error) {
			switch system {
			case unpackSystem:
				return `{"questions":["sub1"]}`, nil
			case followUpSystem:
				return `{"questions":[]}`, nil
			case standardSynthesisSystem:
				mu.Lock()
				failing := failSynthesis
				mu.Unlock()
				if failing {
					return "", fmt.Errorf("503 service unavailable")
				}
				return "recovered answer http://example.com", nil
			}
			return "", fmt.Errorf("unexpected system %.40q", system)
		},
	}
	cp := NewMemoryCheckpointManager()
	o := newTestOrchestrator(stub, cp, nil, nil)

	failed := o.RunStandard(context.Background(), Request{JobID: "j-std-resume", Query: "what happened to SVB"})
	if failed.MasterSynthesis != "" {
		t.Fatalf("synthesis = %q, want empty after model failure", failed.MasterSynthesis)
	}
	phase, snap, ok, err := cp.Load(context.Background(), "j-std-resume")
	if err != nil || !ok {
		t.Fatalf("checkpoint after failed run: ok=%v err=%v", ok, err)
	}
	if phase != PhaseMaster || snap.Depth != DepthStandard {
		t.Fatalf("checkpoint phase=%q depth=%q, want %q/%q", phase, snap.Depth, PhaseMaster, DepthStandard)
	}

	mu.Lock()
	failSynthesis = false
	mu.Unlock()

	job, err := o.Resume(context.Background(), "j-std-resume")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if job.Depth != DepthStandard {
		t.Fatalf("depth = %v, want standard", job.Depth)
	}
	if job.MasterSynthesis != "recovered answer http://example.com" {
		t.Fatalf("synthesis = %q", job.MasterSynthesis)
	}
	if len(job.Studies) != 0 || job.RefinementRounds != 0 {
		t.Fatalf("standard resume ran study phases: studies=%d rounds=%d", len(job.Studies), job.RefinementRounds)
	}
	for _, system := range []string{evaluatorSystem, validatorSystem, gapSystem, strategySystem, qaSynthesisSystem} {
		if got := stub.countCalls(system); got != 0 {
			t.Fatalf("standard resume made %d calls with system %.30q, want 0", got, system)
		}
	}
}

func TestResumeRerunsQuickFromScratch(t *testing.T) {
	stub := &stubProvider{}
	cp := NewMemoryCheckpointManager()
	o := newTestOrchestrator(stub, cp, nil, nil)

	o.RunQuick(context.Background(), Request{JobID: "j-quick-resume", Query: "quick research: who owns ARM?", Depth: DepthQuick})

	job, err := o.Resume(context.Background(), "j-quick-resume")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if job.Depth != DepthQuick {
		t.Fatalf("depth = %v, want quick", job.Depth)
	}
	if got := stub.countCalls(researcherSystem); got != 2 {
		t.Fatalf("researcher called %d times across run and resume, want 2", got)
	}
	if got := stub.countCalls(evaluatorSystem); got != 0 {
		t.Fatalf("quick resume evaluated %d times, want 0", got)
	}
}
