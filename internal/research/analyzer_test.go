package research

import (
	"context"
	"fmt"
	"testing"
)

func TestAnalyzeMergesOverDefaults(t *testing.T) {
	stub := &stubProvider{generate: func(string, string) (string, error) {
		return `{"domains":["energy","policy"],"complexity":"complex","controversial":true,"needs_fact_checking":true,"suggested_studies":6}`, nil
	}}
	a := NewAnalyzer(stub, "test-model")

	var stats Stats
	got := a.Analyze(context.Background(), "query", &stats)
	if len(got.Domains) != 2 || got.Domains[0] != "energy" {
		t.Fatalf("domains = %v", got.Domains)
	}
	if !got.Controversial || !got.NeedsFactChecking || got.SuggestedStudies != 6 {
		t.Fatalf("analysis = %+v", got)
	}
}

func TestAnalyzeFallsBackOnFailure(t *testing.T) {
	for name, stub := range map[string]*stubProvider{
		"error": {generate: func(string, string) (string, error) { return "", fmt.Errorf("model down") }},
		"prose": {generate: func(string, string) (string, error) { return "This is about energy.", nil }},
	} {
		a := NewAnalyzer(stub, "test-model")
		var stats Stats
		got := a.Analyze(context.Background(), "query", &stats)
		want := DefaultAnalysis()
		if got.Complexity != want.Complexity || got.SuggestedStudies != want.SuggestedStudies {
			t.Fatalf("%s: analysis = %+v, want defaults", name, got)
		}
	}
}

func TestAnalyzeRejectsOutOfRangeStudyCount(t *testing.T) {
	for _, n := range []int{0, 1, 13, -2} {
		stub := &stubProvider{generate: func(string, string) (string, error) {
			return fmt.Sprintf(`{"domains":["x"],"complexity":"simple","suggested_studies":%d}`, n), nil
		}}
		a := NewAnalyzer(stub, "test-model")
		var stats Stats
		got := a.Analyze(context.Background(), "query", &stats)
		if got.SuggestedStudies != DefaultAnalysis().SuggestedStudies {
			t.Fatalf("suggested_studies %d accepted: %+v", n, got)
		}
	}
}
