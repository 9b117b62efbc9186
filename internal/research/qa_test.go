package research

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func newTestQARunner(stub *stubProvider, maxClusters int) *QARunner {
	researcher := NewResearcher(stub, "test-model", Toolset{}, quietLogger())
	return NewQARunner(stub, "test-model", researcher, NewSemaphore(3), maxClusters, quietLogger())
}

func TestAnticipateParsesAndCapsClusters(t *testing.T) {
	stub := &stubProvider{generate: func(system, prompt string) (string, error) {
		return `{"clusters":[
			{"theme":"Costs","questions":["q1"]},
			{"theme":"","questions":["orphan"]},
			{"theme":"Risks","questions":[]},
			{"theme":"Timeline","questions":["q2","q3"]},
			{"theme":"Competitors","questions":["q4"]},
			{"theme":"Regulation","questions":["q5"]}]}`, nil
	}}
	q := newTestQARunner(stub, 3)

	var stats Stats
	clusters := q.Anticipate(context.Background(), "briefing", &stats)
	if len(clusters) != 3 {
		t.Fatalf("got %d clusters, want cap of 3", len(clusters))
	}
	// Empty themes and question lists are dropped before the cap applies.
	if clusters[0].Theme != "Costs" || clusters[1].Theme != "Timeline" || clusters[2].Theme != "Competitors" {
		t.Fatalf("clusters = %+v", clusters)
	}
}

func TestAnticipateReturnsNilOnFailure(t *testing.T) {
	for name, stub := range map[string]*stubProvider{
		"error": {generate: func(string, string) (string, error) { return "", fmt.Errorf("model down") }},
		"prose": {generate: func(string, string) (string, error) { return "Readers might wonder about costs.", nil }},
	} {
		q := newTestQARunner(stub, 5)
		var stats Stats
		if clusters := q.Anticipate(context.Background(), "briefing", &stats); clusters != nil {
			t.Fatalf("%s: clusters = %v, want nil", name, clusters)
		}
	}
}

func TestResearchIsolatesFailedCluster(t *testing.T) {
	stub := &stubProvider{
		generate: func(system, prompt string) (string, error) {
			if strings.Contains(prompt, "Theme: Broken") {
				return "", fmt.Errorf("model down")
			}
			return "cluster answer http://example.com", nil
		},
	}
	q := newTestQARunner(stub, 5)

	var stats Stats
	clusters := q.Research(context.Background(), []QAClusterResult{
		{Theme: "Fine", Questions: []string{"q1"}},
		{Theme: "Broken", Questions: []string{"q2"}},
		{Theme: "AlsoFine", Questions: []string{"q3"}},
	}, &stats)

	if clusters[0].Findings == "" || clusters[2].Findings == "" {
		t.Fatalf("healthy clusters disturbed: %+v", clusters)
	}
	if clusters[1].Findings != "" {
		t.Fatalf("failed cluster should have empty findings: %q", clusters[1].Findings)
	}
	if stats.QAClusters != 2 {
		t.Fatalf("stats.QAClusters = %d, want 2", stats.QAClusters)
	}
}

func TestSummaryJoinsWithSeparator(t *testing.T) {
	out := Summary([]QAClusterResult{
		{Theme: "A", Findings: "answers a"},
		{Theme: "B", Findings: ""},
		{Theme: "C", Findings: "answers c"},
	})
	if strings.Count(out, "\n\n---\n\n") != 1 {
		t.Fatalf("expected one separator between two kept clusters:\n%s", out)
	}
	if !strings.Contains(out, "## A") || !strings.Contains(out, "## C") {
		t.Fatalf("headings missing:\n%s", out)
	}
	if strings.Contains(out, "## B") {
		t.Fatalf("empty cluster should be omitted:\n%s", out)
	}
}
