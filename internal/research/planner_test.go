package research

import (
	"context"
	"fmt"
	"testing"
)

func TestPlanParsesStudies(t *testing.T) {
	stub := &stubProvider{generate: happyGenerate}
	p := NewPlanner(stub, "test-model", quietLogger())

	var stats Stats
	specs := p.Plan(context.Background(), "market structure", "", DefaultAnalysis(), &stats)
	if len(specs) != 3 {
		t.Fatalf("got %d studies, want 3", len(specs))
	}
	if specs[0].Title != "s1" || specs[0].Angle != "a1" {
		t.Fatalf("first study = %+v", specs[0])
	}
}

func TestPlanFallsBackOnGarbage(t *testing.T) {
	for name, reply := range map[string]string{
		"prose":      "I think you should research several things.",
		"empty_list": `{"studies":[]}`,
		"no_titles":  `{"studies":[{"angle":"a","questions":["q"]}]}`,
	} {
		stub := &stubProvider{generate: func(string, string) (string, error) { return reply, nil }}
		p := NewPlanner(stub, "test-model", quietLogger())

		var stats Stats
		specs := p.Plan(context.Background(), "the query", "", DefaultAnalysis(), &stats)
		if len(specs) != 1 {
			t.Fatalf("%s: got %d studies, want single fallback", name, len(specs))
		}
		if specs[0].Title != "the query" {
			t.Fatalf("%s: fallback title = %q, want the query verbatim", name, specs[0].Title)
		}
		if len(specs[0].Questions) != 1 || specs[0].Questions[0] != "the query" {
			t.Fatalf("%s: fallback questions = %v", name, specs[0].Questions)
		}
	}
}

func TestPlanFallsBackOnError(t *testing.T) {
	stub := &stubProvider{generate: func(string, string) (string, error) { return "", fmt.Errorf("model down") }}
	p := NewPlanner(stub, "test-model", quietLogger())

	var stats Stats
	specs := p.Plan(context.Background(), "q", "", DefaultAnalysis(), &stats)
	if len(specs) != 1 || specs[0].Title != "q" {
		t.Fatalf("specs = %+v", specs)
	}
}

func TestPlanCapsStudyCount(t *testing.T) {
	reply := `{"studies":[`
	for i := 0; i < 20; i++ {
		if i > 0 {
			reply += ","
		}
		reply += fmt.Sprintf(`{"title":"s%d","angle":"a","questions":["q%d"]}`, i, i)
	}
	reply += `]}`

	stub := &stubProvider{generate: func(string, string) (string, error) { return reply, nil }}
	p := NewPlanner(stub, "test-model", quietLogger())

	var stats Stats
	specs := p.Plan(context.Background(), "huge topic", "", DefaultAnalysis(), &stats)
	if len(specs) != maxStudies {
		t.Fatalf("got %d studies, want cap of %d", len(specs), maxStudies)
	}
}

func TestPlanDefaultsMissingQuestionsToTitle(t *testing.T) {
	stub := &stubProvider{generate: func(string, string) (string, error) {
		return `{"studies":[{"title":"only title","angle":"a"},{"title":"full","angle":"b","questions":["q1","q2"]}]}`, nil
	}}
	p := NewPlanner(stub, "test-model", quietLogger())

	var stats Stats
	specs := p.Plan(context.Background(), "q", "", DefaultAnalysis(), &stats)
	if len(specs) != 2 {
		t.Fatalf("got %d studies", len(specs))
	}
	if len(specs[0].Questions) != 1 || specs[0].Questions[0] != "only title" {
		t.Fatalf("questions = %v", specs[0].Questions)
	}
	if len(specs[1].Questions) != 2 {
		t.Fatalf("intact questions were touched: %v", specs[1].Questions)
	}
}
