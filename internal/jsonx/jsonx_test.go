package jsonx

import (
	"encoding/json"
	"testing"
)

func TestExtractDirect(t *testing.T) {
	msg, ok := Extract(`{"a":1}`)
	if !ok {
		t.Fatalf("expected direct parse to succeed")
	}
	var got map[string]int
	if err := json.Unmarshal(msg, &got); err != nil || got["a"] != 1 {
		t.Fatalf("unexpected value: %s err=%v", msg, err)
	}
}

func TestExtractFencedWithProse(t *testing.T) {
	cases := []string{
		"```json\n{\"a\":1}\n```",
		"Here is the plan you asked for:\n```json\n{\"a\":1}\n```  \n",
		"```\n{\"a\":1}\n```",
		"Sure! {\"a\":1} hope that helps",
	}
	for _, raw := range cases {
		msg, ok := Extract(raw)
		if !ok {
			t.Fatalf("extract failed for %q", raw)
		}
		var got map[string]int
		if err := json.Unmarshal(msg, &got); err != nil || got["a"] != 1 {
			t.Fatalf("wrong value for %q: %s", raw, msg)
		}
	}
}

func TestExtractArray(t *testing.T) {
	msg, ok := Extract("the studies are: [\"x\",\"y\"] done")
	if !ok {
		t.Fatalf("expected array extraction")
	}
	var got []string
	if err := json.Unmarshal(msg, &got); err != nil || len(got) != 2 {
		t.Fatalf("unexpected array: %s", msg)
	}
}

func TestExtractBracketsInsideStrings(t *testing.T) {
	raw := "note {\"text\":\"a } inside\",\"n\":2} trailing"
	msg, ok := Extract(raw)
	if !ok {
		t.Fatalf("extract failed")
	}
	var got struct {
		Text string `json:"text"`
		N    int    `json:"n"`
	}
	if err := json.Unmarshal(msg, &got); err != nil || got.N != 2 {
		t.Fatalf("unexpected: %s err=%v", msg, err)
	}
}

func TestExtractRejectsTruncated(t *testing.T) {
	for _, raw := range []string{`{"a": [1, 2`, "```json\n{\"a\":", "plain prose, no json", ""} {
		if _, ok := Extract(raw); ok {
			t.Fatalf("expected failure for %q", raw)
		}
	}
}

func TestDecode(t *testing.T) {
	var out struct {
		Escalate bool     `json:"escalate"`
		Gaps     []string `json:"gaps"`
	}
	if !Decode("```json\n{\"escalate\":false,\"gaps\":[\"q1\"]}\n```", &out) {
		t.Fatalf("decode failed")
	}
	if out.Escalate || len(out.Gaps) != 1 {
		t.Fatalf("unexpected decode result: %+v", out)
	}
}
