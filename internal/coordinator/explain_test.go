package coordinator

import (
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

func TestExplainSelection(t *testing.T) {
	e := ExplainSelection("coder", "coding", map[string]float64{
		"coder": 0.9, "researcher": 0.4, "social": 0.1,
	})
	if e.Type != ExplainBotSelection {
		t.Errorf("type = %q", e.Type)
	}
	if e.Confidence != 0.9 {
		t.Errorf("confidence = %.2f", e.Confidence)
	}
	if len(e.Alternatives) != 2 {
		t.Errorf("alternatives = %v", e.Alternatives)
	}
	// Details ordered by score, best first.
	if !strings.HasPrefix(e.Details[0], "coder") {
		t.Errorf("details[0] = %q, want the winner first", e.Details[0])
	}
}

func TestExplainDecision(t *testing.T) {
	d := store.Decision{
		ID:            "d1",
		Type:          store.DecisionWeightedVote,
		Participants:  []string{"a", "b"},
		Positions:     []store.Position{{AgentID: "a", Position: "x", Confidence: 0.9}, {AgentID: "b", Position: "y", Confidence: 0.4}},
		FinalDecision: "x",
		Confidence:    0.7,
		Dissent:       `"y" held by b`,
	}
	e := ExplainDecision(d)
	if e.Type != ExplainDissent {
		t.Errorf("type = %q, want dissent when dissent text present", e.Type)
	}
	if len(e.Alternatives) != 1 || e.Alternatives[0] != "y" {
		t.Errorf("alternatives = %v", e.Alternatives)
	}

	d.Dissent = ""
	if got := ExplainDecision(d); got.Type != ExplainConsensus {
		t.Errorf("type = %q, want consensus without dissent", got.Type)
	}
}

func TestExplainTaskFailure(t *testing.T) {
	e := ExplainTaskFailure(store.Task{
		ID: "t1", Title: "deploy", AssignedTo: "coder", Result: "registry down", Domain: "ops",
	})
	if e.Type != ExplainFailure || e.Confidence != 0 {
		t.Errorf("explanation = %+v", e)
	}
	if !strings.Contains(e.Summary, "deploy") {
		t.Errorf("summary = %q", e.Summary)
	}
}

func TestFormatLevels(t *testing.T) {
	e := Explanation{
		Type:         ExplainConsensus,
		Summary:      "decided x",
		Details:      []string{"a held x", "b held y"},
		Reasoning:    []string{"collected positions", "aggregated"},
		Evidence:     map[string]any{"id": "d1"},
		Confidence:   0.7,
		Alternatives: []string{"y"},
		WhyChosen:    "strongest support",
	}

	brief := e.Format(DetailBrief)
	if brief != "decided x" {
		t.Errorf("brief = %q", brief)
	}

	detailed := e.Format(DetailDetailed)
	if !strings.Contains(detailed, "confidence 0.70") || !strings.Contains(detailed, "Why: strongest support") {
		t.Errorf("detailed = %q", detailed)
	}
	if strings.Contains(detailed, "1. collected") {
		t.Error("detailed level must not include the reasoning chain")
	}

	full := e.Format(DetailFull)
	for _, want := range []string{"1. collected positions", "2. aggregated", "Alternatives considered: y", "Evidence id: d1"} {
		if !strings.Contains(full, want) {
			t.Errorf("full output missing %q:\n%s", want, full)
		}
	}
}
