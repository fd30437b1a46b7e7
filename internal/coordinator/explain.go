package coordinator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ExplanationType names what an explanation accounts for.
type ExplanationType string

const (
	ExplainBotSelection ExplanationType = "bot_selection"
	ExplainConsensus    ExplanationType = "consensus"
	ExplainFailure      ExplanationType = "failure"
	ExplainDissent      ExplanationType = "dissent"
	ExplainRouting      ExplanationType = "routing"
)

// DetailLevel selects how much of an explanation the formatter renders.
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailDetailed DetailLevel = "detailed"
	DetailFull     DetailLevel = "full"
)

// Explanation is a structured account of one coordinator decision.
type Explanation struct {
	Type         ExplanationType `json:"type"`
	Summary      string          `json:"summary"`
	Details      []string        `json:"details"`
	Reasoning    []string        `json:"reasoning"` // numbered chain
	Evidence     map[string]any  `json:"evidence,omitempty"`
	Confidence   float64         `json:"confidence"`
	Alternatives []string        `json:"alternatives,omitempty"`
	WhyChosen    string          `json:"why_chosen"`
}

// ExplainSelection accounts for a bot-selection outcome given the score map.
func ExplainSelection(chosen, domain string, scores map[string]float64) Explanation {
	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return scores[ids[i]] > scores[ids[j]] })

	details := make([]string, len(ids))
	var alternatives []string
	for i, id := range ids {
		details[i] = fmt.Sprintf("%s scored %.2f for %s", id, scores[id], domain)
		if id != chosen {
			alternatives = append(alternatives, id)
		}
	}

	evidence := make(map[string]any, len(scores))
	for id, s := range scores {
		evidence[id] = s
	}

	return Explanation{
		Type:    ExplainBotSelection,
		Summary: fmt.Sprintf("%s selected for %s work", chosen, domain),
		Details: details,
		Reasoning: []string{
			fmt.Sprintf("scored %d candidates against domain %q", len(scores), domain),
			fmt.Sprintf("%s held the highest expertise score (%.2f)", chosen, scores[chosen]),
		},
		Evidence:     evidence,
		Confidence:   scores[chosen],
		Alternatives: alternatives,
		WhyChosen:    fmt.Sprintf("%s had the strongest track record in %s", chosen, domain),
	}
}

// ExplainDecision accounts for a recorded decision of any type.
func ExplainDecision(d store.Decision) Explanation {
	kind := ExplainConsensus
	if d.Dissent != "" {
		kind = ExplainDissent
	}

	details := make([]string, len(d.Positions))
	var alternatives []string
	seen := map[string]bool{d.FinalDecision: true}
	for i, p := range d.Positions {
		details[i] = fmt.Sprintf("%s held %q at confidence %.2f", p.AgentID, p.Position, p.Confidence)
		if !seen[p.Position] {
			seen[p.Position] = true
			alternatives = append(alternatives, p.Position)
		}
	}

	reasoning := []string{
		fmt.Sprintf("collected %d positions from %d participants", len(d.Positions), len(d.Participants)),
		fmt.Sprintf("aggregated via %s", d.Type),
		fmt.Sprintf("settled on %q at confidence %.2f", d.FinalDecision, d.Confidence),
	}
	if d.Escalated {
		reasoning = append(reasoning, "escalated to the user")
	}

	return Explanation{
		Type:         kind,
		Summary:      fmt.Sprintf("decided %q by %s", d.FinalDecision, d.Type),
		Details:      details,
		Reasoning:    reasoning,
		Evidence:     map[string]any{"decision_id": d.ID, "dissent": d.Dissent},
		Confidence:   d.Confidence,
		Alternatives: alternatives,
		WhyChosen:    d.Reasoning,
	}
}

// ExplainTaskFailure accounts for a failed task.
func ExplainTaskFailure(task store.Task) Explanation {
	return Explanation{
		Type:    ExplainFailure,
		Summary: fmt.Sprintf("task %q failed", task.Title),
		Details: []string{
			fmt.Sprintf("assigned to %s", task.AssignedTo),
			fmt.Sprintf("result: %s", task.Result),
		},
		Reasoning: []string{
			fmt.Sprintf("%s reported failure on task %s", task.AssignedTo, task.ID),
			"confidence forced to zero on failure",
		},
		Evidence:   map[string]any{"task_id": task.ID, "domain": task.Domain},
		Confidence: 0,
		WhyChosen:  "the owning agent declared the task unrecoverable",
	}
}

// ExplainRoutingDecision accounts for a tier-routing verdict.
func ExplainRoutingDecision(d store.RoutingDecision) Explanation {
	return Explanation{
		Type:    ExplainRouting,
		Summary: fmt.Sprintf("routed to tier %s via %s layer", d.Tier, d.Layer),
		Details: []string{
			fmt.Sprintf("model %s, estimated %d tokens", d.Model, d.EstimatedTokens),
			fmt.Sprintf("needs tools: %v", d.NeedsTools),
		},
		Reasoning:  []string{d.Reasoning},
		Evidence:   map[string]any{"layer": string(d.Layer)},
		Confidence: d.Confidence,
		WhyChosen:  d.Reasoning,
	}
}

// Format renders an explanation at the requested detail level.
func (e Explanation) Format(level DetailLevel) string {
	var sb strings.Builder
	sb.WriteString(e.Summary)
	if level == DetailBrief {
		return sb.String()
	}

	sb.WriteString(fmt.Sprintf(" (confidence %.2f)\n", e.Confidence))
	for _, d := range e.Details {
		sb.WriteString("- " + d + "\n")
	}
	if e.WhyChosen != "" {
		sb.WriteString("Why: " + e.WhyChosen + "\n")
	}
	if level == DetailDetailed {
		return strings.TrimRight(sb.String(), "\n")
	}

	for i, r := range e.Reasoning {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, r))
	}
	if len(e.Alternatives) > 0 {
		sb.WriteString("Alternatives considered: " + strings.Join(e.Alternatives, ", ") + "\n")
	}
	for _, k := range sortedKeys(e.Evidence) {
		sb.WriteString(fmt.Sprintf("Evidence %s: %v\n", k, e.Evidence[k]))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
