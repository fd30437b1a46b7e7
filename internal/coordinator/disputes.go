package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// Keyword sets driving the dispute heuristics. Scans run over reasoning
// texts, lowercased; first matching class wins, factual is the default.
var disagreementKeywords = []struct {
	kind  store.DisagreementType
	words []string
}{
	{store.DisagreementMethodological, []string{"how", "approach", "method"}},
	{store.DisagreementPriority, []string{"urgent", "priority", "critical"}},
	{store.DisagreementPhilosophical, []string{"believe", "value", "goal"}},
	{store.DisagreementIncompleteInfo, []string{"missing", "lack", "insufficient"}},
}

// commonGroundThemes is the closed theme vocabulary shared-ground detection
// scans for across all positions.
var commonGroundThemes = []string{
	"quality", "security", "performance", "user", "cost", "reliability",
	"maintainability", "deadline", "testing", "simplicity",
}

// DetectDisagreement reports a dispute when two or more distinct position
// texts are held. Severity grows with the number of distinct positions and
// the average confidence behind them.
func DetectDisagreement(taskID string, positions []store.Position) (store.Disagreement, bool) {
	options := tally(positions)
	if len(options) < 2 {
		return store.Disagreement{}, false
	}

	var confSum float64
	for _, p := range positions {
		confSum += p.Confidence
	}
	avgConf := confSum / float64(len(positions))
	severity := avgConf * float64(len(options)-1) / float64(len(options))
	if severity > 1 {
		severity = 1
	}

	return store.Disagreement{
		ID:           store.GenNewID(),
		TaskID:       taskID,
		Type:         classifyDisagreement(positions),
		Positions:    positions,
		CommonGround: commonGround(positions),
		Severity:     severity,
		Timestamp:    time.Now(),
	}, true
}

// classifyDisagreement infers the dispute type from keyword scans over the
// combined reasoning texts.
func classifyDisagreement(positions []store.Position) store.DisagreementType {
	var sb strings.Builder
	for _, p := range positions {
		sb.WriteString(strings.ToLower(p.Reasoning))
		sb.WriteByte(' ')
	}
	text := sb.String()
	for _, set := range disagreementKeywords {
		for _, w := range set.words {
			if strings.Contains(text, w) {
				return set.kind
			}
		}
	}
	return store.DisagreementFactual
}

// commonGround lists the fixed themes that appear in every participant's
// position or reasoning.
func commonGround(positions []store.Position) string {
	var shared []string
	for _, theme := range commonGroundThemes {
		inAll := true
		for _, p := range positions {
			text := strings.ToLower(p.Position + " " + p.Reasoning)
			if !strings.Contains(text, theme) {
				inAll = false
				break
			}
		}
		if inAll {
			shared = append(shared, theme)
		}
	}
	if len(shared) == 0 {
		return ""
	}
	return "shared concern for " + strings.Join(shared, ", ")
}

// ResolveDispute settles a detected disagreement:
//  1. consensus at the default threshold wins as a dispute_resolution
//     decision;
//  2. otherwise the most expert participant's position wins as an
//     expertise_based decision with confidence = confidence·expertise;
//  3. with no expertise signal at all, the decision escalates to the user.
//
// The dispute and its resolution are both audited.
func (c *Coordinator) ResolveDispute(ctx context.Context, dis store.Disagreement) (store.Decision, error) {
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditDisputeDetected,
		TaskID:      dis.TaskID,
		AgentIDs:    participantIDs(dis.Positions),
		Description: fmt.Sprintf("%s disagreement across %d positions", dis.Type, len(dis.Positions)),
		Details:     map[string]any{"severity": dis.Severity, "common_ground": dis.CommonGround},
		Severity:    store.SeverityWarning,
		RelatedIDs:  []string{dis.ID},
	})

	options := tally(dis.Positions)

	d := store.Decision{
		ID:           store.GenNewID(),
		TaskID:       dis.TaskID,
		Participants: participantIDs(dis.Positions),
		Positions:    dis.Positions,
		Timestamp:    time.Now(),
	}

	if pos, ok := Consensus(dis.Positions, 0); ok {
		d.Type = store.DecisionDisputeResolution
		d.FinalDecision = pos.Position
		d.Confidence = agreementShare(dis.Positions, pos.Position)
		d.Reasoning = fmt.Sprintf("consensus reached around %q", pos.Position)
		if dis.CommonGround != "" {
			d.Reasoning += " (" + dis.CommonGround + ")"
		}
	} else if expert, ok := mostExpert(dis.Positions); ok {
		d.Type = store.DecisionExpertiseBased
		d.FinalDecision = expert.Position
		d.Confidence = expert.Confidence * expert.ExpertiseScore
		d.Reasoning = fmt.Sprintf("deferring to %s (expertise %.2f, confidence %.2f)",
			expert.AgentID, expert.ExpertiseScore, expert.Confidence)
	} else {
		d.Type = store.DecisionDisputeResolution
		d.FinalDecision = "escalate to user"
		d.Confidence = 0
		d.Reasoning = "no consensus and no expertise signal"
		d.Escalated = true
	}

	if winner := findOption(options, d.FinalDecision); winner != nil {
		d.Dissent = dissentSummary(options, winner)
	} else {
		d.Dissent = dissentSummary(options, nil)
	}

	if err := c.saveDecision(ctx, d, store.AuditDisputeResolved); err != nil {
		return store.Decision{}, err
	}
	if d.Escalated {
		c.audit.Record(ctx, store.AuditEvent{
			Type:        store.AuditEscalation,
			TaskID:      d.TaskID,
			AgentIDs:    d.Participants,
			Description: "dispute unresolvable without user input",
			Severity:    store.SeverityWarning,
			RelatedIDs:  []string{d.ID, dis.ID},
			Escalated:   true,
		})
	}
	return d, nil
}

// mostExpert returns the position with the highest expertise score,
// breaking ties on confidence. False when no participant carries an
// expertise signal.
func mostExpert(positions []store.Position) (store.Position, bool) {
	sorted := append([]store.Position(nil), positions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ExpertiseScore != sorted[j].ExpertiseScore {
			return sorted[i].ExpertiseScore > sorted[j].ExpertiseScore
		}
		return sorted[i].Confidence > sorted[j].Confidence
	})
	if sorted[0].ExpertiseScore <= 0 {
		return store.Position{}, false
	}
	return sorted[0], true
}

func findOption(options []*option, text string) *option {
	for _, o := range options {
		if o.position == text {
			return o
		}
	}
	return nil
}
