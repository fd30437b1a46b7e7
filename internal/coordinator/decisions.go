package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// VotingStrategy selects how positions are aggregated into a decision.
type VotingStrategy string

const (
	VoteUnanimous VotingStrategy = "unanimous"
	VoteMajority  VotingStrategy = "majority"
	VoteWeighted  VotingStrategy = "weighted"
	VotePlurality VotingStrategy = "plurality"
)

// DefaultConsensusThreshold is the agreement share consensus requires.
const DefaultConsensusThreshold = 0.8

// option aggregates the votes behind one distinct position text.
type option struct {
	position string
	votes    int
	weight   float64
	holders  []store.Position
	order    int // first appearance, for deterministic ties
}

// tally buckets positions by exact text. Weight is expertise·confidence,
// with expertise defaulting to 1 when unset so unweighted strategies
// degrade gracefully.
func tally(positions []store.Position) []*option {
	byText := map[string]*option{}
	var ordered []*option
	for i, p := range positions {
		o, ok := byText[p.Position]
		if !ok {
			o = &option{position: p.Position, order: i}
			byText[p.Position] = o
			ordered = append(ordered, o)
		}
		o.votes++
		exp := p.ExpertiseScore
		if exp == 0 {
			exp = 1
		}
		o.weight += exp * p.Confidence
		o.holders = append(o.holders, p)
	}
	return ordered
}

func totalWeight(options []*option) float64 {
	var sum float64
	for _, o := range options {
		sum += o.weight
	}
	return sum
}

// byWeight returns the highest-weighted option, earliest first on ties.
func byWeight(options []*option) *option {
	best := options[0]
	for _, o := range options[1:] {
		if o.weight > best.weight {
			best = o
		}
	}
	return best
}

// byVotes returns the option with the most raw votes, earliest on ties.
func byVotes(options []*option) *option {
	best := options[0]
	for _, o := range options[1:] {
		if o.votes > best.votes {
			best = o
		}
	}
	return best
}

// Decide aggregates the positions under the given strategy and records the
// decision with full provenance.
func (c *Coordinator) Decide(ctx context.Context, taskID string, positions []store.Position, strategy VotingStrategy) (store.Decision, error) {
	if len(positions) == 0 {
		return store.Decision{}, fmt.Errorf("decide: no positions")
	}

	options := tally(positions)
	total := totalWeight(options)

	var winner *option
	switch strategy {
	case VoteUnanimous:
		if len(options) == 1 {
			winner = options[0]
		} else {
			winner = byWeight(options)
		}
	case VoteMajority:
		top := byVotes(options)
		if top.votes*2 > len(positions) {
			winner = top
		} else {
			winner = byWeight(options)
		}
	case VoteWeighted:
		winner = byWeight(options)
	case VotePlurality:
		winner = byVotes(options)
	default:
		return store.Decision{}, fmt.Errorf("decide: unknown strategy %q", strategy)
	}

	confidence := 0.0
	if total > 0 {
		confidence = winner.weight / total
	}

	d := store.Decision{
		ID:            store.GenNewID(),
		TaskID:        taskID,
		Type:          store.DecisionWeightedVote,
		Participants:  participantIDs(positions),
		Positions:     positions,
		FinalDecision: winner.position,
		Confidence:    confidence,
		Reasoning:     voteReasoning(positions, strategy),
		Dissent:       dissentSummary(options, winner),
		Timestamp:     time.Now(),
	}
	if err := c.saveDecision(ctx, d, store.AuditVoting); err != nil {
		return store.Decision{}, err
	}
	return d, nil
}

// Consensus buckets positions by exact text and returns the first position
// whose share meets the threshold. threshold <= 0 takes the default.
func Consensus(positions []store.Position, threshold float64) (store.Position, bool) {
	if threshold <= 0 {
		threshold = DefaultConsensusThreshold
	}
	if len(positions) == 0 {
		return store.Position{}, false
	}
	for _, o := range tally(positions) {
		share := float64(o.votes) / float64(len(positions))
		if share >= threshold {
			return o.holders[0], true
		}
	}
	return store.Position{}, false
}

// RecordConsensus persists a consensus decision when the position set
// agrees at the threshold.
func (c *Coordinator) RecordConsensus(ctx context.Context, taskID string, positions []store.Position, threshold float64) (store.Decision, bool, error) {
	pos, ok := Consensus(positions, threshold)
	if !ok {
		return store.Decision{}, false, nil
	}
	d := store.Decision{
		ID:            store.GenNewID(),
		TaskID:        taskID,
		Type:          store.DecisionConsensus,
		Participants:  participantIDs(positions),
		Positions:     positions,
		FinalDecision: pos.Position,
		Confidence:    agreementShare(positions, pos.Position),
		Reasoning:     voteReasoning(positions, "consensus"),
		Timestamp:     time.Now(),
	}
	if err := c.saveDecision(ctx, d, store.AuditConsensusReached); err != nil {
		return store.Decision{}, false, err
	}
	return d, true, nil
}

// Escalate marks a decision escalated and logs a warning-severity event.
func (c *Coordinator) Escalate(ctx context.Context, d store.Decision, reason string) store.Decision {
	d.Escalated = true
	if d.Reasoning != "" {
		d.Reasoning += "; "
	}
	d.Reasoning += "escalated: " + reason
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditEscalation,
		TaskID:      d.TaskID,
		AgentIDs:    d.Participants,
		Description: fmt.Sprintf("decision %s escalated", d.ID),
		Reasoning:   reason,
		Severity:    store.SeverityWarning,
		RelatedIDs:  []string{d.ID},
		Escalated:   true,
	})
	return d
}

// saveDecision persists the decision and its audit event.
func (c *Coordinator) saveDecision(ctx context.Context, d store.Decision, eventType store.AuditEventType) error {
	if err := c.decisions.SaveDecision(ctx, d); err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	c.audit.Record(ctx, store.AuditEvent{
		Type:        eventType,
		TaskID:      d.TaskID,
		AgentIDs:    d.Participants,
		Description: fmt.Sprintf("decision: %s", d.FinalDecision),
		Reasoning:   d.Reasoning,
		Confidence:  d.Confidence,
		Severity:    store.SeverityInfo,
		RelatedIDs:  []string{d.ID},
		Escalated:   d.Escalated,
	})
	return nil
}

func participantIDs(positions []store.Position) []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range positions {
		if !seen[p.AgentID] {
			seen[p.AgentID] = true
			out = append(out, p.AgentID)
		}
	}
	return out
}

func agreementShare(positions []store.Position, text string) float64 {
	n := 0
	for _, p := range positions {
		if p.Position == text {
			n++
		}
	}
	return float64(n) / float64(len(positions))
}

// voteReasoning lists every bot's stance, for the decision record.
func voteReasoning(positions []store.Position, strategy VotingStrategy) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = fmt.Sprintf("%s: %q (%.2f)", p.AgentID, p.Position, p.Confidence)
	}
	return fmt.Sprintf("%s vote over %d positions: %s", strategy, len(positions), strings.Join(parts, "; "))
}

// dissentSummary lists every non-winning position with its holders.
func dissentSummary(options []*option, winner *option) string {
	var losers []*option
	for _, o := range options {
		if o != winner {
			losers = append(losers, o)
		}
	}
	if len(losers) == 0 {
		return ""
	}
	sort.Slice(losers, func(i, j int) bool { return losers[i].order < losers[j].order })
	parts := make([]string, len(losers))
	for i, o := range losers {
		ids := make([]string, len(o.holders))
		for j, h := range o.holders {
			ids[j] = h.AgentID
		}
		parts[i] = fmt.Sprintf("%q held by %s", o.position, strings.Join(ids, ", "))
	}
	return strings.Join(parts, "; ")
}
