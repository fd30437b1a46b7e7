package coordinator

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ExpertiseScorer rates how well an agent fits a task domain. Scores are
// in [0,1]. Implemented by the profile layer; the coordinator only ranks.
type ExpertiseScorer interface {
	ExpertiseScore(agentID, domain string) float64
}

// ScorerFunc adapts a plain function to ExpertiseScorer.
type ScorerFunc func(agentID, domain string) float64

func (f ScorerFunc) ExpertiseScore(agentID, domain string) float64 { return f(agentID, domain) }

// SelectBot picks the best-fit agent for a domain. The highest expertise
// score wins; ties keep the earliest candidate. The full score map is
// logged as a bot_selection audit event.
func (c *Coordinator) SelectBot(ctx context.Context, taskID, domain string, candidates []string, scorer ExpertiseScorer) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("select bot: no candidates for domain %q", domain)
	}

	scores := make(map[string]float64, len(candidates))
	best, bestScore := candidates[0], -1.0
	for _, id := range candidates {
		score := scorer.ExpertiseScore(id, domain)
		scores[id] = score
		if score > bestScore {
			best, bestScore = id, score
		}
	}

	details := make(map[string]any, len(scores))
	for id, s := range scores {
		details[id] = s
	}
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditBotSelection,
		TaskID:      taskID,
		AgentIDs:    candidates,
		Description: fmt.Sprintf("selected %s for domain %q", best, domain),
		Reasoning:   fmt.Sprintf("highest expertise score %.2f among %d candidates", bestScore, len(candidates)),
		Details:     details,
		Confidence:  bestScore,
		Severity:    store.SeverityInfo,
	})
	return best, nil
}
