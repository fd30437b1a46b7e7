package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// highConfidence is the cutoff for the high-confidence audit statistic.
const highConfidence = 0.8

// AuditFilter narrows audit queries. Zero values mean "any".
type AuditFilter struct {
	TaskID  string
	AgentID string
	Type    store.AuditEventType
	Since   time.Time
	Until   time.Time
}

// AuditStats summarises the trail.
type AuditStats struct {
	Total          int                          `json:"total"`
	ByType         map[store.AuditEventType]int `json:"by_type"`
	BySeverity     map[store.AuditSeverity]int  `json:"by_severity"`
	Escalations    int                          `json:"escalations"`
	HighConfidence int                          `json:"high_confidence"`
}

// AuditTrail is the coordinator's append-only provenance log. Events live
// in memory behind task and agent indexes and are written through to the
// decision store; a write failure is logged, never surfaced, since audit
// must not block the action it records.
type AuditTrail struct {
	mu      sync.Mutex
	events  []store.AuditEvent
	byTask  map[string][]int
	byAgent map[string][]int

	sink   store.DecisionStore // nil in memory-only configurations
	logger *slog.Logger
}

// NewAuditTrail builds a trail writing through to sink.
func NewAuditTrail(sink store.DecisionStore, logger *slog.Logger) *AuditTrail {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrail{
		byTask:  make(map[string][]int),
		byAgent: make(map[string][]int),
		sink:    sink,
		logger:  logger,
	}
}

// Record appends one event. Missing id/timestamp are filled in; severity
// defaults to info.
func (a *AuditTrail) Record(ctx context.Context, e store.AuditEvent) store.AuditEvent {
	if e.ID == "" {
		e.ID = store.GenNewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Severity == "" {
		e.Severity = store.SeverityInfo
	}

	a.mu.Lock()
	idx := len(a.events)
	a.events = append(a.events, e)
	if e.TaskID != "" {
		a.byTask[e.TaskID] = append(a.byTask[e.TaskID], idx)
	}
	for _, agent := range e.AgentIDs {
		a.byAgent[agent] = append(a.byAgent[agent], idx)
	}
	a.mu.Unlock()

	if a.sink != nil {
		if err := a.sink.SaveAuditEvent(ctx, e); err != nil {
			a.logger.Warn("audit write-through failed", "event", e.ID, "error", err)
		}
	}
	return e
}

// ByTask returns the task's events in append order.
func (a *AuditTrail) ByTask(taskID string) []store.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collect(a.byTask[taskID])
}

// ByAgent returns the agent's events in append order.
func (a *AuditTrail) ByAgent(agentID string) []store.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.collect(a.byAgent[agentID])
}

func (a *AuditTrail) collect(idxs []int) []store.AuditEvent {
	out := make([]store.AuditEvent, len(idxs))
	for i, idx := range idxs {
		out[i] = a.events[idx]
	}
	return out
}

// Export returns every event matching the filter, in append order.
func (a *AuditTrail) Export(filter AuditFilter) []store.AuditEvent {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []store.AuditEvent
	for _, e := range a.events {
		if filter.TaskID != "" && e.TaskID != filter.TaskID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.AgentID != "" && !containsString(e.AgentIDs, filter.AgentID) {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats computes trail-wide statistics.
func (a *AuditTrail) Stats() AuditStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	stats := AuditStats{
		ByType:     make(map[store.AuditEventType]int),
		BySeverity: make(map[store.AuditSeverity]int),
	}
	for _, e := range a.events {
		stats.Total++
		stats.ByType[e.Type]++
		stats.BySeverity[e.Severity]++
		if e.Escalated {
			stats.Escalations++
		}
		if e.Confidence >= highConfidence {
			stats.HighConfidence++
		}
	}
	return stats
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
