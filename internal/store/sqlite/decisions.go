package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// SaveDecision inserts a decision row.
func (d *DB) SaveDecision(ctx context.Context, dec store.Decision) error {
	if dec.ID == "" {
		dec.ID = store.GenNewID()
	}
	if dec.Timestamp.IsZero() {
		dec.Timestamp = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO decisions (id, task_id, type, participants, positions,
			final_decision, confidence, reasoning, dissent, escalated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		dec.ID, nullable(dec.TaskID), string(dec.Type),
		marshalJSON(dec.Participants), marshalJSON(dec.Positions),
		dec.FinalDecision, dec.Confidence, dec.Reasoning, nullable(dec.Dissent),
		boolToInt(dec.Escalated), dec.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save decision: %w", err)
	}
	return nil
}

// GetDecisionsByTask returns a task's decisions oldest first.
func (d *DB) GetDecisionsByTask(ctx context.Context, taskID string) ([]store.Decision, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, task_id, type, participants, positions, final_decision, confidence,
			reasoning, dissent, escalated, created_at
		 FROM decisions WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get decisions by task: %w", err)
	}
	defer rows.Close()

	var decisions []store.Decision
	for rows.Next() {
		var dec store.Decision
		var typ string
		var taskCol, participants, positions, reasoning, dissent sql.NullString
		var escalated int
		var createdAt int64
		if err := rows.Scan(&dec.ID, &taskCol, &typ, &participants, &positions,
			&dec.FinalDecision, &dec.Confidence, &reasoning, &dissent, &escalated, &createdAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		dec.Type = store.DecisionType(typ)
		dec.Timestamp = time.UnixMilli(createdAt)
		dec.Escalated = escalated != 0
		if taskCol.Valid {
			dec.TaskID = taskCol.String
		}
		if reasoning.Valid {
			dec.Reasoning = reasoning.String
		}
		if dissent.Valid {
			dec.Dissent = dissent.String
		}
		d.decodeJSON(participants, &dec.Participants, "decisions", dec.ID)
		d.decodeJSON(positions, &dec.Positions, "decisions", dec.ID)
		decisions = append(decisions, dec)
	}
	return decisions, rows.Err()
}

// SaveAuditEvent appends an audit event row. Events are never updated.
func (d *DB) SaveAuditEvent(ctx context.Context, e store.AuditEvent) error {
	if e.ID == "" {
		e.ID = store.GenNewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO audit_events (id, type, task_id, agent_ids, description, reasoning,
			details, severity, confidence, related_ids, escalated, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), nullable(e.TaskID), marshalJSON(e.AgentIDs),
		e.Description, nullable(e.Reasoning), marshalJSON(e.Details),
		string(e.Severity), e.Confidence, marshalJSON(e.RelatedIDs),
		boolToInt(e.Escalated), e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save audit event: %w", err)
	}
	return nil
}

// GetAuditEventsByTask returns a task's audit events oldest first.
func (d *DB) GetAuditEventsByTask(ctx context.Context, taskID string) ([]store.AuditEvent, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, type, task_id, agent_ids, description, reasoning, details,
			severity, confidence, related_ids, escalated, created_at
		 FROM audit_events WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("get audit events by task: %w", err)
	}
	defer rows.Close()

	var events []store.AuditEvent
	for rows.Next() {
		var e store.AuditEvent
		var typ, severity string
		var taskCol, agentIDs, reasoning, details, relatedIDs sql.NullString
		var escalated int
		var createdAt int64
		if err := rows.Scan(&e.ID, &typ, &taskCol, &agentIDs, &e.Description,
			&reasoning, &details, &severity, &e.Confidence, &relatedIDs, &escalated, &createdAt); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Type = store.AuditEventType(typ)
		e.Severity = store.AuditSeverity(severity)
		e.Timestamp = time.UnixMilli(createdAt)
		e.Escalated = escalated != 0
		if taskCol.Valid {
			e.TaskID = taskCol.String
		}
		if reasoning.Valid {
			e.Reasoning = reasoning.String
		}
		d.decodeJSON(agentIDs, &e.AgentIDs, "audit_events", e.ID)
		d.decodeJSON(details, &e.Details, "audit_events", e.ID)
		d.decodeJSON(relatedIDs, &e.RelatedIDs, "audit_events", e.ID)
		events = append(events, e)
	}
	return events, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
