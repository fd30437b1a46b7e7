// Package store defines the persistent entities of the coordination core
// and the storage interfaces over them. Concrete backends live in
// store/sqlite; the read-through cache lives in store/cache.
package store

import (
	"time"

	"github.com/google/uuid"
)

// GenNewID returns a new random entity identifier.
func GenNewID() string {
	return uuid.NewString()
}

// MessageType classifies inter-agent messages.
type MessageType string

const (
	MessageRequest       MessageType = "request"
	MessageResponse      MessageType = "response"
	MessageReport        MessageType = "report"
	MessageDiscussion    MessageType = "discussion"
	MessageBroadcast     MessageType = "broadcast"
	MessageClarification MessageType = "clarification"
	MessageAgreement     MessageType = "agreement"
	MessageDisagreement  MessageType = "disagreement"
)

// RecipientTeam is the reserved recipient for team-wide broadcast.
const RecipientTeam = "team"

// Message is a single inter-agent message. Immutable after append.
type Message struct {
	ID             string            `json:"id"`
	Sender         string            `json:"sender"`
	Recipient      string            `json:"recipient"` // agent id or RecipientTeam
	Type           MessageType       `json:"type"`
	Content        string            `json:"content"`
	ConversationID string            `json:"conversation_id"`
	Context        map[string]string `json:"context,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	ResponseTo     string            `json:"response_to,omitempty"`
}

// Conversation threads messages. Participants is the union of senders and
// non-broadcast recipients. LastMessageAt is monotonic.
type Conversation struct {
	ID            string    `json:"id"`
	Initiator     string    `json:"initiator"`
	Subject       string    `json:"subject"`
	Messages      []Message `json:"messages"`
	Participants  []string  `json:"participants"`
	StickyTier    Tier      `json:"sticky_tier,omitempty"` // router's per-conversation tier state
	CreatedAt     time.Time `json:"created_at"`
	LastMessageAt time.Time `json:"last_message_at"`
}

// TaskStatus is the task state machine state.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskAssigned   TaskStatus = "assigned"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskCancelled  TaskStatus = "cancelled"
	TaskTimeout    TaskStatus = "timeout"
)

// Terminal reports whether the status ends the task lifecycle.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskTimeout:
		return true
	}
	return false
}

// Task priorities.
const (
	PriorityLow    = 1
	PriorityMedium = 3
	PriorityHigh   = 5
)

// Task is a unit of delegated work.
type Task struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Domain       string     `json:"domain"`
	Priority     int        `json:"priority"`
	AssignedTo   string     `json:"assigned_to,omitempty"`
	CreatedBy    string     `json:"created_by"`
	Status       TaskStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	DueAt        *time.Time `json:"due_at,omitempty"`
	Requirements []string   `json:"requirements,omitempty"`
	Result       string     `json:"result,omitempty"`
	Confidence   float64    `json:"confidence"` // [0,1], 0.0 on failure
	ParentTaskID string     `json:"parent_task_id,omitempty"`
	Learnings    []string   `json:"learnings,omitempty"`
	FollowUps    []string   `json:"follow_ups,omitempty"`
}

// BotTaskStats summarises a bot's task history.
type BotTaskStats struct {
	AgentID       string  `json:"agent_id"`
	Total         int     `json:"total"`
	Completed     int     `json:"completed"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgConfidence float64 `json:"avg_confidence"`
	Recent        []Task  `json:"recent"` // newest first, at most 10
}

// DecisionType distinguishes how a decision was produced.
type DecisionType string

const (
	DecisionConsensus         DecisionType = "consensus"
	DecisionDisputeResolution DecisionType = "dispute_resolution"
	DecisionExpertiseBased    DecisionType = "expertise_based"
	DecisionWeightedVote      DecisionType = "weighted_vote"
)

// Position is one participant's stance in a decision or disagreement.
type Position struct {
	AgentID        string  `json:"agent_id"`
	Position       string  `json:"position"`
	Confidence     float64 `json:"confidence"`
	Reasoning      string  `json:"reasoning,omitempty"`
	ExpertiseScore float64 `json:"expertise_score,omitempty"`
}

// Decision records a multi-bot decision with provenance.
type Decision struct {
	ID            string       `json:"id"`
	TaskID        string       `json:"task_id,omitempty"`
	Type          DecisionType `json:"type"`
	Participants  []string     `json:"participants"`
	Positions     []Position   `json:"positions"`
	FinalDecision string       `json:"final_decision"`
	Confidence    float64      `json:"confidence"`
	Reasoning     string       `json:"reasoning"`
	Dissent       string       `json:"dissent,omitempty"`
	Escalated     bool         `json:"escalated"`
	Timestamp     time.Time    `json:"timestamp"`
}

// DisagreementType is the inferred nature of a dispute.
type DisagreementType string

const (
	DisagreementFactual        DisagreementType = "factual"
	DisagreementMethodological DisagreementType = "methodological"
	DisagreementPriority       DisagreementType = "priority"
	DisagreementPhilosophical  DisagreementType = "philosophical"
	DisagreementIncompleteInfo DisagreementType = "incomplete_info"
)

// Disagreement captures a detected dispute between bots.
type Disagreement struct {
	ID           string           `json:"id"`
	TaskID       string           `json:"task_id,omitempty"`
	Type         DisagreementType `json:"type"`
	Positions    []Position       `json:"positions"`
	CommonGround string           `json:"common_ground,omitempty"`
	Severity     float64          `json:"severity"` // [0,1]
	Timestamp    time.Time        `json:"timestamp"`
}

// AuditEventType enumerates auditable coordinator actions.
type AuditEventType string

const (
	AuditDecisionMade     AuditEventType = "decision_made"
	AuditBotSelection     AuditEventType = "bot_selection"
	AuditConsensusReached AuditEventType = "consensus_reached"
	AuditDisputeDetected  AuditEventType = "dispute_detected"
	AuditDisputeResolved  AuditEventType = "dispute_resolved"
	AuditTaskAssigned     AuditEventType = "task_assigned"
	AuditTaskCompleted    AuditEventType = "task_completed"
	AuditTaskFailed       AuditEventType = "task_failed"
	AuditEscalation       AuditEventType = "escalation"
	AuditMessageSent      AuditEventType = "message_sent"
	AuditVoting           AuditEventType = "voting"
	AuditReasoning        AuditEventType = "reasoning"
)

// AuditSeverity grades audit events.
type AuditSeverity string

const (
	SeverityInfo     AuditSeverity = "info"
	SeverityWarning  AuditSeverity = "warning"
	SeverityError    AuditSeverity = "error"
	SeverityCritical AuditSeverity = "critical"
)

// AuditEvent is one append-only provenance record.
type AuditEvent struct {
	ID          string         `json:"id"`
	Type        AuditEventType `json:"type"`
	Timestamp   time.Time      `json:"timestamp"`
	TaskID      string         `json:"task_id,omitempty"`
	AgentIDs    []string       `json:"agent_ids,omitempty"`
	Description string         `json:"description"`
	Reasoning   string         `json:"reasoning,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	Severity    AuditSeverity  `json:"severity"`
	Confidence  float64        `json:"confidence"`
	RelatedIDs  []string       `json:"related_ids,omitempty"`
	Escalated   bool           `json:"escalated"`
}

// ToolBlob stores a large tool output out of the context window,
// referenced from message content as ref://<id>.
type ToolBlob struct {
	ID          string    `json:"id"`
	ToolName    string    `json:"tool_name"`
	Output      string    `json:"output"`
	Summary     string    `json:"summary"`
	CreatedAt   time.Time `json:"created_at"`
	SessionKey  string    `json:"session_key"`
	AccessCount int       `json:"access_count"`
	CharCount   int       `json:"char_count"`
}
