package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// MessageFilter narrows message searches. Zero values mean "any".
type MessageFilter struct {
	Sender string
	Type   MessageType
	Limit  int
}

// MessageStore persists inter-agent messages and their conversations.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg Message) error
	GetMessage(ctx context.Context, id string) (Message, error)
	// GetConversation returns the conversation's messages ascending by time.
	GetConversation(ctx context.Context, conversationID string) ([]Message, error)
	// SearchMessages does substring search over content with optional filters.
	SearchMessages(ctx context.Context, query string, filter MessageFilter) ([]Message, error)
}

// TaskStore persists tasks. SaveTask is insert-or-replace; the Task row
// is the unit of atomicity for callers.
type TaskStore interface {
	SaveTask(ctx context.Context, task Task) error
	GetTask(ctx context.Context, id string) (Task, error)
	GetTasksByStatus(ctx context.Context, status TaskStatus) ([]Task, error)
	GetTasksByAssignee(ctx context.Context, agentID string) ([]Task, error)
	// BotStats computes count, success rate, average confidence and the
	// 10 most recent tasks for one agent.
	BotStats(ctx context.Context, agentID string) (BotTaskStats, error)
	DeleteTask(ctx context.Context, id string) error
}

// DecisionStore persists decisions and audit events.
type DecisionStore interface {
	SaveDecision(ctx context.Context, d Decision) error
	GetDecisionsByTask(ctx context.Context, taskID string) ([]Decision, error)
	SaveAuditEvent(ctx context.Context, e AuditEvent) error
	GetAuditEventsByTask(ctx context.Context, taskID string) ([]AuditEvent, error)
}

// BlobStore persists large tool outputs referenced by opaque id.
type BlobStore interface {
	SaveBlob(ctx context.Context, blob ToolBlob) error
	// GetBlob returns the blob and increments its access counter.
	GetBlob(ctx context.Context, id string) (ToolBlob, error)
	// CleanupBlobs deletes blobs created before cutoff; returns the count.
	CleanupBlobs(ctx context.Context, cutoff time.Time) (int, error)
}

// JobStore persists routine jobs so schedules survive restarts.
type JobStore interface {
	SaveJob(ctx context.Context, job RoutineJob) error
	GetJob(ctx context.Context, id string) (RoutineJob, error)
	ListJobs(ctx context.Context) ([]RoutineJob, error)
	DeleteJob(ctx context.Context, id string) error
}

// Stores is the top-level container for all storage backends.
type Stores struct {
	Messages  MessageStore
	Tasks     TaskStore
	Decisions DecisionStore
	Blobs     BlobStore
	Jobs      JobStore
}
