// Package coordinator owns the task lifecycle: assignment, liveness,
// decisions, disputes, and the audit trail behind all of them.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

var (
	// ErrNotOwner is returned when an agent operates on a task assigned to
	// someone else.
	ErrNotOwner = errors.New("task not owned by caller")
	// ErrNotClaimable is returned when a task cannot be claimed in its
	// current state.
	ErrNotClaimable = errors.New("task not claimable")
	// ErrBadTransition is returned on an illegal state-machine transition.
	ErrBadTransition = errors.New("illegal task transition")
)

const (
	// DefaultMonitorInterval is the liveness sweep cadence.
	DefaultMonitorInterval = 5 * time.Second
	// DefaultHeartbeatTimeout declares an agent dead past this silence.
	DefaultHeartbeatTimeout = 15 * time.Second
	// DefaultTerminalRetention is how long finished tasks are kept before GC.
	DefaultTerminalRetention = time.Hour
)

// Options tunes the coordinator. Zero values take the defaults above.
type Options struct {
	MonitorInterval   time.Duration
	HeartbeatTimeout  time.Duration
	TerminalRetention time.Duration
}

// Coordinator drives tasks through their state machine under liveness
// guarantees, and records every decision it makes to the audit trail.
type Coordinator struct {
	mu        sync.Mutex
	lastBeat  map[string]time.Time // agent id -> last heartbeat
	taskLocks map[string]*sync.Mutex

	tasks     store.TaskStore
	decisions store.DecisionStore
	audit     *AuditTrail
	opts      Options
	logger    *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// New builds a coordinator over the given stores.
func New(tasks store.TaskStore, decisions store.DecisionStore, opts Options, logger *slog.Logger) *Coordinator {
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = DefaultMonitorInterval
	}
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
	if opts.TerminalRetention <= 0 {
		opts.TerminalRetention = DefaultTerminalRetention
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		lastBeat:  make(map[string]time.Time),
		taskLocks: make(map[string]*sync.Mutex),
		tasks:     tasks,
		decisions: decisions,
		audit:     NewAuditTrail(decisions, logger),
		opts:      opts,
		logger:    logger,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Audit exposes the coordinator's audit trail.
func (c *Coordinator) Audit() *AuditTrail { return c.audit }

// lockTask serialises state transitions per task id.
func (c *Coordinator) lockTask(id string) func() {
	c.mu.Lock()
	l, ok := c.taskLocks[id]
	if !ok {
		l = &sync.Mutex{}
		c.taskLocks[id] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Heartbeat records a liveness signal from an agent.
func (c *Coordinator) Heartbeat(agentID string) {
	c.mu.Lock()
	c.lastBeat[agentID] = time.Now()
	c.mu.Unlock()
}

// lastHeartbeat returns the agent's last beat, zero if never seen.
func (c *Coordinator) lastHeartbeat(agentID string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastBeat[agentID]
}

// expired reports whether the agent's heartbeat has passed the timeout.
// An agent that never heartbeat is treated as expired.
func (c *Coordinator) expired(agentID string, now time.Time) bool {
	last := c.lastHeartbeat(agentID)
	if last.IsZero() {
		return true
	}
	return now.Sub(last) > c.opts.HeartbeatTimeout
}

// CreateTask registers new delegated work in the pending state.
func (c *Coordinator) CreateTask(ctx context.Context, task store.Task) (store.Task, error) {
	if task.ID == "" {
		task.ID = store.GenNewID()
	}
	if task.Priority == 0 {
		task.Priority = store.PriorityMedium
	}
	task.Status = store.TaskPending
	task.AssignedTo = ""
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if err := c.tasks.SaveTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// Claim moves a pending task to assigned for agentID. Re-claiming one's own
// task is a no-op success. A claim against another agent's task succeeds only
// when the incumbent's heartbeat has expired (steal).
func (c *Coordinator) Claim(ctx context.Context, taskID, agentID string) (store.Task, error) {
	unlock := c.lockTask(taskID)
	defer unlock()

	task, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, err
	}

	switch task.Status {
	case store.TaskPending:
		// claimable
	case store.TaskAssigned, store.TaskInProgress:
		if task.AssignedTo == agentID {
			return task, nil // idempotent re-claim
		}
		if !c.expired(task.AssignedTo, time.Now()) {
			return store.Task{}, fmt.Errorf("%w: held by %s", ErrNotClaimable, task.AssignedTo)
		}
		c.logger.Warn("task stolen from expired agent",
			"task", taskID, "from", task.AssignedTo, "to", agentID)
	default:
		return store.Task{}, fmt.Errorf("%w: status %s", ErrNotClaimable, task.Status)
	}

	task.Status = store.TaskAssigned
	task.AssignedTo = agentID
	if err := c.tasks.SaveTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("claim task: %w", err)
	}
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditTaskAssigned,
		TaskID:      task.ID,
		AgentIDs:    []string{agentID},
		Description: fmt.Sprintf("task %q assigned to %s", task.Title, agentID),
		Severity:    store.SeverityInfo,
	})
	return task, nil
}

// Start moves an assigned task to in_progress. Owner-guarded.
func (c *Coordinator) Start(ctx context.Context, taskID, agentID string) (store.Task, error) {
	unlock := c.lockTask(taskID)
	defer unlock()

	task, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, err
	}
	if task.AssignedTo != agentID {
		return store.Task{}, fmt.Errorf("%w: task %s belongs to %s", ErrNotOwner, taskID, task.AssignedTo)
	}
	if task.Status != store.TaskAssigned {
		return store.Task{}, fmt.Errorf("%w: start from %s", ErrBadTransition, task.Status)
	}

	now := time.Now()
	task.Status = store.TaskInProgress
	task.StartedAt = &now
	if err := c.tasks.SaveTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("start task: %w", err)
	}
	return task, nil
}

// Outcome is the result payload of a finished task.
type Outcome struct {
	Result     string
	Confidence float64
	Learnings  []string
	FollowUps  []string
}

// Complete finishes an in-progress task. Owner-guarded.
func (c *Coordinator) Complete(ctx context.Context, taskID, agentID string, out Outcome) (store.Task, error) {
	unlock := c.lockTask(taskID)
	defer unlock()

	task, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, err
	}
	if task.AssignedTo != agentID {
		return store.Task{}, fmt.Errorf("%w: task %s belongs to %s", ErrNotOwner, taskID, task.AssignedTo)
	}
	if task.Status != store.TaskInProgress {
		return store.Task{}, fmt.Errorf("%w: complete from %s", ErrBadTransition, task.Status)
	}

	now := time.Now()
	task.Status = store.TaskCompleted
	task.CompletedAt = &now
	task.Result = out.Result
	task.Confidence = out.Confidence
	task.Learnings = out.Learnings
	task.FollowUps = out.FollowUps
	if err := c.tasks.SaveTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("complete task: %w", err)
	}
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditTaskCompleted,
		TaskID:      task.ID,
		AgentIDs:    []string{agentID},
		Description: fmt.Sprintf("task %q completed by %s", task.Title, agentID),
		Confidence:  out.Confidence,
		Severity:    store.SeverityInfo,
	})
	return task, nil
}

// Fail marks an in-progress task failed. Confidence is forced to zero.
// Owner-guarded.
func (c *Coordinator) Fail(ctx context.Context, taskID, agentID, reason string) (store.Task, error) {
	unlock := c.lockTask(taskID)
	defer unlock()

	task, err := c.tasks.GetTask(ctx, taskID)
	if err != nil {
		return store.Task{}, err
	}
	if task.AssignedTo != agentID {
		return store.Task{}, fmt.Errorf("%w: task %s belongs to %s", ErrNotOwner, taskID, task.AssignedTo)
	}
	if task.Status != store.TaskInProgress && task.Status != store.TaskAssigned {
		return store.Task{}, fmt.Errorf("%w: fail from %s", ErrBadTransition, task.Status)
	}

	now := time.Now()
	task.Status = store.TaskFailed
	task.CompletedAt = &now
	task.Result = reason
	task.Confidence = 0.0
	if err := c.tasks.SaveTask(ctx, task); err != nil {
		return store.Task{}, fmt.Errorf("fail task: %w", err)
	}
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditTaskFailed,
		TaskID:      task.ID,
		AgentIDs:    []string{agentID},
		Description: fmt.Sprintf("task %q failed: %s", task.Title, reason),
		Severity:    store.SeverityError,
	})
	return task, nil
}

// Run starts the liveness monitor and blocks until Stop is called or the
// context is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.opts.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stop:
			return
		case now := <-ticker.C:
			c.sweep(ctx, now)
		}
	}
}

// Stop shuts the liveness monitor down and waits for it to exit.
func (c *Coordinator) Stop() {
	close(c.stop)
	<-c.done
}

// sweep is one liveness pass: requeue tasks held by expired agents and
// garbage-collect old terminal tasks.
func (c *Coordinator) sweep(ctx context.Context, now time.Time) {
	for _, status := range []store.TaskStatus{store.TaskAssigned, store.TaskInProgress} {
		tasks, err := c.tasks.GetTasksByStatus(ctx, status)
		if err != nil {
			c.logger.Warn("liveness sweep: fetch failed", "status", status, "error", err)
			continue
		}
		for _, task := range tasks {
			if task.AssignedTo == "" || !c.expired(task.AssignedTo, now) {
				continue
			}
			c.requeue(ctx, task)
		}
	}
	c.gcTerminal(ctx, now)
}

// requeue returns a task held by a dead agent to the pending pool.
func (c *Coordinator) requeue(ctx context.Context, task store.Task) {
	unlock := c.lockTask(task.ID)
	defer unlock()

	// Re-read under the task lock; the owner may have finished meanwhile.
	fresh, err := c.tasks.GetTask(ctx, task.ID)
	if err != nil || fresh.Status.Terminal() || fresh.AssignedTo != task.AssignedTo {
		return
	}

	dead := fresh.AssignedTo
	fresh.Status = store.TaskPending
	fresh.AssignedTo = ""
	fresh.StartedAt = nil
	if err := c.tasks.SaveTask(ctx, fresh); err != nil {
		c.logger.Warn("liveness sweep: requeue failed", "task", fresh.ID, "error", err)
		return
	}
	c.logger.Info("task requeued after heartbeat timeout", "task", fresh.ID, "agent", dead)
	c.audit.Record(ctx, store.AuditEvent{
		Type:        store.AuditTaskAssigned,
		TaskID:      fresh.ID,
		AgentIDs:    []string{dead},
		Description: fmt.Sprintf("task %q returned to pending: %s heartbeat expired", fresh.Title, dead),
		Severity:    store.SeverityWarning,
	})
}

// gcTerminal drops finished tasks past the retention window.
func (c *Coordinator) gcTerminal(ctx context.Context, now time.Time) {
	cutoff := now.Add(-c.opts.TerminalRetention)
	for _, status := range []store.TaskStatus{store.TaskCompleted, store.TaskFailed} {
		tasks, err := c.tasks.GetTasksByStatus(ctx, status)
		if err != nil {
			continue
		}
		for _, task := range tasks {
			if task.CompletedAt == nil || task.CompletedAt.After(cutoff) {
				continue
			}
			if err := c.tasks.DeleteTask(ctx, task.ID); err != nil {
				c.logger.Warn("task gc failed", "task", task.ID, "error", err)
				continue
			}
			c.mu.Lock()
			delete(c.taskLocks, task.ID)
			c.mu.Unlock()
		}
	}
}
