package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// SaveTask inserts or replaces a task row. The full row is written every
// time; the Task is the unit of atomicity for callers.
func (d *DB) SaveTask(ctx context.Context, task store.Task) error {
	if task.ID == "" {
		task.ID = store.GenNewID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tasks (id, title, description, domain, priority, assigned_to, created_by,
			status, created_at, started_at, completed_at, due_at, requirements, result, confidence,
			parent_task_id, learnings, follow_ups)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.Title, task.Description, task.Domain, task.Priority,
		nullable(task.AssignedTo), task.CreatedBy, string(task.Status),
		task.CreatedAt.UnixMilli(), unixPtr(task.StartedAt), unixPtr(task.CompletedAt), unixPtr(task.DueAt),
		marshalJSON(task.Requirements), nullable(task.Result), task.Confidence,
		nullable(task.ParentTaskID), marshalJSON(task.Learnings), marshalJSON(task.FollowUps),
	)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask fetches one task by id.
func (d *DB) GetTask(ctx context.Context, id string) (store.Task, error) {
	row := d.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	t, err := d.scanTask(row)
	if err == sql.ErrNoRows {
		return store.Task{}, store.ErrNotFound
	}
	if err != nil {
		return store.Task{}, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// GetTasksByStatus returns tasks in the given status, highest priority first.
func (d *DB) GetTasksByStatus(ctx context.Context, status store.TaskStatus) ([]store.Task, error) {
	rows, err := d.db.QueryContext(ctx,
		taskSelect+` WHERE status = ? ORDER BY priority DESC, created_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("get tasks by status: %w", err)
	}
	defer rows.Close()
	return d.scanTasks(rows)
}

// GetTasksByAssignee returns tasks assigned to an agent, newest first.
func (d *DB) GetTasksByAssignee(ctx context.Context, agentID string) ([]store.Task, error) {
	rows, err := d.db.QueryContext(ctx,
		taskSelect+` WHERE assigned_to = ? ORDER BY created_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("get tasks by assignee: %w", err)
	}
	defer rows.Close()
	return d.scanTasks(rows)
}

// BotStats computes per-bot task statistics over all tasks the agent has
// ever been assigned.
func (d *DB) BotStats(ctx context.Context, agentID string) (store.BotTaskStats, error) {
	stats := store.BotTaskStats{AgentID: agentID}
	tasks, err := d.GetTasksByAssignee(ctx, agentID)
	if err != nil {
		return stats, err
	}
	var confSum float64
	var confN int
	for _, t := range tasks {
		stats.Total++
		switch t.Status {
		case store.TaskCompleted:
			stats.Completed++
		case store.TaskFailed, store.TaskTimeout:
			stats.Failed++
		}
		if t.Status.Terminal() {
			confSum += t.Confidence
			confN++
		}
	}
	if done := stats.Completed + stats.Failed; done > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(done)
	}
	if confN > 0 {
		stats.AvgConfidence = confSum / float64(confN)
	}
	if len(tasks) > 10 {
		tasks = tasks[:10]
	}
	stats.Recent = tasks
	return stats, nil
}

// DeleteTask removes a task row. Deleting a missing task is not an error.
func (d *DB) DeleteTask(ctx context.Context, id string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

const taskSelect = `SELECT id, title, description, domain, priority, assigned_to, created_by,
	status, created_at, started_at, completed_at, due_at, requirements, result, confidence,
	parent_task_id, learnings, follow_ups FROM tasks`

func (d *DB) scanTask(row rowScanner) (store.Task, error) {
	var t store.Task
	var status string
	var assignedTo, requirements, result, parentID, learnings, followUps sql.NullString
	var createdAt int64
	var startedAt, completedAt, dueAt sql.NullInt64
	if err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Domain, &t.Priority,
		&assignedTo, &t.CreatedBy, &status, &createdAt, &startedAt, &completedAt, &dueAt,
		&requirements, &result, &t.Confidence, &parentID, &learnings, &followUps); err != nil {
		return store.Task{}, err
	}
	t.Status = store.TaskStatus(status)
	t.CreatedAt = time.UnixMilli(createdAt)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	t.DueAt = timePtr(dueAt)
	if assignedTo.Valid {
		t.AssignedTo = assignedTo.String
	}
	if result.Valid {
		t.Result = result.String
	}
	if parentID.Valid {
		t.ParentTaskID = parentID.String
	}
	d.decodeJSON(requirements, &t.Requirements, "tasks", t.ID)
	d.decodeJSON(learnings, &t.Learnings, "tasks", t.ID)
	d.decodeJSON(followUps, &t.FollowUps, "tasks", t.ID)
	return t, nil
}

func (d *DB) scanTasks(rows *sql.Rows) ([]store.Task, error) {
	var tasks []store.Task
	for rows.Next() {
		t, err := d.scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64)
	return &t
}
