package tools

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/coordinator"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

type fakeTasks struct {
	tasks map[string]store.Task
}

func (f *fakeTasks) SaveTask(_ context.Context, task store.Task) error {
	if f.tasks == nil {
		f.tasks = map[string]store.Task{}
	}
	f.tasks[task.ID] = task
	return nil
}

func (f *fakeTasks) GetTask(_ context.Context, id string) (store.Task, error) {
	task, ok := f.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (f *fakeTasks) GetTasksByStatus(_ context.Context, status store.TaskStatus) ([]store.Task, error) {
	var out []store.Task
	for _, t := range f.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) GetTasksByAssignee(_ context.Context, agentID string) ([]store.Task, error) {
	var out []store.Task
	for _, t := range f.tasks {
		if t.AssignedTo == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeTasks) BotStats(_ context.Context, agentID string) (store.BotTaskStats, error) {
	return store.BotTaskStats{AgentID: agentID}, nil
}

func (f *fakeTasks) DeleteTask(_ context.Context, id string) error {
	delete(f.tasks, id)
	return nil
}

type fakeDecisions struct {
	decisions []store.Decision
	events    []store.AuditEvent
}

func (f *fakeDecisions) SaveDecision(_ context.Context, d store.Decision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func (f *fakeDecisions) GetDecisionsByTask(_ context.Context, taskID string) ([]store.Decision, error) {
	var out []store.Decision
	for _, d := range f.decisions {
		if d.TaskID == taskID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDecisions) SaveAuditEvent(_ context.Context, e store.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func (f *fakeDecisions) GetAuditEventsByTask(_ context.Context, taskID string) ([]store.AuditEvent, error) {
	var out []store.AuditEvent
	for _, e := range f.events {
		if e.TaskID == taskID {
			out = append(out, e)
		}
	}
	return out, nil
}

func newToolCoordinator(t *testing.T) (*coordinator.Coordinator, *fakeTasks) {
	t.Helper()
	tasks := &fakeTasks{}
	c := coordinator.New(tasks, &fakeDecisions{}, coordinator.Options{
		HeartbeatTimeout: time.Minute,
	}, quietLogger())
	return c, tasks
}

func TestCreateTaskTool(t *testing.T) {
	c, tasks := newToolCoordinator(t)
	tool := NewCreateTaskTool(c)
	ctx := WithAgentID(context.Background(), "leader")

	res := tool.Execute(ctx, map[string]interface{}{
		"title":    "write release notes",
		"domain":   "creative",
		"priority": float64(5),
	})
	if res.IsError || !res.Silent {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.ForLLM, `"status":"created"`) {
		t.Errorf("result = %q", res.ForLLM)
	}

	if len(tasks.tasks) != 1 {
		t.Fatalf("stored %d tasks", len(tasks.tasks))
	}
	for _, task := range tasks.tasks {
		if task.Status != store.TaskPending {
			t.Errorf("status = %q", task.Status)
		}
		if task.CreatedBy != "leader" {
			t.Errorf("created_by = %q", task.CreatedBy)
		}
		if task.Priority != store.PriorityHigh {
			t.Errorf("priority = %d", task.Priority)
		}
	}

	if res := tool.Execute(ctx, map[string]interface{}{}); !res.IsError {
		t.Error("missing title should error")
	}
}

func TestClaimTaskTool(t *testing.T) {
	c, _ := newToolCoordinator(t)
	created, err := c.CreateTask(context.Background(), store.Task{Title: "triage bug"})
	if err != nil {
		t.Fatal(err)
	}

	tool := NewClaimTaskTool(c)
	ctx := WithAgentID(context.Background(), "coder")

	res := tool.Execute(ctx, map[string]interface{}{"task_id": created.ID})
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	// Claim rolls straight into Start.
	if !strings.Contains(res.ForLLM, `"status":"in_progress"`) {
		t.Errorf("result = %q", res.ForLLM)
	}

	// A live owner blocks rival claims.
	rival := tool.Execute(WithAgentID(context.Background(), "auditor"),
		map[string]interface{}{"task_id": created.ID})
	if !rival.IsError {
		t.Errorf("rival claim = %+v, want error", rival)
	}

	if res := tool.Execute(ctx, map[string]interface{}{}); !res.IsError {
		t.Error("missing task_id should error")
	}
}

func TestCompleteTaskTool(t *testing.T) {
	c, tasks := newToolCoordinator(t)
	ctx := WithAgentID(context.Background(), "coder")
	claim := NewClaimTaskTool(c)
	tool := NewCompleteTaskTool(c)

	created, err := c.CreateTask(context.Background(), store.Task{Title: "fix flaky test"})
	if err != nil {
		t.Fatal(err)
	}
	if res := claim.Execute(ctx, map[string]interface{}{"task_id": created.ID}); res.IsError {
		t.Fatalf("claim: %+v", res)
	}

	res := tool.Execute(ctx, map[string]interface{}{
		"task_id":    created.ID,
		"result":     "stabilized with a fake clock",
		"confidence": 0.9,
	})
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	task := tasks.tasks[created.ID]
	if task.Status != store.TaskCompleted || task.Confidence != 0.9 {
		t.Errorf("task = %+v", task)
	}

	// Only the owner may finish.
	other, err := c.CreateTask(context.Background(), store.Task{Title: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if res := claim.Execute(ctx, map[string]interface{}{"task_id": other.ID}); res.IsError {
		t.Fatalf("claim: %+v", res)
	}
	stranger := tool.Execute(WithAgentID(context.Background(), "auditor"), map[string]interface{}{
		"task_id": other.ID, "result": "done",
	})
	if !stranger.IsError {
		t.Errorf("stranger completion = %+v, want error", stranger)
	}
}

func TestCompleteTaskTool_Failure(t *testing.T) {
	c, tasks := newToolCoordinator(t)
	ctx := WithAgentID(context.Background(), "coder")

	created, err := c.CreateTask(context.Background(), store.Task{Title: "migrate db"})
	if err != nil {
		t.Fatal(err)
	}
	if res := NewClaimTaskTool(c).Execute(ctx, map[string]interface{}{"task_id": created.ID}); res.IsError {
		t.Fatalf("claim: %+v", res)
	}

	res := NewCompleteTaskTool(c).Execute(ctx, map[string]interface{}{
		"task_id": created.ID,
		"result":  "migration locked the table",
		"failed":  true,
	})
	if res.IsError {
		t.Fatalf("result = %+v", res)
	}
	task := tasks.tasks[created.ID]
	if task.Status != store.TaskFailed || task.Confidence != 0 {
		t.Errorf("task = %+v", task)
	}
}
