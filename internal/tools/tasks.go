package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goswarm/internal/coordinator"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ============================================================
// create_task
// ============================================================

type CreateTaskTool struct {
	coord *coordinator.Coordinator
}

func NewCreateTaskTool(c *coordinator.Coordinator) *CreateTaskTool {
	return &CreateTaskTool{coord: c}
}

func (t *CreateTaskTool) Name() string { return "create_task" }
func (t *CreateTaskTool) Description() string {
	return "Create a pending task in the shared queue for any team member to claim."
}

func (t *CreateTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"type":        "string",
				"description": "Short task title",
			},
			"description": map[string]interface{}{
				"type":        "string",
				"description": "What needs to be done",
			},
			"domain": map[string]interface{}{
				"type":        "string",
				"description": "Expertise domain (research, coding, audit, ...)",
			},
			"priority": map[string]interface{}{
				"type":        "number",
				"description": "1 (low), 3 (medium), 5 (high)",
			},
		},
		"required": []string{"title"},
	}
}

func (t *CreateTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.coord == nil {
		return ErrorResult("coordinator not available")
	}
	title, _ := args["title"].(string)
	if title == "" {
		return ErrorResult("title is required")
	}
	description, _ := args["description"].(string)
	domain, _ := args["domain"].(string)
	priority := 0
	if v, ok := args["priority"].(float64); ok {
		priority = int(v)
	}

	task, err := t.coord.CreateTask(ctx, store.Task{
		Title:       title,
		Description: description,
		Domain:      domain,
		Priority:    priority,
		CreatedBy:   senderFromContext(ctx),
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("create task failed: %s", err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"created","task_id":"%s"}`, task.ID))
}

// ============================================================
// claim_task
// ============================================================

type ClaimTaskTool struct {
	coord *coordinator.Coordinator
}

func NewClaimTaskTool(c *coordinator.Coordinator) *ClaimTaskTool {
	return &ClaimTaskTool{coord: c}
}

func (t *ClaimTaskTool) Name() string { return "claim_task" }
func (t *ClaimTaskTool) Description() string {
	return "Claim a pending task and mark it started. Claiming also counts as a liveness heartbeat."
}

func (t *ClaimTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "Task to claim",
			},
		},
		"required": []string{"task_id"},
	}
}

func (t *ClaimTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.coord == nil {
		return ErrorResult("coordinator not available")
	}
	taskID, _ := args["task_id"].(string)
	if taskID == "" {
		return ErrorResult("task_id is required")
	}
	agentID := senderFromContext(ctx)

	t.coord.Heartbeat(agentID)
	if _, err := t.coord.Claim(ctx, taskID, agentID); err != nil {
		return ErrorResult(fmt.Sprintf("claim failed: %s", err)).WithError(err)
	}
	task, err := t.coord.Start(ctx, taskID, agentID)
	if err != nil {
		return ErrorResult(fmt.Sprintf("start failed: %s", err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"%s","task_id":"%s"}`, task.Status, task.ID))
}

// ============================================================
// complete_task
// ============================================================

type CompleteTaskTool struct {
	coord *coordinator.Coordinator
}

func NewCompleteTaskTool(c *coordinator.Coordinator) *CompleteTaskTool {
	return &CompleteTaskTool{coord: c}
}

func (t *CompleteTaskTool) Name() string { return "complete_task" }
func (t *CompleteTaskTool) Description() string {
	return "Report the outcome of a task you own: success with a result and confidence, or failure with a reason."
}

func (t *CompleteTaskTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task_id": map[string]interface{}{
				"type":        "string",
				"description": "Task to finish",
			},
			"result": map[string]interface{}{
				"type":        "string",
				"description": "Outcome summary",
			},
			"confidence": map[string]interface{}{
				"type":        "number",
				"description": "Confidence in the result, 0 to 1",
			},
			"failed": map[string]interface{}{
				"type":        "boolean",
				"description": "Set true to report failure instead of success",
			},
		},
		"required": []string{"task_id", "result"},
	}
}

func (t *CompleteTaskTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.coord == nil {
		return ErrorResult("coordinator not available")
	}
	taskID, _ := args["task_id"].(string)
	result, _ := args["result"].(string)
	if taskID == "" {
		return ErrorResult("task_id is required")
	}
	if result == "" {
		return ErrorResult("result is required")
	}
	agentID := senderFromContext(ctx)
	t.coord.Heartbeat(agentID)

	if failed, _ := args["failed"].(bool); failed {
		if _, err := t.coord.Fail(ctx, taskID, agentID, result); err != nil {
			return ErrorResult(fmt.Sprintf("fail failed: %s", err)).WithError(err)
		}
		return SilentResult(fmt.Sprintf(`{"status":"failed","task_id":"%s"}`, taskID))
	}

	confidence := 0.5
	if v, ok := args["confidence"].(float64); ok {
		confidence = v
	}
	if _, err := t.coord.Complete(ctx, taskID, agentID, coordinator.Outcome{
		Result:     result,
		Confidence: confidence,
	}); err != nil {
		return ErrorResult(fmt.Sprintf("complete failed: %s", err)).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"completed","task_id":"%s"}`, taskID))
}
