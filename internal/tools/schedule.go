package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/executor"
	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// ============================================================
// schedule
// ============================================================

// ScheduleTool manages routine jobs with an action argument, mirroring the
// schedule subcommand surface. Boundary errors carry the Error: prefix.
type ScheduleTool struct {
	exec *executor.Executor
}

func NewScheduleTool(e *executor.Executor) *ScheduleTool {
	return &ScheduleTool{exec: e}
}

func (t *ScheduleTool) Name() string { return "schedule" }
func (t *ScheduleTool) Description() string {
	return "Manage scheduled jobs: add a reminder, schedule routing calibration, list jobs, or remove one."
}

func (t *ScheduleTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{
				"type":        "string",
				"description": "One of: add, calibrate, list, remove",
			},
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to run (required for add)",
			},
			"every_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Fixed interval in seconds",
			},
			"cron": map[string]interface{}{
				"type":        "string",
				"description": "Cron expression",
			},
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "Cron timezone (IANA name)",
			},
			"at": map[string]interface{}{
				"type":        "string",
				"description": "One-shot RFC3339 timestamp",
			},
			"job_id": map[string]interface{}{
				"type":        "string",
				"description": "Job id (required for remove)",
			},
		},
		"required": []string{"action"},
	}
}

func (t *ScheduleTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.exec == nil {
		return ErrorResult("Error: scheduler not available")
	}
	action, _ := args["action"].(string)
	switch action {
	case "add":
		return t.add(ctx, args)
	case "calibrate":
		return t.calibrate(ctx, args)
	case "list":
		return t.list(ctx)
	case "remove":
		return t.remove(ctx, args)
	}
	return ErrorResult(fmt.Sprintf("Error: unknown action %q (want add, calibrate, list, or remove)", action))
}

func (t *ScheduleTool) add(ctx context.Context, args map[string]interface{}) *Result {
	message, _ := args["message"].(string)
	if message == "" {
		return ErrorResult("Error: message is required")
	}
	schedule, errRes := scheduleFromArgs(args)
	if errRes != nil {
		return errRes
	}
	job, err := t.exec.Add(ctx, store.RoutineJob{
		Name:     preview(message, 48),
		Schedule: schedule,
		Payload: store.JobPayload{
			Message: message,
			AgentID: senderFromContext(ctx),
		},
	})
	if err != nil {
		return ErrorResult("Error: " + err.Error()).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"added","job_id":"%s"}`, job.ID))
}

func (t *ScheduleTool) calibrate(ctx context.Context, args map[string]interface{}) *Result {
	cronExpr, _ := args["cron"].(string)
	if cronExpr == "" {
		cronExpr = "0 2 * * *"
	}
	job, err := t.exec.Add(ctx, store.RoutineJob{
		Name:     "routing calibration",
		Schedule: store.JobSchedule{CronExpr: cronExpr},
		Payload:  store.JobPayload{Kind: store.JobKindCalibration},
	})
	if err != nil {
		return ErrorResult("Error: " + err.Error()).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"added","job_id":"%s","cron":"%s"}`, job.ID, cronExpr))
}

func (t *ScheduleTool) list(ctx context.Context) *Result {
	jobs, err := t.exec.List(ctx)
	if err != nil {
		return ErrorResult("Error: " + err.Error()).WithError(err)
	}
	if len(jobs) == 0 {
		return NewResult("no jobs")
	}
	var sb strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&sb, "%s  %s  %s\n", j.ID, j.Name, describeJobSchedule(j.Schedule))
	}
	return NewResult(sb.String())
}

func (t *ScheduleTool) remove(ctx context.Context, args map[string]interface{}) *Result {
	jobID, _ := args["job_id"].(string)
	if jobID == "" {
		return ErrorResult("Error: job_id is required")
	}
	if err := t.exec.Remove(ctx, jobID); err != nil {
		return ErrorResult("Error: " + err.Error()).WithError(err)
	}
	return SilentResult(fmt.Sprintf(`{"status":"removed","job_id":"%s"}`, jobID))
}

func scheduleFromArgs(args map[string]interface{}) (store.JobSchedule, *Result) {
	var s store.JobSchedule
	if v, ok := args["every_seconds"].(float64); ok && v > 0 {
		s.EveryMS = int64(v) * 1000
	}
	if v, _ := args["cron"].(string); v != "" {
		s.CronExpr = v
	}
	if v, _ := args["timezone"].(string); v != "" {
		s.Timezone = v
	}
	if v, _ := args["at"].(string); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return s, ErrorResult(fmt.Sprintf("Error: invalid at timestamp %q (want RFC3339)", v))
		}
		s.At = &at
	}
	return s, nil
}

func describeJobSchedule(s store.JobSchedule) string {
	switch {
	case s.EveryMS > 0:
		return fmt.Sprintf("every %s", time.Duration(s.EveryMS)*time.Millisecond)
	case s.CronExpr != "":
		if s.Timezone != "" {
			return fmt.Sprintf("cron %q (%s)", s.CronExpr, s.Timezone)
		}
		return fmt.Sprintf("cron %q", s.CronExpr)
	case s.At != nil:
		return "at " + s.At.Format(time.RFC3339)
	}
	return "unscheduled"
}
