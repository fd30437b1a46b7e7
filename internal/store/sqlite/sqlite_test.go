package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "swarm.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	return db
}

func TestInit_Idempotent(t *testing.T) {
	db := newTestDB(t)
	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("second init: %v", err)
	}
}

func TestMessageRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := store.Message{
		ID:             "m1",
		Sender:         "coder",
		Recipient:      "auditor",
		Type:           store.MessageRequest,
		Content:        "please review the cache layer",
		ConversationID: "c1",
		Context:        map[string]string{"task_id": "t1"},
		ResponseTo:     "m0",
		Timestamp:      time.UnixMilli(1000),
	}
	if err := db.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Sender != "coder" || got.Recipient != "auditor" || got.Type != store.MessageRequest {
		t.Errorf("message = %+v", got)
	}
	if got.Context["task_id"] != "t1" {
		t.Errorf("context = %v", got.Context)
	}
	if got.ResponseTo != "m0" {
		t.Errorf("response_to = %q", got.ResponseTo)
	}
	if !got.Timestamp.Equal(time.UnixMilli(1000)) {
		t.Errorf("timestamp = %v", got.Timestamp)
	}

	if _, err := db.GetMessage(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing message: err = %v, want ErrNotFound", err)
	}
}

func TestSaveMessage_FillsDefaults(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	msg := store.Message{Sender: "a", Recipient: "b", Content: "hi", ConversationID: "c1"}
	if err := db.SaveMessage(ctx, msg); err != nil {
		t.Fatalf("save: %v", err)
	}
	msgs, err := db.GetConversation(ctx, "c1")
	if err != nil || len(msgs) != 1 {
		t.Fatalf("conversation = (%d, %v)", len(msgs), err)
	}
	if msgs[0].ID == "" {
		t.Error("id not generated")
	}
	if msgs[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestGetConversation_Ordering(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for i, content := range []string{"first", "second", "third"} {
		err := db.SaveMessage(ctx, store.Message{
			Sender: "a", Recipient: "b", Content: content,
			ConversationID: "c1", Timestamp: time.UnixMilli(int64(1000 + i)),
		})
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}
	msgs, err := db.GetConversation(ctx, "c1")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[2].Content != "third" {
		t.Errorf("conversation order wrong: %+v", msgs)
	}
}

func TestSearchMessages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []store.Message{
		{Sender: "coder", Recipient: "team", Type: store.MessageBroadcast,
			Content: "deploy finished at 100%", ConversationID: "c1", Timestamp: time.UnixMilli(1000)},
		{Sender: "auditor", Recipient: "coder", Type: store.MessageRequest,
			Content: "deploy logs please", ConversationID: "c1", Timestamp: time.UnixMilli(2000)},
		{Sender: "coder", Recipient: "auditor", Type: store.MessageResponse,
			Content: "attached the deploy logs", ConversationID: "c1", Timestamp: time.UnixMilli(3000)},
	}
	for i, m := range seed {
		if err := db.SaveMessage(ctx, m); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	tests := []struct {
		name   string
		query  string
		filter store.MessageFilter
		want   int
	}{
		{"substring", "deploy", store.MessageFilter{}, 3},
		{"sender filter", "deploy", store.MessageFilter{Sender: "auditor"}, 1},
		{"type filter", "deploy", store.MessageFilter{Type: store.MessageResponse}, 1},
		{"limit", "deploy", store.MessageFilter{Limit: 2}, 2},
		{"no match", "rollback", store.MessageFilter{}, 0},
		// % must match literally, not as a wildcard.
		{"escaped wildcard", "100%", store.MessageFilter{}, 1},
		{"wildcard is not magic", "%logs%", store.MessageFilter{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := db.SearchMessages(ctx, tt.query, tt.filter)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("search(%q, %+v) = %d messages, want %d", tt.query, tt.filter, len(got), tt.want)
			}
		})
	}

	// Newest first.
	got, err := db.SearchMessages(ctx, "deploy", store.MessageFilter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if got[0].Content != "attached the deploy logs" {
		t.Errorf("search[0] = %q, want newest first", got[0].Content)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	started := time.UnixMilli(2000)
	task := store.Task{
		ID:           "t1",
		Title:        "refactor cache",
		Description:  "split the TTL layer out",
		Domain:       "coding",
		Priority:     store.PriorityHigh,
		AssignedTo:   "coder",
		CreatedBy:    "lead",
		Status:       store.TaskInProgress,
		CreatedAt:    time.UnixMilli(1000),
		StartedAt:    &started,
		Requirements: []string{"tests pass", "no API break"},
		Confidence:   0.7,
		ParentTaskID: "t0",
		Learnings:    []string{"expirable LRU counts evictions on replace"},
		FollowUps:    []string{"tune the TTL"},
	}
	if err := db.SaveTask(ctx, task); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != task.Title || got.AssignedTo != "coder" || got.Status != store.TaskInProgress {
		t.Errorf("task = %+v", got)
	}
	if got.StartedAt == nil || !got.StartedAt.Equal(started) {
		t.Errorf("started_at = %v", got.StartedAt)
	}
	if got.CompletedAt != nil || got.DueAt != nil {
		t.Errorf("unset times came back non-nil: %+v", got)
	}
	if len(got.Requirements) != 2 || len(got.Learnings) != 1 || len(got.FollowUps) != 1 {
		t.Errorf("json columns = %v / %v / %v", got.Requirements, got.Learnings, got.FollowUps)
	}
	if got.ParentTaskID != "t0" {
		t.Errorf("parent = %q", got.ParentTaskID)
	}

	if _, err := db.GetTask(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing task: err = %v, want ErrNotFound", err)
	}
}

func TestGetTasksByStatus_PriorityOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []store.Task{
		{ID: "low", Title: "low", Priority: store.PriorityLow, Status: store.TaskPending, CreatedAt: time.UnixMilli(1000)},
		{ID: "high", Title: "high", Priority: store.PriorityHigh, Status: store.TaskPending, CreatedAt: time.UnixMilli(2000)},
		{ID: "med", Title: "med", Priority: store.PriorityMedium, Status: store.TaskPending, CreatedAt: time.UnixMilli(3000)},
		{ID: "done", Title: "done", Priority: store.PriorityHigh, Status: store.TaskCompleted, CreatedAt: time.UnixMilli(4000)},
	}
	for _, task := range seed {
		if err := db.SaveTask(ctx, task); err != nil {
			t.Fatalf("save %s: %v", task.ID, err)
		}
	}

	got, err := db.GetTasksByStatus(ctx, store.TaskPending)
	if err != nil {
		t.Fatalf("by status: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("pending = %d tasks, want 3", len(got))
	}
	if got[0].ID != "high" || got[1].ID != "med" || got[2].ID != "low" {
		t.Errorf("order = %s, %s, %s; want high, med, low", got[0].ID, got[1].ID, got[2].ID)
	}
}

func TestDeleteTask(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := db.SaveTask(ctx, store.Task{ID: "t1", Title: "x", Status: store.TaskCompleted}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := db.DeleteTask(ctx, "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetTask(ctx, "t1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted task still readable: %v", err)
	}
	// Deleting again is not an error.
	if err := db.DeleteTask(ctx, "t1"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestBotStats(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	seed := []store.Task{
		{ID: "t1", Title: "a", AssignedTo: "coder", Status: store.TaskCompleted, Confidence: 0.9, CreatedAt: time.UnixMilli(1000)},
		{ID: "t2", Title: "b", AssignedTo: "coder", Status: store.TaskCompleted, Confidence: 0.7, CreatedAt: time.UnixMilli(2000)},
		{ID: "t3", Title: "c", AssignedTo: "coder", Status: store.TaskFailed, Confidence: 0, CreatedAt: time.UnixMilli(3000)},
		{ID: "t4", Title: "d", AssignedTo: "coder", Status: store.TaskTimeout, Confidence: 0, CreatedAt: time.UnixMilli(4000)},
		{ID: "t5", Title: "e", AssignedTo: "coder", Status: store.TaskInProgress, Confidence: 0.5, CreatedAt: time.UnixMilli(5000)},
		{ID: "t6", Title: "f", AssignedTo: "other", Status: store.TaskCompleted, Confidence: 1, CreatedAt: time.UnixMilli(6000)},
	}
	for _, task := range seed {
		if err := db.SaveTask(ctx, task); err != nil {
			t.Fatalf("save %s: %v", task.ID, err)
		}
	}

	stats, err := db.BotStats(ctx, "coder")
	if err != nil {
		t.Fatalf("bot stats: %v", err)
	}
	if stats.Total != 5 || stats.Completed != 2 || stats.Failed != 2 {
		t.Errorf("counts = %+v", stats)
	}
	// 2 completed of 4 terminal-outcome tasks.
	if stats.SuccessRate != 0.5 {
		t.Errorf("success rate = %.2f, want 0.5", stats.SuccessRate)
	}
	// avg confidence over terminal tasks: (0.9+0.7+0+0)/4
	if stats.AvgConfidence != 0.4 {
		t.Errorf("avg confidence = %.2f, want 0.4", stats.AvgConfidence)
	}
	if len(stats.Recent) != 5 || stats.Recent[0].ID != "t5" {
		t.Errorf("recent = %d tasks, first %q; want 5 newest first", len(stats.Recent), stats.Recent[0].ID)
	}
}

func TestDecisionRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	dec := store.Decision{
		ID:     "d1",
		TaskID: "t1",
		Type:   store.DecisionWeightedVote,
		Participants: []string{"alice", "bob"},
		Positions: []store.Position{
			{AgentID: "alice", Position: "x", Confidence: 0.9, ExpertiseScore: 0.8},
			{AgentID: "bob", Position: "y", Confidence: 0.4},
		},
		FinalDecision: "x",
		Confidence:    0.8,
		Reasoning:     "weighted vote",
		Dissent:       `"y" held by bob`,
		Escalated:     true,
		Timestamp:     time.UnixMilli(1000),
	}
	if err := db.SaveDecision(ctx, dec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetDecisionsByTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("decisions = %d, want 1", len(got))
	}
	d := got[0]
	if d.FinalDecision != "x" || !d.Escalated || d.Dissent == "" {
		t.Errorf("decision = %+v", d)
	}
	if len(d.Positions) != 2 || d.Positions[0].ExpertiseScore != 0.8 {
		t.Errorf("positions = %+v", d.Positions)
	}
	if len(d.Participants) != 2 {
		t.Errorf("participants = %v", d.Participants)
	}
}

func TestAuditEventRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	events := []store.AuditEvent{
		{ID: "e1", Type: store.AuditTaskAssigned, TaskID: "t1", AgentIDs: []string{"coder"},
			Description: "assigned", Severity: store.SeverityInfo, Timestamp: time.UnixMilli(1000)},
		{ID: "e2", Type: store.AuditEscalation, TaskID: "t1", AgentIDs: []string{"coder", "auditor"},
			Description: "split vote", Severity: store.SeverityWarning, Escalated: true,
			Details:   map[string]any{"votes": "1-1"},
			Timestamp: time.UnixMilli(2000)},
	}
	for _, e := range events {
		if err := db.SaveAuditEvent(ctx, e); err != nil {
			t.Fatalf("save %s: %v", e.ID, err)
		}
	}

	got, err := db.GetAuditEventsByTask(ctx, "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	// Oldest first.
	if got[0].ID != "e1" || got[1].ID != "e2" {
		t.Errorf("order = %s, %s", got[0].ID, got[1].ID)
	}
	if !got[1].Escalated || got[1].Severity != store.SeverityWarning {
		t.Errorf("event = %+v", got[1])
	}
	if got[1].Details["votes"] != "1-1" {
		t.Errorf("details = %v", got[1].Details)
	}
	if len(got[1].AgentIDs) != 2 {
		t.Errorf("agent ids = %v", got[1].AgentIDs)
	}
}

func TestBlobAccessCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	blob := store.ToolBlob{ID: "b1", ToolName: "search", Output: "a very long output", Summary: "short"}
	if err := db.SaveBlob(ctx, blob); err != nil {
		t.Fatalf("save: %v", err)
	}

	first, err := db.GetBlob(ctx, "b1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if first.AccessCount != 1 {
		t.Errorf("access count = %d, want 1", first.AccessCount)
	}
	if first.CharCount != len(blob.Output) {
		t.Errorf("char count = %d, want %d", first.CharCount, len(blob.Output))
	}

	second, err := db.GetBlob(ctx, "b1")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if second.AccessCount != 2 {
		t.Errorf("access count = %d, want 2", second.AccessCount)
	}

	if _, err := db.GetBlob(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("missing blob: err = %v, want ErrNotFound", err)
	}
}

func TestCleanupBlobs(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	now := time.Now()
	old := store.ToolBlob{ID: "old", ToolName: "search", Output: "x", CreatedAt: now.Add(-48 * time.Hour)}
	fresh := store.ToolBlob{ID: "fresh", ToolName: "search", Output: "y", CreatedAt: now}
	for _, b := range []store.ToolBlob{old, fresh} {
		if err := db.SaveBlob(ctx, b); err != nil {
			t.Fatalf("save %s: %v", b.ID, err)
		}
	}

	n, err := db.CleanupBlobs(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned %d blobs, want 1", n)
	}
	if _, err := db.GetBlob(ctx, "old"); !errors.Is(err, store.ErrNotFound) {
		t.Error("old blob survived cleanup")
	}
	if _, err := db.GetBlob(ctx, "fresh"); err != nil {
		t.Errorf("fresh blob gone: %v", err)
	}
}

func TestJobRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	job := store.RoutineJob{
		ID:   "j1",
		Name: "nightly calibration",
		Schedule: store.JobSchedule{
			CronExpr: "0 2 * * *",
			Timezone: "UTC",
		},
		Payload: store.JobPayload{
			Kind:  store.JobKindCalibration,
			Scope: store.JobScopeSystem,
		},
		CreatedAt: time.UnixMilli(1000),
	}
	if err := db.SaveJob(ctx, job); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := db.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != job.Name || got.Schedule.CronExpr != "0 2 * * *" {
		t.Errorf("job = %+v", got)
	}
	if got.Payload.Kind != store.JobKindCalibration || got.Payload.Scope != store.JobScopeSystem {
		t.Errorf("payload = %+v", got.Payload)
	}
	if got.LastRunAt != nil {
		t.Errorf("last_run_at = %v, want nil", got.LastRunAt)
	}

	// Record a run and re-save.
	ran := time.UnixMilli(5000)
	got.LastRunAt = &ran
	got.LastResult = "ok"
	if err := db.SaveJob(ctx, got); err != nil {
		t.Fatalf("resave: %v", err)
	}
	again, err := db.GetJob(ctx, "j1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.LastRunAt == nil || !again.LastRunAt.Equal(ran) || again.LastResult != "ok" {
		t.Errorf("run bookkeeping = %+v", again)
	}

	jobs, err := db.ListJobs(ctx)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("list = (%d, %v)", len(jobs), err)
	}

	if err := db.DeleteJob(ctx, "j1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.GetJob(ctx, "j1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("deleted job still readable: %v", err)
	}
}
