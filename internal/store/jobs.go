package store

import "time"

// JobScope controls which dispatch path a routine job takes.
type JobScope string

const (
	JobScopeSystem JobScope = "system"
	JobScopeUser   JobScope = "user"
)

// Job kinds with dedicated dispatch handling. Jobs without a kind run as
// plain user or system messages depending on scope.
const (
	JobKindCalibration   = "calibration"
	JobKindTeamHeartbeat = "team_heartbeat_tick"

	// CalibrateMarker in a payload message also selects the calibration path.
	CalibrateMarker = "CALIBRATE_ROUTING"
)

// JobSchedule is exactly one of: a fixed interval, a cron expression with
// timezone, or a one-shot absolute timestamp (auto-deleted after firing).
type JobSchedule struct {
	EveryMS  int64      `json:"every_ms,omitempty"`
	CronExpr string     `json:"cron_expr,omitempty"`
	Timezone string     `json:"timezone,omitempty"`
	At       *time.Time `json:"at,omitempty"`
}

// JobPayload is what a routine job dispatches.
type JobPayload struct {
	Kind    string   `json:"kind,omitempty"` // JobKindCalibration, JobKindTeamHeartbeat, or ""
	Message string   `json:"message,omitempty"`
	Scope   JobScope `json:"scope,omitempty"`
	AgentID string   `json:"agent_id,omitempty"`
	Deliver bool     `json:"deliver,omitempty"`
	Channel string   `json:"channel,omitempty"`
	ChatID  string   `json:"chat_id,omitempty"`
}

// RoutineJob is a persisted unit of scheduled work.
type RoutineJob struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Schedule   JobSchedule `json:"schedule"`
	Payload    JobPayload  `json:"payload"`
	CreatedAt  time.Time   `json:"created_at"`
	LastRunAt  *time.Time  `json:"last_run_at,omitempty"`
	LastResult string      `json:"last_result,omitempty"`
	LastError  string      `json:"last_error,omitempty"`
}
