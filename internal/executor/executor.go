// Package executor runs routine jobs: fixed intervals, cron expressions,
// and one-shot timestamps, all funnelled through a single dispatch path.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goswarm/internal/store"
)

// pollInterval is how often the loop checks for due jobs.
const pollInterval = time.Second

// Hooks are the dispatch targets. Nil hooks make their path a no-op with
// an error result, never a crash.
type Hooks struct {
	// Calibrate invokes the router's calibration gate.
	Calibrate func(ctx context.Context) (string, error)
	// HeartbeatTick drives one agent's heartbeat entry point.
	HeartbeatTick func(ctx context.Context, agentID string) error
	// RunSystem runs a message through the coordinator agent under a
	// synthetic session.
	RunSystem func(ctx context.Context, sessionID, message string) (string, error)
	// RunUser runs a message as a user turn for the target agent.
	RunUser func(ctx context.Context, agentID, message string) (string, error)
	// Publish delivers text outbound to a channel chat.
	Publish func(ctx context.Context, channel, chatID, text string) error
}

// Executor owns the scheduled-work loop.
type Executor struct {
	mu     sync.Mutex
	jobs   store.JobStore
	hooks  Hooks
	logger *slog.Logger
	cron   *gronx.Gronx

	stop chan struct{}
	done chan struct{}
}

// New builds an executor over the persisted job set.
func New(jobs store.JobStore, hooks Hooks, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		jobs:   jobs,
		hooks:  hooks,
		logger: logger,
		cron:   gronx.New(),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ValidateSchedule rejects malformed schedules before they persist.
func (e *Executor) ValidateSchedule(s store.JobSchedule) error {
	set := 0
	if s.EveryMS > 0 {
		set++
	}
	if s.CronExpr != "" {
		set++
		if !e.cron.IsValid(s.CronExpr) {
			return fmt.Errorf("invalid cron expression %q", s.CronExpr)
		}
		if s.Timezone != "" {
			if _, err := time.LoadLocation(s.Timezone); err != nil {
				return fmt.Errorf("unknown timezone %q", s.Timezone)
			}
		}
	}
	if s.At != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("schedule needs exactly one of every_ms, cron_expr, at")
	}
	return nil
}

// Add validates and persists a job.
func (e *Executor) Add(ctx context.Context, job store.RoutineJob) (store.RoutineJob, error) {
	if err := e.ValidateSchedule(job.Schedule); err != nil {
		return store.RoutineJob{}, err
	}
	if job.ID == "" {
		job.ID = store.GenNewID()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if err := e.jobs.SaveJob(ctx, job); err != nil {
		return store.RoutineJob{}, err
	}
	return job, nil
}

// Remove deletes a job by id.
func (e *Executor) Remove(ctx context.Context, id string) error {
	if _, err := e.jobs.GetJob(ctx, id); err != nil {
		return err
	}
	return e.jobs.DeleteJob(ctx, id)
}

// List returns every persisted job.
func (e *Executor) List(ctx context.Context) ([]store.RoutineJob, error) {
	return e.jobs.ListJobs(ctx)
}

// Run drives the dispatch loop until Stop or context cancellation.
func (e *Executor) Run(ctx context.Context) {
	defer close(e.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stop:
			return
		case now := <-ticker.C:
			e.tick(ctx, now)
		}
	}
}

// Stop halts the loop and waits for it to exit.
func (e *Executor) Stop() {
	close(e.stop)
	<-e.done
}

// tick runs every due job once. Job failures are recorded on the job and
// never halt the loop.
func (e *Executor) tick(ctx context.Context, now time.Time) {
	jobs, err := e.jobs.ListJobs(ctx)
	if err != nil {
		e.logger.Warn("executor: list jobs failed", "error", err)
		return
	}
	for _, job := range jobs {
		due, oneShot := e.due(job, now)
		if !due {
			continue
		}
		result, err := e.dispatch(ctx, job)

		if oneShot {
			if delErr := e.jobs.DeleteJob(ctx, job.ID); delErr != nil {
				e.logger.Warn("executor: one-shot delete failed", "job", job.ID, "error", delErr)
			}
		} else {
			ranAt := now
			job.LastRunAt = &ranAt
			job.LastResult = result
			job.LastError = ""
			if err != nil {
				job.LastError = err.Error()
			}
			if saveErr := e.jobs.SaveJob(ctx, job); saveErr != nil {
				e.logger.Warn("executor: job update failed", "job", job.ID, "error", saveErr)
			}
		}

		if err != nil {
			e.logger.Warn("job failed", "job", job.ID, "name", job.Name, "error", err)
		} else {
			e.logger.Debug("job ran", "job", job.ID, "name", job.Name)
		}
	}
}

// due reports whether the job should fire now, and whether it is one-shot.
func (e *Executor) due(job store.RoutineJob, now time.Time) (bool, bool) {
	s := job.Schedule
	switch {
	case s.At != nil:
		return !now.Before(*s.At), true
	case s.EveryMS > 0:
		if job.LastRunAt == nil {
			return true, false
		}
		return now.Sub(*job.LastRunAt) >= time.Duration(s.EveryMS)*time.Millisecond, false
	case s.CronExpr != "":
		ref := now
		if s.Timezone != "" {
			if loc, err := time.LoadLocation(s.Timezone); err == nil {
				ref = now.In(loc)
			}
		}
		// Fire at most once per due minute.
		if job.LastRunAt != nil && ref.Sub(*job.LastRunAt) < time.Minute {
			return false, false
		}
		due, err := e.cron.IsDue(s.CronExpr, ref)
		if err != nil {
			e.logger.Warn("cron check failed", "job", job.ID, "expr", s.CronExpr, "error", err)
			return false, false
		}
		return due, false
	}
	return false, false
}

// dispatch is the single entry point for every job payload.
func (e *Executor) dispatch(ctx context.Context, job store.RoutineJob) (string, error) {
	p := job.Payload

	switch {
	case p.Kind == store.JobKindCalibration || strings.Contains(p.Message, store.CalibrateMarker):
		if e.hooks.Calibrate == nil {
			return "", fmt.Errorf("calibration hook not configured")
		}
		return e.hooks.Calibrate(ctx)

	case p.Kind == store.JobKindTeamHeartbeat:
		if e.hooks.HeartbeatTick == nil {
			return "", fmt.Errorf("heartbeat hook not configured")
		}
		if err := e.hooks.HeartbeatTick(ctx, p.AgentID); err != nil {
			return "", err
		}
		return "heartbeat tick ok", nil

	case p.Scope == store.JobScopeSystem:
		if e.hooks.RunSystem == nil {
			return "", fmt.Errorf("system hook not configured")
		}
		sessionID := fmt.Sprintf("routine:%s", job.ID)
		return e.hooks.RunSystem(ctx, sessionID, p.Message)

	default:
		if e.hooks.RunUser == nil {
			return "", fmt.Errorf("user hook not configured")
		}
		result, err := e.hooks.RunUser(ctx, p.AgentID, p.Message)
		if err != nil {
			return "", err
		}
		if p.Deliver && e.hooks.Publish != nil {
			if err := e.hooks.Publish(ctx, p.Channel, p.ChatID, result); err != nil {
				return result, fmt.Errorf("deliver: %w", err)
			}
		}
		return result, nil
	}
}
