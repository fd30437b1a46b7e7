package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goswarm/internal/config"
	"github.com/nextlevelbuilder/goswarm/internal/executor"
	"github.com/nextlevelbuilder/goswarm/internal/store"
	"github.com/nextlevelbuilder/goswarm/internal/store/sqlite"
)

// calibrateCron is the default calibration schedule (02:00 daily).
const calibrateCron = "0 2 * * *"

func scheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage routine jobs (reminders, calibration)",
	}
	cmd.AddCommand(scheduleAddCmd())
	cmd.AddCommand(scheduleCalibrateCmd())
	cmd.AddCommand(scheduleListCmd())
	cmd.AddCommand(scheduleRemoveCmd())
	return cmd
}

// withExecutor opens the job store and hands a ready executor to fn.
// Boundary errors print with the Error: prefix and a non-zero exit.
func withExecutor(fn func(ctx context.Context, e *executor.Executor) error) {
	setupLogging()
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		fatalf("Error: %s", err)
	}
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		fatalf("Error: %s", err)
	}
	defer db.Close()
	ctx := context.Background()
	if err := db.Init(ctx); err != nil {
		fatalf("Error: %s", err)
	}
	e := executor.New(db.Stores().Jobs, executor.Hooks{}, slog.Default())
	if err := fn(ctx, e); err != nil {
		fatalf("Error: %s", err)
	}
}

func scheduleAddCmd() *cobra.Command {
	var (
		message      string
		name         string
		everySeconds int64
		cronExpr     string
		timezone     string
		at           string
		agentID      string
		channel      string
		chatID       string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a reminder or task job",
		Run: func(cmd *cobra.Command, args []string) {
			withExecutor(func(ctx context.Context, e *executor.Executor) error {
				if message == "" {
					return fmt.Errorf("message is required")
				}
				schedule := store.JobSchedule{
					CronExpr: cronExpr,
					Timezone: timezone,
				}
				if everySeconds > 0 {
					schedule.EveryMS = everySeconds * 1000
				}
				if at != "" {
					t, err := time.Parse(time.RFC3339, at)
					if err != nil {
						return fmt.Errorf("invalid at timestamp %q (want RFC3339)", at)
					}
					schedule.At = &t
				}
				job, err := e.Add(ctx, store.RoutineJob{
					Name:     name,
					Schedule: schedule,
					Payload: store.JobPayload{
						Message: message,
						AgentID: agentID,
						Deliver: channel != "" && chatID != "",
						Channel: channel,
						ChatID:  chatID,
					},
				})
				if err != nil {
					return err
				}
				fmt.Printf("added job %s\n", job.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&message, "message", "", "message to run (required)")
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().Int64Var(&everySeconds, "every-seconds", 0, "fixed interval in seconds")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "cron expression")
	cmd.Flags().StringVar(&timezone, "timezone", "", "cron timezone (IANA name)")
	cmd.Flags().StringVar(&at, "at", "", "one-shot RFC3339 timestamp")
	cmd.Flags().StringVar(&agentID, "agent", "", "target agent id")
	cmd.Flags().StringVar(&channel, "channel", "", "outbound delivery channel")
	cmd.Flags().StringVar(&chatID, "chat-id", "", "outbound delivery chat id")
	return cmd
}

func scheduleCalibrateCmd() *cobra.Command {
	var cronExpr string
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Schedule periodic routing calibration",
		Run: func(cmd *cobra.Command, args []string) {
			withExecutor(func(ctx context.Context, e *executor.Executor) error {
				job, err := e.Add(ctx, store.RoutineJob{
					Name:     "routing calibration",
					Schedule: store.JobSchedule{CronExpr: cronExpr},
					Payload:  store.JobPayload{Kind: store.JobKindCalibration},
				})
				if err != nil {
					return err
				}
				fmt.Printf("added calibration job %s (%s)\n", job.ID, cronExpr)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&cronExpr, "cron", calibrateCron, "cron expression")
	return cmd
}

func scheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List routine jobs",
		Run: func(cmd *cobra.Command, args []string) {
			withExecutor(func(ctx context.Context, e *executor.Executor) error {
				jobs, err := e.List(ctx)
				if err != nil {
					return err
				}
				if len(jobs) == 0 {
					fmt.Println("no jobs")
					return nil
				}
				for _, j := range jobs {
					fmt.Printf("%s  %-24s %s  last: %s\n",
						j.ID, j.Name, describeSchedule(j.Schedule), lastRun(j))
				}
				return nil
			})
		},
	}
}

func scheduleRemoveCmd() *cobra.Command {
	var jobID string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a routine job",
		Run: func(cmd *cobra.Command, args []string) {
			withExecutor(func(ctx context.Context, e *executor.Executor) error {
				if jobID == "" {
					return fmt.Errorf("job-id is required")
				}
				if err := e.Remove(ctx, jobID); err != nil {
					return err
				}
				fmt.Printf("removed job %s\n", jobID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&jobID, "job-id", "", "job id to remove (required)")
	return cmd
}

func describeSchedule(s store.JobSchedule) string {
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

func lastRun(j store.RoutineJob) string {
	if j.LastRunAt == nil {
		return "never"
	}
	if j.LastError != "" {
		return fmt.Sprintf("%s (error: %s)", j.LastRunAt.Format(time.RFC3339), j.LastError)
	}
	return j.LastRunAt.Format(time.RFC3339)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
