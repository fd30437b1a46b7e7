package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goswarm/internal/bus"
	"github.com/nextlevelbuilder/goswarm/internal/config"
	"github.com/nextlevelbuilder/goswarm/internal/coordinator"
	"github.com/nextlevelbuilder/goswarm/internal/dashboard"
	"github.com/nextlevelbuilder/goswarm/internal/executor"
	"github.com/nextlevelbuilder/goswarm/internal/heartbeat"
	"github.com/nextlevelbuilder/goswarm/internal/profiles"
	"github.com/nextlevelbuilder/goswarm/internal/providers"
	"github.com/nextlevelbuilder/goswarm/internal/rooms"
	"github.com/nextlevelbuilder/goswarm/internal/router"
	"github.com/nextlevelbuilder/goswarm/internal/store"
	"github.com/nextlevelbuilder/goswarm/internal/store/cache"
	"github.com/nextlevelbuilder/goswarm/internal/store/sqlite"
	"github.com/nextlevelbuilder/goswarm/internal/telemetry"
	"github.com/nextlevelbuilder/goswarm/internal/toolout"
	"github.com/nextlevelbuilder/goswarm/internal/tools"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the coordination core",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

func runServe() {
	setupLogging()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		slog.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		slog.Error("data dir", "error", err)
		os.Exit(1)
	}

	// Storage: SQLite behind the TTL cache.
	db, err := sqlite.Open(cfg.DBPath())
	if err != nil {
		slog.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.Init(ctx); err != nil {
		slog.Error("init database", "error", err)
		os.Exit(1)
	}
	raw := db.Stores()
	c := cache.New(0, 0)
	stores := store.Stores{
		Messages:  cache.NewMessages(raw.Messages, c),
		Tasks:     cache.NewTasks(raw.Tasks, c),
		Decisions: raw.Decisions,
		Blobs:     raw.Blobs,
		Jobs:      raw.Jobs,
	}

	// Rooms and profiles.
	registry, err := rooms.NewRegistry(cfg.RoomsDir(), slog.Default())
	if err != nil {
		slog.Error("room registry", "error", err)
		os.Exit(1)
	}
	loader := profiles.NewLoader(cfg.Team.TemplateDir, cfg.Team.WorkspaceDir, slog.Default())
	if watcher, err := profiles.NewWatcher(loader, slog.Default()); err == nil {
		go watcher.Run(ctx)
	} else {
		slog.Warn("profile watcher unavailable", "error", err)
	}

	// Bus with durable write-through, team registered from config.
	msgBus := bus.New(bus.WithSink(stores.Messages))
	for _, role := range cfg.Team.Roles {
		p := loader.Get(role)
		msgBus.Register(bus.AgentInfo{ID: role, DisplayName: p.Name, Domain: role})
		if err := registry.AddBot(rooms.GeneralRoomID, role); err != nil {
			slog.Warn("could not add bot to general room", "bot", role, "error", err)
		}
	}

	// Router with the remote fallback chain.
	var primary, secondary providers.ChatClient
	if cfg.Providers.Primary.Configured() {
		primary = providers.NewOpenAIClient("primary",
			cfg.Providers.Primary.APIKey, cfg.Providers.Primary.BaseURL, cfg.Providers.Primary.Model)
	}
	if cfg.Providers.Secondary.Configured() {
		secondary = providers.NewOpenAIClient("secondary",
			cfg.Providers.Secondary.APIKey, cfg.Providers.Secondary.BaseURL, cfg.Providers.Secondary.Model)
	}
	rt, err := router.New(router.Config{
		DataDir:               cfg.RoutingDir(),
		Models:                cfg.Models.TierMap(),
		AssistTimeout:         cfg.Router.AssistTimeout(),
		AssistRPS:             cfg.Router.AssistRPS,
		CalibrationInterval:   cfg.Router.CalibrationInterval(),
		CalibrationMinRecords: cfg.Router.CalibrationMinRecords,
	}, nil, primary, secondary, slog.Default())
	if err != nil {
		slog.Error("router init", "error", err)
		os.Exit(1)
	}
	defer func() { _ = rt.Close() }()

	// Coordinator with liveness monitoring.
	coord := coordinator.New(stores.Tasks, stores.Decisions, coordinator.Options{
		MonitorInterval:  secondsOr(cfg.Liveness.MonitorIntervalS, coordinator.DefaultMonitorInterval),
		HeartbeatTimeout: secondsOr(cfg.Liveness.HeartbeatTimeoutS, coordinator.DefaultHeartbeatTimeout),
	}, slog.Default())
	go coord.Run(ctx)

	// Tool-output compaction.
	compactor := toolout.New(stores.Blobs, slog.Default())

	// Team health and scheduled work.
	health := heartbeat.NewManager()
	exec := executor.New(stores.Jobs, executor.Hooks{
		Calibrate: func(ctx context.Context) (string, error) {
			report, err := rt.MaybeCalibrate()
			if err != nil {
				return "", err
			}
			if !report.Ran {
				return "calibration skipped: " + report.Reason, nil
			}
			return fmt.Sprintf("calibrated: accuracy %.3f over %d samples, %d new patterns",
				report.Accuracy, report.SampleSize, len(report.NewPatterns)), nil
		},
		HeartbeatTick: func(_ context.Context, agentID string) error {
			coord.Heartbeat(agentID)
			health.Tick(agentID, nil)
			return nil
		},
		RunSystem: func(ctx context.Context, sessionID, message string) (string, error) {
			_, err := msgBus.Publish(ctx, store.Message{
				Sender:    "system",
				Recipient: store.RecipientTeam,
				Type:      store.MessageBroadcast,
				Content:   message,
				Context:   map[string]string{"session": sessionID},
			})
			return "dispatched to team", err
		},
		RunUser: func(ctx context.Context, agentID, message string) (string, error) {
			if agentID == "" {
				agentID = "leader"
			}
			_, err := msgBus.Publish(ctx, store.Message{
				Sender:    "scheduler",
				Recipient: agentID,
				Type:      store.MessageRequest,
				Content:   message,
			})
			return "delivered to " + agentID, err
		},
		Publish: func(_ context.Context, channel, chatID, text string) error {
			return msgBus.PublishOutbound(bus.OutboundMessage{
				Channel: channel,
				ChatID:  chatID,
				Content: text,
			})
		},
	}, slog.Default())
	go exec.Run(ctx)

	// Agent-callable tool surface over the bus, coordinator, and scheduler.
	registryTools := tools.NewRegistry()
	registryTools.Register(tools.NewSendMessageTool(msgBus))
	registryTools.Register(tools.NewSearchMessagesTool(msgBus))
	registryTools.Register(tools.NewCheckInboxTool(msgBus))
	registryTools.Register(tools.NewCreateTaskTool(coord))
	registryTools.Register(tools.NewClaimTaskTool(coord))
	registryTools.Register(tools.NewCompleteTaskTool(coord))
	registryTools.Register(tools.NewScheduleTool(exec))

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(health, slog.Default())
		go func() {
			if err := dash.Serve(ctx, cfg.Dashboard.Addr); err != nil {
				slog.Error("dashboard stopped", "error", err)
			}
		}()
	}

	// Expire old tool-output blobs hourly.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := compactor.Cleanup(ctx); err != nil {
					slog.Warn("blob cleanup failed", "error", err)
				} else if n > 0 {
					slog.Info("expired tool-output blobs", "count", n)
				}
			}
		}
	}()

	slog.Info("goswarm running",
		"version", Version,
		"data_dir", cfg.DataDir,
		"bots", len(cfg.Team.Roles),
		"rooms", len(registry.List()),
		"tools", strings.Join(registryTools.Names(), ","))

	<-ctx.Done()
	slog.Info("shutting down")
}

func secondsOr(s int, fallback time.Duration) time.Duration {
	if s <= 0 {
		return fallback
	}
	return time.Duration(s) * time.Second
}
