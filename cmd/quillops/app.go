package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/quillworks/quillops/agent"
	"github.com/quillworks/quillops/config"
	"github.com/quillworks/quillops/gate"
	"github.com/quillworks/quillops/scheduler"
	"github.com/quillworks/quillops/session"
	"github.com/quillworks/quillops/storage"
	"github.com/quillworks/quillops/storage/memory"
	"github.com/quillworks/quillops/storage/natskv"
	"github.com/quillworks/quillops/suggest"
	"github.com/quillworks/quillops/tools"
	"github.com/quillworks/quillops/tools/builtin"
	"github.com/quillworks/quillops/workflow/executor"
	"github.com/quillworks/quillops/workflow/planner"
)

// app holds the assembled service components.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *tools.Registry
	planner   *planner.Planner
	executor  *executor.Executor
	agent     *agent.Agent
	scheduler *scheduler.Scheduler
	sessions  *session.Manager

	natsConn *nats.Conn
}

// newApp wires the full pipeline: storage, tools, gate, executor, planner,
// sessions, suggestions, agent, and scheduler.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	// Storage: NATS KV when a server is configured, memory otherwise.
	var (
		plans     storage.PlanStore
		schedules storage.ScheduleStore
		sessions  session.Store
		marks     storage.SuggestionStore
		publisher executor.EventPublisher
	)
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
		if err != nil {
			return nil, fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = nc

		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		store, err := natskv.New(ctx, js)
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create KV store: %w", err)
		}
		plans, schedules, sessions, marks = store, store, store, store
		publisher = executor.NewNATSPublisher(nc, logger)
		logger.Info("Connected to NATS", "url", cfg.NATS.URL)
	} else {
		store := memory.New()
		plans, schedules, sessions, marks = store, store, store, store
		logger.Warn("No NATS URL configured, using in-memory storage")
	}

	a.registry = tools.NewRegistry()
	if err := builtin.Register(a.registry, logger); err != nil {
		a.close()
		return nil, fmt.Errorf("register builtin tools: %w", err)
	}
	invoker := tools.NewInvoker(a.registry, cfg.Retry, logger)

	g, err := gate.New(cfg.Gate)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create gate: %w", err)
	}

	a.executor, err = executor.New(invoker, g, cfg.Executor, logger, publisher)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create executor: %w", err)
	}

	a.planner = planner.New(a.registry, cfg.Planner, logger)
	if err := a.planner.LoadTemplatesFile(cfg.Templates.Path); err != nil {
		a.close()
		return nil, fmt.Errorf("load intent templates: %w", err)
	}

	a.sessions = session.NewManager(sessions)

	suggestEngine, err := suggest.New(marks, cfg.Suggestions, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create suggestion engine: %w", err)
	}

	rules := cfg.Classifier
	if len(rules) == 0 {
		rules = agent.RulesFromIntents(a.planner.Intents())
	}
	classifier := agent.NewRuleClassifier(rules)

	var snapshots agent.SnapshotProvider
	if cfg.Suggestions.SnapshotPath != "" {
		snapshots = suggest.NewFileSnapshotProvider(cfg.Suggestions.SnapshotPath)
	}

	a.agent = agent.New(classifier, a.planner, a.executor, plans, a.sessions, suggestEngine, snapshots, logger)

	a.scheduler, err = scheduler.New(schedules, a.agent, cfg.Scheduler, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return a, nil
}

// close releases held connections.
func (a *app) close() {
	if a.natsConn != nil {
		a.natsConn.Close()
		a.natsConn = nil
	}
}
