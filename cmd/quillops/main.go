// Package main provides the quillops binary entry point.
// QuillOps is the workflow orchestration service behind the content
// operations assistant: it plans intents into task graphs, executes them
// under a shared rate budget, runs scheduled intents, and surfaces
// proactive suggestions.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quillworks/quillops/agent"
	"github.com/quillworks/quillops/config"
	"github.com/quillworks/quillops/workflow/planner"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "quillops"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "quillops",
		Short: "Content operations workflow engine",
		Long: `QuillOps turns classified intents into dependency-ordered workflow
plans and executes them under a shared rate/concurrency budget with
classified retries. A scheduler re-runs deferred and recurring intents,
and a suggestion engine surfaces overdue operational work.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, logLevel)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and metrics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath, logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "chat",
		Short: "Interactive conversation with the workflow agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return chat(cmd.Context(), configPath, logLevel)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

// serve runs the long-lived service: scheduler tick loop, agent
// request/reply over NATS, template hot reload, and the Prometheus
// endpoint.
func serve(ctx context.Context, configPath, logLevel string) error {
	cfg, logger, err := setup(configPath, logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("QuillOps started",
		"version", Version,
		"intents", strings.Join(a.planner.Intents(), ","),
		"tools", strings.Join(a.registry.Names(), ","))

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		a.scheduler.Run(ctx)
		return nil
	})

	if a.natsConn != nil {
		responder := agent.NewResponder(a.agent, a.natsConn, logger)
		if err := responder.Start(ctx); err != nil {
			return fmt.Errorf("start agent responder: %w", err)
		}
		defer responder.Stop()
	}

	if cfg.Templates.Watch {
		watcher, err := planner.NewWatcher(a.planner, cfg.Templates.Path, logger)
		if err != nil {
			return fmt.Errorf("create template watcher: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("start template watcher: %w", err)
		}
		defer func() { _ = watcher.Stop() }()
	}

	if cfg.Metrics.Listen != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Listen,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		eg.Go(func() error {
			logger.Info("Metrics endpoint listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		eg.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("QuillOps stopped")
	return nil
}

// chat runs an interactive stdin/stdout conversation loop.
func chat(ctx context.Context, configPath, logLevel string) error {
	cfg, logger, err := setup(configPath, logLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Printf("quillops %s — known intents: %s\n", Version, strings.Join(a.planner.Intents(), ", "))
	fmt.Println(`Type a request, "confirm <plan-id>", "deny <plan-id>", or "exit".`)

	var sessionID string
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		resp, err := handleLine(ctx, a.agent, sessionID, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		sessionID = resp.SessionID
		printResponse(resp)
	}
	return scanner.Err()
}

// handleLine routes confirm/deny commands, everything else to Handle.
func handleLine(ctx context.Context, ag *agent.Agent, sessionID, line string) (*agent.Response, error) {
	if planID, ok := strings.CutPrefix(line, "confirm "); ok {
		return ag.Confirm(ctx, strings.TrimSpace(planID))
	}
	if planID, ok := strings.CutPrefix(line, "deny "); ok {
		return ag.Deny(ctx, strings.TrimSpace(planID))
	}
	return ag.Handle(ctx, agent.Request{SessionID: sessionID, Utterance: line})
}

func printResponse(resp *agent.Response) {
	fmt.Println(resp.Message)
	for _, item := range resp.Suggestions {
		fmt.Printf("suggestion [%s] %s\n", item.Priority, item.Message)
	}
}

func setup(configPath, logLevel string) (*config.Config, *slog.Logger, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.NewLoader(nil).Load()
}

func newLogger(level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
