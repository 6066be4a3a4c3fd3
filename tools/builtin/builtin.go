// Package builtin registers the tools that ship with the binary. Platform
// deployments register their real integrations (mail, billing, generation
// API) on top of these.
package builtin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillworks/quillops/tools"
)

// Register adds the built-in tools to the registry.
func Register(registry *tools.Registry, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	builtins := []tools.Func{
		{
			Def: tools.Definition{
				Name:        "echo",
				Description: "Returns its params unchanged; useful for wiring checks",
			},
			Fn: func(_ context.Context, params map[string]any) (tools.Result, error) {
				return tools.Result{Success: true, Data: params}, nil
			},
		},
		{
			Def: tools.Definition{
				Name:        "wait",
				Description: "Sleeps for the given duration (param: duration, e.g. \"2s\")",
			},
			Fn: func(ctx context.Context, params map[string]any) (tools.Result, error) {
				raw, _ := params["duration"].(string)
				d, err := time.ParseDuration(raw)
				if err != nil {
					return tools.Result{}, tools.NewPermanentError(fmt.Errorf("invalid duration %q: %w", raw, err))
				}
				select {
				case <-time.After(d):
					return tools.Result{Success: true}, nil
				case <-ctx.Done():
					return tools.Result{}, ctx.Err()
				}
			},
		},
		{
			Def: tools.Definition{
				Name:        "log",
				Description: "Writes a message to the service log (param: message)",
			},
			Fn: func(_ context.Context, params map[string]any) (tools.Result, error) {
				msg, _ := params["message"].(string)
				logger.Info("Tool log", "message", msg)
				return tools.Result{Success: true}, nil
			},
		},
	}

	for i := range builtins {
		if err := registry.Register(&builtins[i]); err != nil {
			return err
		}
	}
	return nil
}
