package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// InvokerConfig holds retry configuration for tool invocations.
type InvokerConfig struct {
	// MaxAttempts is the total number of attempts per invocation,
	// including the first. Must be at least 1.
	MaxAttempts int `yaml:"max_attempts"`

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration `yaml:"backoff_base"`

	// BackoffMultiplier is applied to the delay on each retry.
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`

	// MaxBackoff caps the delay between attempts.
	MaxBackoff time.Duration `yaml:"max_backoff"`

	// CallTimeout bounds a single tool call. A timeout is classified as
	// transient and retried like any other transient failure.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// DefaultInvokerConfig returns sensible retry defaults: four total attempts
// with delays of 1s, 2s, 4s between them.
func DefaultInvokerConfig() InvokerConfig {
	return InvokerConfig{
		MaxAttempts:       4,
		BackoffBase:       time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
		CallTimeout:       60 * time.Second,
	}
}

// Validate checks the configuration is usable.
func (c InvokerConfig) Validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1")
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("backoff_base must be positive")
	}
	if c.BackoffMultiplier < 1 {
		return fmt.Errorf("backoff_multiplier must be at least 1")
	}
	return nil
}

// TaskFailedError is the terminal failure surfaced to the executor after
// retries are exhausted or a permanent error occurs. It records the last
// underlying error and the attempt count.
type TaskFailedError struct {
	ToolName string
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("tool %s failed after %d attempt(s): %v", e.ToolName, e.Attempts, e.Err)
}

// Unwrap returns the last underlying error.
func (e *TaskFailedError) Unwrap() error {
	return e.Err
}

// Invoker wraps registry tool calls with classified retry. Transient
// failures are retried with exponential backoff; permanent failures and
// tool-reported errors fail immediately.
type Invoker struct {
	registry *Registry
	config   InvokerConfig
	logger   *slog.Logger
}

// NewInvoker creates an invoker over the given registry.
func NewInvoker(registry *Registry, config InvokerConfig, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		registry: registry,
		config:   config,
		logger:   logger,
	}
}

// Attempts reports how many attempts an Invoke made, extracted from err when
// the invocation failed.
func Attempts(err error, fallback int) int {
	if tf, ok := err.(*TaskFailedError); ok {
		return tf.Attempts
	}
	return fallback
}

// Invoke resolves and executes a tool, retrying transient failures.
// On terminal failure it returns a *TaskFailedError carrying the last
// underlying error. The attempt count is returned in both outcomes.
func (i *Invoker) Invoke(ctx context.Context, toolName string, params map[string]any) (Result, int, error) {
	tool, ok := i.registry.Get(toolName)
	if !ok {
		return Result{}, 0, &TaskFailedError{
			ToolName: toolName,
			Attempts: 0,
			Err:      NewPermanentError(fmt.Errorf("tool %s not registered", toolName)),
		}
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = i.config.BackoffBase
	bo.Multiplier = i.config.BackoffMultiplier
	bo.MaxInterval = i.config.MaxBackoff
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var (
		result   Result
		attempts int
	)

	op := func() error {
		attempts++

		callCtx := ctx
		if i.config.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, i.config.CallTimeout)
			defer cancel()
		}

		res, err := tool.Execute(callCtx, params)
		if err != nil {
			if IsTransient(err) {
				i.logger.Debug("Tool call failed, will retry",
					"tool", toolName,
					"attempt", attempts,
					"max_attempts", i.config.MaxAttempts,
					"error", err)
				return err
			}
			// Permanent and unclassified errors stop immediately
			return backoff.Permanent(err)
		}
		if !res.Success {
			// A tool-reported failure is a contract outcome, not infrastructure
			return backoff.Permanent(NewPermanentError(fmt.Errorf("tool %s reported failure: %s", toolName, res.Error)))
		}

		result = res
		return nil
	}

	maxRetries := uint64(i.config.MaxAttempts - 1)
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, maxRetries), ctx))
	if err != nil {
		return Result{}, attempts, &TaskFailedError{
			ToolName: toolName,
			Attempts: attempts,
			Err:      err,
		}
	}

	return result, attempts, nil
}
