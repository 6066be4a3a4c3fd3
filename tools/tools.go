// Package tools defines the tool contract the workflow engine executes
// against, the registry that resolves tool names, and the retrying invoker
// that wraps every tool call with classified recovery.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Result is the outcome of a single tool execution.
type Result struct {
	// Success indicates the tool completed its work.
	Success bool `json:"success"`

	// Data is the tool's output payload on success.
	Data map[string]any `json:"data,omitempty"`

	// Error describes the failure when Success is false.
	Error string `json:"error,omitempty"`
}

// Tool is a named capability the executor can invoke. Implementations are
// agnostic collaborators: sending email, calling the generation API, or
// mutating a business record all satisfy the same contract.
type Tool interface {
	// Name returns the unique tool name.
	Name() string

	// Execute performs the tool's work. Transient infrastructure failures
	// should be returned as errors wrapped with NewTransientError; contract
	// violations with NewPermanentError.
	Execute(ctx context.Context, params map[string]any) (Result, error)
}

// Definition carries tool metadata the planner consults when building plans.
type Definition struct {
	// Name is the unique tool name.
	Name string

	// Description is the human-readable summary.
	Description string

	// Irreversible marks tools whose effects cannot be undone (external
	// sends, payments). Plans containing them require confirmation.
	Irreversible bool

	// PaidCall marks tools that consume paid upstream API quota.
	PaidCall bool

	// Cost is the resource-unit budget a single call consumes from the gate.
	Cost int64
}

// DescribedTool is implemented by tools that expose metadata beyond a name.
type DescribedTool interface {
	Tool
	Definition() Definition
}

// Registry maps tool names to implementations. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool to the registry. Registering a duplicate name fails.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definition returns the metadata for a registered tool. Tools that don't
// describe themselves get a zero-value definition with just the name.
func (r *Registry) Definition(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return Definition{}, false
	}
	if dt, ok := t.(DescribedTool); ok {
		return dt.Definition(), true
	}
	return Definition{Name: name}, true
}

// Names returns all registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Func adapts a function into a Tool with the given definition.
type Func struct {
	Def Definition
	Fn  func(ctx context.Context, params map[string]any) (Result, error)
}

// Name implements Tool.
func (f *Func) Name() string { return f.Def.Name }

// Execute implements Tool.
func (f *Func) Execute(ctx context.Context, params map[string]any) (Result, error) {
	return f.Fn(ctx, params)
}

// Definition implements DescribedTool.
func (f *Func) Definition() Definition { return f.Def }
