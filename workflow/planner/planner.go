// Package planner turns classified intents into validated, dependency-
// ordered workflow plans. Plans are generated from declarative intent
// templates and checked for cycles before any execution begins.
package planner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quillops/tools"
	"github.com/quillworks/quillops/workflow"
)

// Config holds planner settings.
type Config struct {
	// PaidCallThreshold is the number of paid tool calls above which a plan
	// requires explicit confirmation before execution.
	PaidCallThreshold int `yaml:"paid_call_threshold"`
}

// DefaultConfig returns planner defaults.
func DefaultConfig() Config {
	return Config{PaidCallThreshold: 5}
}

// Planner builds WorkflowPlans from intent templates. Safe for concurrent
// use; templates may be swapped at runtime via hot reload.
type Planner struct {
	registry *tools.Registry
	config   Config
	logger   *slog.Logger

	mu        sync.RWMutex
	templates map[string]IntentTemplate
}

// New creates a planner over the given tool registry.
func New(registry *tools.Registry, config Config, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		registry:  registry,
		config:    config,
		logger:    logger,
		templates: make(map[string]IntentTemplate),
	}
}

// SetTemplates replaces the planner's intent templates.
func (p *Planner) SetTemplates(file *TemplateFile) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.templates = make(map[string]IntentTemplate, len(file.Intents))
	for _, intent := range file.Intents {
		p.templates[intent.Name] = intent
	}
	p.logger.Info("Intent templates loaded", "count", len(p.templates))
}

// LoadTemplatesFile loads and installs templates from a YAML file.
func (p *Planner) LoadTemplatesFile(path string) error {
	file, err := LoadTemplates(path)
	if err != nil {
		return err
	}
	p.SetTemplates(file)
	return nil
}

// Intents returns the names of all known intents.
func (p *Planner) Intents() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.templates))
	for name := range p.templates {
		names = append(names, name)
	}
	return names
}

// Plan builds a validated workflow plan for the intent. The intent and its
// parameters arrive pre-classified; the planner only expands, wires, and
// validates. A graph containing a cycle fails with CycleDetectedError and
// is never silently truncated.
func (p *Planner) Plan(intent string, params map[string]any) (*workflow.WorkflowPlan, error) {
	p.mu.RLock()
	tmpl, ok := p.templates[intent]
	p.mu.RUnlock()
	if !ok {
		return nil, &workflow.UnknownIntentError{Intent: intent}
	}

	tasks, err := p.expand(tmpl, params)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, &workflow.ValidationError{Field: "tasks", Message: fmt.Sprintf("intent %s produced no tasks", intent)}
	}

	// Topological validation; surfaces cycles and dangling dependencies
	if _, err := workflow.NewDependencyGraph(tasks); err != nil {
		return nil, err
	}

	var (
		total        time.Duration
		paidCalls    int
		irreversible bool
	)
	for _, t := range tasks {
		def, ok := p.registry.Definition(t.ToolName)
		if !ok {
			return nil, &workflow.ValidationError{Field: "tool", Message: fmt.Sprintf("task %s references unregistered tool %s", t.ID, t.ToolName)}
		}
		if t.Cost == 0 {
			t.Cost = def.Cost
		}
		if def.Irreversible {
			irreversible = true
		}
		if def.PaidCall {
			paidCalls++
		}
		total += t.EstimatedDuration
	}

	plan := &workflow.WorkflowPlan{
		ID:                     uuid.New().String(),
		Intent:                 intent,
		Tasks:                  tasks,
		RequiresConfirmation:   irreversible || paidCalls > p.config.PaidCallThreshold,
		EstimatedTotalDuration: total,
		Status:                 workflow.PlanStatusPending,
		CreatedAt:              time.Now(),
	}
	if plan.RequiresConfirmation {
		plan.Status = workflow.PlanStatusAwaitingConfirmation
	}

	p.logger.Debug("Plan built",
		"plan_id", plan.ID,
		"intent", intent,
		"tasks", len(tasks),
		"requires_confirmation", plan.RequiresConfirmation)
	return plan, nil
}

// expand instantiates the template's tasks with the request parameters,
// multiplying for_each tasks across their list parameter. Insertion order
// is preserved so equally-ready tasks dispatch deterministically.
func (p *Planner) expand(tmpl IntentTemplate, params map[string]any) ([]*workflow.PlannedTask, error) {
	var tasks []*workflow.PlannedTask
	// Maps a template task id to the expanded ids that replaced it, so
	// dependencies on a for_each task wait for every instance.
	expandedIDs := make(map[string][]string)

	for _, tt := range tmpl.Tasks {
		if tt.ID == "" {
			return nil, &workflow.ValidationError{Field: "task.id", Message: "template task missing id"}
		}
		if tt.Tool == "" {
			return nil, &workflow.ValidationError{Field: "task.tool", Message: fmt.Sprintf("template task %s missing tool", tt.ID)}
		}

		if tt.ForEach == "" {
			task := instantiate(tt, tt.ID, params, nil)
			tasks = append(tasks, task)
			expandedIDs[tt.ID] = []string{tt.ID}
			continue
		}

		raw, ok := params[tt.ForEach]
		if !ok {
			return nil, &workflow.ValidationError{Field: "params", Message: fmt.Sprintf("for_each parameter %s missing", tt.ForEach)}
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, &workflow.ValidationError{Field: "params", Message: fmt.Sprintf("for_each parameter %s is not a list", tt.ForEach)}
		}
		var ids []string
		for i, item := range items {
			id := fmt.Sprintf("%s.%d", tt.ID, i+1)
			tasks = append(tasks, instantiate(tt, id, params, item))
			ids = append(ids, id)
		}
		expandedIDs[tt.ID] = ids
	}

	// Rewrite dependencies through the expansion map
	for _, task := range tasks {
		var deps []string
		for _, dep := range task.DependsOn {
			ids, ok := expandedIDs[dep]
			if !ok {
				// Leave unknown references for graph validation to report
				deps = append(deps, dep)
				continue
			}
			deps = append(deps, ids...)
		}
		task.DependsOn = deps
	}

	return tasks, nil
}

// instantiate builds a single PlannedTask from a template task.
func instantiate(tt TaskTemplate, id string, params map[string]any, item any) *workflow.PlannedTask {
	toolParams := make(map[string]any, len(tt.Params))
	for k, v := range tt.Params {
		toolParams[k] = substituteValue(v, params, item)
	}

	desc := tt.Description
	switch v := substituteString(tt.Description, params, item).(type) {
	case string:
		if v != "" {
			desc = v
		}
	case nil:
	default:
		desc = fmt.Sprintf("%v", v)
	}

	return &workflow.PlannedTask{
		ID:                id,
		Description:       desc,
		ToolName:          tt.Tool,
		ToolParams:        toolParams,
		DependsOn:         append([]string(nil), tt.DependsOn...),
		EstimatedDuration: tt.EstimatedDuration,
		Cost:              tt.Cost,
		Status:            workflow.TaskStatusPending,
	}
}
