package planner

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TemplateFile represents the intent-templates.yaml structure.
type TemplateFile struct {
	Version string           `yaml:"version"`
	Intents []IntentTemplate `yaml:"intents"`
}

// IntentTemplate declares the task graph generated for one intent.
type IntentTemplate struct {
	// Name is the intent identifier (e.g. "onboard_client").
	Name string `yaml:"name"`

	// Description is the human-readable summary.
	Description string `yaml:"description"`

	// Tasks lists task templates in insertion order. Plan-time ties between
	// equally-ready tasks preserve this order.
	Tasks []TaskTemplate `yaml:"tasks"`
}

// TaskTemplate declares a single task within an intent template.
type TaskTemplate struct {
	// ID is the task identifier, unique within the template.
	ID string `yaml:"id"`

	// Description may reference request parameters as $params.name.
	Description string `yaml:"description"`

	// Tool names the registered tool to invoke.
	Tool string `yaml:"tool"`

	// Params are the tool parameters; string values support $params.name
	// and, inside a for_each expansion, $item and $item.field references.
	Params map[string]any `yaml:"params,omitempty"`

	// DependsOn lists template task IDs that must succeed first.
	DependsOn []string `yaml:"depends_on,omitempty"`

	// ForEach names a list-valued request parameter; the task expands to
	// one instance per element, with ids suffixed .1, .2, ...
	ForEach string `yaml:"for_each,omitempty"`

	// EstimatedDuration is the planner's duration estimate.
	EstimatedDuration time.Duration `yaml:"estimated_duration,omitempty"`

	// Cost overrides the tool's default resource-unit cost when positive.
	Cost int64 `yaml:"cost,omitempty"`
}

// LoadTemplates loads intent templates from a YAML file.
func LoadTemplates(path string) (*TemplateFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read templates file: %w", err)
	}

	var file TemplateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse templates file: %w", err)
	}

	seen := make(map[string]bool)
	for _, intent := range file.Intents {
		if intent.Name == "" {
			return nil, fmt.Errorf("intent template missing name")
		}
		if seen[intent.Name] {
			return nil, fmt.Errorf("duplicate intent template: %s", intent.Name)
		}
		seen[intent.Name] = true
	}

	return &file, nil
}

// paramRe matches $params.field references.
var paramRe = regexp.MustCompile(`\$params\.([a-zA-Z0-9_]+)`)

// itemRe matches $item and $item.field references inside for_each expansion.
var itemRe = regexp.MustCompile(`\$item(?:\.([a-zA-Z0-9_]+))?`)

// substituteValue recursively substitutes parameter references in a value.
func substituteValue(value any, params map[string]any, item any) any {
	switch v := value.(type) {
	case string:
		return substituteString(v, params, item)
	case []any:
		result := make([]any, len(v))
		for i, el := range v {
			result[i] = substituteValue(el, params, item)
		}
		return result
	case map[string]any:
		result := make(map[string]any, len(v))
		for k, el := range v {
			result[k] = substituteValue(el, params, item)
		}
		return result
	default:
		return value
	}
}

// substituteString substitutes $params.* and $item references in a string.
// A string that is exactly one reference resolves to the referenced value,
// preserving its type; mixed strings interpolate textually.
func substituteString(s string, params map[string]any, item any) any {
	if trimmed := strings.TrimSpace(s); paramRe.MatchString(trimmed) && paramRe.FindString(trimmed) == trimmed {
		field := strings.TrimPrefix(trimmed, "$params.")
		if val, ok := params[field]; ok {
			return val
		}
		return ""
	}
	if item != nil {
		if trimmed := strings.TrimSpace(s); itemRe.MatchString(trimmed) && itemRe.FindString(trimmed) == trimmed {
			return resolveItem(trimmed, item)
		}
	}

	out := paramRe.ReplaceAllStringFunc(s, func(match string) string {
		field := strings.TrimPrefix(match, "$params.")
		if val, ok := params[field]; ok {
			return fmt.Sprintf("%v", val)
		}
		return ""
	})
	if item != nil {
		out = itemRe.ReplaceAllStringFunc(out, func(match string) string {
			return fmt.Sprintf("%v", resolveItem(match, item))
		})
	}
	return out
}

// resolveItem resolves a $item or $item.field reference against the current
// for_each element.
func resolveItem(ref string, item any) any {
	if ref == "$item" {
		return item
	}
	field := strings.TrimPrefix(ref, "$item.")
	if m, ok := item.(map[string]any); ok {
		if val, ok := m[field]; ok {
			return val
		}
	}
	return ""
}
