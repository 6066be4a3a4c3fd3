package planner

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplates(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intent-templates.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadTemplates(t *testing.T) {
	path := writeTemplates(t, `
version: "1"
intents:
  - name: onboard_client
    description: Onboard a new client
    tasks:
      - id: welcome
        tool: send_email
        description: Welcome $params.client
      - id: setup
        tool: draft
        depends_on: [welcome]
`)

	file, err := LoadTemplates(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if file.Version != "1" || len(file.Intents) != 1 {
		t.Fatalf("unexpected file: %+v", file)
	}
	intent := file.Intents[0]
	if intent.Name != "onboard_client" || len(intent.Tasks) != 2 {
		t.Errorf("unexpected intent: %+v", intent)
	}
	if intent.Tasks[1].DependsOn[0] != "welcome" {
		t.Errorf("unexpected dependency: %+v", intent.Tasks[1])
	}
}

func TestLoadTemplates_Invalid(t *testing.T) {
	if _, err := LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	missing := writeTemplates(t, `
intents:
  - tasks:
      - id: a
        tool: draft
`)
	if _, err := LoadTemplates(missing); err == nil {
		t.Error("expected error for unnamed intent")
	}

	dup := writeTemplates(t, `
intents:
  - name: same
    tasks: [{id: a, tool: draft}]
  - name: same
    tasks: [{id: b, tool: draft}]
`)
	if _, err := LoadTemplates(dup); err == nil {
		t.Error("expected error for duplicate intent names")
	}
}
