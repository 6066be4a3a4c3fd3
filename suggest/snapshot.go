package suggest

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileSnapshotProvider loads the state snapshot from a YAML file on every
// call, so an operator-maintained (or exported) state file drives the
// suggestion scans without restarting the service.
type FileSnapshotProvider struct {
	path string
}

// NewFileSnapshotProvider creates a provider reading from path.
func NewFileSnapshotProvider(path string) *FileSnapshotProvider {
	return &FileSnapshotProvider{path: path}
}

// Snapshot reads and parses the snapshot file.
func (p *FileSnapshotProvider) Snapshot(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("parse snapshot %s: %w", p.path, err)
	}
	return snap, nil
}
