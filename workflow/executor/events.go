package executor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/quillworks/quillops/workflow"
)

// TaskEvent is published on every task status transition so the dashboard
// can render live workflow progress.
type TaskEvent struct {
	PlanID    string              `json:"plan_id"`
	TaskID    string              `json:"task_id"`
	Status    workflow.TaskStatus `json:"status"`
	Attempts  int                 `json:"attempts,omitempty"`
	Error     string              `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// EventPublisher receives task transition events. Implementations must not
// block the executor; publish failures are logged, never surfaced.
type EventPublisher interface {
	PublishTaskEvent(ev TaskEvent)
}

// NATSPublisher publishes task events to workflow.task.{plan_id}.{task_id}
// subjects.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher creates a publisher over an established NATS connection.
func NewNATSPublisher(conn *nats.Conn, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, logger: logger}
}

// PublishTaskEvent implements EventPublisher.
func (p *NATSPublisher) PublishTaskEvent(ev TaskEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		p.logger.Warn("Failed to marshal task event",
			"plan_id", ev.PlanID,
			"task_id", ev.TaskID,
			"error", err)
		return
	}

	subject := fmt.Sprintf("workflow.task.%s.%s", ev.PlanID, ev.TaskID)
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish task event",
			"subject", subject,
			"error", err)
	}
}
