// Package history records control actions (start/stop/restart, update
// checks and installs) to a durable audit sink.
package history

import (
	"context"
	"time"
)

// Action identifies the control operation recorded.
type Action string

const (
	ActionStart       Action = "start"
	ActionStop        Action = "stop"
	ActionRestart     Action = "restart"
	ActionUpdateCheck Action = "update-check"
	ActionInstall     Action = "install"
)

// Event is one audit record.
type Event struct {
	Action     Action    `json:"action"`
	PID        int       `json:"pid"`
	Outcome    string    `json:"outcome"` // "ok" or "error"
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink is a destination for audit events. Implementations must be safe for
// concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}
