package audit

import (
	"context"
	"time"
)

// Logger is the interface for recording audit events. Implementations must
// tolerate concurrent callers; the permission engine treats Log failures as
// non-fatal and never lets them block a mutation.
type Logger interface {
	// Log records an audit event
	Log(ctx context.Context, event *Event) error

	// Close closes the logger and flushes any buffered events
	Close() error
}

// NopLogger is a logger that does nothing (used when auditing is disabled
// and in tests)
type NopLogger struct{}

func (NopLogger) Log(ctx context.Context, event *Event) error { return nil }

func (NopLogger) Close() error { return nil }

// NewEvent creates an event stamped with the current UTC time
func NewEvent(action Action, status Status) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Status:    status,
		Details:   make(map[string]interface{}),
	}
}
