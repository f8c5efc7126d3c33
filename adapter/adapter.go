// Package adapter defines the completion-notification boundary: a way for
// external systems to learn that a root workflow's value became readable,
// without polling Client.Read themselves.
//
// This is a supplementary feature with no core-protocol dependency on it:
// the engine owns adapter lifecycle; callers provide configuration only.
package adapter

import "context"

// RootCompletedEvent is the payload published when a root workflow's value
// becomes readable — the moment a Client.Read(taskName, args, kwargs) for
// that root id would first succeed.
type RootCompletedEvent struct {
	RootID    string `json:"root_id"`
	TaskName  string `json:"task_name"`
	CallHash  string `json:"call_hash"`
	Value     any    `json:"value"`
	Timestamp string `json:"timestamp"` // ISO 8601
}

// Adapter publishes root-completion events to a downstream system.
// Implementations must be safe for single-use per worker process.
type Adapter interface {
	// Publish sends a root completion event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RootCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}
