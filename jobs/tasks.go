// Package jobs holds the background tasks that keep the access
// control data tidy: sweeping lapsed role bindings and pruning the
// audit trail.
package jobs

import (
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBindingSweep removes role bindings whose expiry has passed.
	TaskBindingSweep = "iam:binding_sweep"
	// TaskAuditRetention prunes audit entries past the retention window.
	TaskAuditRetention = "audit:retention"
)

// NewBindingSweepTask constructs the sweep task. It carries no payload.
func NewBindingSweepTask() *asynq.Task {
	return asynq.NewTask(TaskBindingSweep, nil)
}

// NewAuditRetentionTask constructs the retention task.
func NewAuditRetentionTask() *asynq.Task {
	return asynq.NewTask(TaskAuditRetention, nil)
}
