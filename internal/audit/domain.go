// Package audit keeps the authorization decision trail. Every gate
// decision is recorded here, which also covers administrative
// mutations since each one passes the gate before it runs.
package audit

import "time"

// Entry is one recorded authorization decision.
type Entry struct {
	ID         int64     `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Action     string    `json:"action"`
	Resource   string    `json:"resource"`
	Effect     string    `json:"effect"`
	Reason     string    `json:"reason"`
	Details    []string  `json:"details,omitempty"`
}

// TimelineFilter narrows a timeline query. Zero values mean no filter.
type TimelineFilter struct {
	UserID   int64
	Action   string
	Effect   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}
