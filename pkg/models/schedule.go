package models

import "time"

// Schedule is a cron-driven recurring trigger bound to exactly one workflow.
// At most one schedule exists per workflow; its lifecycle follows the presence
// of a schedule-trigger node in the owning workflow's graph.
type Schedule struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflow_id"`
	UserID     string `json:"user_id"`

	// CronExpression is a standard 5-field cron spec
	CronExpression string `json:"cron_expression"`

	// Timezone is an IANA zone name the expression is evaluated in
	Timezone string `json:"timezone"`

	IsEnabled bool `json:"is_enabled"`

	// NextRunAt is the sole dispatch-eligibility gate. Nil while disabled.
	NextRunAt *time.Time `json:"next_run_at,omitempty"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	RunCount  int        `json:"run_count"`

	// LastError records the most recent processing failure, empty on success
	LastError string `json:"last_error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
