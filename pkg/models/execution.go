package models

import "time"

// Execution statuses. Transitions are monotonic: once an execution reaches a
// terminal status it never regresses.
const (
	ExecutionPending   = "pending"
	ExecutionRunning   = "running"
	ExecutionCompleted = "completed"
	ExecutionFailed    = "failed"
)

// TerminalStatus reports whether status is completed or failed.
func TerminalStatus(status string) bool {
	return status == ExecutionCompleted || status == ExecutionFailed
}

// WorkflowExecution represents one run of a workflow.
type WorkflowExecution struct {
	// ID of the execution
	ID string `json:"id"`

	// WorkflowID is the workflow being executed
	WorkflowID string `json:"workflow_id"`

	// UserID is the owner of the workflow at trigger time
	UserID string `json:"user_id"`

	// Status of the execution: pending, running, completed, failed
	Status string `json:"status"`

	// Context carries trigger metadata, e.g. {"triggered_by": "schedule"}
	Context map[string]interface{} `json:"context,omitempty"`

	// CreditsEstimated is the pre-flight estimate computed before starting
	CreditsEstimated int `json:"credits_estimated"`

	// CreditsUsed is the running total of credits actually spent
	CreditsUsed int `json:"credits_used"`

	// CurrentNodeID is the node currently (or last) being executed
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// ErrorMessage is set when the execution failed
	ErrorMessage string `json:"error_message,omitempty"`

	// ErrorNodeID is the node whose executor failed
	ErrorNodeID string `json:"error_node_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Step statuses
const (
	StepRunning   = "running"
	StepCompleted = "completed"
	StepFailed    = "failed"
	StepSkipped   = "skipped"
)

// StepResult is the recorded outcome of one node within one execution.
// Rows are append-only: one per node actually visited.
type StepResult struct {
	ID          string                 `json:"id"`
	ExecutionID string                 `json:"execution_id"`
	NodeID      string                 `json:"node_id"`
	NodeType    string                 `json:"node_type"`
	Status      string                 `json:"status"`
	InputData   map[string]interface{} `json:"input_data,omitempty"`
	OutputData  map[string]interface{} `json:"output_data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
