package engine

import "time"

// Event types published while an execution runs.
const (
	EventStep   = "step"
	EventStatus = "status"
	EventError  = "error"
)

// Event is a progress notification for one execution.
type Event struct {
	Type        string                 `json:"type"`
	ExecutionID string                 `json:"execution_id"`
	Timestamp   time.Time              `json:"timestamp"`
	NodeID      string                 `json:"node_id,omitempty"`
	NodeType    string                 `json:"node_type,omitempty"`
	Status      string                 `json:"status"`
	Error       string                 `json:"error,omitempty"`
	Output      map[string]interface{} `json:"output,omitempty"`
}

// Publisher receives execution events. Implementations must not block; the
// engine calls Publish from the execution goroutine.
type Publisher interface {
	Publish(event Event)
}
