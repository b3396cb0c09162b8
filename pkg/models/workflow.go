// Package models defines the persisted data types shared across the service.
package models

import "time"

// Trigger types for a workflow
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
)

// Workflow is a user-owned visual workflow definition.
type Workflow struct {
	// ID of the workflow
	ID string `json:"id"`

	// UserID is the ID of the owning user
	UserID string `json:"user_id"`

	// Name of the workflow
	Name string `json:"name"`

	// Graph holds the node/edge definition. It is opaque to storage and
	// meaningful only to the graph package.
	Graph Graph `json:"graph"`

	// TriggerType is "manual" or "schedule"
	TriggerType string `json:"trigger_type"`

	// Enabled indicates whether the workflow can be triggered
	Enabled bool `json:"enabled"`

	// CreatedAt is when the workflow was created
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the workflow was last updated
	UpdatedAt time.Time `json:"updated_at"`
}

// Graph is the node/edge structure edited by the visual builder.
type Graph struct {
	Nodes []Node `json:"nodes" yaml:"nodes"`
	Edges []Edge `json:"edges" yaml:"edges"`
}

// Empty reports whether the graph has no nodes.
func (g Graph) Empty() bool {
	return len(g.Nodes) == 0
}

// Node is one typed unit of work inside a graph.
type Node struct {
	// ID is unique within the graph
	ID string `json:"id" yaml:"id"`

	// Type must exist in the node registry
	Type string `json:"type" yaml:"type"`

	// Position is editor layout only, never executed
	Position Position `json:"position" yaml:"position"`

	// Config holds field name -> value, schema defined by the node type
	Config map[string]interface{} `json:"config" yaml:"config"`
}

// Position is the editor canvas location of a node.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Edge is a typed data-flow connection between two node ports.
type Edge struct {
	ID string `json:"id" yaml:"id"`

	// Source node and output port
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"source_handle" yaml:"source_handle"`

	// Target node and input port
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"target_handle" yaml:"target_handle"`
}
