// Package nodes defines the node type registry and the built-in node set.
package nodes

import (
	"context"
	"fmt"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// Port data types used by the built-in node set
const (
	TypeSignal  = "signal"
	TypePrompts = "prompts"
	TypeImage   = "image"
	TypeVideo   = "video"
	TypeText    = "text"
)

// ConfigField describes one field in a node type's configuration schema.
type ConfigField struct {
	Name     string      `json:"name"`
	Type     string      `json:"type"` // "string", "number", "boolean", "select"
	Default  interface{} `json:"default,omitempty"`
	Required bool        `json:"required,omitempty"`
	Options  []string    `json:"options,omitempty"`

	// ShowWhen hides the field in the editor unless the predicate holds.
	// It is evaluated by the UI/validation layer, never by executors.
	ShowWhen *ShowWhen `json:"show_when,omitempty"`
}

// ShowWhen is a declarative visibility predicate over other config values.
type ShowWhen struct {
	Field  string        `json:"field"`
	Equals interface{}   `json:"equals,omitempty"`
	In     []interface{} `json:"in,omitempty"`
}

// Visible reports whether the field should be shown for the given config.
func (f ConfigField) Visible(config map[string]interface{}) bool {
	if f.ShowWhen == nil {
		return true
	}
	value := config[f.ShowWhen.Field]
	if len(f.ShowWhen.In) > 0 {
		for _, candidate := range f.ShowWhen.In {
			if value == candidate {
				return true
			}
		}
		return false
	}
	return value == f.ShowWhen.Equals
}

// Input is what an executor receives for one node visit.
type Input struct {
	// UserID is the owner the execution runs as
	UserID string

	// Config is the node's configuration map, schema per the node type
	Config map[string]interface{}

	// Upstream maps input port name -> value produced by the connected
	// upstream node's output port
	Upstream map[string]interface{}
}

// Result is what an executor produces on success.
type Result struct {
	// Output maps output port name -> value, plus any extra metadata
	Output map[string]interface{}

	// CreditsUsed is the number of credits actually spent by this node
	CreditsUsed int
}

// Executor implements a node type's runtime behavior.
type Executor func(ctx context.Context, in Input) (*Result, error)

// Definition declares one node type: its ports, config schema and executor.
type Definition struct {
	Type    string        `json:"type"`
	Label   string        `json:"label"`
	Inputs  []graph.Port  `json:"inputs"`
	Outputs []graph.Port  `json:"outputs"`
	Config  []ConfigField `json:"config"`

	Execute Executor `json:"-"`
}

// Deps are the external collaborators built-in executors call. They are
// injected at registry construction so tests can swap in fakes.
type Deps struct {
	Provider Provider
	Assets   Assets
	Credits  Credits
}

// Registry is a static node type lookup. It is an explicitly constructed,
// dependency-injected value, never ambient global state.
type Registry struct {
	defs  map[string]Definition
	order []string
}

// NewRegistry builds a registry holding the built-in node set.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{defs: make(map[string]Definition)}
	for _, def := range builtinDefinitions(deps) {
		r.Register(def)
	}
	return r
}

// NewEmptyRegistry builds a registry with no node types registered.
func NewEmptyRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a node type. Adding a type never touches the engine.
func (r *Registry) Register(def Definition) {
	if _, exists := r.defs[def.Type]; !exists {
		r.order = append(r.order, def.Type)
	}
	r.defs[def.Type] = def
}

// Get returns the definition for a node type.
func (r *Registry) Get(nodeType string) (Definition, bool) {
	def, ok := r.defs[nodeType]
	return def, ok
}

// Spec returns the port signature for a node type, satisfying graph.Catalog.
func (r *Registry) Spec(nodeType string) (graph.Spec, bool) {
	def, ok := r.defs[nodeType]
	if !ok {
		return graph.Spec{}, false
	}
	return graph.Spec{Inputs: def.Inputs, Outputs: def.Outputs}, true
}

// Definitions returns all registered definitions in registration order.
func (r *Registry) Definitions() []Definition {
	defs := make([]Definition, 0, len(r.order))
	for _, t := range r.order {
		defs = append(defs, r.defs[t])
	}
	return defs
}

// IsTrigger reports whether a node type is one of the trigger types.
func IsTrigger(nodeType string) bool {
	return nodeType == TypeManualTrigger || nodeType == TypeScheduleTrigger
}

// FindScheduleTrigger returns the schedule-trigger node of a graph, if any.
func FindScheduleTrigger(g models.Graph) (models.Node, bool) {
	for _, n := range g.Nodes {
		if n.Type == TypeScheduleTrigger {
			return n, true
		}
	}
	return models.Node{}, false
}

func builtinDefinitions(deps Deps) []Definition {
	return []Definition{
		manualTriggerDefinition(),
		scheduleTriggerDefinition(),
		generatePromptsDefinition(deps),
		generateImageDefinition(deps),
		generateVideoDefinition(deps),
		generateCaptionDefinition(deps),
		saveGalleryDefinition(deps),
	}
}

// Config value readers shared by the built-in executors. Values arrive as
// JSON-decoded interface{}, so numbers are float64.

func stringConfig(config map[string]interface{}, key, fallback string) string {
	if v, ok := config[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intConfig(config map[string]interface{}, key string, fallback int) int {
	switch v := config[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func boolConfig(config map[string]interface{}, key string) bool {
	v, _ := config[key].(bool)
	return v
}

func stringInput(upstream map[string]interface{}, key string) (string, bool) {
	v, ok := upstream[key].(string)
	return v, ok && v != ""
}

func requireString(config map[string]interface{}, key string) (string, error) {
	v, ok := config[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("config field %q is required", key)
	}
	return v, nil
}
