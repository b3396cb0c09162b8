// Package graph validates workflow graphs and computes their execution order.
package graph

import (
	"errors"
	"fmt"

	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// ErrInvalidGraph is wrapped by every validation failure.
var ErrInvalidGraph = errors.New("invalid graph")

// Port describes one input or output port of a node type.
type Port struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Required bool   `json:"required,omitempty"`
}

// Spec is the port signature of a node type.
type Spec struct {
	Inputs  []Port
	Outputs []Port
}

// Catalog resolves a node type name to its port signature. The node registry
// satisfies this; the graph package deliberately does not depend on it.
type Catalog interface {
	Spec(nodeType string) (Spec, bool)
}

// Validate checks a graph against the catalog. It rejects unknown node types,
// duplicate node IDs, edges referencing missing nodes or ports, data type
// mismatches between connected ports, multiple edges into one input port, and
// cycles.
func Validate(g models.Graph, catalog Catalog) error {
	if g.Nodes == nil || g.Edges == nil {
		return fmt.Errorf("%w: nodes and edges must both be present", ErrInvalidGraph)
	}

	nodesByID := make(map[string]models.Node, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return fmt.Errorf("%w: node with empty id", ErrInvalidGraph)
		}
		if _, dup := nodesByID[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrInvalidGraph, n.ID)
		}
		if _, ok := catalog.Spec(n.Type); !ok {
			return fmt.Errorf("%w: node %q has unknown type %q", ErrInvalidGraph, n.ID, n.Type)
		}
		nodesByID[n.ID] = n
	}

	// One writer per input port.
	seenTargets := make(map[string]string, len(g.Edges))

	for _, e := range g.Edges {
		src, ok := nodesByID[e.Source]
		if !ok {
			return fmt.Errorf("%w: edge %q references missing source node %q", ErrInvalidGraph, e.ID, e.Source)
		}
		dst, ok := nodesByID[e.Target]
		if !ok {
			return fmt.Errorf("%w: edge %q references missing target node %q", ErrInvalidGraph, e.ID, e.Target)
		}

		srcSpec, _ := catalog.Spec(src.Type)
		outPort, ok := findPort(srcSpec.Outputs, e.SourceHandle)
		if !ok {
			return fmt.Errorf("%w: edge %q references unknown output port %q on node %q", ErrInvalidGraph, e.ID, e.SourceHandle, e.Source)
		}

		dstSpec, _ := catalog.Spec(dst.Type)
		inPort, ok := findPort(dstSpec.Inputs, e.TargetHandle)
		if !ok {
			return fmt.Errorf("%w: edge %q references unknown input port %q on node %q", ErrInvalidGraph, e.ID, e.TargetHandle, e.Target)
		}

		if outPort.DataType != inPort.DataType {
			return fmt.Errorf("%w: edge %q connects %s output %q to %s input %q",
				ErrInvalidGraph, e.ID, outPort.DataType, e.SourceHandle, inPort.DataType, e.TargetHandle)
		}

		targetKey := e.Target + ":" + e.TargetHandle
		if prev, dup := seenTargets[targetKey]; dup {
			return fmt.Errorf("%w: input port %q on node %q has multiple incoming edges (%q, %q)",
				ErrInvalidGraph, e.TargetHandle, e.Target, prev, e.ID)
		}
		seenTargets[targetKey] = e.ID
	}

	if err := detectCycle(g); err != nil {
		return err
	}

	return nil
}

// detectCycle runs Kahn's algorithm; any node left unordered sits on a cycle.
func detectCycle(g models.Graph) error {
	order := ExecutionOrder(g)
	if len(order) == len(g.Nodes) {
		return nil
	}

	ordered := make(map[string]bool, len(order))
	for _, n := range order {
		ordered[n.ID] = true
	}
	for _, n := range g.Nodes {
		if !ordered[n.ID] {
			return fmt.Errorf("%w: cycle detected involving node %q", ErrInvalidGraph, n.ID)
		}
	}
	return nil
}

// ExecutionOrder returns the nodes in topological order, seeded by nodes with
// no incoming edges. Ties among independently-ready nodes are broken by
// original array order so the walk is deterministic. Nodes on a cycle are
// omitted; Validate rejects such graphs before execution.
func ExecutionOrder(g models.Graph) []models.Node {
	indegree := make(map[string]int, len(g.Nodes))
	for _, n := range g.Nodes {
		indegree[n.ID] = 0
	}
	for _, e := range g.Edges {
		if _, ok := indegree[e.Target]; ok {
			indegree[e.Target]++
		}
	}

	order := make([]models.Node, 0, len(g.Nodes))
	visited := make(map[string]bool, len(g.Nodes))

	for len(order) < len(g.Nodes) {
		progressed := false
		for _, n := range g.Nodes {
			if visited[n.ID] || indegree[n.ID] > 0 {
				continue
			}
			visited[n.ID] = true
			order = append(order, n)
			progressed = true
			for _, e := range g.Edges {
				if e.Source == n.ID {
					indegree[e.Target]--
				}
			}
		}
		if !progressed {
			break
		}
	}

	return order
}

// Incoming returns all edges terminating at the given node.
func Incoming(g models.Graph, nodeID string) []models.Edge {
	var edges []models.Edge
	for _, e := range g.Edges {
		if e.Target == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// UpstreamEdge resolves the unique edge feeding a node's input port. Single
// writer per input port is enforced at validation time.
func UpstreamEdge(g models.Graph, nodeID, port string) (models.Edge, bool) {
	for _, e := range g.Edges {
		if e.Target == nodeID && e.TargetHandle == port {
			return e, true
		}
	}
	return models.Edge{}, false
}

func findPort(ports []Port, name string) (Port, bool) {
	for _, p := range ports {
		if p.Name == name {
			return p, true
		}
	}
	return Port{}, false
}
