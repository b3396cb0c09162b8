package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// testCatalog is a minimal catalog with a trigger, a producer and a consumer.
type testCatalog struct{}

func (testCatalog) Spec(nodeType string) (Spec, bool) {
	switch nodeType {
	case "trigger":
		return Spec{
			Outputs: []Port{{Name: "trigger", DataType: "signal"}},
		}, true
	case "generate":
		return Spec{
			Inputs: []Port{
				{Name: "trigger", DataType: "signal", Required: true},
			},
			Outputs: []Port{{Name: "image_url", DataType: "image"}},
		}, true
	case "save":
		return Spec{
			Inputs: []Port{
				{Name: "image_url", DataType: "image", Required: true},
			},
			Outputs: []Port{{Name: "asset_id", DataType: "text"}},
		}, true
	default:
		return Spec{}, false
	}
}

func chainGraph() models.Graph {
	return models.Graph{
		Nodes: []models.Node{
			{ID: "t1", Type: "trigger"},
			{ID: "g1", Type: "generate"},
			{ID: "s1", Type: "save"},
		},
		Edges: []models.Edge{
			{ID: "e1", Source: "t1", SourceHandle: "trigger", Target: "g1", TargetHandle: "trigger"},
			{ID: "e2", Source: "g1", SourceHandle: "image_url", Target: "s1", TargetHandle: "image_url"},
		},
	}
}

func TestValidate(t *testing.T) {
	catalog := testCatalog{}

	t.Run("valid chain", func(t *testing.T) {
		assert.NoError(t, Validate(chainGraph(), catalog))
	})

	t.Run("nil nodes or edges rejected", func(t *testing.T) {
		err := Validate(models.Graph{Edges: []models.Edge{}}, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)

		err = Validate(models.Graph{Nodes: []models.Node{}}, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("empty graph with both sequences is valid", func(t *testing.T) {
		g := models.Graph{Nodes: []models.Node{}, Edges: []models.Edge{}}
		assert.NoError(t, Validate(g, catalog))
	})

	t.Run("unknown node type", func(t *testing.T) {
		g := chainGraph()
		g.Nodes[1].Type = "teleport"
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
		assert.Contains(t, err.Error(), "unknown type")
	})

	t.Run("duplicate node id", func(t *testing.T) {
		g := chainGraph()
		g.Nodes[2].ID = "g1"
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("edge references missing node", func(t *testing.T) {
		g := chainGraph()
		g.Edges[0].Source = "ghost"
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("edge references unknown port", func(t *testing.T) {
		g := chainGraph()
		g.Edges[1].TargetHandle = "thumbnail"
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("port data type mismatch", func(t *testing.T) {
		g := chainGraph()
		// signal output wired into an image input
		g.Edges[1] = models.Edge{ID: "e2", Source: "t1", SourceHandle: "trigger", Target: "s1", TargetHandle: "image_url"}
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})

	t.Run("two edges into one input port", func(t *testing.T) {
		g := chainGraph()
		g.Nodes = append(g.Nodes, models.Node{ID: "g2", Type: "generate"})
		g.Edges = append(g.Edges,
			models.Edge{ID: "e3", Source: "t1", SourceHandle: "trigger", Target: "g2", TargetHandle: "trigger"},
			models.Edge{ID: "e4", Source: "g2", SourceHandle: "image_url", Target: "s1", TargetHandle: "image_url"},
		)
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
		assert.Contains(t, err.Error(), "multiple incoming edges")
	})

	t.Run("cycle rejected", func(t *testing.T) {
		g := models.Graph{
			Nodes: []models.Node{
				{ID: "a", Type: "generate"},
				{ID: "b", Type: "save"},
			},
			Edges: []models.Edge{
				{ID: "e1", Source: "a", SourceHandle: "image_url", Target: "b", TargetHandle: "image_url"},
				{ID: "e2", Source: "b", SourceHandle: "asset_id", Target: "a", TargetHandle: "trigger"},
			},
		}
		// force matching data types so only the cycle can fail validation
		g.Edges[1].SourceHandle = "asset_id"
		err := Validate(g, catalog)
		assert.ErrorIs(t, err, ErrInvalidGraph)
	})
}

func TestExecutionOrder(t *testing.T) {
	t.Run("upstream nodes come first", func(t *testing.T) {
		order := ExecutionOrder(chainGraph())
		require.Len(t, order, 3)

		position := make(map[string]int, len(order))
		for i, n := range order {
			position[n.ID] = i
		}
		assert.Less(t, position["t1"], position["g1"])
		assert.Less(t, position["g1"], position["s1"])
	})

	t.Run("ties broken by array order", func(t *testing.T) {
		g := models.Graph{
			Nodes: []models.Node{
				{ID: "t2", Type: "trigger"},
				{ID: "t1", Type: "trigger"},
				{ID: "t3", Type: "trigger"},
			},
			Edges: []models.Edge{},
		}
		order := ExecutionOrder(g)
		require.Len(t, order, 3)
		assert.Equal(t, "t2", order[0].ID)
		assert.Equal(t, "t1", order[1].ID)
		assert.Equal(t, "t3", order[2].ID)
	})

	t.Run("cycle nodes are omitted", func(t *testing.T) {
		g := models.Graph{
			Nodes: []models.Node{
				{ID: "t1", Type: "trigger"},
				{ID: "a", Type: "generate"},
				{ID: "b", Type: "save"},
			},
			Edges: []models.Edge{
				{ID: "e1", Source: "a", SourceHandle: "image_url", Target: "b", TargetHandle: "image_url"},
				{ID: "e2", Source: "b", SourceHandle: "asset_id", Target: "a", TargetHandle: "trigger"},
			},
		}
		order := ExecutionOrder(g)
		require.Len(t, order, 1)
		assert.Equal(t, "t1", order[0].ID)
	})
}

func TestUpstreamEdge(t *testing.T) {
	g := chainGraph()

	edge, ok := UpstreamEdge(g, "s1", "image_url")
	require.True(t, ok)
	assert.Equal(t, "g1", edge.Source)
	assert.Equal(t, "image_url", edge.SourceHandle)

	_, ok = UpstreamEdge(g, "g1", "prompt")
	assert.False(t, ok)
}
