package engine

import (
	"github.com/pixelmuse/pixelmuse/pkg/models"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
)

// EstimateCredits sums the static per-node-type cost table over every node in
// the graph. It is a heuristic upper bound computed before execution, not a
// reservation: actual spend is tracked per node as executors run.
func EstimateCredits(g models.Graph) int {
	total := 0
	for _, n := range g.Nodes {
		total += nodeCost(n)
	}
	return total
}

func nodeCost(n models.Node) int {
	switch n.Type {
	case nodes.TypeGeneratePrompts:
		return nodes.CreditsPerPromptBatch
	case nodes.TypeGenerateImage:
		outputs := 1
		switch v := n.Config["num_outputs"].(type) {
		case float64:
			if v >= 1 {
				outputs = int(v)
			}
		case int:
			if v >= 1 {
				outputs = v
			}
		}
		return nodes.CreditsPerImage * outputs
	case nodes.TypeGenerateVideo:
		return nodes.CreditsPerVideo
	case nodes.TypeGenerateCaption:
		return nodes.CreditsPerCaption
	default:
		// Triggers, save-gallery and unknown types cost nothing.
		return 0
	}
}
