package nodes

import (
	"context"
	"time"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
)

// Trigger node type names
const (
	TypeManualTrigger   = "manual-trigger"
	TypeScheduleTrigger = "schedule-trigger"
)

// Trigger nodes have no inputs, emit a trigger signal and cost nothing.

func manualTriggerDefinition() Definition {
	return Definition{
		Type:    TypeManualTrigger,
		Label:   "Manual Trigger",
		Outputs: []graph.Port{{Name: "trigger", DataType: TypeSignal}},
		Execute: triggerExecutor("manual"),
	}
}

func scheduleTriggerDefinition() Definition {
	return Definition{
		Type:    TypeScheduleTrigger,
		Label:   "Schedule Trigger",
		Outputs: []graph.Port{{Name: "trigger", DataType: TypeSignal}},
		Config: []ConfigField{
			{Name: "cron_expression", Type: "string", Required: true},
			{Name: "timezone", Type: "string", Default: "UTC"},
		},
		Execute: triggerExecutor("schedule"),
	}
}

func triggerExecutor(source string) Executor {
	return func(ctx context.Context, in Input) (*Result, error) {
		return &Result{
			Output: map[string]interface{}{
				"trigger":      true,
				"source":       source,
				"triggered_at": time.Now().UTC().Format(time.RFC3339),
			},
		}, nil
	}
}
