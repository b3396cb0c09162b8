// Package engine runs workflow executions: it walks a validated graph in
// topological order, invokes node executors and records the outcome.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmuse/pixelmuse/pkg/graph"
	"github.com/pixelmuse/pixelmuse/pkg/models"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

// Errors returned by Trigger
var (
	ErrEmptyGraph = errors.New("workflow graph has no nodes")
)

// InsufficientCreditsError is returned when the pre-flight estimate exceeds
// the user's balance.
type InsufficientCreditsError struct {
	Required  int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: required %d, available %d", e.Required, e.Available)
}

// Engine executes workflow instances. It is constructed with its
// collaborators injected so tests can run against fakes.
type Engine struct {
	registry   *nodes.Registry
	executions storage.ExecutionStore
	credits    nodes.Credits
	heartbeat  *Heartbeat
	events     Publisher

	wg sync.WaitGroup
}

// New creates an execution engine. heartbeat may be nil, in which case
// running executions are not heartbeat-tracked.
func New(registry *nodes.Registry, executions storage.ExecutionStore, credits nodes.Credits, heartbeat *Heartbeat) *Engine {
	return &Engine{
		registry:   registry,
		executions: executions,
		credits:    credits,
		heartbeat:  heartbeat,
	}
}

// Trigger validates the workflow, runs the pre-flight credit check, creates a
// pending execution row and launches the run asynchronously. It returns as
// soon as the row exists; callers poll for progress.
func (e *Engine) Trigger(ctx context.Context, workflow models.Workflow, userID string, triggerContext map[string]interface{}) (models.WorkflowExecution, error) {
	if workflow.Graph.Empty() {
		return models.WorkflowExecution{}, ErrEmptyGraph
	}
	if err := graph.Validate(workflow.Graph, e.registry); err != nil {
		return models.WorkflowExecution{}, err
	}

	estimate := EstimateCredits(workflow.Graph)
	balance, err := e.credits.Balance(ctx, userID)
	if err != nil {
		return models.WorkflowExecution{}, fmt.Errorf("failed to read credit balance: %w", err)
	}
	if estimate > balance {
		return models.WorkflowExecution{}, &InsufficientCreditsError{Required: estimate, Available: balance}
	}

	execution := models.WorkflowExecution{
		ID:               uuid.New().String(),
		WorkflowID:       workflow.ID,
		UserID:           userID,
		Status:           models.ExecutionPending,
		Context:          triggerContext,
		CreditsEstimated: estimate,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.executions.SaveExecution(execution); err != nil {
		return models.WorkflowExecution{}, fmt.Errorf("failed to create execution: %w", err)
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(execution, workflow)
	}()

	return execution, nil
}

// SetPublisher installs an event sink for step and status updates. Must be
// called before the first Trigger.
func (e *Engine) SetPublisher(events Publisher) {
	e.events = events
}

// Wait blocks until all in-flight executions finish. Used by tests and by
// graceful shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// StaleExecutions returns running executions with no live heartbeat. These
// are runs whose process died mid-flight. Returns nothing when heartbeat
// tracking is disabled.
func (e *Engine) StaleExecutions(ctx context.Context) ([]models.WorkflowExecution, error) {
	if e.heartbeat == nil {
		return nil, nil
	}
	running, err := e.executions.ListRunningExecutions()
	if err != nil {
		return nil, err
	}
	stale := make([]models.WorkflowExecution, 0)
	for _, execution := range running {
		alive, err := e.heartbeat.Alive(ctx, execution.ID)
		if err != nil {
			return nil, err
		}
		if !alive {
			stale = append(stale, execution)
		}
	}
	return stale, nil
}

// run walks the graph sequentially and fail-fast: the first executor failure
// terminates the execution, since downstream nodes depend on upstream output.
func (e *Engine) run(execution models.WorkflowExecution, workflow models.Workflow) {
	ctx := context.Background()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("execution %s panicked: %v", execution.ID, r)
			e.finish(execution, models.ExecutionFailed, fmt.Sprintf("internal error: %v", r), execution.CurrentNodeID)
		}
	}()

	now := time.Now().UTC()
	execution.Status = models.ExecutionRunning
	execution.StartedAt = &now
	if err := e.executions.SaveExecution(execution); err != nil {
		log.Printf("execution %s: failed to mark running: %v", execution.ID, err)
		return
	}
	e.beat(ctx, execution.ID)
	if e.events != nil {
		e.events.Publish(Event{
			Type:        EventStatus,
			ExecutionID: execution.ID,
			Timestamp:   now,
			Status:      models.ExecutionRunning,
		})
	}

	order := graph.ExecutionOrder(workflow.Graph)
	outputs := make(map[string]map[string]interface{}, len(order))

	for _, node := range order {
		execution.CurrentNodeID = node.ID
		if err := e.executions.SaveExecution(execution); err != nil {
			log.Printf("execution %s: failed to update current node: %v", execution.ID, err)
		}
		e.beat(ctx, execution.ID)

		def, ok := e.registry.Get(node.Type)
		if !ok {
			// Validate already rejected unknown types; this only happens if
			// the registry changed under a stored workflow.
			e.finish(execution, models.ExecutionFailed, fmt.Sprintf("unknown node type %q", node.Type), node.ID)
			return
		}

		upstream, missing := e.gatherInputs(workflow.Graph, node, def, outputs)
		if missing != "" {
			// Required input never produced: record the skip and move on.
			e.saveStep(models.StepResult{
				ID:          uuid.New().String(),
				ExecutionID: execution.ID,
				NodeID:      node.ID,
				NodeType:    node.Type,
				Status:      models.StepSkipped,
				Error:       missing,
				StartedAt:   time.Now().UTC(),
			})
			continue
		}

		step := models.StepResult{
			ID:          uuid.New().String(),
			ExecutionID: execution.ID,
			NodeID:      node.ID,
			NodeType:    node.Type,
			Status:      models.StepRunning,
			InputData:   upstream,
			StartedAt:   time.Now().UTC(),
		}
		e.saveStep(step)

		result, err := def.Execute(ctx, nodes.Input{
			UserID:   execution.UserID,
			Config:   node.Config,
			Upstream: upstream,
		})

		completed := time.Now().UTC()
		step.CompletedAt = &completed

		if err != nil {
			step.Status = models.StepFailed
			step.Error = err.Error()
			e.saveStep(step)
			e.finish(execution, models.ExecutionFailed, err.Error(), node.ID)
			return
		}

		step.Status = models.StepCompleted
		step.OutputData = result.Output
		e.saveStep(step)

		outputs[node.ID] = result.Output
		execution.CreditsUsed += result.CreditsUsed
	}

	e.finish(execution, models.ExecutionCompleted, "", "")
}

// gatherInputs resolves each declared input port through its unique incoming
// edge to the upstream node's recorded output. It returns a non-empty reason
// when a required port has no successfully-produced value.
func (e *Engine) gatherInputs(g models.Graph, node models.Node, def nodes.Definition, outputs map[string]map[string]interface{}) (map[string]interface{}, string) {
	upstream := make(map[string]interface{})
	for _, port := range def.Inputs {
		edge, connected := graph.UpstreamEdge(g, node.ID, port.Name)
		if !connected {
			if port.Required {
				return nil, fmt.Sprintf("required input %q is not connected", port.Name)
			}
			continue
		}
		sourceOutput, produced := outputs[edge.Source]
		if !produced {
			if port.Required {
				return nil, fmt.Sprintf("required input %q has no upstream value from node %q", port.Name, edge.Source)
			}
			continue
		}
		if value, ok := sourceOutput[edge.SourceHandle]; ok {
			upstream[port.Name] = value
		} else if port.Required {
			return nil, fmt.Sprintf("upstream node %q produced no %q output", edge.Source, edge.SourceHandle)
		}
	}
	return upstream, ""
}

func (e *Engine) finish(execution models.WorkflowExecution, status, errorMessage, errorNodeID string) {
	now := time.Now().UTC()
	execution.Status = status
	execution.CompletedAt = &now
	execution.ErrorMessage = errorMessage
	execution.ErrorNodeID = errorNodeID
	if err := e.executions.SaveExecution(execution); err != nil {
		log.Printf("execution %s: failed to record %s status: %v", execution.ID, status, err)
	}
	if e.heartbeat != nil {
		if err := e.heartbeat.Clear(context.Background(), execution.ID); err != nil {
			log.Printf("execution %s: failed to clear heartbeat: %v", execution.ID, err)
		}
	}
	if e.events != nil {
		e.events.Publish(Event{
			Type:        EventStatus,
			ExecutionID: execution.ID,
			Timestamp:   now,
			Status:      status,
			Error:       errorMessage,
			NodeID:      errorNodeID,
		})
	}
}

func (e *Engine) saveStep(step models.StepResult) {
	if err := e.executions.SaveStepResult(step); err != nil {
		log.Printf("execution %s: failed to save step for node %s: %v", step.ExecutionID, step.NodeID, err)
	}
	if e.events != nil {
		e.events.Publish(Event{
			Type:        EventStep,
			ExecutionID: step.ExecutionID,
			Timestamp:   time.Now().UTC(),
			NodeID:      step.NodeID,
			NodeType:    step.NodeType,
			Status:      step.Status,
			Error:       step.Error,
			Output:      step.OutputData,
		})
	}
}

func (e *Engine) beat(ctx context.Context, executionID string) {
	if e.heartbeat == nil {
		return
	}
	if err := e.heartbeat.Beat(ctx, executionID); err != nil {
		log.Printf("execution %s: heartbeat failed: %v", executionID, err)
	}
}
