package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pixelmuse/pixelmuse/pkg/engine"
	"github.com/pixelmuse/pixelmuse/pkg/models"
	"github.com/pixelmuse/pixelmuse/pkg/nodes"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

// DefaultMinScheduledBalance is the credit floor below which a scheduled run
// is skipped for the cycle instead of dispatched.
const DefaultMinScheduledBalance = 5

// Result statuses reported per schedule by ProcessDue
const (
	StatusDispatched = "dispatched"
	StatusSkipped    = "skipped"
	StatusFailed     = "failed"
)

// Result is the outcome of processing one due schedule.
type Result struct {
	ScheduleID string `json:"schedule_id"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

// Summary is the outcome of one ProcessDue pass.
type Summary struct {
	Processed int      `json:"processed"`
	Results   []Result `json:"results"`
}

// Scheduler dispatches due workflow schedules. It is invoked by an external
// minute-granularity caller through the HTTP surface.
type Scheduler struct {
	schedules  storage.ScheduleStore
	workflows  storage.WorkflowStore
	credits    nodes.Credits
	engine     *engine.Engine
	minBalance int
}

// New creates a scheduler. minBalance <= 0 uses the default floor.
func New(schedules storage.ScheduleStore, workflows storage.WorkflowStore, credits nodes.Credits, eng *engine.Engine, minBalance int) *Scheduler {
	if minBalance <= 0 {
		minBalance = DefaultMinScheduledBalance
	}
	return &Scheduler{
		schedules:  schedules,
		workflows:  workflows,
		credits:    credits,
		engine:     eng,
		minBalance: minBalance,
	}
}

// UpsertSchedule validates the cron expression, verifies workflow ownership
// and creates or updates the workflow's schedule with a freshly computed
// next_run_at.
func (s *Scheduler) UpsertSchedule(userID, workflowID, expression, timezone string, enabled bool) (models.Schedule, error) {
	if err := ValidateCron(expression, timezone); err != nil {
		return models.Schedule{}, err
	}
	if _, err := s.workflows.GetWorkflow(userID, workflowID); err != nil {
		return models.Schedule{}, err
	}

	now := time.Now().UTC()
	schedule, err := s.schedules.GetScheduleByWorkflow(workflowID)
	if errors.Is(err, storage.ErrScheduleNotFound) {
		schedule = models.Schedule{
			ID:         uuid.New().String(),
			WorkflowID: workflowID,
			UserID:     userID,
			CreatedAt:  now,
		}
	} else if err != nil {
		return models.Schedule{}, err
	} else if schedule.UserID != userID {
		return models.Schedule{}, storage.ErrScheduleNotFound
	}

	schedule.CronExpression = expression
	schedule.Timezone = timezone
	schedule.IsEnabled = enabled
	schedule.UpdatedAt = now
	if enabled {
		next, err := NextRun(expression, timezone, now)
		if err != nil {
			return models.Schedule{}, err
		}
		schedule.NextRunAt = &next
	} else {
		schedule.NextRunAt = nil
	}

	if err := s.schedules.SaveSchedule(schedule); err != nil {
		return models.Schedule{}, err
	}
	return schedule, nil
}

// SyncWorkflowSchedule keeps the schedule row in lockstep with the graph: a
// schedule-trigger node means a schedule must exist, its absence means any
// schedule on file must be deleted.
func (s *Scheduler) SyncWorkflowSchedule(workflow models.Workflow) error {
	trigger, hasTrigger := nodes.FindScheduleTrigger(workflow.Graph)
	if !hasTrigger {
		schedule, err := s.schedules.GetScheduleByWorkflow(workflow.ID)
		if errors.Is(err, storage.ErrScheduleNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return s.schedules.DeleteSchedule(schedule.ID)
	}

	expression, _ := trigger.Config["cron_expression"].(string)
	if expression == "" {
		return fmt.Errorf("%w: schedule-trigger node %q has no cron_expression", ErrInvalidCron, trigger.ID)
	}
	timezone, _ := trigger.Config["timezone"].(string)

	_, err := s.UpsertSchedule(workflow.UserID, workflow.ID, expression, timezone, workflow.Enabled)
	return err
}

// ProcessDue selects all enabled schedules whose next_run_at has passed and
// dispatches each inside its own error boundary. The schedule's next_run_at
// is claimed forward before any dispatch work so a concurrent or repeated
// pass can never double-fire the same interval, and a broken schedule can
// never busy-loop.
func (s *Scheduler) ProcessDue(ctx context.Context) Summary {
	now := time.Now().UTC()
	due, err := s.schedules.ListDueSchedules(now)
	if err != nil {
		log.Printf("scheduler: failed to list due schedules: %v", err)
		return Summary{Results: []Result{}}
	}

	summary := Summary{Results: make([]Result, 0, len(due))}
	for _, schedule := range due {
		result := s.processOne(ctx, schedule, now)
		summary.Results = append(summary.Results, result)
		summary.Processed++
	}
	return summary
}

func (s *Scheduler) processOne(ctx context.Context, schedule models.Schedule, now time.Time) Result {
	next, err := NextRun(schedule.CronExpression, schedule.Timezone, now)
	if err != nil {
		// Expression went bad after save; disable so it stops being selected.
		schedule.IsEnabled = false
		schedule.NextRunAt = nil
		schedule.LastError = err.Error()
		schedule.UpdatedAt = now
		s.save(schedule)
		return Result{ScheduleID: schedule.ID, Status: StatusFailed, Error: err.Error()}
	}

	claimed, err := s.schedules.ClaimSchedule(schedule.ID, *schedule.NextRunAt, next)
	if err != nil {
		return Result{ScheduleID: schedule.ID, Status: StatusFailed, Error: err.Error()}
	}
	if !claimed {
		// Another dispatcher owns this interval.
		return Result{ScheduleID: schedule.ID, Status: StatusSkipped, Error: "already claimed"}
	}
	schedule.NextRunAt = &next

	status, dispatchErr := s.dispatch(ctx, &schedule, now)

	schedule.UpdatedAt = time.Now().UTC()
	if dispatchErr != nil {
		schedule.LastError = dispatchErr.Error()
		s.save(schedule)
		return Result{ScheduleID: schedule.ID, Status: status, Error: dispatchErr.Error()}
	}

	schedule.LastRunAt = &now
	schedule.RunCount++
	schedule.LastError = ""
	s.save(schedule)
	return Result{ScheduleID: schedule.ID, Status: status}
}

// dispatch runs steps (a)-(c) for one claimed schedule. Any returned error is
// recorded as last_error; next_run_at stays advanced either way.
func (s *Scheduler) dispatch(ctx context.Context, schedule *models.Schedule, now time.Time) (string, error) {
	workflow, err := s.workflows.GetWorkflow(schedule.UserID, schedule.WorkflowID)
	if err != nil {
		return StatusSkipped, fmt.Errorf("workflow unavailable: %w", err)
	}
	if workflow.Graph.Empty() {
		return StatusSkipped, errors.New("workflow graph is empty")
	}

	balance, err := s.credits.Balance(ctx, schedule.UserID)
	if err != nil {
		return StatusFailed, fmt.Errorf("failed to read credit balance: %w", err)
	}
	if balance < s.minBalance {
		return StatusSkipped, errors.New("Insufficient credits")
	}

	_, err = s.engine.Trigger(ctx, workflow, schedule.UserID, map[string]interface{}{
		"triggered_by": "schedule",
		"schedule_id":  schedule.ID,
	})
	if err != nil {
		var insufficient *engine.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			return StatusSkipped, errors.New("Insufficient credits")
		}
		return StatusFailed, err
	}
	return StatusDispatched, nil
}

func (s *Scheduler) save(schedule models.Schedule) {
	if err := s.schedules.SaveSchedule(schedule); err != nil {
		log.Printf("scheduler: failed to save schedule %s: %v", schedule.ID, err)
	}
}
