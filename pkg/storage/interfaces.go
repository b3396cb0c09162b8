// Package storage provides interfaces for persistent storage.
package storage

import (
	"time"

	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// Provider defines the interface for persistence backends
type Provider interface {
	// Initialize sets up the storage backend
	Initialize() error

	// Close cleans up resources
	Close() error

	// Workflows returns the store for workflow definitions
	Workflows() WorkflowStore

	// Executions returns the store for executions and step results
	Executions() ExecutionStore

	// Schedules returns the store for cron schedules
	Schedules() ScheduleStore

	// Profiles returns the store for user profiles and credit balances
	Profiles() ProfileStore

	// Accounts returns the store for account data
	Accounts() AccountStore
}

// WorkflowStore manages workflow persistence. All lookups are scoped to the
// owning user; a workflow that exists but is owned by someone else is
// indistinguishable from one that does not exist.
type WorkflowStore interface {
	SaveWorkflow(workflow models.Workflow) error
	GetWorkflow(userID, workflowID string) (models.Workflow, error)
	ListWorkflows(userID string) ([]models.Workflow, error)
	DeleteWorkflow(userID, workflowID string) error
}

// ExecutionStore manages execution rows and their append-only step results.
type ExecutionStore interface {
	// SaveExecution upserts an execution row. Status transitions are
	// monotonic: writing a different status over a terminal row fails.
	SaveExecution(execution models.WorkflowExecution) error

	GetExecution(executionID string) (models.WorkflowExecution, error)
	ListExecutions(workflowID string) ([]models.WorkflowExecution, error)
	ListRunningExecutions() ([]models.WorkflowExecution, error)

	SaveStepResult(step models.StepResult) error
	ListStepResults(executionID string) ([]models.StepResult, error)
}

// ScheduleStore manages cron schedule rows. At most one schedule exists per
// workflow.
type ScheduleStore interface {
	SaveSchedule(schedule models.Schedule) error
	GetSchedule(scheduleID string) (models.Schedule, error)
	GetScheduleByWorkflow(workflowID string) (models.Schedule, error)
	ListSchedules(userID string) ([]models.Schedule, error)
	ListDueSchedules(now time.Time) ([]models.Schedule, error)
	DeleteSchedule(scheduleID string) error

	// ClaimSchedule conditionally advances next_run_at from expected to next
	// in one step. It returns false when another dispatcher already claimed
	// the row, guaranteeing at most one dispatch per due interval.
	ClaimSchedule(scheduleID string, expected, next time.Time) (bool, error)
}

// ProfileStore manages user profiles and the credit balance they carry.
// DeductCredits is the atomic ledger RPC the engine treats as a black box.
type ProfileStore interface {
	GetCredits(userID string) (int, error)
	AddCredits(userID string, amount int) error
	DeductCredits(userID string, amount int, description string) error
}

// AccountStore manages account persistence
type AccountStore interface {
	SaveAccount(account Account) error
	GetAccount(accountID string) (Account, error)
	GetAccountByUsername(username string) (Account, error)
	GetAccountByToken(token string) (Account, error)
}

// Account holds login credentials and the API token for one user.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	APIToken     string    `json:"api_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
