package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// Errors returned by storage providers
var (
	ErrWorkflowNotFound     = errors.New("workflow not found")
	ErrExecutionNotFound    = errors.New("execution not found")
	ErrScheduleNotFound     = errors.New("schedule not found")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrAccountNotFound      = errors.New("account not found")
	ErrExecutionFinished    = errors.New("execution already in a terminal state")
	ErrInsufficientCredits  = errors.New("insufficient credits")
	ErrScheduleExists       = errors.New("workflow already has a schedule")
)

// MemoryProvider implements the Provider interface using in-memory storage
type MemoryProvider struct {
	workflows  *MemoryWorkflowStore
	executions *MemoryExecutionStore
	schedules  *MemoryScheduleStore
	profiles   *MemoryProfileStore
	accounts   *MemoryAccountStore
}

// NewMemoryProvider creates a new in-memory storage provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		workflows:  NewMemoryWorkflowStore(),
		executions: NewMemoryExecutionStore(),
		schedules:  NewMemoryScheduleStore(),
		profiles:   NewMemoryProfileStore(),
		accounts:   NewMemoryAccountStore(),
	}
}

// Initialize sets up the storage backend
func (p *MemoryProvider) Initialize() error { return nil }

// Close cleans up resources
func (p *MemoryProvider) Close() error { return nil }

// Workflows returns the store for workflow definitions
func (p *MemoryProvider) Workflows() WorkflowStore { return p.workflows }

// Executions returns the store for executions and step results
func (p *MemoryProvider) Executions() ExecutionStore { return p.executions }

// Schedules returns the store for cron schedules
func (p *MemoryProvider) Schedules() ScheduleStore { return p.schedules }

// Profiles returns the store for user profiles
func (p *MemoryProvider) Profiles() ProfileStore { return p.profiles }

// Accounts returns the store for account data
func (p *MemoryProvider) Accounts() AccountStore { return p.accounts }

// MemoryWorkflowStore implements WorkflowStore using in-memory maps
type MemoryWorkflowStore struct {
	workflows map[string]map[string]models.Workflow
	mu        sync.RWMutex
}

// NewMemoryWorkflowStore creates a new in-memory workflow store
func NewMemoryWorkflowStore() *MemoryWorkflowStore {
	return &MemoryWorkflowStore{workflows: make(map[string]map[string]models.Workflow)}
}

// SaveWorkflow persists a workflow definition
func (s *MemoryWorkflowStore) SaveWorkflow(workflow models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[workflow.UserID]; !ok {
		s.workflows[workflow.UserID] = make(map[string]models.Workflow)
	}
	s.workflows[workflow.UserID][workflow.ID] = workflow
	return nil
}

// GetWorkflow retrieves a workflow owned by the given user
func (s *MemoryWorkflowStore) GetWorkflow(userID, workflowID string) (models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userWorkflows, ok := s.workflows[userID]
	if !ok {
		return models.Workflow{}, ErrWorkflowNotFound
	}
	workflow, ok := userWorkflows[workflowID]
	if !ok {
		return models.Workflow{}, ErrWorkflowNotFound
	}
	return workflow, nil
}

// ListWorkflows returns all workflows for a user
func (s *MemoryWorkflowStore) ListWorkflows(userID string) ([]models.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userWorkflows, ok := s.workflows[userID]
	if !ok {
		return []models.Workflow{}, nil
	}
	list := make([]models.Workflow, 0, len(userWorkflows))
	for _, wf := range userWorkflows {
		list = append(list, wf)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// DeleteWorkflow removes a workflow
func (s *MemoryWorkflowStore) DeleteWorkflow(userID, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	userWorkflows, ok := s.workflows[userID]
	if !ok {
		return ErrWorkflowNotFound
	}
	if _, ok := userWorkflows[workflowID]; !ok {
		return ErrWorkflowNotFound
	}
	delete(userWorkflows, workflowID)
	return nil
}

// MemoryExecutionStore implements ExecutionStore using in-memory maps
type MemoryExecutionStore struct {
	executions map[string]models.WorkflowExecution
	steps      map[string][]models.StepResult
	mu         sync.RWMutex
}

// NewMemoryExecutionStore creates a new in-memory execution store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		executions: make(map[string]models.WorkflowExecution),
		steps:      make(map[string][]models.StepResult),
	}
}

// SaveExecution upserts an execution row, refusing regressions out of a
// terminal status.
func (s *MemoryExecutionStore) SaveExecution(execution models.WorkflowExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.executions[execution.ID]; ok {
		if models.TerminalStatus(existing.Status) && execution.Status != existing.Status {
			return ErrExecutionFinished
		}
	}
	s.executions[execution.ID] = execution
	return nil
}

// GetExecution retrieves an execution row
func (s *MemoryExecutionStore) GetExecution(executionID string) (models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	execution, ok := s.executions[executionID]
	if !ok {
		return models.WorkflowExecution{}, ErrExecutionNotFound
	}
	return execution, nil
}

// ListExecutions returns all executions for a workflow, newest first
func (s *MemoryExecutionStore) ListExecutions(workflowID string) ([]models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.WorkflowExecution, 0)
	for _, execution := range s.executions {
		if execution.WorkflowID == workflowID {
			list = append(list, execution)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list, nil
}

// ListRunningExecutions returns all executions currently in running status
func (s *MemoryExecutionStore) ListRunningExecutions() ([]models.WorkflowExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.WorkflowExecution, 0)
	for _, execution := range s.executions {
		if execution.Status == models.ExecutionRunning {
			list = append(list, execution)
		}
	}
	return list, nil
}

// SaveStepResult appends a step result. The latest row for a node id wins on
// read, so a running step updated to completed replaces its entry in place.
func (s *MemoryExecutionStore) SaveStepResult(step models.StepResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	steps := s.steps[step.ExecutionID]
	for i := range steps {
		if steps[i].ID == step.ID {
			steps[i] = step
			return nil
		}
	}
	s.steps[step.ExecutionID] = append(steps, step)
	return nil
}

// ListStepResults returns step results for an execution in insertion order
func (s *MemoryExecutionStore) ListStepResults(executionID string) ([]models.StepResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	steps, ok := s.steps[executionID]
	if !ok {
		return []models.StepResult{}, nil
	}
	out := make([]models.StepResult, len(steps))
	copy(out, steps)
	return out, nil
}

// MemoryScheduleStore implements ScheduleStore using in-memory maps
type MemoryScheduleStore struct {
	schedules  map[string]models.Schedule
	byWorkflow map[string]string
	mu         sync.RWMutex
}

// NewMemoryScheduleStore creates a new in-memory schedule store
func NewMemoryScheduleStore() *MemoryScheduleStore {
	return &MemoryScheduleStore{
		schedules:  make(map[string]models.Schedule),
		byWorkflow: make(map[string]string),
	}
}

// SaveSchedule upserts a schedule, enforcing one schedule per workflow
func (s *MemoryScheduleStore) SaveSchedule(schedule models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byWorkflow[schedule.WorkflowID]; ok && existingID != schedule.ID {
		return fmt.Errorf("%w: workflow %s", ErrScheduleExists, schedule.WorkflowID)
	}
	s.schedules[schedule.ID] = schedule
	s.byWorkflow[schedule.WorkflowID] = schedule.ID
	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *MemoryScheduleStore) GetSchedule(scheduleID string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return models.Schedule{}, ErrScheduleNotFound
	}
	return schedule, nil
}

// GetScheduleByWorkflow retrieves the schedule bound to a workflow
func (s *MemoryScheduleStore) GetScheduleByWorkflow(workflowID string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	scheduleID, ok := s.byWorkflow[workflowID]
	if !ok {
		return models.Schedule{}, ErrScheduleNotFound
	}
	return s.schedules[scheduleID], nil
}

// ListSchedules returns a user's schedules ordered by creation time
func (s *MemoryScheduleStore) ListSchedules(userID string) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Schedule, 0)
	for _, schedule := range s.schedules {
		if schedule.UserID == userID {
			list = append(list, schedule)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	return list, nil
}

// ListDueSchedules returns enabled schedules whose next_run_at is at or
// before now
func (s *MemoryScheduleStore) ListDueSchedules(now time.Time) ([]models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]models.Schedule, 0)
	for _, schedule := range s.schedules {
		if schedule.IsEnabled && schedule.NextRunAt != nil && !schedule.NextRunAt.After(now) {
			list = append(list, schedule)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].NextRunAt.Before(*list[j].NextRunAt) })
	return list, nil
}

// DeleteSchedule removes a schedule
func (s *MemoryScheduleStore) DeleteSchedule(scheduleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	delete(s.schedules, scheduleID)
	delete(s.byWorkflow, schedule.WorkflowID)
	return nil
}

// ClaimSchedule advances next_run_at only when it still matches what the
// caller read. A failed claim means another dispatcher got there first.
func (s *MemoryScheduleStore) ClaimSchedule(scheduleID string, expected, next time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule, ok := s.schedules[scheduleID]
	if !ok {
		return false, ErrScheduleNotFound
	}
	if schedule.NextRunAt == nil || !schedule.NextRunAt.Equal(expected) {
		return false, nil
	}
	schedule.NextRunAt = &next
	schedule.UpdatedAt = time.Now()
	s.schedules[scheduleID] = schedule
	return true, nil
}

// MemoryProfileStore implements ProfileStore using in-memory maps
type MemoryProfileStore struct {
	credits map[string]int
	mu      sync.Mutex
}

// NewMemoryProfileStore creates a new in-memory profile store
func NewMemoryProfileStore() *MemoryProfileStore {
	return &MemoryProfileStore{credits: make(map[string]int)}
}

// GetCredits reads a user's credit balance
func (s *MemoryProfileStore) GetCredits(userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.credits[userID]
	if !ok {
		return 0, ErrProfileNotFound
	}
	return balance, nil
}

// AddCredits grants credits to a user, creating the profile if needed
func (s *MemoryProfileStore) AddCredits(userID string, amount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.credits[userID] += amount
	return nil
}

// DeductCredits atomically debits a user's balance
func (s *MemoryProfileStore) DeductCredits(userID string, amount int, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.credits[userID]
	if !ok {
		return ErrProfileNotFound
	}
	if balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientCredits, balance, amount)
	}
	s.credits[userID] = balance - amount
	return nil
}

// MemoryAccountStore implements AccountStore using in-memory maps
type MemoryAccountStore struct {
	accounts        map[string]Account
	accountsByName  map[string]string
	accountsByToken map[string]string
	mu              sync.RWMutex
}

// NewMemoryAccountStore creates a new in-memory account store
func NewMemoryAccountStore() *MemoryAccountStore {
	return &MemoryAccountStore{
		accounts:        make(map[string]Account),
		accountsByName:  make(map[string]string),
		accountsByToken: make(map[string]string),
	}
}

// SaveAccount persists an account
func (s *MemoryAccountStore) SaveAccount(account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.ID] = account
	s.accountsByName[account.Username] = account.ID
	if account.APIToken != "" {
		s.accountsByToken[account.APIToken] = account.ID
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *MemoryAccountStore) GetAccount(accountID string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	account, ok := s.accounts[accountID]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account, nil
}

// GetAccountByUsername retrieves an account by username
func (s *MemoryAccountStore) GetAccountByUsername(username string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByName[username]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[accountID], nil
}

// GetAccountByToken retrieves an account by API token
func (s *MemoryAccountStore) GetAccountByToken(token string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accountID, ok := s.accountsByToken[token]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return s.accounts[accountID], nil
}
