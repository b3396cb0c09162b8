package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// PostgreSQLProvider implements the Provider interface using PostgreSQL
type PostgreSQLProvider struct {
	db         *sql.DB
	workflows  *PostgreSQLWorkflowStore
	executions *PostgreSQLExecutionStore
	schedules  *PostgreSQLScheduleStore
	profiles   *PostgreSQLProfileStore
	accounts   *PostgreSQLAccountStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.Database, config.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	provider := &PostgreSQLProvider{db: db}
	provider.workflows = &PostgreSQLWorkflowStore{db: db}
	provider.executions = &PostgreSQLExecutionStore{db: db}
	provider.schedules = &PostgreSQLScheduleStore{db: db}
	provider.profiles = &PostgreSQLProfileStore{db: db}
	provider.accounts = &PostgreSQLAccountStore{db: db}

	return provider, nil
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			graph JSONB NOT NULL,
			trigger_type TEXT NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflows_user_id_idx ON workflows (user_id);

		CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			status TEXT NOT NULL,
			context JSONB,
			credits_estimated INTEGER NOT NULL DEFAULT 0,
			credits_used INTEGER NOT NULL DEFAULT 0,
			current_node_id TEXT,
			error_message TEXT,
			error_node_id TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS workflow_executions_workflow_id_idx ON workflow_executions (workflow_id);
		CREATE INDEX IF NOT EXISTS workflow_executions_status_idx ON workflow_executions (status);

		CREATE TABLE IF NOT EXISTS step_results (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			status TEXT NOT NULL,
			input_data JSONB,
			output_data JSONB,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS step_results_execution_id_idx ON step_results (execution_id);

		CREATE TABLE IF NOT EXISTS workflow_schedules (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			cron_expression TEXT NOT NULL,
			timezone TEXT NOT NULL,
			is_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			next_run_at TIMESTAMPTZ,
			last_run_at TIMESTAMPTZ,
			run_count INTEGER NOT NULL DEFAULT 0,
			last_error TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS workflow_schedules_next_run_idx ON workflow_schedules (is_enabled, next_run_at);

		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			credits INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS accounts (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			api_token TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error { return p.db.Close() }

// Workflows returns the store for workflow definitions
func (p *PostgreSQLProvider) Workflows() WorkflowStore { return p.workflows }

// Executions returns the store for executions and step results
func (p *PostgreSQLProvider) Executions() ExecutionStore { return p.executions }

// Schedules returns the store for cron schedules
func (p *PostgreSQLProvider) Schedules() ScheduleStore { return p.schedules }

// Profiles returns the store for user profiles
func (p *PostgreSQLProvider) Profiles() ProfileStore { return p.profiles }

// Accounts returns the store for account data
func (p *PostgreSQLProvider) Accounts() AccountStore { return p.accounts }

// PostgreSQLWorkflowStore implements WorkflowStore using PostgreSQL
type PostgreSQLWorkflowStore struct {
	db *sql.DB
}

// SaveWorkflow persists a workflow definition
func (s *PostgreSQLWorkflowStore) SaveWorkflow(workflow models.Workflow) error {
	graphJSON, err := json.Marshal(workflow.Graph)
	if err != nil {
		return fmt.Errorf("failed to marshal graph: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO workflows (id, user_id, name, graph, trigger_type, enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			graph = EXCLUDED.graph,
			trigger_type = EXCLUDED.trigger_type,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at
	`, workflow.ID, workflow.UserID, workflow.Name, graphJSON, workflow.TriggerType,
		workflow.Enabled, workflow.CreatedAt, workflow.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}

// GetWorkflow retrieves a workflow owned by the given user
func (s *PostgreSQLWorkflowStore) GetWorkflow(userID, workflowID string) (models.Workflow, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, name, graph, trigger_type, enabled, created_at, updated_at
		FROM workflows WHERE id = $1 AND user_id = $2
	`, workflowID, userID)
	return scanWorkflow(row)
}

// ListWorkflows returns all workflows for a user
func (s *PostgreSQLWorkflowStore) ListWorkflows(userID string) ([]models.Workflow, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, name, graph, trigger_type, enabled, created_at, updated_at
		FROM workflows WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}
	defer rows.Close()

	workflows := make([]models.Workflow, 0)
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// DeleteWorkflow removes a workflow
func (s *PostgreSQLWorkflowStore) DeleteWorkflow(userID, workflowID string) error {
	result, err := s.db.Exec(`DELETE FROM workflows WHERE id = $1 AND user_id = $2`, workflowID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrWorkflowNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanWorkflow(row rowScanner) (models.Workflow, error) {
	var wf models.Workflow
	var graphJSON []byte
	err := row.Scan(&wf.ID, &wf.UserID, &wf.Name, &graphJSON, &wf.TriggerType, &wf.Enabled, &wf.CreatedAt, &wf.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Workflow{}, ErrWorkflowNotFound
	}
	if err != nil {
		return models.Workflow{}, fmt.Errorf("failed to scan workflow: %w", err)
	}
	if err := json.Unmarshal(graphJSON, &wf.Graph); err != nil {
		return models.Workflow{}, fmt.Errorf("failed to unmarshal graph: %w", err)
	}
	return wf, nil
}

// PostgreSQLExecutionStore implements ExecutionStore using PostgreSQL
type PostgreSQLExecutionStore struct {
	db *sql.DB
}

// SaveExecution upserts an execution row. The WHERE clause on the update arm
// keeps terminal rows terminal.
func (s *PostgreSQLExecutionStore) SaveExecution(execution models.WorkflowExecution) error {
	contextJSON, err := json.Marshal(execution.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal context: %w", err)
	}

	result, err := s.db.Exec(`
		INSERT INTO workflow_executions
			(id, workflow_id, user_id, status, context, credits_estimated, credits_used,
			 current_node_id, error_message, error_node_id, created_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			credits_used = EXCLUDED.credits_used,
			current_node_id = EXCLUDED.current_node_id,
			error_message = EXCLUDED.error_message,
			error_node_id = EXCLUDED.error_node_id,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at
		WHERE workflow_executions.status NOT IN ('completed', 'failed')
		   OR workflow_executions.status = EXCLUDED.status
	`, execution.ID, execution.WorkflowID, execution.UserID, execution.Status, contextJSON,
		execution.CreditsEstimated, execution.CreditsUsed, execution.CurrentNodeID,
		execution.ErrorMessage, execution.ErrorNodeID, execution.CreatedAt,
		execution.StartedAt, execution.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrExecutionFinished
	}
	return nil
}

// GetExecution retrieves an execution row
func (s *PostgreSQLExecutionStore) GetExecution(executionID string) (models.WorkflowExecution, error) {
	row := s.db.QueryRow(`
		SELECT id, workflow_id, user_id, status, context, credits_estimated, credits_used,
		       current_node_id, error_message, error_node_id, created_at, started_at, completed_at
		FROM workflow_executions WHERE id = $1
	`, executionID)
	return scanExecution(row)
}

// ListExecutions returns all executions for a workflow, newest first
func (s *PostgreSQLExecutionStore) ListExecutions(workflowID string) ([]models.WorkflowExecution, error) {
	return s.queryExecutions(`
		SELECT id, workflow_id, user_id, status, context, credits_estimated, credits_used,
		       current_node_id, error_message, error_node_id, created_at, started_at, completed_at
		FROM workflow_executions WHERE workflow_id = $1 ORDER BY created_at DESC
	`, workflowID)
}

// ListRunningExecutions returns all executions currently in running status
func (s *PostgreSQLExecutionStore) ListRunningExecutions() ([]models.WorkflowExecution, error) {
	return s.queryExecutions(`
		SELECT id, workflow_id, user_id, status, context, credits_estimated, credits_used,
		       current_node_id, error_message, error_node_id, created_at, started_at, completed_at
		FROM workflow_executions WHERE status = 'running'
	`)
}

func (s *PostgreSQLExecutionStore) queryExecutions(query string, args ...interface{}) ([]models.WorkflowExecution, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	executions := make([]models.WorkflowExecution, 0)
	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, execution)
	}
	return executions, rows.Err()
}

func scanExecution(row rowScanner) (models.WorkflowExecution, error) {
	var execution models.WorkflowExecution
	var contextJSON []byte
	var currentNode, errorMessage, errorNode sql.NullString
	err := row.Scan(&execution.ID, &execution.WorkflowID, &execution.UserID, &execution.Status,
		&contextJSON, &execution.CreditsEstimated, &execution.CreditsUsed,
		&currentNode, &errorMessage, &errorNode,
		&execution.CreatedAt, &execution.StartedAt, &execution.CompletedAt)
	if err == sql.ErrNoRows {
		return models.WorkflowExecution{}, ErrExecutionNotFound
	}
	if err != nil {
		return models.WorkflowExecution{}, fmt.Errorf("failed to scan execution: %w", err)
	}
	execution.CurrentNodeID = currentNode.String
	execution.ErrorMessage = errorMessage.String
	execution.ErrorNodeID = errorNode.String
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &execution.Context); err != nil {
			return models.WorkflowExecution{}, fmt.Errorf("failed to unmarshal context: %w", err)
		}
	}
	return execution, nil
}

// SaveStepResult upserts a step result row
func (s *PostgreSQLExecutionStore) SaveStepResult(step models.StepResult) error {
	inputJSON, err := json.Marshal(step.InputData)
	if err != nil {
		return fmt.Errorf("failed to marshal step input: %w", err)
	}
	outputJSON, err := json.Marshal(step.OutputData)
	if err != nil {
		return fmt.Errorf("failed to marshal step output: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO step_results
			(id, execution_id, node_id, node_type, status, input_data, output_data, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			output_data = EXCLUDED.output_data,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, step.ID, step.ExecutionID, step.NodeID, step.NodeType, step.Status,
		inputJSON, outputJSON, step.Error, step.StartedAt, step.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save step result: %w", err)
	}
	return nil
}

// ListStepResults returns step results for an execution in start order
func (s *PostgreSQLExecutionStore) ListStepResults(executionID string) ([]models.StepResult, error) {
	rows, err := s.db.Query(`
		SELECT id, execution_id, node_id, node_type, status, input_data, output_data, error, started_at, completed_at
		FROM step_results WHERE execution_id = $1 ORDER BY started_at
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list step results: %w", err)
	}
	defer rows.Close()

	steps := make([]models.StepResult, 0)
	for rows.Next() {
		var step models.StepResult
		var inputJSON, outputJSON []byte
		var stepErr sql.NullString
		if err := rows.Scan(&step.ID, &step.ExecutionID, &step.NodeID, &step.NodeType, &step.Status,
			&inputJSON, &outputJSON, &stepErr, &step.StartedAt, &step.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan step result: %w", err)
		}
		step.Error = stepErr.String
		if len(inputJSON) > 0 {
			_ = json.Unmarshal(inputJSON, &step.InputData)
		}
		if len(outputJSON) > 0 {
			_ = json.Unmarshal(outputJSON, &step.OutputData)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

// PostgreSQLScheduleStore implements ScheduleStore using PostgreSQL
type PostgreSQLScheduleStore struct {
	db *sql.DB
}

// SaveSchedule upserts a schedule
func (s *PostgreSQLScheduleStore) SaveSchedule(schedule models.Schedule) error {
	_, err := s.db.Exec(`
		INSERT INTO workflow_schedules
			(id, workflow_id, user_id, cron_expression, timezone, is_enabled,
			 next_run_at, last_run_at, run_count, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			cron_expression = EXCLUDED.cron_expression,
			timezone = EXCLUDED.timezone,
			is_enabled = EXCLUDED.is_enabled,
			next_run_at = EXCLUDED.next_run_at,
			last_run_at = EXCLUDED.last_run_at,
			run_count = EXCLUDED.run_count,
			last_error = EXCLUDED.last_error,
			updated_at = EXCLUDED.updated_at
	`, schedule.ID, schedule.WorkflowID, schedule.UserID, schedule.CronExpression,
		schedule.Timezone, schedule.IsEnabled, schedule.NextRunAt, schedule.LastRunAt,
		schedule.RunCount, schedule.LastError, schedule.CreatedAt, schedule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves a schedule by ID
func (s *PostgreSQLScheduleStore) GetSchedule(scheduleID string) (models.Schedule, error) {
	row := s.db.QueryRow(scheduleSelect+` WHERE id = $1`, scheduleID)
	return scanSchedule(row)
}

// GetScheduleByWorkflow retrieves the schedule bound to a workflow
func (s *PostgreSQLScheduleStore) GetScheduleByWorkflow(workflowID string) (models.Schedule, error) {
	row := s.db.QueryRow(scheduleSelect+` WHERE workflow_id = $1`, workflowID)
	return scanSchedule(row)
}

// ListSchedules returns a user's schedules ordered by creation time
func (s *PostgreSQLScheduleStore) ListSchedules(userID string) ([]models.Schedule, error) {
	rows, err := s.db.Query(scheduleSelect+` WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]models.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// ListDueSchedules returns enabled schedules whose next_run_at is at or
// before now
func (s *PostgreSQLScheduleStore) ListDueSchedules(now time.Time) ([]models.Schedule, error) {
	rows, err := s.db.Query(scheduleSelect+`
		WHERE is_enabled = TRUE AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due schedules: %w", err)
	}
	defer rows.Close()

	schedules := make([]models.Schedule, 0)
	for rows.Next() {
		schedule, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, schedule)
	}
	return schedules, rows.Err()
}

// DeleteSchedule removes a schedule
func (s *PostgreSQLScheduleStore) DeleteSchedule(scheduleID string) error {
	result, err := s.db.Exec(`DELETE FROM workflow_schedules WHERE id = $1`, scheduleID)
	if err != nil {
		return fmt.Errorf("failed to delete schedule: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ClaimSchedule conditionally advances next_run_at in a single UPDATE
func (s *PostgreSQLScheduleStore) ClaimSchedule(scheduleID string, expected, next time.Time) (bool, error) {
	result, err := s.db.Exec(`
		UPDATE workflow_schedules SET next_run_at = $1, updated_at = NOW()
		WHERE id = $2 AND next_run_at = $3
	`, next, scheduleID, expected)
	if err != nil {
		return false, fmt.Errorf("failed to claim schedule: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected == 1, nil
}

const scheduleSelect = `
	SELECT id, workflow_id, user_id, cron_expression, timezone, is_enabled,
	       next_run_at, last_run_at, run_count, last_error, created_at, updated_at
	FROM workflow_schedules`

func scanSchedule(row rowScanner) (models.Schedule, error) {
	var schedule models.Schedule
	var lastError sql.NullString
	err := row.Scan(&schedule.ID, &schedule.WorkflowID, &schedule.UserID,
		&schedule.CronExpression, &schedule.Timezone, &schedule.IsEnabled,
		&schedule.NextRunAt, &schedule.LastRunAt, &schedule.RunCount,
		&lastError, &schedule.CreatedAt, &schedule.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return models.Schedule{}, fmt.Errorf("failed to scan schedule: %w", err)
	}
	schedule.LastError = lastError.String
	return schedule, nil
}

// PostgreSQLProfileStore implements ProfileStore using PostgreSQL
type PostgreSQLProfileStore struct {
	db *sql.DB
}

// GetCredits reads a user's credit balance
func (s *PostgreSQLProfileStore) GetCredits(userID string) (int, error) {
	var credits int
	err := s.db.QueryRow(`SELECT credits FROM profiles WHERE user_id = $1`, userID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, ErrProfileNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read credits: %w", err)
	}
	return credits, nil
}

// AddCredits grants credits to a user, creating the profile if needed
func (s *PostgreSQLProfileStore) AddCredits(userID string, amount int) error {
	_, err := s.db.Exec(`
		INSERT INTO profiles (user_id, credits) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET credits = profiles.credits + EXCLUDED.credits
	`, userID, amount)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	return nil
}

// DeductCredits atomically debits a user's balance. The guard in the WHERE
// clause makes the decrement and the balance check one statement.
func (s *PostgreSQLProfileStore) DeductCredits(userID string, amount int, description string) error {
	result, err := s.db.Exec(`
		UPDATE profiles SET credits = credits - $1
		WHERE user_id = $2 AND credits >= $1
	`, amount, userID)
	if err != nil {
		return fmt.Errorf("failed to deduct credits (%s): %w", description, err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: user %s, need %d", ErrInsufficientCredits, userID, amount)
	}
	return nil
}

// PostgreSQLAccountStore implements AccountStore using PostgreSQL
type PostgreSQLAccountStore struct {
	db *sql.DB
}

// SaveAccount persists an account
func (s *PostgreSQLAccountStore) SaveAccount(account Account) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (id, username, password_hash, api_token, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			password_hash = EXCLUDED.password_hash,
			api_token = EXCLUDED.api_token
	`, account.ID, account.Username, account.PasswordHash, account.APIToken, account.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by ID
func (s *PostgreSQLAccountStore) GetAccount(accountID string) (Account, error) {
	return s.scanAccountRow(s.db.QueryRow(accountSelect+` WHERE id = $1`, accountID))
}

// GetAccountByUsername retrieves an account by username
func (s *PostgreSQLAccountStore) GetAccountByUsername(username string) (Account, error) {
	return s.scanAccountRow(s.db.QueryRow(accountSelect+` WHERE username = $1`, username))
}

// GetAccountByToken retrieves an account by API token
func (s *PostgreSQLAccountStore) GetAccountByToken(token string) (Account, error) {
	return s.scanAccountRow(s.db.QueryRow(accountSelect+` WHERE api_token = $1`, token))
}

const accountSelect = `SELECT id, username, password_hash, api_token, created_at FROM accounts`

func (s *PostgreSQLAccountStore) scanAccountRow(row *sql.Row) (Account, error) {
	var account Account
	var token sql.NullString
	err := row.Scan(&account.ID, &account.Username, &account.PasswordHash, &token, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return Account{}, ErrAccountNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("failed to scan account: %w", err)
	}
	account.APIToken = token.String
	return account, nil
}
