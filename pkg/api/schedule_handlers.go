package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pixelmuse/pixelmuse/pkg/middleware"
	"github.com/pixelmuse/pixelmuse/pkg/scheduler"
	"github.com/pixelmuse/pixelmuse/pkg/storage"
)

// scheduleRequest is the JSON body for schedule create and update.
type scheduleRequest struct {
	WorkflowID     string `json:"workflow_id"`
	CronExpression string `json:"cron_expression"`
	Timezone       string `json:"timezone"`
	Enabled        *bool  `json:"enabled"`
}

// handleListSchedules lists the caller's schedules.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	schedules, err := s.store.Schedules().ListSchedules(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"schedules": schedules})
}

// handleCreateSchedule creates or replaces the schedule for a workflow.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.WorkflowID == "" {
		writeError(w, http.StatusBadRequest, "workflow_id is required")
		return
	}

	enabled := req.Enabled == nil || *req.Enabled
	schedule, err := s.scheduler.UpsertSchedule(userID, req.WorkflowID, req.CronExpression, req.Timezone, enabled)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, schedule)
}

// handleUpdateSchedule updates an existing schedule.
func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	scheduleID := mux.Vars(r)["id"]

	existing, err := s.store.Schedules().GetSchedule(scheduleID)
	if err != nil || existing.UserID != userID {
		writeError(w, http.StatusNotFound, "Schedule not found")
		return
	}

	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	expression := req.CronExpression
	if expression == "" {
		expression = existing.CronExpression
	}
	timezone := req.Timezone
	if timezone == "" {
		timezone = existing.Timezone
	}
	enabled := existing.IsEnabled
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	schedule, err := s.scheduler.UpsertSchedule(userID, existing.WorkflowID, expression, timezone, enabled)
	if err != nil {
		writeScheduleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// handleDeleteSchedule deletes a schedule.
func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	scheduleID := mux.Vars(r)["id"]

	existing, err := s.store.Schedules().GetSchedule(scheduleID)
	if err != nil || existing.UserID != userID {
		writeError(w, http.StatusNotFound, "Schedule not found")
		return
	}

	if err := s.store.Schedules().DeleteSchedule(scheduleID); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete schedule")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleGetWorkflowSchedule returns the schedule attached to a workflow.
func (s *Server) handleGetWorkflowSchedule(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	if _, err := s.store.Workflows().GetWorkflow(userID, workflowID); err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	schedule, err := s.store.Schedules().GetScheduleByWorkflow(workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Schedule not found")
		return
	}

	writeJSON(w, http.StatusOK, schedule)
}

// handleProcessSchedules is the machine endpoint the external cron caller
// hits once a minute. It authenticates with the shared secret header.
func (s *Server) handleProcessSchedules(w http.ResponseWriter, r *http.Request) {
	if s.config.Cron.Secret == "" || r.Header.Get("X-Cron-Secret") != s.config.Cron.Secret {
		writeError(w, http.StatusUnauthorized, "Invalid cron secret")
		return
	}

	summary := s.scheduler.ProcessDue(r.Context())
	writeJSON(w, http.StatusOK, summary)
}

// writeScheduleError maps upsert failures to status codes.
func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrInvalidCron):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrWorkflowNotFound):
		writeError(w, http.StatusNotFound, "Workflow not found")
	default:
		writeError(w, http.StatusInternalServerError, "Failed to save schedule")
	}
}
