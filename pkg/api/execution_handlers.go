package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pixelmuse/pixelmuse/pkg/middleware"
)

// handleListExecutions lists executions for one workflow, newest first.
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	// Ownership gate: listing for someone else's workflow is a 404.
	if _, err := s.store.Workflows().GetWorkflow(userID, workflowID); err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	executions, err := s.store.Executions().ListExecutions(workflowID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list executions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"executions": executions})
}

// handleGetExecution returns one execution with its step results. Clients
// poll this until the execution reaches a terminal status.
func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	executionID := mux.Vars(r)["id"]

	execution, err := s.store.Executions().GetExecution(executionID)
	if err != nil || execution.UserID != userID {
		writeError(w, http.StatusNotFound, "Execution not found")
		return
	}

	steps, err := s.store.Executions().ListStepResults(executionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load step results")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"execution": execution,
		"steps":     steps,
	})
}
