package api

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gopkg.in/yaml.v3"

	"github.com/pixelmuse/pixelmuse/pkg/graph"
	"github.com/pixelmuse/pixelmuse/pkg/middleware"
	"github.com/pixelmuse/pixelmuse/pkg/models"
)

// workflowRequest is the JSON body for create and update.
type workflowRequest struct {
	Name        string       `json:"name"`
	Graph       models.Graph `json:"graph"`
	TriggerType string       `json:"trigger_type"`
	Enabled     *bool        `json:"enabled"`
}

// workflowDocument is the YAML exchange format for export and import.
type workflowDocument struct {
	Name        string       `yaml:"name"`
	TriggerType string       `yaml:"trigger_type"`
	Graph       models.Graph `yaml:"graph"`
}

// handleListWorkflows handles listing the caller's workflows
func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	workflows, err := s.store.Workflows().ListWorkflows(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list workflows")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"workflows": workflows})
}

// handleCreateWorkflow handles workflow creation
func (s *Server) handleCreateWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Workflow name is required")
		return
	}

	// A draft may be saved with an empty graph; a non-empty graph must be
	// structurally valid.
	if !req.Graph.Empty() {
		if err := graph.Validate(req.Graph, s.registry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := time.Now().UTC()
	workflow := models.Workflow{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        req.Name,
		Graph:       req.Graph,
		TriggerType: triggerTypeOrDefault(req.TriggerType),
		Enabled:     req.Enabled == nil || *req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Workflows().SaveWorkflow(workflow); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save workflow")
		return
	}

	s.syncSchedule(workflow)

	writeJSON(w, http.StatusCreated, workflow)
}

// handleGetWorkflow handles retrieving a workflow
func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	workflow, err := s.store.Workflows().GetWorkflow(userID, workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	writeJSON(w, http.StatusOK, workflow)
}

// handleUpdateWorkflow handles updating a workflow
func (s *Server) handleUpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	workflow, err := s.store.Workflows().GetWorkflow(userID, workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	var req workflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if !req.Graph.Empty() {
		if err := graph.Validate(req.Graph, s.registry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if req.Name != "" {
		workflow.Name = req.Name
	}
	if req.TriggerType != "" {
		workflow.TriggerType = req.TriggerType
	}
	if req.Enabled != nil {
		workflow.Enabled = *req.Enabled
	}
	workflow.Graph = req.Graph
	workflow.UpdatedAt = time.Now().UTC()

	if err := s.store.Workflows().SaveWorkflow(workflow); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save workflow")
		return
	}

	s.syncSchedule(workflow)

	writeJSON(w, http.StatusOK, workflow)
}

// handleDeleteWorkflow handles deleting a workflow
func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	if err := s.store.Workflows().DeleteWorkflow(userID, workflowID); err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	// A deleted workflow takes its schedule with it.
	if schedule, err := s.store.Schedules().GetScheduleByWorkflow(workflowID); err == nil {
		if err := s.store.Schedules().DeleteSchedule(schedule.ID); err != nil {
			log.Printf("workflow %s: failed to delete schedule: %v", workflowID, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExecuteWorkflow triggers a workflow run. The run itself is
// asynchronous; the response carries the pending execution row.
func (s *Server) handleExecuteWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	workflow, err := s.store.Workflows().GetWorkflow(userID, workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	execution, err := s.engine.Trigger(r.Context(), workflow, userID, map[string]interface{}{
		"triggered_by": "manual",
	})
	if err != nil {
		if !writeGraphError(w, err) {
			log.Printf("workflow %s: trigger failed: %v", workflowID, err)
			writeError(w, http.StatusInternalServerError, "Failed to start execution")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"execution": execution})
}

// handleExportWorkflow returns the workflow definition as YAML.
func (s *Server) handleExportWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)
	workflowID := mux.Vars(r)["id"]

	workflow, err := s.store.Workflows().GetWorkflow(userID, workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}

	doc := workflowDocument{
		Name:        workflow.Name,
		TriggerType: workflow.TriggerType,
		Graph:       workflow.Graph,
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to export workflow")
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.Write(out)
}

// handleImportWorkflow creates a workflow from a YAML document.
func (s *Server) handleImportWorkflow(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserID(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	var doc workflowDocument
	if err := yaml.Unmarshal(body, &doc); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid YAML: "+err.Error())
		return
	}
	if doc.Name == "" {
		writeError(w, http.StatusBadRequest, "Workflow name is required")
		return
	}
	if !doc.Graph.Empty() {
		if err := graph.Validate(doc.Graph, s.registry); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	now := time.Now().UTC()
	workflow := models.Workflow{
		ID:          uuid.New().String(),
		UserID:      userID,
		Name:        doc.Name,
		Graph:       doc.Graph,
		TriggerType: triggerTypeOrDefault(doc.TriggerType),
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.Workflows().SaveWorkflow(workflow); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save workflow")
		return
	}

	s.syncSchedule(workflow)

	writeJSON(w, http.StatusCreated, workflow)
}

// syncSchedule reconciles the workflow's schedule row with its
// schedule-trigger node, if any. Failures are logged, not surfaced; the
// workflow save already succeeded.
func (s *Server) syncSchedule(workflow models.Workflow) {
	if err := s.scheduler.SyncWorkflowSchedule(workflow); err != nil {
		log.Printf("workflow %s: failed to sync schedule: %v", workflow.ID, err)
	}
}

func triggerTypeOrDefault(triggerType string) string {
	if triggerType == "" {
		return models.TriggerManual
	}
	return triggerType
}
