package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/Narcis13/workscript/internal/engine"
	"github.com/Narcis13/workscript/internal/workflow"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":   "ok",
		"serverId": s.cfg.ServerID,
		"time":     time.Now().UnixMilli(),
	}
	if s.sampler != nil {
		body["stats"] = s.sampler.AsMap()
	}
	if s.hub != nil {
		body["wsClients"] = s.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source != "" {
		writeJSON(w, http.StatusOK, s.registry.ListBySource(source))
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

func (s *Server) handleSaveWorkflow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to read body")
		return
	}

	def, err := workflow.ParseDefinition(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	// Definitions are validated against the registry before they are stored
	// so a broken document fails at save time, not at the first run.
	if _, err := workflow.NewParser(s.registry).Parse(def); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := s.store.Save(r.Context(), def); err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": def.ID})
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, r *http.Request) {
	defs, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleDeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type runRequest struct {
	InitialState map[string]interface{} `json:"initialState,omitempty"`
	TimeoutMs    int64                  `json:"timeoutMs,omitempty"`
}

func (s *Server) handleRunWorkflow(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if _, err := s.store.Get(r.Context(), id); err != nil {
		if errors.Is(err, workflow.ErrDefinitionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	var req runRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid run request")
			return
		}
	}

	sub := &engine.Submission{
		ID:         uuid.New().String(),
		WorkflowID: id,
		Options: &engine.Options{
			Seed:    req.InitialState,
			Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
			Source:  "api",
		},
	}

	if err := s.queue.Enqueue(r.Context(), sub); err != nil {
		writeError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"executionId": sub.ID,
		"workflowId":  id,
	})
}

type submitRequest struct {
	Definition   json.RawMessage        `json:"definition"`
	WorkflowID   string                 `json:"workflowId,omitempty"`
	InitialState map[string]interface{} `json:"initialState,omitempty"`
	TimeoutMs    int64                  `json:"timeoutMs,omitempty"`
}

func (s *Server) handleSubmitExecution(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid submission")
		return
	}

	sub := &engine.Submission{
		ID: uuid.New().String(),
		Options: &engine.Options{
			Seed:    req.InitialState,
			Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
			Source:  "api",
		},
	}

	switch {
	case len(req.Definition) > 0:
		def, err := workflow.ParseDefinition(req.Definition)
		if err != nil {
			writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
			return
		}
		if _, err := workflow.NewParser(s.registry).Parse(def); err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error())
			return
		}
		sub.Definition = def
	case req.WorkflowID != "":
		sub.WorkflowID = req.WorkflowID
	default:
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "definition or workflowId is required")
		return
	}

	if err := s.queue.Enqueue(r.Context(), sub); err != nil {
		writeError(w, http.StatusServiceUnavailable, "QUEUE_ERROR", err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": sub.ID})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	workflowID := r.URL.Query().Get("workflowId")
	writeJSON(w, http.StatusOK, s.engine.List(workflowID))
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	exec, err := s.engine.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, exec.View())
}

func (s *Server) handleCancelExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.Cancel(id); err != nil {
		if errors.Is(err, engine.ErrExecutionNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
			return
		}
		writeError(w, http.StatusConflict, "CONFLICT", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id, "status": "cancelling"})
}

type scheduleRequest struct {
	WorkflowID string `json:"workflowId"`
	Spec       string `json:"spec"`
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkflowID == "" || req.Spec == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "workflowId and spec are required")
		return
	}

	if _, err := s.store.Get(r.Context(), req.WorkflowID); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}

	entry, err := s.scheduler.Add(req.WorkflowID, req.Spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.scheduler.List())
}

func (s *Server) handleRemoveSchedule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.scheduler.Remove(id); err != nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
