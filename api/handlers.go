package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/yukkuri-system/workflow-core/contracts"
	"github.com/yukkuri-system/workflow-core/internal/audit"
)

// maxRequestBodySize limits the size of incoming request bodies (4MB).
const maxRequestBodySize = 4 * 1024 * 1024

// Handlers contains the HTTP handler methods for the control plane.
type Handlers struct {
	store    contracts.ProjectStore
	engine   contracts.Engine
	registry *Registry
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store contracts.ProjectStore, engine contracts.Engine, registry *Registry) *Handlers {
	return &Handlers{store: store, engine: engine, registry: registry}
}

// HandleStartProject handles POST /api/v1/projects.
func (h *Handlers) HandleStartProject(w http.ResponseWriter, r *http.Request) {
	limitedReader := io.LimitReader(r.Body, maxRequestBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		WriteError(w, fmt.Errorf("failed to read request body: %w", contracts.ErrInvalidInput))
		return
	}
	if len(body) > maxRequestBodySize {
		WriteError(w, fmt.Errorf("request body too large (max %d bytes): %w", maxRequestBodySize, contracts.ErrInvalidInput))
		return
	}

	var req StartProjectRequest
	if err := json.Unmarshal(body, &req); err != nil {
		WriteError(w, fmt.Errorf("invalid JSON: %w", contracts.ErrInvalidInput))
		return
	}
	if err := validateStartProjectRequest(&req); err != nil {
		WriteError(w, err)
		return
	}

	project, err := h.store.CreateProject(r.Context(), contracts.Project{
		ID:              contracts.ProjectID(req.ProjectID),
		Name:            orDefault(req.Name, req.Workflow),
		Theme:           req.Theme,
		TargetLengthMin: req.TargetLengthMin,
		Status:          contracts.ProjectInitialized,
		ConfigJSON:      map[string]interface{}{"workflow": req.Workflow},
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.registry.Start(project.ID); err != nil {
		WriteError(w, err)
		return
	}

	audit.Log("event=project_started project=%s workflow=%s", project.ID, req.Workflow)
	go h.runExecution(contracts.WorkflowName(req.Workflow), project.ID, req.InitialInput)

	resp := projectToResponse(project, nil)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, resp)
}

// HandleGetStatus handles GET /api/v1/projects/{id}.
func (h *Handlers) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	if id == "" {
		WriteError(w, fmt.Errorf("missing project id: %w", contracts.ErrInvalidInput))
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	stages, err := h.store.ListStageRecords(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	resp := projectToResponse(project, stages)
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp)
}

// HandleAbort handles POST /api/v1/projects/{id}/abort.
func (h *Handlers) HandleAbort(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	if id == "" {
		WriteError(w, fmt.Errorf("missing project id: %w", contracts.ErrInvalidInput))
		return
	}
	if !h.registry.IsRunning(id) {
		WriteError(w, fmt.Errorf("project %s: %w", id, contracts.ErrProjectNotFound))
		return
	}

	h.engine.Cancel(id, "aborted via api")
	audit.Log("event=project_aborted project=%s", id)
	w.WriteHeader(http.StatusAccepted)
}

// HandlePause handles POST /api/v1/projects/{id}/pause.
func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	if id == "" {
		WriteError(w, fmt.Errorf("missing project id: %w", contracts.ErrInvalidInput))
		return
	}
	if !h.registry.IsRunning(id) {
		WriteError(w, fmt.Errorf("project %s: %w", id, contracts.ErrProjectNotFound))
		return
	}

	h.engine.Pause(id)
	w.WriteHeader(http.StatusAccepted)
}

// HandleResume handles POST /api/v1/projects/{id}/resume.
//
// If the project has a live Execute call (it was paused but the goroutine
// is still blocked in the engine), this wakes it in place. If instead the
// process restarted and no goroutine is running (the project was left
// "running" by a crash), this re-enters Execute, which resumes idempotently
// from the last completed stage per the engine's own recovery path.
func (h *Handlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	id := contracts.ProjectID(r.PathValue("id"))
	if id == "" {
		WriteError(w, fmt.Errorf("missing project id: %w", contracts.ErrInvalidInput))
		return
	}

	if h.registry.IsRunning(id) {
		h.engine.Resume(id)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	project, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}

	workflowName, err := workflowNameFromConfig(project)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.registry.Start(id); err != nil {
		WriteError(w, err)
		return
	}
	go h.runExecution(workflowName, id, nil)

	w.WriteHeader(http.StatusAccepted)
}

// runExecution drives one Engine.Execute call in the background and
// records its outcome in the registry.
func (h *Handlers) runExecution(workflow contracts.WorkflowName, projectID contracts.ProjectID, initialInput map[string]interface{}) {
	result, err := h.engine.Execute(context.Background(), workflow, projectID, initialInput, nil)
	if err != nil {
		audit.Log("event=execution_failed project=%s workflow=%s error=%v", projectID, workflow, err)
	} else {
		audit.Log("event=execution_finished project=%s workflow=%s status=%s", projectID, workflow, result.Status)
	}
	h.registry.Finish(projectID, result, err)
}

// workflowNameFromConfig recovers the workflow name a project was started
// with from its stored ConfigJSON (HandleStartProject writes it there when
// it creates the project).
func workflowNameFromConfig(p contracts.Project) (contracts.WorkflowName, error) {
	if p.ConfigJSON == nil {
		return "", fmt.Errorf("project %s has no recorded workflow name: %w", p.ID, contracts.ErrInvalidInput)
	}
	name, _ := p.ConfigJSON["workflow"].(string)
	if name == "" {
		return "", fmt.Errorf("project %s has no recorded workflow name: %w", p.ID, contracts.ErrInvalidInput)
	}
	return contracts.WorkflowName(name), nil
}

// validateStartProjectRequest validates a StartProjectRequest.
func validateStartProjectRequest(req *StartProjectRequest) error {
	if req.Workflow == "" {
		return fmt.Errorf("workflow is required: %w", contracts.ErrInvalidInput)
	}
	return nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = err
	}
}
