// Package api provides the HTTP control plane in front of the Engine.
package api

import (
	"github.com/yukkuri-system/workflow-core/contracts"
)

// ============================================================================
// Request DTOs
// ============================================================================

// StartProjectRequest is the request body for POST /api/v1/projects.
type StartProjectRequest struct {
	ProjectID       string                 `json:"project_id,omitempty"`
	Workflow        string                 `json:"workflow"`
	Name            string                 `json:"name,omitempty"`
	Theme           string                 `json:"theme,omitempty"`
	TargetLengthMin int                    `json:"target_length_min,omitempty"`
	InitialInput    map[string]interface{} `json:"initial_input,omitempty"`
}

// ============================================================================
// Response DTOs
// ============================================================================

// ProjectResponse is the response body for project-related endpoints.
type ProjectResponse struct {
	ID           string               `json:"id"`
	Workflow     string               `json:"workflow,omitempty"`
	Status       string               `json:"status"`
	Stages       []StageStatusDTO     `json:"stages,omitempty"`
	SuccessRate  float64              `json:"success_rate,omitempty"`
	FirstError   string               `json:"first_error,omitempty"`
	CreatedAt    int64                `json:"created_at,omitempty"`
	UpdatedAt    int64                `json:"updated_at,omitempty"`
	Error        *ErrorDTO            `json:"error,omitempty"`
}

// StageStatusDTO represents the status of a single stage within a project.
type StageStatusDTO struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ErrorDTO represents an error in the response.
type ErrorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// projectToResponse builds a ProjectResponse from the durable store records.
func projectToResponse(p contracts.Project, stages []contracts.StageRecord) *ProjectResponse {
	resp := &ProjectResponse{
		ID:        string(p.ID),
		Status:    p.Status.String(),
		CreatedAt: int64(p.CreatedAt),
		UpdatedAt: int64(p.UpdatedAt),
	}

	if len(stages) > 0 {
		resp.Stages = make([]StageStatusDTO, 0, len(stages))
		for _, s := range stages {
			dto := StageStatusDTO{
				Name:       string(s.StageName),
				Status:     s.Status.String(),
				RetryCount: s.RetryCount,
			}
			if s.ErrorMessage != "" {
				dto.Error = s.ErrorMessage
			}
			resp.Stages = append(resp.Stages, dto)
		}
	}

	return resp
}

// executionResultToResponse merges a completed ExecutionResult into a
// ProjectResponse already built from the store (so callers that poll right
// after Execute returns see the same summary fields the goroutine saw).
func executionResultToResponse(resp *ProjectResponse, result *contracts.ExecutionResult) {
	if result == nil {
		return
	}
	resp.Status = result.Status.String()
	resp.SuccessRate = result.SuccessRate
	if result.FirstFatalError != "" {
		resp.FirstError = result.FirstFatalError
	}
}
