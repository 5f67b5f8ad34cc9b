// Package config provides JSON loading and validation of static workflow
// definitions — the caller-supplied description of a workflow's stages
// before it is handed to internal/planning and internal/engine. YAML flow
// loading is explicitly out of scope (spec §1 non-goals); this package
// only ever reads JSON.
package config

import (
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// WorkflowConfig is the root JSON document describing one workflow.
type WorkflowConfig struct {
	Workflow Workflow `json:"workflow"`
}

// Workflow is a named, ordered collection of Steps (spec §4.3: a workflow
// is "an ordered collection of StageDef").
type Workflow struct {
	Name  string `json:"name"`
	Steps []Step `json:"steps"`
}

// Step is the JSON wire shape of a contracts.StageDef.
type Step struct {
	ID                string         `json:"id"`
	DependsOn         []string       `json:"depends_on,omitempty"`
	Priority          int            `json:"priority,omitempty"`
	TimeoutSeconds    int            `json:"timeout_seconds,omitempty"`
	EstimatedSeconds  int            `json:"estimated_duration_seconds,omitempty"`
	RequiredResources map[string]int `json:"required_resources,omitempty"`
	RetryCount        int            `json:"retry_count,omitempty"`
	CanSkip           bool           `json:"can_skip,omitempty"`
	FailurePolicy     string         `json:"failure_policy,omitempty"` // "stop" (default) | "skip_dependents"
}

// ToStageDefs converts every validated Step into the contracts.StageDef
// shape the Planner and Engine consume. Validate must have been called
// first — ToStageDefs does not re-check cycles or dangling dependencies.
func (w Workflow) ToStageDefs() []contracts.StageDef {
	defs := make([]contracts.StageDef, 0, len(w.Steps))
	for _, s := range w.Steps {
		deps := make([]contracts.StageName, 0, len(s.DependsOn))
		for _, d := range s.DependsOn {
			deps = append(deps, contracts.StageName(d))
		}
		resources := make(map[contracts.ResourceName]int, len(s.RequiredResources))
		for r, units := range s.RequiredResources {
			resources[contracts.ResourceName(r)] = units
		}
		policy := contracts.FailStop
		if s.FailurePolicy == string(contracts.SkipDependents) {
			policy = contracts.SkipDependents
		}
		defs = append(defs, contracts.StageDef{
			Name:              contracts.StageName(s.ID),
			Dependencies:      deps,
			Priority:          s.Priority,
			Timeout:           time.Duration(s.TimeoutSeconds) * time.Second,
			RequiredResources: resources,
			EstimatedDuration: time.Duration(s.EstimatedSeconds) * time.Second,
			RetryCount:        s.RetryCount,
			CanSkip:           s.CanSkip,
			FailurePolicy:     policy,
		})
	}
	return defs
}
