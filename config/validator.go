package config

import "fmt"

// Validator validates workflow configurations.
type Validator struct{}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate performs comprehensive validation of a WorkflowConfig.
// Returns nil if valid, or an error describing the first validation failure.
func (v *Validator) Validate(cfg *WorkflowConfig) error {
	if cfg == nil {
		return ErrConfigEmpty
	}

	if cfg.Workflow.Name == "" {
		return ErrWorkflowNameEmpty
	}

	if len(cfg.Workflow.Steps) == 0 {
		return ErrNoSteps
	}

	stepIDs := make(map[string]bool, len(cfg.Workflow.Steps))
	for i, step := range cfg.Workflow.Steps {
		if step.ID == "" {
			return fmt.Errorf("step[%d]: %w", i, ErrStepIDEmpty)
		}
		if stepIDs[step.ID] {
			return fmt.Errorf("step.id=%s: %w", step.ID, ErrStepIDDuplicate)
		}
		stepIDs[step.ID] = true

		if step.RetryCount < 0 {
			return fmt.Errorf("step.id=%s: %w", step.ID, ErrNegativeRetryCount)
		}
		for res, units := range step.RequiredResources {
			if units <= 0 {
				return fmt.Errorf("step.id=%s resource=%s: %w", step.ID, res, ErrInvalidResourceUnits)
			}
		}
	}

	for _, step := range cfg.Workflow.Steps {
		for _, depID := range step.DependsOn {
			if depID == step.ID {
				return fmt.Errorf("step.id=%s: %w", step.ID, ErrSelfDependency)
			}
			if !stepIDs[depID] {
				return fmt.Errorf("step.id=%s depends_on=%s: %w",
					step.ID, depID, ErrDependencyNotFound)
			}
		}
	}

	return v.detectCycle(cfg.Workflow.Steps)
}

// detectCycle uses DFS with color marking to detect cycles in dependencies.
// Colors: 0=white (unvisited), 1=gray (visiting), 2=black (visited).
func (v *Validator) detectCycle(steps []Step) error {
	// Edge depID -> stepID means stepID depends on depID.
	adjacency := make(map[string][]string, len(steps))
	for _, step := range steps {
		if _, exists := adjacency[step.ID]; !exists {
			adjacency[step.ID] = []string{}
		}
	}
	for _, step := range steps {
		for _, depID := range step.DependsOn {
			adjacency[depID] = append(adjacency[depID], step.ID)
		}
	}

	colors := make(map[string]int, len(steps))
	for _, step := range steps {
		colors[step.ID] = 0
	}

	for _, step := range steps {
		if colors[step.ID] == 0 {
			if v.hasCycle(step.ID, colors, adjacency) {
				return fmt.Errorf("starting from step.id=%s: %w", step.ID, ErrCycleDetected)
			}
		}
	}

	return nil
}

// hasCycle performs DFS to detect cycles.
func (v *Validator) hasCycle(node string, colors map[string]int, adj map[string][]string) bool {
	colors[node] = 1

	for _, next := range adj[node] {
		if colors[next] == 1 {
			return true
		}
		if colors[next] == 0 {
			if v.hasCycle(next, colors, adj) {
				return true
			}
		}
	}

	colors[node] = 2
	return false
}
