package config

import (
	"errors"
	"testing"
)

func TestValidator_NilConfig(t *testing.T) {
	v := NewValidator()
	err := v.Validate(nil)
	if !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("expected ErrConfigEmpty, got %v", err)
	}
}

func TestValidator_WorkflowNameEmpty(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name:  "",
			Steps: []Step{{ID: "a"}},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrWorkflowNameEmpty) {
		t.Fatalf("expected ErrWorkflowNameEmpty, got %v", err)
	}
}

func TestValidator_NoSteps(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name:  "test",
			Steps: []Step{},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrNoSteps) {
		t.Fatalf("expected ErrNoSteps, got %v", err)
	}
}

func TestValidator_StepIDEmpty(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name:  "test",
			Steps: []Step{{ID: ""}},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrStepIDEmpty) {
		t.Fatalf("expected ErrStepIDEmpty, got %v", err)
	}
}

func TestValidator_DuplicateStepID(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a"},
				{ID: "a"},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrStepIDDuplicate) {
		t.Fatalf("expected ErrStepIDDuplicate, got %v", err)
	}
}

func TestValidator_DependencyNotFound(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a", DependsOn: []string{"nonexistent"}},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrDependencyNotFound) {
		t.Fatalf("expected ErrDependencyNotFound, got %v", err)
	}
}

func TestValidator_SelfDependency(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a", DependsOn: []string{"a"}},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrSelfDependency) {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
}

func TestValidator_CycleDetected_TwoNodes(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a", DependsOn: []string{"b"}},
				{ID: "b", DependsOn: []string{"a"}},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidator_CycleDetected_ThreeNodes(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a", DependsOn: []string{"c"}},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"b"}},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestValidator_NegativeRetryCount(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name:  "test",
			Steps: []Step{{ID: "a", RetryCount: -1}},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrNegativeRetryCount) {
		t.Fatalf("expected ErrNegativeRetryCount, got %v", err)
	}
}

func TestValidator_InvalidResourceUnits(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "test",
			Steps: []Step{
				{ID: "a", RequiredResources: map[string]int{"gpu": 0}},
			},
		},
	}
	err := v.Validate(cfg)
	if !errors.Is(err, ErrInvalidResourceUnits) {
		t.Fatalf("expected ErrInvalidResourceUnits, got %v", err)
	}
}

func TestValidator_ValidConfig_LinearChain(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "media-pipeline",
			Steps: []Step{
				{ID: "fetch"},
				{ID: "transcode", DependsOn: []string{"fetch"}},
				{ID: "caption", DependsOn: []string{"transcode"}},
				{ID: "publish", DependsOn: []string{"caption"}},
			},
		},
	}
	err := v.Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidator_ValidConfig_DAGDiamond(t *testing.T) {
	v := NewValidator()
	// Diamond pattern: a -> (b, c) -> d
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "dag-flow",
			Steps: []Step{
				{ID: "a"},
				{ID: "b", DependsOn: []string{"a"}},
				{ID: "c", DependsOn: []string{"a"}},
				{ID: "d", DependsOn: []string{"b", "c"}},
			},
		},
	}
	err := v.Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error for DAG diamond, got %v", err)
	}
}

func TestValidator_ValidConfig_NoDependencies(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "parallel-flow",
			Steps: []Step{
				{ID: "a"},
				{ID: "b"},
				{ID: "c"},
			},
		},
	}
	err := v.Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error for parallel steps, got %v", err)
	}
}

func TestValidator_ValidConfig_WithResourcesAndPolicy(t *testing.T) {
	v := NewValidator()
	cfg := &WorkflowConfig{
		Workflow: Workflow{
			Name: "render-flow",
			Steps: []Step{
				{ID: "render", RequiredResources: map[string]int{"gpu": 1}, TimeoutSeconds: 300, Priority: 5},
				{ID: "mix", DependsOn: []string{"render"}, CanSkip: true, FailurePolicy: "skip_dependents"},
			},
		},
	}
	err := v.Validate(cfg)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}
