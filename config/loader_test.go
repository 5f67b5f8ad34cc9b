package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoader_LoadFromBytes_ValidJSON(t *testing.T) {
	l := NewLoader()
	data := []byte(`{
		"workflow": {
			"name": "test-flow",
			"steps": [
				{"id": "fetch"},
				{"id": "transcode", "depends_on": ["fetch"]},
				{"id": "caption", "depends_on": ["transcode"]},
				{"id": "publish", "depends_on": ["caption"]}
			]
		}
	}`)

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Workflow.Name != "test-flow" {
		t.Fatalf("expected name=test-flow, got %s", cfg.Workflow.Name)
	}
	if len(cfg.Workflow.Steps) != 4 {
		t.Fatalf("expected 4 steps, got %d", len(cfg.Workflow.Steps))
	}
}

func TestLoader_LoadFromBytes_EmptyData(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFromBytes([]byte{})
	if !errors.Is(err, ErrConfigEmpty) {
		t.Fatalf("expected ErrConfigEmpty, got %v", err)
	}
}

func TestLoader_LoadFromBytes_InvalidJSON(t *testing.T) {
	l := NewLoader()
	data := []byte(`{invalid json}`)

	_, err := l.LoadFromBytes(data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected json.SyntaxError, got %T: %v", err, err)
	}
}

func TestLoader_LoadFromBytes_EmptyObject(t *testing.T) {
	l := NewLoader()
	data := []byte(`{}`)

	_, err := l.LoadFromBytes(data)
	if !errors.Is(err, ErrWorkflowNameEmpty) {
		t.Fatalf("expected ErrWorkflowNameEmpty for empty object, got %v", err)
	}
}

func TestLoader_LoadFromBytes_EmptyWorkflow(t *testing.T) {
	l := NewLoader()
	data := []byte(`{"workflow": {"name": "test"}}`)

	_, err := l.LoadFromBytes(data)
	if !errors.Is(err, ErrNoSteps) {
		t.Fatalf("expected ErrNoSteps, got %v", err)
	}
}

func TestLoader_LoadFromBytes_WithResourcesAndPolicy(t *testing.T) {
	l := NewLoader()
	data := []byte(`{
		"workflow": {
			"name": "resource-flow",
			"steps": [
				{"id": "render", "required_resources": {"gpu": 1}, "timeout_seconds": 600, "retry_count": 2},
				{"id": "mix", "depends_on": ["render"], "can_skip": true, "failure_policy": "skip_dependents"}
			]
		}
	}`)

	cfg, err := l.LoadFromBytes(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Workflow.Steps[0].RequiredResources["gpu"] != 1 {
		t.Fatalf("expected gpu=1, got %v", cfg.Workflow.Steps[0].RequiredResources)
	}
	if cfg.Workflow.Steps[1].FailurePolicy != "skip_dependents" {
		t.Fatalf("expected skip_dependents, got %s", cfg.Workflow.Steps[1].FailurePolicy)
	}

	defs := cfg.Workflow.ToStageDefs()
	if len(defs) != 2 {
		t.Fatalf("expected 2 stage defs, got %d", len(defs))
	}
	if defs[1].CanSkip != true {
		t.Fatalf("expected CanSkip=true on stage defs conversion")
	}
}

func TestLoader_LoadFromFile_NotFound(t *testing.T) {
	l := NewLoader()
	_, err := l.LoadFromFile("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	var pathErr *os.PathError
	if !errors.As(err, &pathErr) {
		t.Fatalf("expected os.PathError in chain, got %v", err)
	}
	if !os.IsNotExist(pathErr) {
		t.Fatalf("expected os.IsNotExist to be true, got error: %v", pathErr)
	}
}

func TestLoader_LoadFromFile_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "workflow.json")

	data := []byte(`{
		"workflow": {
			"name": "file-test",
			"steps": [
				{"id": "a"},
				{"id": "b", "depends_on": ["a"]}
			]
		}
	}`)

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	l := NewLoader()
	cfg, err := l.LoadFromFile(path)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.Workflow.Name != "file-test" {
		t.Fatalf("expected name=file-test, got %s", cfg.Workflow.Name)
	}
}

func TestLoader_LoadFromFile_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "invalid.json")

	if err := os.WriteFile(path, []byte(`{broken`), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	l := NewLoader()
	_, err := l.LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON file")
	}

	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected json.SyntaxError in chain, got %v", err)
	}
}

func TestLoader_LoadFromFile_ValidationError(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "invalid-workflow.json")

	data := []byte(`{
		"workflow": {
			"name": "cycle-test",
			"steps": [
				{"id": "a", "depends_on": ["b"]},
				{"id": "b", "depends_on": ["a"]}
			]
		}
	}`)

	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}

	l := NewLoader()
	_, err := l.LoadFromFile(path)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}
