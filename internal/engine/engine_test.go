package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
	"github.com/yukkuri-system/workflow-core/internal/arbiter"
	"github.com/yukkuri-system/workflow-core/internal/ledger"
	"github.com/yukkuri-system/workflow-core/internal/planning"
	"github.com/yukkuri-system/workflow-core/internal/store"
)

// funcProcessor adapts a plain function to contracts.StageProcessor, mirroring
// how teacher tests wired mock executors directly rather than through a
// stub struct per case.
type funcProcessor func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult

func (f funcProcessor) Execute(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
	return f(ctx, input)
}

func newTestEngine(t *testing.T) (*Engine, contracts.ProjectStore) {
	t.Helper()
	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), contracts.SchemeSortable)
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	led := ledger.New(t.TempDir(), st, 0)
	planner := planning.New()
	arb := arbiter.New(map[contracts.ResourceName]int{"cpu": 4})

	return New(st, led, planner, arb, nil, Config{MaxConcurrency: 4}), st
}

func TestExecute_LinearWorkflowSucceeds(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()

	project, err := st.CreateProject(ctx, contracts.Project{Name: "demo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	defs := []contracts.StageDef{
		{Name: "fetch"},
		{Name: "publish", Dependencies: []contracts.StageName{"fetch"}},
	}
	if err := eng.RegisterWorkflow("wf", defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng.RegisterProcessor("fetch", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		return contracts.Succeeded(map[string]interface{}{"url": "http://example.com"})
	}))
	eng.RegisterProcessor("publish", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		fetch, ok := input["fetch"].(map[string]interface{})
		if !ok || fetch["url"] != "http://example.com" {
			t.Error("expected publish to see fetch's merged output")
		}
		return contracts.Succeeded(nil)
	}))

	result, err := eng.Execute(ctx, "wf", project.ID, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != contracts.ProjectCompleted {
		t.Errorf("expected ProjectCompleted, got %s", result.Status)
	}
	if result.SuccessRate != 1.0 {
		t.Errorf("expected success rate 1.0, got %f", result.SuccessRate)
	}
}

func TestExecute_UnregisteredWorkflow(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Execute(context.Background(), "ghost", "p1", nil, nil)
	if err == nil {
		t.Fatal("expected error for unregistered workflow")
	}
}

func TestExecute_MissingProcessor(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	project, _ := st.CreateProject(ctx, contracts.Project{Name: "demo"})

	if err := eng.RegisterWorkflow("wf", []contracts.StageDef{{Name: "fetch"}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := eng.Execute(ctx, "wf", project.ID, nil, nil)
	if err == nil {
		t.Fatal("expected error for missing processor")
	}
}

func TestExecute_FailStopMarksProjectFailed(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	project, _ := st.CreateProject(ctx, contracts.Project{Name: "demo"})

	defs := []contracts.StageDef{
		{Name: "fetch"},
		{Name: "publish", Dependencies: []contracts.StageName{"fetch"}},
	}
	if err := eng.RegisterWorkflow("wf", defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng.RegisterProcessor("fetch", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		return contracts.Failed(contracts.KindExecution, "network down", contracts.SeverityHigh, contracts.RecoveryAbort)
	}))
	eng.RegisterProcessor("publish", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		t.Error("publish should not run after fetch fails with FailStop")
		return contracts.Succeeded(nil)
	}))

	result, err := eng.Execute(ctx, "wf", project.ID, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != contracts.ProjectFailed {
		t.Errorf("expected ProjectFailed, got %s", result.Status)
	}
}

func TestExecute_SkipDependentsCascades(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	project, _ := st.CreateProject(ctx, contracts.Project{Name: "demo"})

	defs := []contracts.StageDef{
		{Name: "optional", FailurePolicy: contracts.SkipDependents},
		{Name: "downstream", Dependencies: []contracts.StageName{"optional"}},
	}
	if err := eng.RegisterWorkflow("wf", defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	eng.RegisterProcessor("optional", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		return contracts.Failed(contracts.KindExecution, "skippable failure", contracts.SeverityLow, contracts.RecoveryAbort)
	}))
	downstreamRan := false
	eng.RegisterProcessor("downstream", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		downstreamRan = true
		return contracts.Succeeded(nil)
	}))

	result, err := eng.Execute(ctx, "wf", project.ID, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != contracts.ProjectCompleted {
		t.Errorf("expected ProjectCompleted (non-fatal skip), got %s", result.Status)
	}
	if downstreamRan {
		t.Error("expected downstream to be cascade-skipped, not run")
	}
}

func TestCancel_StopsBeforeNextPhase(t *testing.T) {
	eng, st := newTestEngine(t)
	ctx := context.Background()
	project, _ := st.CreateProject(ctx, contracts.Project{Name: "demo"})

	defs := []contracts.StageDef{
		{Name: "fetch"},
		{Name: "publish", Dependencies: []contracts.StageName{"fetch"}},
	}
	if err := eng.RegisterWorkflow("wf", defs); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	started := make(chan struct{})
	eng.RegisterProcessor("fetch", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return contracts.Succeeded(nil)
	}))
	publishRan := false
	eng.RegisterProcessor("publish", funcProcessor(func(ctx contracts.StageContext, input map[string]interface{}) contracts.StageResult {
		publishRan = true
		return contracts.Succeeded(nil)
	}))

	done := make(chan *contracts.ExecutionResult, 1)
	go func() {
		result, _ := eng.Execute(ctx, "wf", project.ID, nil, nil)
		done <- result
	}()

	<-started
	eng.Cancel(project.ID, "test cancellation")

	result := <-done
	if result.Status != contracts.ProjectCancelled {
		t.Errorf("expected ProjectCancelled, got %s", result.Status)
	}
	if publishRan {
		t.Error("expected publish to be skipped after cancellation")
	}
}
