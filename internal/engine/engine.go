// Package engine implements the Scheduler/Engine (C5): it drives a
// registered workflow's ExecutionPlan to completion under a bounded
// per-project worker count, coordinating the Project Store (C1), Artifact
// Ledger (C2), Dependency Planner (C3), Resource Arbiter (C4) and an
// optional Checkpointer (C6).
//
// The dispatch loop generalizes the teacher's orchestrator.go batched
// "parallel executor I/O, sequential deterministic merge" design: phases
// replace single-task batches. Each worker goroutine records its own stage
// transitions in the store and emits progress; the dispatch loop only
// collects each worker's outcome and schedules retries.
package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
	wfcontext "github.com/yukkuri-system/workflow-core/internal/context"
)

// Config holds the tunables from the configuration surface (§6.5) that
// the engine itself consumes.
type Config struct {
	MaxConcurrency      int
	DefaultStageTimeout time.Duration
	RetryBaseDelay      time.Duration
	ExponentialBackoff  bool
	CheckpointInterval  time.Duration // 0 disables the periodic timer
	CostEstimator       func(provider string, tokensIn, tokensOut contracts.TokenCount) float64
	MaxOutputBytes      int // 0 disables outputSummary compaction when merging dependency inputs
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 4
	}
	if c.DefaultStageTimeout <= 0 {
		c.DefaultStageTimeout = 5 * time.Minute
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 5 * time.Second
	}
	return c
}

// Engine is the contracts.Engine implementation.
type Engine struct {
	store        contracts.ProjectStore
	ledger       contracts.ArtifactLedger
	planner      contracts.Planner
	arbiter      contracts.ResourceArbiter
	checkpointer contracts.Checkpointer
	cfg          Config

	merger   *wfcontext.Merger
	router   *wfcontext.Router
	memories map[contracts.ProjectID]*wfcontext.Memory

	mu         sync.Mutex
	workflows  map[contracts.WorkflowName][]contracts.StageDef
	processors map[contracts.StageName]contracts.StageProcessor
	controls   map[contracts.ProjectID]*runControl
}

// New creates an Engine. checkpointer may be nil, in which case checkpoint
// saves are skipped (useful for tests that exercise the scheduling loop in
// isolation).
func New(store contracts.ProjectStore, ledger contracts.ArtifactLedger, planner contracts.Planner, arbiter contracts.ResourceArbiter, checkpointer contracts.Checkpointer, cfg Config) *Engine {
	return &Engine{
		store:        store,
		ledger:       ledger,
		planner:      planner,
		arbiter:      arbiter,
		checkpointer: checkpointer,
		cfg:          cfg.withDefaults(),
		merger:       wfcontext.NewMerger(cfg.MaxOutputBytes),
		router:       wfcontext.NewRouter(),
		memories:     make(map[contracts.ProjectID]*wfcontext.Memory),
		workflows:    make(map[contracts.WorkflowName][]contracts.StageDef),
		processors:   make(map[contracts.StageName]contracts.StageProcessor),
		controls:     make(map[contracts.ProjectID]*runControl),
	}
}

// memoryFor returns projectID's ephemeral Memory, creating it on first use.
func (e *Engine) memoryFor(projectID contracts.ProjectID) *wfcontext.Memory {
	e.mu.Lock()
	defer e.mu.Unlock()
	m, ok := e.memories[projectID]
	if !ok {
		m = wfcontext.NewMemory()
		e.memories[projectID] = m
	}
	return m
}

// RegisterWorkflow records a workflow's StageDefs, rejecting it immediately
// if the planner cannot build a valid ExecutionPlan from them.
func (e *Engine) RegisterWorkflow(name contracts.WorkflowName, defs []contracts.StageDef) error {
	if _, err := e.planner.Plan(name, defs); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.workflows[name] = defs
	return nil
}

// RegisterProcessor binds a StageProcessor to a stage name, shared across
// every workflow that declares a stage with that name.
func (e *Engine) RegisterProcessor(stageName contracts.StageName, proc contracts.StageProcessor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processors[stageName] = proc
}

// runControl is the per-project cancel/pause state. Pause uses the same
// closed-channel wake-up idiom as the arbiter's wait queue, so Resume can
// be observed without a busy poll.
type runControl struct {
	mu        sync.Mutex
	cancelled bool
	reason    string
	paused    bool
	resumeCh  chan struct{}
	cancelFn  context.CancelFunc
}

func newRunControl(cancelFn context.CancelFunc) *runControl {
	return &runControl{resumeCh: make(chan struct{}), cancelFn: cancelFn}
}

func (c *runControl) cancel(reason string) {
	c.mu.Lock()
	if !c.cancelled {
		c.cancelled = true
		c.reason = reason
	}
	c.mu.Unlock()
	c.cancelFn()
}

func (c *runControl) isCancelled() (bool, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled, c.reason
}

func (c *runControl) pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

func (c *runControl) resume() {
	c.mu.Lock()
	if c.paused {
		c.paused = false
		old := c.resumeCh
		c.resumeCh = make(chan struct{})
		c.mu.Unlock()
		close(old)
		return
	}
	c.mu.Unlock()
}

// waitIfPaused blocks the caller while the control is paused, returning
// early if ctx is cancelled.
func (c *runControl) waitIfPaused(ctx context.Context) {
	for {
		c.mu.Lock()
		if !c.paused {
			c.mu.Unlock()
			return
		}
		ch := c.resumeCh
		c.mu.Unlock()
		select {
		case <-ch:
		case <-ctx.Done():
			return
		}
	}
}

// Cancel requests cooperative cancellation of projectID's in-flight
// execution, if any.
func (e *Engine) Cancel(projectID contracts.ProjectID, reason string) {
	e.mu.Lock()
	ctrl := e.controls[projectID]
	e.mu.Unlock()
	if ctrl != nil {
		ctrl.cancel(reason)
	}
}

// Pause toggles the pause gate checked before each dispatch. Already-
// running stages are unaffected.
func (e *Engine) Pause(projectID contracts.ProjectID) {
	e.mu.Lock()
	ctrl := e.controls[projectID]
	e.mu.Unlock()
	if ctrl != nil {
		ctrl.pause()
		if e.checkpointer != nil {
			if _, err := e.checkpointer.Save(context.Background(), projectID); err != nil {
				log.Printf("[ENGINE] event=checkpoint_on_pause_failed project=%s error=%v", projectID, err)
			}
		}
	}
}

// Resume clears the pause gate set by Pause.
func (e *Engine) Resume(projectID contracts.ProjectID) {
	e.mu.Lock()
	ctrl := e.controls[projectID]
	e.mu.Unlock()
	if ctrl != nil {
		ctrl.resume()
	}
}

// Execute drives workflowName to completion for projectID (§4.5).
func (e *Engine) Execute(ctx context.Context, workflowName contracts.WorkflowName, projectID contracts.ProjectID, initialInput map[string]interface{}, onProgress contracts.ProgressFunc) (*contracts.ExecutionResult, error) {
	e.mu.Lock()
	defs, ok := e.workflows[workflowName]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", workflowName, contracts.ErrWorkflowNotFound)
	}

	plan, err := e.planner.Plan(workflowName, defs)
	if err != nil {
		return nil, err
	}
	for _, phase := range plan.Phases {
		for _, name := range phase.Stages {
			e.mu.Lock()
			_, has := e.processors[name]
			e.mu.Unlock()
			if !has {
				return nil, fmt.Errorf("%s: %w", name, contracts.ErrProcessorNotFound)
			}
		}
	}

	if err := e.ledger.EnsureProjectLayout(projectID); err != nil {
		return nil, err
	}
	if err := e.store.CreateStageRecords(ctx, projectID, defs); err != nil {
		return nil, err
	}

	records, err := e.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return nil, err
	}
	statuses := make(map[contracts.StageName]contracts.StageStatus, len(records))
	outputs := make(map[contracts.StageName]map[string]interface{}, len(records))
	retryCounts := make(map[contracts.StageName]int, len(records))
	for _, r := range records {
		statuses[r.StageName] = r.Status
		if r.OutputSummary != nil {
			outputs[r.StageName] = r.OutputSummary
		}
		retryCounts[r.StageName] = r.RetryCount
	}

	if allTerminalComplete(plan, statuses) {
		return e.buildResult(ctx, projectID, plan, statuses, records, 0), nil
	}

	runCtx, cancelFn := context.WithCancel(ctx)
	ctrl := newRunControl(cancelFn)
	e.mu.Lock()
	e.controls[projectID] = ctrl
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.controls, projectID)
		e.mu.Unlock()
		cancelFn()
	}()

	proj, err := e.store.GetProject(ctx, projectID)
	if err == nil && proj.Status == contracts.ProjectInitialized {
		if err := e.store.UpdateProjectStatus(ctx, projectID, contracts.ProjectProcessing); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	st := &execState{
		projectID:    projectID,
		workflowName: workflowName,
		plan:         plan,
		statuses:     statuses,
		outputs:      outputs,
		retryCounts:  retryCounts,
		skipped:      make(map[contracts.StageName]bool),
		progress:     newProgressEmitter(onProgress),
		merger:       e.merger,
		router:       e.router,
	}
	stopTicker := e.startCheckpointTicker(runCtx, projectID)
	defer stopTicker()

	fatal := false
	var firstFatalErr string

	for _, phase := range plan.Phases {
		if cancelled, _ := ctrl.isCancelled(); cancelled {
			break
		}
		e.runPhase(runCtx, ctrl, st, phase, initialInput)
		if cancelled, reason := ctrl.isCancelled(); cancelled {
			if firstFatalErr == "" {
				firstFatalErr = "cancelled: " + reason
			}
			break
		}
		for _, name := range phase.Stages {
			if statuses[name] == contracts.StageFailed {
				d, _ := plan.StageDef(name)
				if d.FailurePolicy != contracts.SkipDependents {
					fatal = true
					if firstFatalErr == "" {
						firstFatalErr = fmt.Sprintf("stage %s failed terminally", name)
					}
				}
			}
		}
		if fatal {
			break
		}
	}

	elapsed := time.Since(start)
	finalRecords, err := e.store.ListStageRecords(ctx, projectID)
	if err != nil {
		return nil, err
	}
	result := e.buildResult(ctx, projectID, plan, statuses, finalRecords, elapsed)
	result.FirstFatalError = firstFatalErr

	var finalStatus contracts.ProjectStatus
	switch {
	case func() bool { c, _ := ctrl.isCancelled(); return c }():
		finalStatus = contracts.ProjectCancelled
	case fatal:
		finalStatus = contracts.ProjectFailed
	default:
		finalStatus = contracts.ProjectCompleted
	}
	result.Status = finalStatus
	if err := e.store.UpdateProjectStatus(ctx, projectID, finalStatus); err != nil {
		log.Printf("[ENGINE] event=final_status_update_failed project=%s error=%v", projectID, err)
	}
	if e.checkpointer != nil {
		if _, err := e.checkpointer.Save(ctx, projectID); err != nil {
			log.Printf("[ENGINE] event=final_checkpoint_failed project=%s error=%v", projectID, err)
		}
	}
	st.progress.emit(st.snapshot(""), true)
	log.Printf("[ENGINE] event=execute_done project=%s status=%s elapsed=%s", projectID, finalStatus, elapsed)
	return result, nil
}

func allTerminalComplete(plan *contracts.ExecutionPlan, statuses map[contracts.StageName]contracts.StageStatus) bool {
	for _, phase := range plan.Phases {
		for _, name := range phase.Stages {
			s := statuses[name]
			if s != contracts.StageCompleted && s != contracts.StageSkipped {
				return false
			}
		}
	}
	return true
}

func (e *Engine) buildResult(ctx context.Context, projectID contracts.ProjectID, plan *contracts.ExecutionPlan, statuses map[contracts.StageName]contracts.StageStatus, records []contracts.StageRecord, elapsed time.Duration) *contracts.ExecutionResult {
	stageStatuses := make(map[contracts.StageName]contracts.StageStatus, len(records))
	stageErrors := make(map[contracts.StageName]string)
	var completed, total int
	for _, r := range records {
		stageStatuses[r.StageName] = r.Status
		if r.ErrorMessage != "" {
			stageErrors[r.StageName] = r.ErrorMessage
		}
		total++
		if r.Status == contracts.StageCompleted || r.Status == contracts.StageSkipped {
			completed++
		}
	}
	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total)
	}
	return &contracts.ExecutionResult{
		ProjectID:     projectID,
		StageStatuses: stageStatuses,
		StageErrors:   stageErrors,
		Elapsed:       elapsed,
		SuccessRate:   successRate,
	}
}

// startCheckpointTicker launches the background periodic-save timer (§4.6)
// and returns a stop function. A zero CheckpointInterval or nil
// checkpointer disables it.
func (e *Engine) startCheckpointTicker(ctx context.Context, projectID contracts.ProjectID) func() {
	if e.checkpointer == nil || e.cfg.CheckpointInterval <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(e.cfg.CheckpointInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := e.checkpointer.Save(ctx, projectID); err != nil {
					log.Printf("[ENGINE] event=periodic_checkpoint_failed project=%s error=%v", projectID, err)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() { close(done) }
}

// execState bundles the mutable, mutex-guarded state shared by every
// worker goroutine within a single Execute call: stage statuses, cached
// outputSummary values for transitive-dependency merging, retry counters,
// and the set of stages cascade-skipped by a SkipDependents failure.
type execState struct {
	mu sync.Mutex

	projectID    contracts.ProjectID
	workflowName contracts.WorkflowName
	plan         *contracts.ExecutionPlan
	statuses     map[contracts.StageName]contracts.StageStatus
	outputs      map[contracts.StageName]map[string]interface{}
	retryCounts  map[contracts.StageName]int
	skipped      map[contracts.StageName]bool
	progress     *progressEmitter
	merger       *wfcontext.Merger
	router       *wfcontext.Router
}

func (s *execState) setStatus(name contracts.StageName, status contracts.StageStatus) {
	s.mu.Lock()
	s.statuses[name] = status
	s.mu.Unlock()
}

func (s *execState) getStatus(name contracts.StageName) contracts.StageStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statuses[name]
}

func (s *execState) setOutput(name contracts.StageName, out map[string]interface{}) {
	s.mu.Lock()
	s.router.Route(s.outputs, name, out)
	s.mu.Unlock()
}

func (s *execState) mergedInput(initial map[string]interface{}, name contracts.StageName) map[string]interface{} {
	deps := transitiveDeps(s.plan, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.merger.Build(initial, s.outputs, deps)
}

// snapshot builds an ExecutionState from the current, mutex-guarded
// statuses map (§4.5 progress reporting).
func (s *execState) snapshot(lastTransition contracts.StageName) contracts.ExecutionState {
	s.mu.Lock()
	counts := make(map[contracts.StageStatus]int)
	var total, running int
	var remaining time.Duration
	for _, phase := range s.plan.Phases {
		for _, name := range phase.Stages {
			total++
			status := s.statuses[name]
			counts[status]++
			if status == contracts.StageRunning {
				running++
			}
			if status != contracts.StageCompleted && status != contracts.StageSkipped {
				if d, ok := s.plan.StageDef(name); ok {
					remaining += d.EstimatedDuration
				}
			}
		}
	}
	s.mu.Unlock()

	parallelism := running
	if parallelism < 1 {
		parallelism = 1
	}
	var fraction float64
	if total > 0 {
		fraction = float64(counts[contracts.StageCompleted]+counts[contracts.StageSkipped]) / float64(total)
	}
	return contracts.ExecutionState{
		ProjectID:          s.projectID,
		WorkflowName:       s.workflowName,
		CountsByStatus:     counts,
		Total:              total,
		CompletedFraction:  fraction,
		EstimatedRemaining: remaining / time.Duration(parallelism),
		LastTransition:     lastTransition,
		UpdatedAt:          contracts.Now(),
	}
}

// transitiveDeps returns name's full transitive dependency set, sorted for
// determinism.
func transitiveDeps(plan *contracts.ExecutionPlan, name contracts.StageName) []contracts.StageName {
	seen := make(map[contracts.StageName]bool)
	var walk func(contracts.StageName)
	walk = func(n contracts.StageName) {
		d, ok := plan.StageDef(n)
		if !ok {
			return
		}
		for _, dep := range d.Dependencies {
			if !seen[dep] {
				seen[dep] = true
				walk(dep)
			}
		}
	}
	walk(name)
	out := make([]contracts.StageName, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// transitiveDependents returns every stage reachable by following
// dependency edges forward from name (i.e. stages that depend on name,
// directly or through intermediates), used to cascade SkipDependents.
func transitiveDependents(plan *contracts.ExecutionPlan, name contracts.StageName) []contracts.StageName {
	forward := make(map[contracts.StageName][]contracts.StageName)
	for _, phase := range plan.Phases {
		for _, n := range phase.Stages {
			d, _ := plan.StageDef(n)
			for _, dep := range d.Dependencies {
				forward[dep] = append(forward[dep], n)
			}
		}
	}
	seen := make(map[contracts.StageName]bool)
	var walk func(contracts.StageName)
	walk = func(n contracts.StageName) {
		for _, child := range forward[n] {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	walk(name)
	out := make([]contracts.StageName, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
