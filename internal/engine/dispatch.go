package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// workerOutcome is what a completed worker reports back to runPhase's
// dispatch loop: whether the stage should be retried and, if so, after
// what backoff delay.
type workerOutcome struct {
	name  contracts.StageName
	retry bool
	delay time.Duration
}

// runPhase drives one phase to completion: every stage in it reaches a
// terminal status before this call returns (§8 property 2, phase
// boundary). It owns a local ready queue and retry-timer bookkeeping that
// only the dispatch loop's own goroutine touches; worker goroutines
// communicate back exclusively through the done/retry channels.
func (e *Engine) runPhase(ctx context.Context, ctrl *runControl, st *execState, phase contracts.Phase, initialInput map[string]interface{}) {
	ready := make([]contracts.StageName, 0, len(phase.Stages))
	for _, name := range phase.Stages {
		switch st.getStatus(name) {
		case contracts.StageCompleted, contracts.StageSkipped, contracts.StageCancelled:
			continue
		default:
			ready = append(ready, name)
		}
	}
	sortByPriority(ready, st.plan)

	sem := make(chan struct{}, e.cfg.MaxConcurrency)
	done := make(chan workerOutcome, len(phase.Stages)+4)
	retryChan := make(chan contracts.StageName, len(phase.Stages)+4)
	running := 0
	pendingTimers := 0

	dispatch := func(name contracts.StageName) {
		running++
		sem <- struct{}{}
		go func() {
			outcome := e.runWorker(ctx, st, name, initialInput)
			<-sem
			done <- outcome
		}()
	}

	for len(ready) > 0 || running > 0 || pendingTimers > 0 {
		if cancelled, _ := ctrl.isCancelled(); cancelled {
			for _, name := range ready {
				st.setStatus(name, contracts.StageCancelled)
				_ = e.store.UpdateStageStatus(context.Background(), st.projectID, name, contracts.StageCancelled, contracts.StageUpdateOpts{})
			}
			ready = nil
			for running > 0 {
				<-done
				running--
			}
			return
		}
		ctrl.waitIfPaused(ctx)

		for running < e.cfg.MaxConcurrency && len(ready) > 0 {
			name := ready[0]
			ready = ready[1:]
			dispatch(name)
		}

		if running == 0 && pendingTimers == 0 {
			if len(ready) == 0 {
				return
			}
			continue
		}

		select {
		case outcome := <-done:
			running--
			if outcome.retry {
				pendingTimers++
				name, delay := outcome.name, outcome.delay
				time.AfterFunc(delay, func() { retryChan <- name })
			}
		case name := <-retryChan:
			pendingTimers--
			ready = append(ready, name)
			sortByPriority(ready, st.plan)
		case <-ctx.Done():
			return
		}
	}
}

// runWorker executes a single stage's full lifecycle: pending -> running,
// resource acquisition, the bounded StageProcessor invocation, and the
// terminal store transition (§4.5 worker lifecycle).
func (e *Engine) runWorker(ctx context.Context, st *execState, name contracts.StageName, initialInput map[string]interface{}) workerOutcome {
	bg := context.Background()
	d, _ := st.plan.StageDef(name)

	if err := withStoreRetry(ctx, func() error {
		return e.store.UpdateStageStatus(bg, st.projectID, name, contracts.StageRunning, contracts.StageUpdateOpts{})
	}); err != nil {
		log.Printf("[ENGINE] event=stage_start_store_failed project=%s stage=%s error=%v", st.projectID, name, err)
	}
	st.setStatus(name, contracts.StageRunning)
	st.progress.emit(st.snapshot(name), false)

	input := st.mergedInput(initialInput, name)

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = e.cfg.DefaultStageTimeout
	}
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if len(d.RequiredResources) > 0 {
		if err := e.arbiter.Acquire(stageCtx, string(name), d.RequiredResources); err != nil {
			// ErrUnknownResource/ErrInfeasible are static misconfiguration and
			// never succeed on retry; ErrDeadlock/ErrQuota are transient and
			// participate in the stage's normal retry budget (§7).
			recovery := contracts.RecoveryAbort
			if errors.Is(err, contracts.ErrDeadlock) || errors.Is(err, contracts.ErrQuota) {
				recovery = contracts.RecoveryRetry
			}
			return e.finishFailure(bg, st, name, d, contracts.KindResource, err.Error(), contracts.SeverityHigh, recovery)
		}
		defer e.arbiter.Release(string(name))
	}

	sctx := &stageContext{
		ctx:       stageCtx,
		projectID: st.projectID,
		stageName: name,
		input:     input,
		ledger:    e.ledger,
		usageFn:   e.usageRecorder(bg, st.projectID, name),
		memory:    e.memoryFor(st.projectID),
	}

	started := time.Now()
	resultCh := make(chan contracts.StageResult, 1)
	go func() {
		resultCh <- safeExecute(e.lookupProcessor(name), sctx, input)
	}()

	var result contracts.StageResult
	select {
	case result = <-resultCh:
	case <-stageCtx.Done():
		if ctx.Err() != nil {
			result = contracts.StageResult{Status: contracts.ResultCancelled}
		} else {
			result = contracts.Failed(contracts.KindTimeout, fmt.Sprintf("stage %s exceeded timeout %s", name, timeout), contracts.SeverityHigh, contracts.RecoveryRetry)
		}
	}
	elapsed := time.Since(started).Seconds()

	switch result.Status {
	case contracts.ResultSuccess:
		st.setOutput(name, result.OutputSummary)
		st.setStatus(name, contracts.StageCompleted)
		el := elapsed
		if err := withStoreRetry(ctx, func() error {
			return e.store.UpdateStageStatus(bg, st.projectID, name, contracts.StageCompleted, contracts.StageUpdateOpts{Output: result.OutputSummary, ElapsedSec: &el})
		}); err != nil {
			log.Printf("[ENGINE] event=stage_complete_store_failed project=%s stage=%s error=%v", st.projectID, name, err)
		}
		e.saveCheckpoint(bg, st.projectID)
		st.progress.emit(st.snapshot(name), false)
		return workerOutcome{name: name}

	case contracts.ResultCancelled:
		st.setStatus(name, contracts.StageCancelled)
		_ = e.store.UpdateStageStatus(bg, st.projectID, name, contracts.StageCancelled, contracts.StageUpdateOpts{})
		return workerOutcome{name: name}

	case contracts.ResultSkipped:
		st.setStatus(name, contracts.StageSkipped)
		_ = e.store.UpdateStageStatus(bg, st.projectID, name, contracts.StageSkipped, contracts.StageUpdateOpts{})
		e.saveCheckpoint(bg, st.projectID)
		st.progress.emit(st.snapshot(name), false)
		return workerOutcome{name: name}

	default:
		return e.finishFailure(bg, st, name, d, result.Kind, result.Message, result.Severity, result.Recovery)
	}
}

// finishFailure records a stage failure, decides whether the processor's
// declared recovery action and the stage's remaining retry budget call for
// a retry, and otherwise, when the stage's failurePolicy is SkipDependents,
// cascades a skip to every stage that transitively depends on it (§4.5,
// §9 retry budget property).
func (e *Engine) finishFailure(ctx context.Context, st *execState, name contracts.StageName, d contracts.StageDef, kind contracts.ErrorKind, message string, severity contracts.Severity, recovery contracts.RecoveryAction) workerOutcome {
	st.mu.Lock()
	st.retryCounts[name]++
	attempt := st.retryCounts[name]
	st.statuses[name] = contracts.StageFailed
	st.mu.Unlock()

	errMsg := message
	rc := attempt
	if err := withStoreRetry(ctx, func() error {
		return e.store.UpdateStageStatus(ctx, st.projectID, name, contracts.StageFailed, contracts.StageUpdateOpts{ErrorMessage: &errMsg, RetryCount: &rc})
	}); err != nil {
		log.Printf("[ENGINE] event=stage_fail_store_failed project=%s stage=%s error=%v", st.projectID, name, err)
	}
	st.progress.emit(st.snapshot(name), false)

	if recovery == contracts.RecoveryRetry && attempt <= d.RetryCount {
		delay := e.cfg.RetryBaseDelay
		if e.cfg.ExponentialBackoff {
			delay = e.cfg.RetryBaseDelay * time.Duration(int64(1)<<uint(attempt-1))
		}
		log.Printf("[ENGINE] event=retry_scheduled project=%s stage=%s attempt=%d kind=%s delay=%s", st.projectID, name, attempt, kind, delay)
		return workerOutcome{name: name, retry: true, delay: delay}
	}

	log.Printf("[ENGINE] event=stage_failed_terminal project=%s stage=%s kind=%s severity=%s message=%s", st.projectID, name, kind, severity, message)
	e.saveCheckpoint(ctx, st.projectID)

	if d.FailurePolicy == contracts.SkipDependents {
		for _, dep := range transitiveDependents(st.plan, name) {
			if cur := st.getStatus(dep); cur == contracts.StageCompleted || cur == contracts.StageSkipped {
				continue
			}
			st.setStatus(dep, contracts.StageSkipped)
			st.skipped[dep] = true
			if err := e.store.UpdateStageStatus(ctx, st.projectID, dep, contracts.StageSkipped, contracts.StageUpdateOpts{}); err != nil {
				log.Printf("[ENGINE] event=cascade_skip_failed project=%s stage=%s error=%v", st.projectID, dep, err)
			}
		}
	}
	return workerOutcome{name: name}
}

func (e *Engine) saveCheckpoint(ctx context.Context, projectID contracts.ProjectID) {
	if e.checkpointer == nil {
		return
	}
	if _, err := e.checkpointer.Save(ctx, projectID); err != nil {
		log.Printf("[ENGINE] event=checkpoint_failed project=%s error=%v", projectID, err)
	}
}

func (e *Engine) usageRecorder(ctx context.Context, projectID contracts.ProjectID, name contracts.StageName) func(string, string, contracts.TokenCount, contracts.TokenCount, int64, int) {
	return func(provider, endpoint string, tokensIn, tokensOut contracts.TokenCount, responseTimeMs int64, statusCode int) {
		var cost float64
		if e.cfg.CostEstimator != nil {
			cost = e.cfg.CostEstimator(provider, tokensIn, tokensOut)
		}
		rec := contracts.ApiUsageRecord{
			ProjectID:      &projectID,
			StageName:      name,
			Provider:       provider,
			Endpoint:       endpoint,
			Timestamp:      contracts.Now(),
			TokensInput:    tokensIn,
			TokensOutput:   tokensOut,
			EstimatedCost:  cost,
			ResponseTimeMs: responseTimeMs,
			StatusCode:     statusCode,
		}
		if err := e.store.RecordApiUsage(ctx, rec); err != nil {
			log.Printf("[ENGINE] event=record_usage_failed project=%s stage=%s error=%v", projectID, name, err)
		}
	}
}

func (e *Engine) lookupProcessor(name contracts.StageName) contracts.StageProcessor {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.processors[name]
}

// safeExecute recovers a panicking StageProcessor into a failure result so
// one misbehaving processor can never bring down the scheduler.
func safeExecute(proc contracts.StageProcessor, ctx contracts.StageContext, input map[string]interface{}) (result contracts.StageResult) {
	defer func() {
		if r := recover(); r != nil {
			result = contracts.Failed(contracts.KindExecution, fmt.Sprintf("stage processor panicked: %v", r), contracts.SeverityCritical, contracts.RecoveryAbort)
		}
	}()
	return proc.Execute(ctx, input)
}

func sortByPriority(names []contracts.StageName, plan *contracts.ExecutionPlan) {
	sort.Slice(names, func(i, j int) bool {
		di, _ := plan.StageDef(names[i])
		dj, _ := plan.StageDef(names[j])
		if di.Priority != dj.Priority {
			return di.Priority > dj.Priority
		}
		return names[i] < names[j]
	})
}
