package cost

import (
	"fmt"
	"sync"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// BudgetEnforcer checks a project's accumulated cost against an optional
// per-project ceiling (§9 decision D5: CostCeilingUSD, off by default).
// Unlike the store or ledger, this is purely an in-memory enrichment: it
// is consulted before dispatch the same way the teacher checked a per-run
// budget before batch dispatch, but never blocks a call already in
// flight, since the outbound request has typically already been made by
// the time a stage reports it through RecordApiUsage.
type BudgetEnforcer struct {
	tracker *UsageTracker

	mu        sync.Mutex
	ceilings  map[contracts.ProjectID]float64
}

// NewBudgetEnforcer creates a BudgetEnforcer backed by tracker.
func NewBudgetEnforcer(tracker *UsageTracker) *BudgetEnforcer {
	if tracker == nil {
		tracker = NewUsageTracker()
	}
	return &BudgetEnforcer{tracker: tracker, ceilings: make(map[contracts.ProjectID]float64)}
}

// SetCeiling configures projectID's cost ceiling in USD. A ceiling <= 0
// disables enforcement for that project (the default; spec.md is silent
// on cost limits, so no ceiling applies unless a caller sets one).
func (b *BudgetEnforcer) SetCeiling(projectID contracts.ProjectID, ceilingUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ceilingUSD <= 0 {
		delete(b.ceilings, projectID)
		return
	}
	b.ceilings[projectID] = ceilingUSD
}

// Allow reports whether projectID's current cost plus estimatedCost stays
// within its ceiling. Returns ErrBudgetNotSet if no ceiling is configured
// (callers that want "always allow when unset" should treat that as a
// non-fatal sentinel, not a failure).
func (b *BudgetEnforcer) Allow(projectID contracts.ProjectID, estimatedCost float64) error {
	b.mu.Lock()
	ceiling, ok := b.ceilings[projectID]
	b.mu.Unlock()
	if !ok {
		return contracts.ErrBudgetNotSet
	}
	_, _, current := b.tracker.Snapshot(projectID)
	if current+estimatedCost > ceiling {
		return fmt.Errorf("projected cost %.4f exceeds ceiling %.4f (current %.4f, estimate %.4f): %w",
			current+estimatedCost, ceiling, current, estimatedCost, contracts.ErrBudgetExceeded)
	}
	return nil
}

// Record folds actualCost into projectID's tracked usage. It does not
// itself return ErrBudgetExceeded: by the time a call is recorded it has
// already happened, so Record only updates the running total that the
// next Allow check will see.
func (b *BudgetEnforcer) Record(projectID contracts.ProjectID, tokensIn, tokensOut contracts.TokenCount, actualCost float64) {
	b.tracker.Add(projectID, tokensIn, tokensOut, actualCost)
}
