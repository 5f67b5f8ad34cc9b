package cost

import (
	"sync"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// projectUsage accumulates tokens and cost for one project.
type projectUsage struct {
	TokensIn  contracts.TokenCount
	TokensOut contracts.TokenCount
	CostUSD   float64
}

// UsageTracker accumulates per-project token and cost totals in memory,
// generalizing the teacher's per-run usage ledger from a single Run key to
// a ProjectID key, matching every other C1-adjacent component in this
// package.
type UsageTracker struct {
	mu    sync.Mutex
	usage map[contracts.ProjectID]projectUsage
}

// NewUsageTracker creates an empty UsageTracker.
func NewUsageTracker() *UsageTracker {
	return &UsageTracker{usage: make(map[contracts.ProjectID]projectUsage)}
}

// Add folds one outbound call's usage into projectID's running total.
func (t *UsageTracker) Add(projectID contracts.ProjectID, tokensIn, tokensOut contracts.TokenCount, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.usage[projectID]
	u.TokensIn += tokensIn
	u.TokensOut += tokensOut
	u.CostUSD += costUSD
	t.usage[projectID] = u
}

// Snapshot returns projectID's current totals.
func (t *UsageTracker) Snapshot(projectID contracts.ProjectID) (tokensIn, tokensOut contracts.TokenCount, costUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u := t.usage[projectID]
	return u.TokensIn, u.TokensOut, u.CostUSD
}

// Reset clears projectID's accumulated usage, removing its entry from the
// in-memory map. Nothing in this module calls it automatically.
func (t *UsageTracker) Reset(projectID contracts.ProjectID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.usage, projectID)
}
