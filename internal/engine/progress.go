package engine

import (
	"sync"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// progressRateLimit is the minimum spacing between emitted ExecutionState
// snapshots (§4.5: "at most one per 100ms or one per transition, whichever
// is less frequent").
const progressRateLimit = 100 * time.Millisecond

// progressEmitter throttles ExecutionState snapshots to progressRateLimit,
// always letting a forced (final) emission through regardless of timing.
type progressEmitter struct {
	mu   sync.Mutex
	fn   contracts.ProgressFunc
	last time.Time
}

func newProgressEmitter(fn contracts.ProgressFunc) *progressEmitter {
	return &progressEmitter{fn: fn}
}

func (p *progressEmitter) emit(state contracts.ExecutionState, force bool) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	if !force && time.Since(p.last) < progressRateLimit {
		p.mu.Unlock()
		return
	}
	p.last = time.Now()
	p.mu.Unlock()
	p.fn(state)
}
