// Package arbiter implements the Resource Arbiter (C4): named counted
// semaphore pools acquired in canonical lexicographic order, with
// wait-for-graph cycle detection to fail fast on resource deadlocks rather
// than block forever.
package arbiter

import (
	"context"
	"log"
	"sort"
	"sync"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// Arbiter is the contracts.ResourceArbiter implementation. Its internal
// mutex guards the pool state and the wait-for graph, generalizing the
// teacher's single-semaphore parallel_executor.go pattern to multiple
// named pools with deadlock avoidance.
type Arbiter struct {
	mu        sync.Mutex
	capacity  map[contracts.ResourceName]int
	available map[contracts.ResourceName]int
	holders   map[contracts.ResourceName]map[string]int // resource -> stageID -> units held
	waitFor   map[string]map[string]bool                // waiting stageID -> set of blocking stageIDs
	waitCh    chan struct{}
}

// New creates an Arbiter with the given per-resource capacities (the
// `resource_pool` configuration, §6.5).
func New(capacity map[contracts.ResourceName]int) *Arbiter {
	available := make(map[contracts.ResourceName]int, len(capacity))
	for r, c := range capacity {
		available[r] = c
	}
	return &Arbiter{
		capacity:  capacity,
		available: available,
		holders:   make(map[contracts.ResourceName]map[string]int),
		waitFor:   make(map[string]map[string]bool),
		waitCh:    make(chan struct{}),
	}
}

// Capacity returns a resource's total pool size.
func (a *Arbiter) Capacity(name contracts.ResourceName) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.capacity[name]
	return c, ok
}

// Acquire blocks until every needed unit is held or ctx is cancelled. The
// request is all-or-nothing and resources are acquired in lexicographic
// order so every caller observes the same global lock order (§4.4).
func (a *Arbiter) Acquire(ctx context.Context, stageID string, needed map[contracts.ResourceName]int) error {
	if len(needed) == 0 {
		return nil
	}
	names := make([]contracts.ResourceName, 0, len(needed))
	for r := range needed {
		names = append(names, r)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	a.mu.Lock()
	for _, r := range names {
		cap, ok := a.capacity[r]
		if !ok {
			a.mu.Unlock()
			return &contracts.ResourceError{StageName: contracts.StageName(stageID), Resource: r, Cause: contracts.ErrUnknownResource}
		}
		if needed[r] > cap {
			a.mu.Unlock()
			return &contracts.ResourceError{StageName: contracts.StageName(stageID), Resource: r, Cause: contracts.ErrInfeasible}
		}
	}
	a.mu.Unlock()

	for {
		a.mu.Lock()
		if a.canGrantLocked(names, needed) {
			a.grantLocked(stageID, names, needed)
			delete(a.waitFor, stageID)
			a.mu.Unlock()
			return nil
		}

		blockers := a.blockersLocked(names, needed)
		a.waitFor[stageID] = blockers
		if hasCycle(a.waitFor, stageID) {
			delete(a.waitFor, stageID)
			a.mu.Unlock()
			log.Printf("[ARBITER] event=deadlock_avoided stage=%s", stageID)
			return &contracts.ResourceError{StageName: contracts.StageName(stageID), Cause: contracts.ErrDeadlock}
		}
		wait := a.waitCh
		a.mu.Unlock()

		select {
		case <-wait:
			continue
		case <-ctx.Done():
			a.mu.Lock()
			delete(a.waitFor, stageID)
			a.mu.Unlock()
			return ctx.Err()
		}
	}
}

// Release returns every unit held by stageID and wakes all waiters.
func (a *Arbiter) Release(stageID string) {
	a.mu.Lock()
	for r, m := range a.holders {
		if units, ok := m[stageID]; ok {
			a.available[r] += units
			delete(m, stageID)
		}
	}
	delete(a.waitFor, stageID)
	old := a.waitCh
	a.waitCh = make(chan struct{})
	a.mu.Unlock()
	close(old)
}

func (a *Arbiter) canGrantLocked(names []contracts.ResourceName, needed map[contracts.ResourceName]int) bool {
	for _, r := range names {
		if a.available[r] < needed[r] {
			return false
		}
	}
	return true
}

func (a *Arbiter) grantLocked(stageID string, names []contracts.ResourceName, needed map[contracts.ResourceName]int) {
	for _, r := range names {
		a.available[r] -= needed[r]
		if a.holders[r] == nil {
			a.holders[r] = make(map[string]int)
		}
		a.holders[r][stageID] += needed[r]
	}
}

// blockersLocked returns the set of stageIDs currently holding units of
// any under-supplied resource in names.
func (a *Arbiter) blockersLocked(names []contracts.ResourceName, needed map[contracts.ResourceName]int) map[string]bool {
	blockers := make(map[string]bool)
	for _, r := range names {
		if a.available[r] >= needed[r] {
			continue
		}
		for holder := range a.holders[r] {
			blockers[holder] = true
		}
	}
	return blockers
}

// hasCycle runs a DFS over the wait-for graph starting at start, returning
// true if start is reachable from one of its own blockers (a circular
// wait).
func hasCycle(waitFor map[string]map[string]bool, start string) bool {
	visited := make(map[string]bool)
	var dfs func(node string) bool
	dfs = func(node string) bool {
		if node == start && visited[node] {
			return true
		}
		if visited[node] {
			return false
		}
		visited[node] = true
		for next := range waitFor[node] {
			if next == start {
				return true
			}
			if dfs(next) {
				return true
			}
		}
		return false
	}
	for blocker := range waitFor[start] {
		if blocker == start {
			return true
		}
		if dfs(blocker) {
			return true
		}
	}
	return false
}
