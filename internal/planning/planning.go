// Package planning implements the Dependency Planner (C3): it partitions a
// workflow's stages into topologically ordered, parallelizable phases and
// detects cycles and dangling dependencies.
package planning

import (
	"fmt"
	"sort"
	"time"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// Planner is the contracts.Planner implementation. It is stateless and
// safe for concurrent use, grounded on the teacher's
// internal/orchestration/dependency_resolver.go DFS cycle-detection idiom,
// generalized here to produce explicit phase layers via Kahn's algorithm
// instead of a single incrementally-maintained ready set.
type Planner struct{}

// New creates a Planner.
func New() *Planner {
	return &Planner{}
}

// Plan builds an ExecutionPlan from a workflow's StageDefs (§4.3).
func (p *Planner) Plan(workflowName contracts.WorkflowName, defs []contracts.StageDef) (*contracts.ExecutionPlan, error) {
	byName := make(map[contracts.StageName]contracts.StageDef, len(defs))
	for _, d := range defs {
		if _, dup := byName[d.Name]; dup {
			return nil, &contracts.ValidationError{Field: "name", Message: fmt.Sprintf("duplicate stage name %q in workflow %s", d.Name, workflowName)}
		}
		byName[d.Name] = d
	}

	// Dangling-dependency check before layering.
	for _, d := range defs {
		for _, dep := range d.Dependencies {
			if _, ok := byName[dep]; !ok {
				return nil, &contracts.DependencyError{WorkflowName: workflowName, StageName: d.Name, Cause: contracts.ErrUnknownDep}
			}
		}
	}

	remaining := make(map[contracts.StageName]contracts.StageDef, len(defs))
	indegree := make(map[contracts.StageName]int, len(defs))
	dependents := make(map[contracts.StageName][]contracts.StageName, len(defs))
	for _, d := range defs {
		remaining[d.Name] = d
		indegree[d.Name] = len(d.Dependencies)
	}
	for _, d := range defs {
		for _, dep := range d.Dependencies {
			dependents[dep] = append(dependents[dep], d.Name)
		}
	}

	plan := &contracts.ExecutionPlan{WorkflowName: workflowName}
	planStageDefs := make(map[contracts.StageName]contracts.StageDef, len(defs))

	for len(remaining) > 0 {
		var ready []contracts.StageName
		for name, deg := range indegree {
			if deg == 0 {
				ready = append(ready, name)
			}
		}
		if len(ready) == 0 {
			// No zero-indegree node remains: a cycle exists among the
			// leftover stages. Name the smallest strongly-connected
			// component for the error.
			cycle := smallestCycle(remaining)
			return nil, &contracts.DependencyError{WorkflowName: workflowName, StageName: cycle[0], Cause: contracts.ErrCycle}
		}

		sortStages(ready, remaining)
		phase := contracts.Phase{Stages: ready}
		plan.Phases = append(plan.Phases, phase)

		for _, name := range ready {
			planStageDefs[name] = remaining[name]
			for _, dep := range dependents[name] {
				indegree[dep]--
			}
			delete(remaining, name)
			delete(indegree, name)
		}
	}

	plan.SetStageDefs(planStageDefs)
	return plan, nil
}

// sortStages orders a phase's stages by priority descending, then
// lexicographic stage name, for deterministic display and dispatch order
// (§4.3: "ties break by lexicographic stage name").
func sortStages(names []contracts.StageName, defs map[contracts.StageName]contracts.StageDef) {
	sort.Slice(names, func(i, j int) bool {
		a, b := defs[names[i]], defs[names[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return names[i] < names[j]
	})
}

// smallestCycle finds the smallest strongly-connected component among the
// stages left over after Kahn's peeling terminates early (Tarjan's
// algorithm restricted to the leftover subgraph), and returns its members
// in lexicographic order.
func smallestCycle(remaining map[contracts.StageName]contracts.StageDef) []contracts.StageName {
	type tarjanState struct {
		index, low int
		onStack    bool
	}
	states := make(map[contracts.StageName]*tarjanState)
	var stack []contracts.StageName
	var sccs [][]contracts.StageName
	counter := 0

	var names []contracts.StageName
	for name := range remaining {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	var strongconnect func(v contracts.StageName)
	strongconnect = func(v contracts.StageName) {
		states[v] = &tarjanState{index: counter, low: counter, onStack: true}
		counter++
		stack = append(stack, v)

		deps := append([]contracts.StageName{}, remaining[v].Dependencies...)
		sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
		for _, w := range deps {
			if _, ok := remaining[w]; !ok {
				continue
			}
			ws, visited := states[w]
			if !visited {
				strongconnect(w)
				ws = states[w]
				if ws.low < states[v].low {
					states[v].low = ws.low
				}
			} else if ws.onStack {
				if ws.index < states[v].low {
					states[v].low = ws.index
				}
			}
		}

		if states[v].low == states[v].index {
			var scc []contracts.StageName
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				states[w].onStack = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Slice(scc, func(i, j int) bool { return scc[i] < scc[j] })
			sccs = append(sccs, scc)
		}
	}

	for _, name := range names {
		if _, visited := states[name]; !visited {
			strongconnect(name)
		}
	}

	best := sccs[0]
	for _, scc := range sccs[1:] {
		if len(scc) < len(best) || (len(scc) == len(best) && scc[0] < best[0]) {
			best = scc
		}
	}
	return best
}

// EstimateTotalTime sums the max estimated duration per phase (an
// optimistic parallel bound).
func (p *Planner) EstimateTotalTime(plan *contracts.ExecutionPlan) time.Duration {
	var total time.Duration
	for _, phase := range plan.Phases {
		var max time.Duration
		for _, name := range phase.Stages {
			if d, ok := plan.StageDef(name); ok && d.EstimatedDuration > max {
				max = d.EstimatedDuration
			}
		}
		total += max
	}
	return total
}

// RequiredResources returns, per phase, the sum of required resources across
// every stage in that phase — the concurrent demand if the arbiter runs the
// whole phase at once, which is what a feasibility check against pool
// capacity needs.
func (p *Planner) RequiredResources(plan *contracts.ExecutionPlan) []map[contracts.ResourceName]int {
	out := make([]map[contracts.ResourceName]int, len(plan.Phases))
	for i, phase := range plan.Phases {
		union := make(map[contracts.ResourceName]int)
		for _, name := range phase.Stages {
			d, ok := plan.StageDef(name)
			if !ok {
				continue
			}
			for res, units := range d.RequiredResources {
				union[res] += units
			}
		}
		out[i] = union
	}
	return out
}
