// Package context builds the merged input a stage processor sees from the
// outputSummary of its transitive dependencies, generalizing the teacher's
// context builder/compactor pair (which assembled an LLM message bundle
// from completed tasks' outputs) to the engine's map-valued outputSummary
// model, and carries per-project ephemeral memory alongside it.
package context

import (
	"encoding/json"
	"sort"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// Merger assembles a stage's merged input from the caller's initial input
// plus the outputSummary of every dependency in deps (§5 ordering guarantee
// (a)). A zero-value maxOutputBytes leaves summaries uncompacted.
type Merger struct {
	maxOutputBytes int
}

// NewMerger creates a Merger. maxOutputBytes <= 0 means unbounded.
func NewMerger(maxOutputBytes int) *Merger {
	return &Merger{maxOutputBytes: maxOutputBytes}
}

// Build merges initial with outputs[dep] for every dep in deps, keyed by
// stage name.
func (m *Merger) Build(initial map[string]interface{}, outputs map[contracts.StageName]map[string]interface{}, deps []contracts.StageName) map[string]interface{} {
	out := make(map[string]interface{}, len(initial)+len(deps))
	for k, v := range initial {
		out[k] = v
	}
	for _, dep := range deps {
		summary, ok := outputs[dep]
		if !ok {
			continue
		}
		out[string(dep)] = m.compact(summary)
	}
	return out
}

// compact trims summary's serialized size to maxOutputBytes by dropping its
// largest keys first, the same "remove until within limit" strategy the
// teacher's compactor applied to oldest messages.
func (m *Merger) compact(summary map[string]interface{}) map[string]interface{} {
	if m.maxOutputBytes <= 0 || len(summary) == 0 || jsonSize(summary) <= m.maxOutputBytes {
		return summary
	}
	keys := make([]string, 0, len(summary))
	for k := range summary {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return jsonSize(summary[keys[i]]) > jsonSize(summary[keys[j]])
	})
	result := make(map[string]interface{}, len(summary))
	for k, v := range summary {
		result[k] = v
	}
	for _, k := range keys {
		if jsonSize(result) <= m.maxOutputBytes {
			break
		}
		delete(result, k)
	}
	return result
}

func jsonSize(v interface{}) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
