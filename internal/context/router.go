package context

import "github.com/yukkuri-system/workflow-core/contracts"

// Router records a completed stage's outputSummary under its own name so
// later Merger.Build calls can find it, the role the teacher's context
// router played by copying one task's output into another's input map.
type Router struct{}

// NewRouter creates a Router.
func NewRouter() *Router { return &Router{} }

// Route stores output under outputs[from].
func (r *Router) Route(outputs map[contracts.StageName]map[string]interface{}, from contracts.StageName, output map[string]interface{}) {
	outputs[from] = output
}
