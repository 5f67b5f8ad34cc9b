package context

import (
	"testing"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestMergerBuildMergesDependencyOutputs(t *testing.T) {
	m := NewMerger(0)
	outputs := map[contracts.StageName]map[string]interface{}{
		"fetch":  {"url": "http://example.com"},
		"decode": {"frames": 42},
	}
	merged := m.Build(map[string]interface{}{"seed": 1}, outputs, []contracts.StageName{"fetch", "decode"})

	if merged["seed"] != 1 {
		t.Fatalf("expected initial input preserved, got %v", merged["seed"])
	}
	fetch, ok := merged["fetch"].(map[string]interface{})
	if !ok || fetch["url"] != "http://example.com" {
		t.Fatalf("expected fetch output merged, got %v", merged["fetch"])
	}
	if _, ok := merged["missing"]; ok {
		t.Fatalf("did not expect a key for an absent dependency")
	}
}

func TestMergerBuildSkipsMissingDependencyOutput(t *testing.T) {
	m := NewMerger(0)
	merged := m.Build(nil, map[contracts.StageName]map[string]interface{}{}, []contracts.StageName{"never_ran"})
	if len(merged) != 0 {
		t.Fatalf("expected empty merge, got %v", merged)
	}
}

func TestMergerCompactDropsOversizedKeysUntilWithinBudget(t *testing.T) {
	m := NewMerger(40)
	outputs := map[contracts.StageName]map[string]interface{}{
		"big": {
			"small": "x",
			"huge":  "this is a much longer value that should get dropped first",
		},
	}
	merged := m.Build(nil, outputs, []contracts.StageName{"big"})
	big := merged["big"].(map[string]interface{})
	if _, ok := big["huge"]; ok {
		t.Fatalf("expected oversized key dropped, got %v", big)
	}
	if _, ok := big["small"]; !ok {
		t.Fatalf("expected small key retained, got %v", big)
	}
}

func TestMergerCompactLeavesSmallSummaryUntouched(t *testing.T) {
	m := NewMerger(1000)
	outputs := map[contracts.StageName]map[string]interface{}{
		"ok": {"k": "v"},
	}
	merged := m.Build(nil, outputs, []contracts.StageName{"ok"})
	if merged["ok"].(map[string]interface{})["k"] != "v" {
		t.Fatalf("expected summary untouched, got %v", merged["ok"])
	}
}

func TestRouterRouteStoresUnderFromName(t *testing.T) {
	r := NewRouter()
	outputs := make(map[contracts.StageName]map[string]interface{})
	r.Route(outputs, "render", map[string]interface{}{"path": "/tmp/out.mp4"})
	if outputs["render"]["path"] != "/tmp/out.mp4" {
		t.Fatalf("expected output routed under stage name, got %v", outputs)
	}
}
