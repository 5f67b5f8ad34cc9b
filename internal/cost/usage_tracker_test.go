package cost

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestUsageTracker_AddAccumulates(t *testing.T) {
	tr := NewUsageTracker()
	project := contracts.ProjectID("20260803_001")

	tr.Add(project, 100, 50, 0.01)
	tr.Add(project, 200, 100, 0.02)

	in, out, cost := tr.Snapshot(project)
	require.Equal(t, contracts.TokenCount(300), in)
	require.Equal(t, contracts.TokenCount(150), out)
	require.InDelta(t, 0.03, cost, 1e-9)
}

func TestUsageTracker_SnapshotUnknownProjectIsZero(t *testing.T) {
	tr := NewUsageTracker()
	in, out, cost := tr.Snapshot("nonexistent")
	require.Zero(t, in)
	require.Zero(t, out)
	require.Zero(t, cost)
}

func TestUsageTracker_Reset(t *testing.T) {
	tr := NewUsageTracker()
	project := contracts.ProjectID("20260803_002")
	tr.Add(project, 10, 10, 1.0)
	tr.Reset(project)

	_, _, cost := tr.Snapshot(project)
	require.Zero(t, cost)
}

func TestUsageTracker_ProjectsAreIndependent(t *testing.T) {
	tr := NewUsageTracker()
	a, b := contracts.ProjectID("a"), contracts.ProjectID("b")
	tr.Add(a, 10, 10, 1.0)
	tr.Add(b, 20, 20, 2.0)

	_, _, costA := tr.Snapshot(a)
	_, _, costB := tr.Snapshot(b)
	require.InDelta(t, 1.0, costA, 1e-9)
	require.InDelta(t, 2.0, costB, 1e-9)
}
