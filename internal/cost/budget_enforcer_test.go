package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestBudgetEnforcer_NoCeilingReturnsNotSet(t *testing.T) {
	b := NewBudgetEnforcer(nil)
	err := b.Allow("proj-1", 5.0)
	require.True(t, errors.Is(err, contracts.ErrBudgetNotSet))
}

func TestBudgetEnforcer_WithinCeiling(t *testing.T) {
	b := NewBudgetEnforcer(nil)
	b.SetCeiling("proj-1", 10.0)

	require.NoError(t, b.Allow("proj-1", 9.99))
}

func TestBudgetEnforcer_ExceedsCeiling(t *testing.T) {
	b := NewBudgetEnforcer(nil)
	b.SetCeiling("proj-1", 10.0)

	err := b.Allow("proj-1", 10.01)
	require.True(t, errors.Is(err, contracts.ErrBudgetExceeded))
}

func TestBudgetEnforcer_RecordAccumulatesTowardCeiling(t *testing.T) {
	b := NewBudgetEnforcer(nil)
	b.SetCeiling("proj-1", 10.0)

	b.Record("proj-1", 1000, 1000, 8.0)
	require.NoError(t, b.Allow("proj-1", 1.5))

	err := b.Allow("proj-1", 2.5)
	require.True(t, errors.Is(err, contracts.ErrBudgetExceeded))
}

func TestBudgetEnforcer_SetCeilingZeroDisables(t *testing.T) {
	b := NewBudgetEnforcer(nil)
	b.SetCeiling("proj-1", 10.0)
	b.SetCeiling("proj-1", 0)

	err := b.Allow("proj-1", 1_000_000)
	require.True(t, errors.Is(err, contracts.ErrBudgetNotSet))
}
