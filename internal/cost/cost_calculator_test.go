package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestCalculator_Estimate(t *testing.T) {
	c := NewCalculator(New([]contracts.PricingInfo{
		{Provider: "llm", Endpoint: "balanced", InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced},
	}))

	cost, err := c.Estimate("llm", "balanced", 1_000_000, 1_000_000)
	require.NoError(t, err)
	require.Equal(t, 18.0, cost)
}

func TestCalculator_Estimate_UnknownPricing(t *testing.T) {
	c := NewCalculator(New(nil))
	_, err := c.Estimate("unknown", "unknown", 100, 100)
	require.True(t, errors.Is(err, contracts.ErrPricingUnknown))
}

func TestCalculator_EstimateByRole(t *testing.T) {
	c := NewCalculator(New(nil))
	cost, err := c.EstimateByRole(contracts.RoleFast, 1_000_000, 0)
	require.NoError(t, err)
	require.InDelta(t, 0.25, cost, 1e-9)
}

func TestCalculator_EstimatorFunc(t *testing.T) {
	c := NewCalculator(New(nil))
	fn := c.EstimatorFunc()
	cost := fn("llm", 1_000_000, 0)
	require.Greater(t, cost, 0.0)

	require.Equal(t, 0.0, fn("nonexistent-provider", 1000, 1000))
}
