package cost

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yukkuri-system/workflow-core/contracts"
)

func TestCatalog_Get(t *testing.T) {
	c := New(nil)

	info, ok := c.Get("llm", "flagship")
	require.True(t, ok)
	require.Equal(t, "llm", info.Provider)

	_, ok = c.Get("llm", "nonexistent")
	require.False(t, ok)
}

func TestCatalog_GetByRole(t *testing.T) {
	c := New(nil)

	info, ok := c.GetByRole(contracts.RoleFast)
	require.True(t, ok)
	require.Equal(t, "llm", info.Provider)
	require.Equal(t, "fast", info.Endpoint)

	_, ok = c.GetByRole(contracts.ProviderRole("nonexistent-role"))
	require.False(t, ok)
}

func TestCatalog_List(t *testing.T) {
	c := New(nil)
	entries := c.List()
	require.Len(t, entries, len(DefaultPricing))
}

func TestCatalog_SetRoleMapping(t *testing.T) {
	c := New(nil)

	require.NoError(t, c.SetRoleMapping(contracts.RoleFlagship, "tts", "synthesize"))
	info, ok := c.GetByRole(contracts.RoleFlagship)
	require.True(t, ok)
	require.Equal(t, "tts", info.Provider)

	err := c.SetRoleMapping(contracts.RoleFlagship, "unknown", "unknown")
	require.Error(t, err)
	require.True(t, errors.Is(err, contracts.ErrPricingUnknown))
}

func TestCatalog_CustomEntries(t *testing.T) {
	c := New([]contracts.PricingInfo{
		{Provider: "image", Endpoint: "thumbnail", InputCostPer1M: 10, OutputCostPer1M: 10, DefaultRole: contracts.RoleFast},
	})
	_, ok := c.Get("llm", "flagship")
	require.False(t, ok, "custom entries should replace, not merge with, DefaultPricing")

	info, ok := c.Get("image", "thumbnail")
	require.True(t, ok)
	require.Equal(t, 10.0, info.AverageCostPer1M())
}
