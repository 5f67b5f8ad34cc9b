package cost

import (
	"github.com/yukkuri-system/workflow-core/contracts"
)

// Calculator turns token counts into a dollar estimate using a
// PricingCatalog, feeding C1's ApiUsageRecord.EstimatedCost and
// StatCounter rows.
type Calculator struct {
	catalog contracts.PricingCatalog
}

// NewCalculator creates a Calculator over catalog. A nil catalog falls
// back to New(nil) (DefaultPricing).
func NewCalculator(catalog contracts.PricingCatalog) *Calculator {
	if catalog == nil {
		catalog = New(nil)
	}
	return &Calculator{catalog: catalog}
}

// Estimate returns the USD cost of tokensIn input and tokensOut output
// units billed against provider/endpoint's per-1M rates.
func (c *Calculator) Estimate(provider, endpoint string, tokensIn, tokensOut contracts.TokenCount) (float64, error) {
	info, ok := c.catalog.Get(provider, endpoint)
	if !ok {
		return 0, contracts.ErrPricingUnknown
	}
	return float64(tokensIn)*info.InputCostPer1M/1_000_000 + float64(tokensOut)*info.OutputCostPer1M/1_000_000, nil
}

// EstimateByRole estimates cost using whichever provider/endpoint the
// catalog has mapped to role.
func (c *Calculator) EstimateByRole(role contracts.ProviderRole, tokensIn, tokensOut contracts.TokenCount) (float64, error) {
	info, ok := c.catalog.GetByRole(role)
	if !ok {
		return 0, contracts.ErrPricingUnknown
	}
	return c.Estimate(info.Provider, info.Endpoint, tokensIn, tokensOut)
}

// EstimatorFunc adapts Calculator to the engine.Config.CostEstimator hook
// shape: (provider, tokensIn, tokensOut) -> cost, swallowing an unknown-
// pricing error to 0 rather than failing the stage over an accounting gap.
func (c *Calculator) EstimatorFunc() func(provider string, tokensIn, tokensOut contracts.TokenCount) float64 {
	return func(provider string, tokensIn, tokensOut contracts.TokenCount) float64 {
		for _, info := range c.catalog.List() {
			if info.Provider != provider {
				continue
			}
			cost, err := c.Estimate(info.Provider, info.Endpoint, tokensIn, tokensOut)
			if err == nil {
				return cost
			}
		}
		return 0
	}
}
