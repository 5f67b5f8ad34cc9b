package cost

import (
	"fmt"
	"sync"

	"github.com/yukkuri-system/workflow-core/contracts"
)

// DefaultPricing seeds the catalog with the outbound providers a media-
// generation workflow typically calls: an LLM for theme/scripting stages,
// a TTS provider for audio synthesis, and an image provider for thumbnail
// or storyboard generation. Costs are illustrative per-1M-unit rates
// (tokens for LLMs, characters for TTS, images for image generation) and
// are expected to be overridden via SystemConfig in a real deployment.
var DefaultPricing = []contracts.PricingInfo{
	{Provider: "llm", Endpoint: "flagship", InputCostPer1M: 15.0, OutputCostPer1M: 75.0, DefaultRole: contracts.RoleFlagship},
	{Provider: "llm", Endpoint: "balanced", InputCostPer1M: 3.0, OutputCostPer1M: 15.0, DefaultRole: contracts.RoleBalanced},
	{Provider: "llm", Endpoint: "fast", InputCostPer1M: 0.25, OutputCostPer1M: 1.25, DefaultRole: contracts.RoleFast},
	{Provider: "tts", Endpoint: "synthesize", InputCostPer1M: 30.0, OutputCostPer1M: 30.0, DefaultRole: contracts.RoleBalanced},
	{Provider: "image", Endpoint: "generate", InputCostPer1M: 40.0, OutputCostPer1M: 40.0, DefaultRole: contracts.RoleBalanced},
}

// key identifies a pricing entry by provider+endpoint.
type key struct {
	provider string
	endpoint string
}

// catalog implements contracts.PricingCatalog over an in-memory map,
// generalizing the teacher's model-ID-keyed catalog to a (provider,
// endpoint) key so it covers any outbound API the engine's StageContext
// reports usage for, not just one LLM vendor.
type catalog struct {
	mu           sync.RWMutex
	entries      map[key]contracts.PricingInfo
	roleMappings map[contracts.ProviderRole]key
}

// New creates a PricingCatalog seeded with entries. A nil or empty entries
// slice falls back to DefaultPricing.
func New(entries []contracts.PricingInfo) contracts.PricingCatalog {
	if len(entries) == 0 {
		entries = DefaultPricing
	}
	c := &catalog{
		entries:      make(map[key]contracts.PricingInfo, len(entries)),
		roleMappings: make(map[contracts.ProviderRole]key),
	}
	for _, e := range entries {
		k := key{e.Provider, e.Endpoint}
		c.entries[k] = e
		if _, taken := c.roleMappings[e.DefaultRole]; !taken {
			c.roleMappings[e.DefaultRole] = k
		}
	}
	return c
}

// Get returns the pricing entry for provider/endpoint.
func (c *catalog) Get(provider, endpoint string) (contracts.PricingInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.entries[key{provider, endpoint}]
	return info, ok
}

// GetByRole returns the entry mapped to role.
func (c *catalog) GetByRole(role contracts.ProviderRole) (contracts.PricingInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	k, ok := c.roleMappings[role]
	if !ok {
		return contracts.PricingInfo{}, false
	}
	info, ok := c.entries[k]
	return info, ok
}

// List returns every pricing entry.
func (c *catalog) List() []contracts.PricingInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]contracts.PricingInfo, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// SetRoleMapping points role at an existing provider/endpoint entry.
func (c *catalog) SetRoleMapping(role contracts.ProviderRole, provider, endpoint string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := key{provider, endpoint}
	if _, ok := c.entries[k]; !ok {
		return fmt.Errorf("%s/%s: %w", provider, endpoint, contracts.ErrPricingUnknown)
	}
	c.roleMappings[role] = k
	return nil
}
