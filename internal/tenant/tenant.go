// Package tenant supplies per-tenant conversation policy to the pipeline.
package tenant

import "context"

// Config is the policy bundle for one tenant. It is read-only from the
// pipeline's perspective.
type Config struct {
	TenantID           string   `json:"tenant_id" mapstructure:"tenant_id"`
	Tone               string   `json:"tone" mapstructure:"tone"`
	Disclaimers        []string `json:"disclaimers" mapstructure:"disclaimers"`
	EnabledTools       []string `json:"enabled_tools" mapstructure:"enabled_tools"`
	CustomInstructions string   `json:"custom_instructions" mapstructure:"custom_instructions"`
	Language           string   `json:"language" mapstructure:"language"`
}

// ToolEnabled reports whether the tenant has opted into the named tool.
func (c Config) ToolEnabled(name string) bool {
	for _, t := range c.EnabledTools {
		if t == name {
			return true
		}
	}
	return false
}

// Resolver maps a tenant id to its policy. Implementations must always
// return a usable Config; unknown tenants fall back to defaults.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) Config
}

// StaticResolver serves configs from an in-memory table with a shared
// default for unknown tenants.
type StaticResolver struct {
	overrides map[string]Config
	defaults  Config
}

// NewStaticResolver builds a resolver from explicit per-tenant overrides.
// A zero-value defaults is replaced with the standard policy.
func NewStaticResolver(overrides map[string]Config, defaults Config) *StaticResolver {
	if defaults.Tone == "" {
		defaults = DefaultConfig("")
	}
	return &StaticResolver{overrides: overrides, defaults: defaults}
}

// Resolve returns the tenant's override when present, otherwise the
// default policy stamped with the requested tenant id.
func (r *StaticResolver) Resolve(_ context.Context, tenantID string) Config {
	if cfg, ok := r.overrides[tenantID]; ok {
		cfg.TenantID = tenantID
		return cfg
	}
	cfg := r.defaults
	cfg.TenantID = tenantID
	return cfg
}

// DefaultConfig is the policy applied to tenants without explicit
// configuration.
func DefaultConfig(tenantID string) Config {
	return Config{
		TenantID:           tenantID,
		Tone:               "professional",
		Disclaimers:        []string{"This is an AI assistant."},
		EnabledTools:       []string{"schedule_visit", "get_business_hours"},
		CustomInstructions: "Be helpful and concise.",
		Language:           "en",
	}
}
