package domain

import (
	"fmt"
)

// Capability identifies one routable, externally-implemented function the
// pipeline can invoke (e.g. a weather lookup). Values are stable identifiers
// used in configuration, logs and traces.
type Capability string

// Built-in capabilities. The set is closed; adding a capability means adding
// a descriptor, an extraction strategy binding and a provider-side tool.
const (
	CapabilityAgriInfo Capability = "agri_info"
	CapabilityWeather  Capability = "weather"
	CapabilityPosts    Capability = "posts"
)

// String returns the identifier as a plain string.
func (c Capability) String() string { return string(c) }

// ExtractionStrategy tags how arguments are pulled out of the query for a
// capability. It is a closed set; the extractor dispatches on it.
type ExtractionStrategy string

const (
	// ExtractPassthrough keeps the query text itself as a single string
	// argument, minus question filler and the capability's own keywords.
	ExtractPassthrough ExtractionStrategy = "passthrough"

	// ExtractEntityAfterPreposition picks the token following a connector
	// word ("in", "for", "at"), e.g. a city name.
	ExtractEntityAfterPreposition ExtractionStrategy = "entity_after_preposition"

	// ExtractLeadingInteger picks the first integer token in the query,
	// e.g. a result count.
	ExtractLeadingInteger ExtractionStrategy = "leading_integer"
)

// ArgumentSpec describes the single argument a capability's tool expects,
// including the contractual fallback used when nothing can be extracted.
// Defaults are part of the schema, not silent omissions.
type ArgumentSpec struct {
	Name    string      `json:"name"`
	Type    string      `json:"type"` // "string" or "integer"
	Default interface{} `json:"default"`
}

// CapabilityDescriptor is the static registration record for one capability.
// The registry holds one descriptor per routable capability; all fields are
// read-only after initialization.
type CapabilityDescriptor struct {
	// ID is the capability identifier used throughout the pipeline.
	ID Capability `json:"id"`

	// Tool is the MCP tool name the provider exposes for this capability.
	Tool string `json:"tool"`

	// Description explains the capability to humans (and to the
	// /capabilities listing).
	Description string `json:"description"`

	// Keywords trigger classification. Matching is case-insensitive
	// substring matching against the normalized query, tested in order.
	Keywords []string `json:"keywords"`

	// Strategy selects the argument extraction behavior.
	Strategy ExtractionStrategy `json:"strategy"`

	// Argument is the tool's argument schema.
	Argument ArgumentSpec `json:"argument"`

	// Reasoning is the fixed human-readable note recorded in the decision
	// trace when this capability is selected by keyword match.
	Reasoning string `json:"reasoning"`
}

// Validate checks the descriptor is complete enough to route on.
func (d CapabilityDescriptor) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("capability descriptor missing id")
	}
	if d.Tool == "" {
		return fmt.Errorf("capability %q missing tool name", d.ID)
	}
	if len(d.Keywords) == 0 {
		return fmt.Errorf("capability %q has no trigger keywords", d.ID)
	}
	switch d.Strategy {
	case ExtractPassthrough, ExtractEntityAfterPreposition, ExtractLeadingInteger:
	default:
		return fmt.Errorf("capability %q has unknown extraction strategy %q", d.ID, d.Strategy)
	}
	if d.Argument.Name == "" {
		return fmt.Errorf("capability %q missing argument name", d.ID)
	}
	return nil
}

// Registry is the fixed, ordered sequence of capability descriptors.
// Ordering is a first-class design parameter: it determines classifier
// tie-break priority, and the first entry is the designated default
// capability applied when no keyword matches. Read-only after construction.
type Registry struct {
	descriptors []CapabilityDescriptor
	byID        map[Capability]CapabilityDescriptor
}

// NewRegistry builds a registry from descriptors in declared priority order.
func NewRegistry(descriptors []CapabilityDescriptor) (*Registry, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("registry requires at least one capability descriptor")
	}
	byID := make(map[Capability]CapabilityDescriptor, len(descriptors))
	for _, d := range descriptors {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if _, exists := byID[d.ID]; exists {
			return nil, fmt.Errorf("duplicate capability %q in registry", d.ID)
		}
		byID[d.ID] = d
	}
	return &Registry{descriptors: descriptors, byID: byID}, nil
}

// Descriptors returns the descriptors in declared priority order.
func (r *Registry) Descriptors() []CapabilityDescriptor {
	return r.descriptors
}

// Default returns the designated fallback capability (the first registered).
func (r *Registry) Default() CapabilityDescriptor {
	return r.descriptors[0]
}

// Lookup finds a descriptor by capability identifier.
func (r *Registry) Lookup(id Capability) (CapabilityDescriptor, bool) {
	d, ok := r.byID[id]
	return d, ok
}

// DefaultDescriptors returns the built-in registry in its declared priority
// order: agriculture info first (it doubles as the no-keyword fallback, since
// its passthrough extraction is total), then weather, then post listing.
func DefaultDescriptors() []CapabilityDescriptor {
	return []CapabilityDescriptor{
		{
			ID:          CapabilityAgriInfo,
			Tool:        "get_pesticide_seed_info",
			Description: "Information about pesticides, seeds and crops for agricultural purposes.",
			Keywords:    []string{"agriculture", "farming", "farm", "pesticide", "seed", "crop", "plant", "fertilizer", "harvest"},
			Strategy:    ExtractPassthrough,
			Argument:    ArgumentSpec{Name: "query", Type: "string", Default: "general information"},
			Reasoning:   "Agriculture query detected",
		},
		{
			ID:          CapabilityWeather,
			Tool:        "get_current_weather",
			Description: "Current weather conditions for a specific city or location.",
			Keywords:    []string{"weather", "temperature", "forecast", "climate", "humidity"},
			Strategy:    ExtractEntityAfterPreposition,
			Argument:    ArgumentSpec{Name: "city", Type: "string", Default: "London"},
			Reasoning:   "Weather query detected",
		},
		{
			ID:          CapabilityPosts,
			Tool:        "get_placeholder_posts",
			Description: "Blog posts fetched from the JSONPlaceholder API.",
			Keywords:    []string{"post", "blog", "article"},
			Strategy:    ExtractLeadingInteger,
			Argument:    ArgumentSpec{Name: "limit", Type: "integer", Default: 5},
			Reasoning:   "Content listing query detected",
		},
	}
}
