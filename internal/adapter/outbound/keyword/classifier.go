// Package keyword implements intent classification as an ordered keyword
// scan over the capability registry. Routing is static and rule-based: the
// registry's declared order is the tie-break priority, and the first
// registered capability is the designated fallback. There is no scoring and
// no learning, which keeps the control path deterministic and auditable.
package keyword

import (
	"log/slog"
	"strings"

	"github.com/i2y/mcprouter/internal/domain"
)

// DefaultReasoning is the fixed decision-trace note recorded when no trigger
// keyword matched and the default capability was applied. The fallback is a
// designed outcome, not a failure; it is logged at informational level only.
const DefaultReasoning = "No keyword matched, default capability applied"

// Classifier selects a capability by testing each descriptor's trigger
// keywords, in registry order, as substrings of the normalized query.
type Classifier struct {
	registry *domain.Registry
	logger   *slog.Logger
}

// NewClassifier creates a classifier over the given registry.
func NewClassifier(registry *domain.Registry, logger *slog.Logger) *Classifier {
	return &Classifier{
		registry: registry,
		logger:   logger.With("component", "keyword_classifier"),
	}
}

// Classify is total: it never fails and always returns a valid capability.
// When a query contains keywords of two capabilities, the earlier-registered
// capability wins.
func (c *Classifier) Classify(query string) domain.Decision {
	normalized := Normalize(query)

	for _, d := range c.registry.Descriptors() {
		for _, kw := range d.Keywords {
			if strings.Contains(normalized, kw) {
				c.logger.Debug("Keyword matched",
					slog.String("capability", d.ID.String()),
					slog.String("keyword", kw))
				return domain.Decision{
					Capability: d.ID,
					Normalized: normalized,
					Reasoning:  d.Reasoning,
				}
			}
		}
	}

	fallback := c.registry.Default()
	c.logger.Info("No keyword matched, applying default capability",
		slog.String("capability", fallback.ID.String()))
	return domain.Decision{
		Capability: fallback.ID,
		Normalized: normalized,
		Reasoning:  DefaultReasoning,
	}
}

// Normalize lowercases and trims a query. Classification and extraction both
// operate on this derivative so their views of the query agree.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}
