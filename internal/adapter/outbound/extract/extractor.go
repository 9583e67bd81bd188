// Package extract implements per-capability argument extraction. Each
// strategy is an independent pure function of (descriptor, query) and is
// total: when nothing can be extracted it returns the schema's named default
// rather than failing, keeping the pipeline total up to the invocation stage.
package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/i2y/mcprouter/internal/adapter/outbound/keyword"
	"github.com/i2y/mcprouter/internal/domain"
)

// Contractual fallbacks, documented per schema field. These are designed
// defaults, not silent omissions.
const (
	// DefaultCity is used when no connector word introduces a location.
	DefaultCity = "London"

	// DefaultLimit is used when the query carries no integer token.
	DefaultLimit = 5
)

// connectors are the words that introduce an entity in the
// entity-after-preposition strategy ("weather in Paris").
var connectors = map[string]bool{"in": true, "for": true, "at": true}

// fillerWords are leading interrogative scaffolding stripped by the
// passthrough strategy ("what pesticides for tomatoes" -> "pesticides for
// tomatoes"). Only a leading run of these is dropped; once a content word is
// seen the rest of the query is kept.
var fillerWords = map[string]bool{
	"what": true, "what's": true, "whats": true, "which": true,
	"tell": true, "me": true, "about": true, "show": true, "give": true,
	"how": true, "do": true, "does": true, "can": true, "you": true,
	"i": true, "need": true, "want": true, "know": true, "please": true,
	"a": true, "an": true, "the": true, "some": true, "any": true,
	"is": true, "are": true,
}

var integerToken = regexp.MustCompile(`\b\d+\b`)

// Extractor dispatches to the strategy declared by the selected capability's
// descriptor. It holds no mutable state.
type Extractor struct {
	registry *domain.Registry
	logger   *slog.Logger
}

// NewExtractor creates an extractor over the given registry.
func NewExtractor(registry *domain.Registry, logger *slog.Logger) *Extractor {
	return &Extractor{
		registry: registry,
		logger:   logger.With("component", "argument_extractor"),
	}
}

// Extract returns a well-formed argument record for the capability's schema.
// Unknown capabilities resolve to the registry default's schema so the
// function stays total even against a misconfigured caller.
func (e *Extractor) Extract(capability domain.Capability, query string) map[string]interface{} {
	d, ok := e.registry.Lookup(capability)
	if !ok {
		d = e.registry.Default()
		e.logger.Warn("Unknown capability in extraction, using default schema",
			slog.String("capability", capability.String()),
			slog.String("fallback", d.ID.String()))
	}

	var value interface{}
	switch d.Strategy {
	case domain.ExtractEntityAfterPreposition:
		value = EntityAfterPreposition(query, d.Argument.Default)
	case domain.ExtractLeadingInteger:
		value = LeadingInteger(query, d.Argument.Default)
	default:
		value = Passthrough(query, d.Keywords)
	}

	return map[string]interface{}{d.Argument.Name: value}
}

// Passthrough strips trailing punctuation, a leading run of question filler
// words and whole-word occurrences of the capability's own trigger keywords,
// then uses the remainder as the argument. An empty remainder falls back to
// the full original query, so the result is never empty for non-empty input.
func Passthrough(query string, keywords []string) string {
	normalized := keyword.Normalize(query)

	triggers := make(map[string]bool, len(keywords))
	for _, kw := range keywords {
		triggers[kw] = true
	}

	tokens := strings.Fields(normalized)
	var kept []string
	leading := true
	for _, tok := range tokens {
		tok = strings.Trim(tok, "?!.,;:")
		if tok == "" {
			continue
		}
		if leading && fillerWords[tok] {
			continue
		}
		leading = false
		if triggers[tok] {
			continue
		}
		kept = append(kept, tok)
	}

	remainder := strings.Join(kept, " ")
	if remainder == "" {
		return strings.TrimSpace(query)
	}
	return remainder
}

// EntityAfterPreposition scans for a connector word ("in", "for", "at") and
// returns the following token, punctuation-stripped and title-cased. With no
// connector present the named default entity is returned.
func EntityAfterPreposition(query string, fallback interface{}) string {
	words := strings.Fields(query)
	for i, w := range words {
		if connectors[strings.ToLower(w)] && i+1 < len(words) {
			entity := strings.Trim(words[i+1], "?!.,;:")
			if entity != "" {
				return titleCase(entity)
			}
		}
	}
	if s, ok := fallback.(string); ok && s != "" {
		return s
	}
	return DefaultCity
}

// LeadingInteger returns the first integer token of the query, or the named
// default count when none is present.
func LeadingInteger(query string, fallback interface{}) int {
	if m := integerToken.FindString(query); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	switch v := fallback.(type) {
	case int:
		return v
	case float64:
		// YAML/JSON round-trips integers as float64.
		return int(v)
	}
	return DefaultLimit
}

// titleCase uppercases the first rune and lowercases the rest, matching how
// city tokens are canonicalized for the weather provider.
func titleCase(s string) string {
	runes := []rune(strings.ToLower(s))
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
