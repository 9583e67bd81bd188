package usecase

import (
	"context"

	"github.com/i2y/mcprouter/internal/domain"
)

// IntentClassifier maps free-text query input to one of the registered
// capabilities. It is total: it always returns a valid capability, falling
// back to the registry's default when no keyword matches.
type IntentClassifier interface {
	Classify(query string) domain.Decision
}

// ArgumentExtractor maps (capability, original query) to the capability's
// argument record. It is total: absence of an extractable value yields the
// schema-defined default, never an error.
type ArgumentExtractor interface {
	Extract(capability domain.Capability, query string) map[string]interface{}
}

// ToolInvoker executes one capability invocation against the provider over
// the invocation protocol. On failure it returns a *domain.InvocationError
// with a distinct kind; on success the provider's textual result unmodified.
// Close tears down the provider connection on process shutdown.
type ToolInvoker interface {
	Invoke(ctx context.Context, capability domain.Capability, args map[string]interface{}) (string, error)
	Close() error
}

// Assembler performs the final pass over a completed pipeline state. It must
// be a pure function of the state with no side effects, so the whole pipeline
// stays testable via state snapshots.
type Assembler interface {
	Assemble(state *domain.PipelineState) string
}
