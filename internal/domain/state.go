package domain

// PipelineState is the single mutable record threaded through the four
// pipeline stages. Exactly one state is created per incoming query; it lives
// for the duration of one run and is never shared between requests, so no
// locking is needed around it.
//
// Fields are write-once along the pipeline: each stage reads what earlier
// stages wrote and writes only its own fields. An empty value means the
// owning stage has not run (or, for RawResult, that invocation failed).
type PipelineState struct {
	// OriginalQuery is the immutable user input, set once at creation.
	OriginalQuery string

	// NormalizedQuery is the lowercased/trimmed derivative, written by the
	// classifier stage and read by the extractor.
	NormalizedQuery string

	// SelectedCapability is written exactly once by the classifier. It is
	// never empty after stage 1 completes: when no keyword matches, the
	// registry's default capability is assigned.
	SelectedCapability Capability

	// InvocationArguments is written exactly once by the extractor. Its
	// schema depends on SelectedCapability.
	InvocationArguments map[string]interface{}

	// RawResult is written by the invocation stage. Empty only if the
	// invocation failed.
	RawResult string

	// FinalResponse is written by the assembler and is the only field
	// exposed outside the pipeline.
	FinalResponse string

	// DecisionTrace is a human-readable note on why a capability was
	// chosen. Diagnostic only; it never affects behavior.
	DecisionTrace string
}

// NewPipelineState creates the per-request state for one run.
func NewPipelineState(query string) *PipelineState {
	return &PipelineState{OriginalQuery: query}
}

// Decision is the classifier stage's output: the selected capability, the
// normalized query it was derived from, and the fixed reasoning note.
type Decision struct {
	Capability Capability
	Normalized string
	Reasoning  string
}
