package domain

import "fmt"

// InvocationErrorKind distinguishes the failure modes of the invocation
// stage. Classification and extraction never fail (they resolve ambiguity
// via documented defaults), so these are the only hard failures in the
// pipeline. Each kind is surfaced distinctly rather than collapsed into one
// generic failure.
type InvocationErrorKind string

const (
	// ErrProviderUnavailable means the provider connection could not be
	// established. Not retried; terminal for the current request.
	ErrProviderUnavailable InvocationErrorKind = "provider_unavailable"

	// ErrUnknownCapability means the provider does not recognize the
	// requested tool. This indicates a registry/provider mismatch and is a
	// configuration-level defect.
	ErrUnknownCapability InvocationErrorKind = "unknown_capability"

	// ErrInvalidArguments means the provider rejected the argument record
	// against its own schema. The provider's message is surfaced verbatim.
	ErrInvalidArguments InvocationErrorKind = "invalid_arguments"

	// ErrTimeout means the provider did not respond within the configured
	// interval. The pending request is abandoned; a late response, if any,
	// is discarded.
	ErrTimeout InvocationErrorKind = "timeout"

	// ErrProviderError means the provider executed the tool but reported an
	// internal failure (e.g. an upstream data source was unreachable).
	ErrProviderError InvocationErrorKind = "provider_error"
)

// InvocationError is the typed error returned by the invocation client.
// The orchestrator converts it into a stable user-facing message; it never
// propagates past the pipeline entry point.
type InvocationError struct {
	Kind    InvocationErrorKind
	Message string
	Err     error // optional underlying cause
}

// NewInvocationError builds an InvocationError without an underlying cause.
func NewInvocationError(kind InvocationErrorKind, format string, args ...interface{}) *InvocationError {
	return &InvocationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// UserMessage renders the stable, user-facing form of the failure
// (kind marker plus detail) that the orchestrator returns as the pipeline's
// final response.
func (e *InvocationError) UserMessage() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}
