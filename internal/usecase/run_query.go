package usecase

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/i2y/mcprouter/internal/domain"
)

// RunQueryUseCase owns the per-request pipeline state and sequences the four
// stages: classify, extract, invoke, assemble. It is the sole entry point of
// the routing core; the hosting transport maps one inbound request to exactly
// one Execute call.
//
// Execute is safe for concurrent callers: all mutable state lives in the
// PipelineState it creates per call, and the shared ToolInvoker serializes
// or correlates its own connection use.
type RunQueryUseCase struct {
	classifier IntentClassifier
	extractor  ArgumentExtractor
	invoker    ToolInvoker
	assembler  Assembler
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewRunQueryUseCase wires the four stages together.
func NewRunQueryUseCase(
	classifier IntentClassifier,
	extractor ArgumentExtractor,
	invoker ToolInvoker,
	assembler Assembler,
	logger *slog.Logger,
) *RunQueryUseCase {
	return &RunQueryUseCase{
		classifier: classifier,
		extractor:  extractor,
		invoker:    invoker,
		assembler:  assembler,
		logger:     logger.With("usecase", "RunQuery"),
		tracer:     otel.Tracer("mcprouter/usecase"),
	}
}

// Execute runs one query through the pipeline and always returns a string:
// the assembled provider result on success, or the stable user-facing
// rendering of the invocation failure. No stage is skipped or reordered, no
// retries, no backtracking to reclassify. Faults never propagate past this
// boundary.
func (uc *RunQueryUseCase) Execute(ctx context.Context, query string) string {
	ctx, span := uc.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	state := domain.NewPipelineState(query)
	log := uc.logger

	// Stage 1: classify. Total; assigns the default capability when no
	// keyword matches.
	_, classifySpan := uc.tracer.Start(ctx, "pipeline.classify")
	decision := uc.classifier.Classify(state.OriginalQuery)
	classifySpan.End()
	state.NormalizedQuery = decision.Normalized
	state.SelectedCapability = decision.Capability
	state.DecisionTrace = decision.Reasoning
	span.SetAttributes(attribute.String("pipeline.capability", decision.Capability.String()))
	log = log.With(slog.String("capability", decision.Capability.String()))
	log.Info("Capability selected", slog.String("reasoning", decision.Reasoning))

	// Stage 2: extract. Total; missing values resolve to schema defaults.
	_, extractSpan := uc.tracer.Start(ctx, "pipeline.extract")
	state.InvocationArguments = uc.extractor.Extract(state.SelectedCapability, state.OriginalQuery)
	extractSpan.End()
	log.Debug("Arguments extracted", slog.Any("arguments", state.InvocationArguments))

	// Stage 3: invoke. The only stage that can fail; a failure
	// short-circuits assembly of the raw result and becomes the final
	// response itself.
	invokeCtx, invokeSpan := uc.tracer.Start(ctx, "pipeline.invoke")
	result, err := uc.invoker.Invoke(invokeCtx, state.SelectedCapability, state.InvocationArguments)
	invokeSpan.End()
	if err != nil {
		invErr := asInvocationError(err)
		span.SetAttributes(attribute.String("pipeline.error_kind", string(invErr.Kind)))
		if invErr.Kind == domain.ErrUnknownCapability {
			// Registry/provider mismatch is a configuration defect, not a
			// runtime condition.
			log.Error("Provider does not recognize capability", slog.Any("error", err))
		} else {
			log.Warn("Invocation failed", slog.String("kind", string(invErr.Kind)), slog.Any("error", err))
		}
		state.FinalResponse = invErr.UserMessage()
		return state.FinalResponse
	}
	state.RawResult = result

	// Stage 4: assemble.
	_, assembleSpan := uc.tracer.Start(ctx, "pipeline.assemble")
	state.FinalResponse = uc.assembler.Assemble(state)
	assembleSpan.End()
	log.Info("Query completed", slog.Int("response_bytes", len(state.FinalResponse)))
	return state.FinalResponse
}

// Close releases the invoker's provider connection. Called once at process
// shutdown.
func (uc *RunQueryUseCase) Close() error {
	return uc.invoker.Close()
}

// asInvocationError normalizes any invoker error into a typed invocation
// error so the user-facing message always carries a kind marker.
func asInvocationError(err error) *domain.InvocationError {
	var invErr *domain.InvocationError
	if errors.As(err, &invErr) {
		return invErr
	}
	return domain.NewInvocationError(domain.ErrProviderError, "%v", err)
}
