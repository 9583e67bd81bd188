package usecase

import "github.com/i2y/mcprouter/internal/domain"

// IdentityAssembler is the default response assembler: the final response is
// the raw provider result, unmodified. The Assembler seam exists so
// post-processing (annotation, truncation, localization) can be added later
// without touching stage ordering or the state shape.
type IdentityAssembler struct{}

// NewIdentityAssembler returns the default assembler.
func NewIdentityAssembler() IdentityAssembler { return IdentityAssembler{} }

// Assemble returns the raw result as-is.
func (IdentityAssembler) Assemble(state *domain.PipelineState) string {
	return state.RawResult
}
