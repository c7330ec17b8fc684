// Package sigrec reconstructs the argument lists and return values of the
// functions of a program from first-pass dataflow results.
package sigrec

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/dflow"
)

// SignatureAnalyzer reconstructs function signatures. A candidate argument
// slot of the assumed convention becomes an argument when the function reads
// it with no prior definition; the return value slot becomes a return value
// when a definition of it reaches some return statement.
type SignatureAnalyzer struct {
	signatures *calling.Signatures
	functions  *ir.Functions
	dataflows  dflow.Dataflows
	hooks      *calling.Hooks
}

// NewSignatureAnalyzer returns a signature analyzer storing its results into
// signatures.
func NewSignatureAnalyzer(signatures *calling.Signatures, functions *ir.Functions, dataflows dflow.Dataflows, hooks *calling.Hooks) *SignatureAnalyzer {
	return &SignatureAnalyzer{
		signatures: signatures,
		functions:  functions,
		dataflows:  dataflows,
		hooks:      hooks,
	}
}

// Analyze reconstructs the signature of every function with a callee
// identity, polling cancellation between functions.
func (a *SignatureAnalyzer) Analyze(ctx context.Context) error {
	for _, f := range a.functions.Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		id, ok := a.hooks.GetCalleeID(f)
		if !ok {
			continue
		}
		df, ok := a.dataflows[f]
		if !ok {
			continue
		}
		conv := a.hooks.Conventions().Convention(id)
		if conv == nil {
			continue
		}
		a.signatures.SetSignature(id, a.reconstruct(f, df, conv))
	}
	return nil
}

// reconstruct reconstructs the signature of one function under its assumed
// convention.
func (a *SignatureAnalyzer) reconstruct(f *ir.Function, df *dflow.Dataflow, conv *calling.Convention) *calling.Signature {
	sig := &calling.Signature{}
	// A candidate slot read before any definition is an argument; arguments
	// form a prefix of the candidate list, so take every candidate up to the
	// last one used.
	used := -1
	for i, argLoc := range conv.Arguments {
		if a.readsUndefined(df, argLoc) {
			used = i
		}
	}
	sig.Arguments = append(sig.Arguments, conv.Arguments[:used+1]...)
	if conv.ReturnValue.Valid() && a.definitionReachesReturn(f, df, conv) {
		sig.ReturnValue = conv.ReturnValue
	}
	return sig
}

// readsUndefined reports whether the function reads the given slot with no
// reaching definition; such a read observes a value the caller passed in.
func (a *SignatureAnalyzer) readsUndefined(df *dflow.Dataflow, loc arch.MemoryLocation) bool {
	for _, term := range df.Terms() {
		if !term.IsRead() {
			continue
		}
		if df.MemoryLocation(term) != loc {
			continue
		}
		rd := df.Definitions(term)
		if rd.Empty() {
			return true
		}
		// Partially covered reads also observe caller state.
		covered := int64(0)
		for _, chunk := range rd.Chunks {
			covered += chunk.Loc.Size
		}
		if covered < loc.Size {
			return true
		}
	}
	return false
}

// definitionReachesReturn reports whether a definition of the convention's
// return slot reaches some return statement of the function.
func (a *SignatureAnalyzer) definitionReachesReturn(f *ir.Function, df *dflow.Dataflow, conv *calling.Convention) bool {
	for _, ret := range f.Returns() {
		hook := a.hooks.GetReturnHook(f, ret)
		term := hook.GetReturnValueTerm(conv.ReturnValue)
		if !df.Definitions(term).Empty() {
			return true
		}
	}
	return false
}
