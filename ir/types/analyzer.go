package types

import (
	"context"

	"github.com/pkg/errors"

	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/dflow"
	"github.com/mewmew/rev/ir/liveness"
	"github.com/mewmew/rev/ir/vars"
)

// TypeAnalyzer assigns a reconstructed type to every term with a variable;
// variables sized by their storage slot, promoted to pointers when their
// values address memory.
type TypeAnalyzer struct {
	types      *Types
	functions  *ir.Functions
	dataflows  dflow.Dataflows
	variables  *vars.Variables
	livenesses liveness.Livenesses
	hooks      *calling.Hooks
	signatures *calling.Signatures
}

// NewTypeAnalyzer returns a type analyzer storing its results into types.
func NewTypeAnalyzer(types *Types, functions *ir.Functions, dataflows dflow.Dataflows, variables *vars.Variables, livenesses liveness.Livenesses, hooks *calling.Hooks, signatures *calling.Signatures) *TypeAnalyzer {
	return &TypeAnalyzer{
		types:      types,
		functions:  functions,
		dataflows:  dataflows,
		variables:  variables,
		livenesses: livenesses,
		hooks:      hooks,
		signatures: signatures,
	}
}

// Analyze assigns types, polling cancellation between functions.
func (a *TypeAnalyzer) Analyze(ctx context.Context) error {
	for _, f := range a.functions.Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		df, ok := a.dataflows[f]
		if !ok {
			continue
		}
		a.analyzeFunction(df)
	}
	return nil
}

// analyzeFunction assigns types to the terms of one function.
func (a *TypeAnalyzer) analyzeFunction(df *dflow.Dataflow) {
	terms := df.Terms()
	// Variables whose values address memory become pointers.
	pointers := make(map[*vars.Variable]bool)
	for _, term := range terms {
		deref, ok := term.(*ir.Dereference)
		if !ok {
			continue
		}
		if v := a.variables.Variable(deref.Addr); v != nil {
			pointers[v] = true
		}
	}
	byVar := make(map[*vars.Variable]*Type)
	for _, term := range terms {
		v := a.variables.Variable(term)
		if v == nil {
			continue
		}
		t, ok := byVar[v]
		if !ok {
			size := v.Loc.Size
			if size == 0 {
				size = term.Size()
			}
			t = &Type{Size: size, Pointer: pointers[v]}
			byVar[v] = t
		}
		a.types.SetType(term, t)
	}
}
