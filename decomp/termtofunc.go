package decomp

import (
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
)

// TermToFunction maps every term of the program to the function containing
// it.
type TermToFunction struct {
	funcs map[ir.Term]*ir.Function
}

// NewTermToFunction builds the mapping by a census of every function,
// including hook-materialized terms.
func NewTermToFunction(functions *ir.Functions, hooks *calling.Hooks) *TermToFunction {
	ttf := &TermToFunction{funcs: make(map[ir.Term]*ir.Function)}
	for _, f := range functions.Funcs {
		census := ir.NewCensus(hooks)
		census.Visit(f)
		for _, term := range census.Terms() {
			ttf.funcs[term] = f
		}
	}
	return ttf
}

// Function returns the function containing the given term, or nil.
func (ttf *TermToFunction) Function(term ir.Term) *ir.Function {
	return ttf.funcs[term]
}
