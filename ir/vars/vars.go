// Package vars unifies the terms of a program into reconstructed variables.
package vars

import (
	"fmt"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
)

// Variable is a reconstructed variable; the set of terms accessing one
// storage slot.
type Variable struct {
	// Stable index of the variable within the run.
	Index int
	// Storage slot of the variable.
	Loc arch.MemoryLocation
}

// Name returns the printed name of the variable.
func (v *Variable) Name() string {
	switch v.Loc.Domain {
	case arch.StackDomain:
		return fmt.Sprintf("loc_%d", v.Index)
	case arch.MainDomain:
		return fmt.Sprintf("g%d", v.Index)
	}
	return fmt.Sprintf("v%d", v.Index)
}

// Variables maps each term to its reconstructed variable.
type Variables struct {
	vars map[ir.Term]*Variable
	list []*Variable
}

// NewVariables returns an empty variable store.
func NewVariables() *Variables {
	return &Variables{vars: make(map[ir.Term]*Variable)}
}

// Variable returns the variable of the given term, or nil.
func (vs *Variables) Variable(term ir.Term) *Variable {
	return vs.vars[term]
}

// List returns the reconstructed variables in index order.
func (vs *Variables) List() []*Variable {
	return vs.list
}

// assign maps the given term to the given variable.
func (vs *Variables) assign(term ir.Term, v *Variable) {
	vs.vars[term] = v
}

// newVariable appends a new variable of the given storage slot.
func (vs *Variables) newVariable(loc arch.MemoryLocation) *Variable {
	v := &Variable{Index: len(vs.list), Loc: loc}
	vs.list = append(vs.list, v)
	return v
}
