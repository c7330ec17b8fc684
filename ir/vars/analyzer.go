package vars

import (
	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/dflow"
)

// VariableAnalyzer unifies terms into variables; a read term shares its
// variable with every definition reaching it, and terms resolved to the same
// storage slot within a function share a variable.
type VariableAnalyzer struct {
	vars      *Variables
	functions *ir.Functions
	dataflows dflow.Dataflows
	arch      arch.Architecture
}

// NewVariableAnalyzer returns a variable analyzer storing its results into
// vars.
func NewVariableAnalyzer(vars *Variables, functions *ir.Functions, dataflows dflow.Dataflows, a arch.Architecture) *VariableAnalyzer {
	return &VariableAnalyzer{vars: vars, functions: functions, dataflows: dataflows, arch: a}
}

// Analyze reconstructs the variables of every function.
func (a *VariableAnalyzer) Analyze() {
	for _, f := range a.functions.Funcs {
		df, ok := a.dataflows[f]
		if !ok {
			continue
		}
		a.analyzeFunction(f, df)
	}
}

// analyzeFunction reconstructs the variables of one function.
func (a *VariableAnalyzer) analyzeFunction(f *ir.Function, df *dflow.Dataflow) {
	terms := df.Terms()
	parent := make(map[ir.Term]ir.Term)
	var find func(term ir.Term) ir.Term
	find = func(term ir.Term) ir.Term {
		p, ok := parent[term]
		if !ok || p == term {
			return term
		}
		root := find(p)
		parent[term] = root
		return root
	}
	union := func(x, y ir.Term) {
		rx, ry := find(x), find(y)
		if rx != ry {
			parent[rx] = ry
		}
	}
	// Same slot, same variable.
	bySlot := make(map[arch.MemoryLocation]ir.Term)
	for _, term := range terms {
		loc := df.MemoryLocation(term)
		if !loc.Valid() {
			continue
		}
		if first, ok := bySlot[loc]; ok {
			union(term, first)
		} else {
			bySlot[loc] = term
		}
	}
	// A read shares its variable with every reaching definition.
	for _, term := range terms {
		for _, chunk := range df.Definitions(term).Chunks {
			for _, def := range chunk.Definitions {
				union(term, def)
			}
		}
	}
	// Materialize one variable per equivalence class.
	byRoot := make(map[ir.Term]*Variable)
	for _, term := range terms {
		root := find(term)
		v, ok := byRoot[root]
		if !ok {
			v = a.vars.newVariable(a.classLoc(df, terms, parent, root))
			byRoot[root] = v
		}
		a.vars.assign(term, v)
	}
}

// classLoc returns the storage slot of an equivalence class; the widest
// resolved location of its members.
func (a *VariableAnalyzer) classLoc(df *dflow.Dataflow, terms []ir.Term, parent map[ir.Term]ir.Term, root ir.Term) arch.MemoryLocation {
	var widest arch.MemoryLocation
	for _, term := range terms {
		r := term
		for {
			p, ok := parent[r]
			if !ok || p == r {
				break
			}
			r = p
		}
		if r != root {
			continue
		}
		loc := df.MemoryLocation(term)
		if loc.Valid() && loc.Size > widest.Size {
			widest = loc
		}
	}
	return widest
}
