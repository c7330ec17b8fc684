// Package dflow computes definition-use information, abstract values and
// memory locations for the terms of a function.
package dflow

import (
	"sort"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
)

// Dataflows holds the dataflow results of each function.
type Dataflows map[*ir.Function]*Dataflow

// Value is the abstract value of a term.
type Value struct {
	concrete bool
	value    uint64
}

// NewConcrete returns the abstract value of a known constant.
func NewConcrete(x uint64) Value {
	return Value{concrete: true, value: x}
}

// IsConcrete reports whether the value is a known constant.
func (v Value) IsConcrete() bool {
	return v.concrete
}

// Concrete returns the constant of a concrete value.
func (v Value) Concrete() uint64 {
	return v.value
}

// Chunk pairs a sub-range of a term's memory footprint with the defining
// terms reaching it.
type Chunk struct {
	// Covered sub-range.
	Loc arch.MemoryLocation
	// Defining terms whose effect may be observed in the sub-range.
	Definitions []ir.Term
}

// ReachingDefinitions records, chunk by chunk, the definitions reaching a
// read term.
type ReachingDefinitions struct {
	// Chunks of the term's footprint, in ascending offset order.
	Chunks []Chunk
}

// Empty reports whether no definition reaches the term.
func (rd ReachingDefinitions) Empty() bool {
	return len(rd.Chunks) == 0
}

// Dataflow holds the per-function dataflow results: abstract values, resolved
// memory locations and reaching definitions of terms.
type Dataflow struct {
	values map[ir.Term]Value
	locs   map[ir.Term]arch.MemoryLocation
	defs   map[ir.Term]ReachingDefinitions
}

// NewDataflow returns empty dataflow results.
func NewDataflow() *Dataflow {
	return &Dataflow{
		values: make(map[ir.Term]Value),
		locs:   make(map[ir.Term]arch.MemoryLocation),
		defs:   make(map[ir.Term]ReachingDefinitions),
	}
}

// Value returns the abstract value of the given term; the zero value is not
// concrete.
func (df *Dataflow) Value(term ir.Term) Value {
	return df.values[term]
}

// SetValue records the abstract value of the given term.
func (df *Dataflow) SetValue(term ir.Term, v Value) {
	df.values[term] = v
}

// MemoryLocation returns the resolved memory location of the given term; the
// zero location when unresolved.
func (df *Dataflow) MemoryLocation(term ir.Term) arch.MemoryLocation {
	return df.locs[term]
}

// SetMemoryLocation records the resolved memory location of the given term.
func (df *Dataflow) SetMemoryLocation(term ir.Term, loc arch.MemoryLocation) {
	df.locs[term] = loc
}

// Definitions returns the reaching definitions of the given term.
func (df *Dataflow) Definitions(term ir.Term) ReachingDefinitions {
	return df.defs[term]
}

// SetDefinitions records the reaching definitions of the given term.
func (df *Dataflow) SetDefinitions(term ir.Term, rd ReachingDefinitions) {
	df.defs[term] = rd
}

// Terms returns every term with recorded dataflow results, in ascending
// stamp order.
func (df *Dataflow) Terms() []ir.Term {
	seen := make(map[ir.Term]bool)
	var terms []ir.Term
	add := func(term ir.Term) {
		if !seen[term] {
			seen[term] = true
			terms = append(terms, term)
		}
	}
	for term := range df.values {
		add(term)
	}
	for term := range df.locs {
		add(term)
	}
	for term := range df.defs {
		add(term)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i].ID() < terms[j].ID() })
	return terms
}
