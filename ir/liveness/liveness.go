// Package liveness marks the terms of a function whose values the program
// observes and propagates liveness backward through the dataflow results.
package liveness

import (
	"github.com/mewmew/rev/ir"
)

// Liveness is the set of live terms of one function. The set is monotonic: a
// term once live stays live.
type Liveness struct {
	live  map[ir.Term]bool
	terms []ir.Term
}

// NewLiveness returns an empty liveness set.
func NewLiveness() *Liveness {
	return &Liveness{live: make(map[ir.Term]bool)}
}

// IsLive reports whether the given term is live.
func (l *Liveness) IsLive(term ir.Term) bool {
	return l.live[term]
}

// MakeLive inserts the given term into the set; idempotent.
func (l *Liveness) MakeLive(term ir.Term) {
	if l.live[term] {
		return
	}
	l.live[term] = true
	l.terms = append(l.terms, term)
}

// Terms returns the live terms in insertion order.
func (l *Liveness) Terms() []ir.Term {
	return l.terms
}

// Len returns the number of live terms.
func (l *Liveness) Len() int {
	return len(l.terms)
}

// Livenesses holds the liveness set of each function.
type Livenesses map[*ir.Function]*Liveness
