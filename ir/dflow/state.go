package dflow

import (
	"sort"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
)

// defEntry records the terms currently defining a storage slot.
type defEntry struct {
	loc   arch.MemoryLocation
	terms []ir.Term
}

// defState is the set of definitions reaching a program point.
type defState struct {
	entries []defEntry
}

// clone returns a copy of the state.
func (s *defState) clone() *defState {
	c := &defState{entries: make([]defEntry, len(s.entries))}
	for i, e := range s.entries {
		c.entries[i] = defEntry{loc: e.loc, terms: append([]ir.Term(nil), e.terms...)}
	}
	return c
}

// kill removes the parts of existing definitions covered by loc; partially
// covered definitions keep their uncovered remainder.
func (s *defState) kill(loc arch.MemoryLocation) {
	var entries []defEntry
	for _, e := range s.entries {
		if !e.loc.Overlaps(loc) {
			entries = append(entries, e)
			continue
		}
		if e.loc.Offset < loc.Offset {
			rem := arch.MemoryLocation{Domain: e.loc.Domain, Offset: e.loc.Offset, Size: loc.Offset - e.loc.Offset}
			entries = append(entries, defEntry{loc: rem, terms: e.terms})
		}
		if loc.End() < e.loc.End() {
			rem := arch.MemoryLocation{Domain: e.loc.Domain, Offset: loc.End(), Size: e.loc.End() - loc.End()}
			entries = append(entries, defEntry{loc: rem, terms: e.terms})
		}
	}
	s.entries = entries
}

// define records term as the sole definition of loc.
func (s *defState) define(loc arch.MemoryLocation, term ir.Term) {
	s.kill(loc)
	s.entries = append(s.entries, defEntry{loc: loc, terms: []ir.Term{term}})
}

// join merges the definitions of other into s; a definition reaching along
// either path reaches the join point.
func (s *defState) join(other *defState) {
	for _, e := range other.entries {
		s.entries = append(s.entries, defEntry{loc: e.loc, terms: append([]ir.Term(nil), e.terms...)})
	}
	s.normalize()
}

// lookup returns the definitions reaching the sub-ranges of loc.
func (s *defState) lookup(loc arch.MemoryLocation) ReachingDefinitions {
	byLoc := make(map[arch.MemoryLocation][]ir.Term)
	for _, e := range s.entries {
		if !e.loc.Overlaps(loc) {
			continue
		}
		part := intersect(e.loc, loc)
		byLoc[part] = mergeTerms(byLoc[part], e.terms)
	}
	var rd ReachingDefinitions
	for part, terms := range byLoc {
		rd.Chunks = append(rd.Chunks, Chunk{Loc: part, Definitions: terms})
	}
	sort.Slice(rd.Chunks, func(i, j int) bool {
		return less(rd.Chunks[i].Loc, rd.Chunks[j].Loc)
	})
	return rd
}

// normalize merges entries covering the identical slot and orders the state
// canonically so fixed point detection can compare states.
func (s *defState) normalize() {
	byLoc := make(map[arch.MemoryLocation][]ir.Term)
	for _, e := range s.entries {
		byLoc[e.loc] = mergeTerms(byLoc[e.loc], e.terms)
	}
	entries := make([]defEntry, 0, len(byLoc))
	for loc, terms := range byLoc {
		entries = append(entries, defEntry{loc: loc, terms: terms})
	}
	sort.Slice(entries, func(i, j int) bool {
		return less(entries[i].loc, entries[j].loc)
	})
	s.entries = entries
}

// equal reports whether s and other hold the same definitions; both states
// must be normalized.
func (s *defState) equal(other *defState) bool {
	if len(s.entries) != len(other.entries) {
		return false
	}
	for i, e := range s.entries {
		o := other.entries[i]
		if e.loc != o.loc || len(e.terms) != len(o.terms) {
			return false
		}
		for j, term := range e.terms {
			if term != o.terms[j] {
				return false
			}
		}
	}
	return true
}

// ### [ Helper functions ] ####################################################

// intersect returns the common sub-range of two overlapping locations.
func intersect(a, b arch.MemoryLocation) arch.MemoryLocation {
	offset := a.Offset
	if b.Offset > offset {
		offset = b.Offset
	}
	end := a.End()
	if b.End() < end {
		end = b.End()
	}
	return arch.MemoryLocation{Domain: a.Domain, Offset: offset, Size: end - offset}
}

// mergeTerms unions two definition lists, keeping ascending stamp order.
func mergeTerms(a, b []ir.Term) []ir.Term {
	seen := make(map[ir.Term]bool, len(a))
	for _, term := range a {
		seen[term] = true
	}
	for _, term := range b {
		if !seen[term] {
			seen[term] = true
			a = append(a, term)
		}
	}
	sort.Slice(a, func(i, j int) bool { return a[i].ID() < a[j].ID() })
	return a
}

// less orders memory locations by domain, offset and size.
func less(a, b arch.MemoryLocation) bool {
	if a.Domain != b.Domain {
		return a.Domain < b.Domain
	}
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.Size < b.Size
}
