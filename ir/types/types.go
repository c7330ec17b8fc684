// Package types assigns reconstructed types to the variables of a program.
package types

import (
	"fmt"

	"github.com/mewmew/rev/ir"
)

// Type is a reconstructed type.
type Type struct {
	// Size of the type in bits.
	Size int64
	// Pointer reports whether values of the type are used as addresses.
	Pointer bool
}

// String returns the C spelling of the type.
func (t *Type) String() string {
	if t.Pointer {
		return "void *"
	}
	switch t.Size {
	case 8:
		return "char"
	case 16:
		return "short"
	case 32:
		return "int"
	case 64:
		return "long long"
	}
	return fmt.Sprintf("int%d_t", t.Size)
}

// Types maps each term to its reconstructed type.
type Types struct {
	types map[ir.Term]*Type
}

// NewTypes returns an empty type store.
func NewTypes() *Types {
	return &Types{types: make(map[ir.Term]*Type)}
}

// Type returns the reconstructed type of the given term, or nil.
func (ts *Types) Type(term ir.Term) *Type {
	return ts.types[term]
}

// SetType records the reconstructed type of the given term.
func (ts *Types) SetType(term ir.Term, t *Type) {
	ts.types[term] = t
}
