// Package calling models calling conventions, reconstructed signatures and
// the per-site hooks that materialize argument and return value terms.
package calling

import (
	"fmt"

	"github.com/mewmew/rev/bin"
)

// CalleeKind discriminates the identities a call target can have.
type CalleeKind uint8

// Callee kinds.
const (
	// InvalidCallee is the zero CalleeID.
	InvalidCallee CalleeKind = iota
	// EntryCallee identifies a callee by the entry address of the called
	// function.
	EntryCallee
	// SiteCallee identifies the class of function pointers called from one
	// call site; used when the target address is not known.
	SiteCallee
)

// CalleeID is the identity of a call target; comparable and usable as a map
// key.
type CalleeID struct {
	// Kind of the identity.
	Kind CalleeKind
	// Entry address of the callee; valid for EntryCallee.
	Addr bin.Addr
	// Stamp of the call statement; valid for SiteCallee.
	Site int64
}

// IsValid reports whether the identity names a callee.
func (id CalleeID) IsValid() bool {
	return id.Kind != InvalidCallee
}

// String returns the string representation of the callee identity.
func (id CalleeID) String() string {
	switch id.Kind {
	case EntryCallee:
		return fmt.Sprintf("callee(%v)", id.Addr)
	case SiteCallee:
		return fmt.Sprintf("callee(site %d)", id.Site)
	}
	return "callee(invalid)"
}
