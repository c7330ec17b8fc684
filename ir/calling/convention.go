package calling

import (
	"github.com/mewmew/rev/arch"
)

// Convention describes the calling convention assumed for a callee; the
// candidate storage slots of arguments and of the return value.
type Convention struct {
	// Candidate argument slots in passing order.
	Arguments []arch.MemoryLocation
	// Return value slot; the zero location when the convention returns
	// nothing.
	ReturnValue arch.MemoryLocation
}

// Conventions stores the calling convention assumed for each callee. The
// store is shared with Hooks and refined in place; it must not be replaced
// once hooks are built over it.
type Conventions struct {
	conventions map[CalleeID]*Convention
}

// NewConventions returns an empty convention store.
func NewConventions() *Conventions {
	return &Conventions{conventions: make(map[CalleeID]*Convention)}
}

// Convention returns the calling convention assumed for the given callee, or
// nil.
func (cs *Conventions) Convention(id CalleeID) *Convention {
	return cs.conventions[id]
}

// SetConvention records the calling convention assumed for the given callee.
func (cs *Conventions) SetConvention(id CalleeID, conv *Convention) {
	cs.conventions[id] = conv
}
