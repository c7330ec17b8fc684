package calling

import (
	"bytes"
	"fmt"

	"github.com/mewmew/rev/arch"
)

// Signature is the reconstructed signature of a callee; the ordered argument
// slots and the optional return value slot.
type Signature struct {
	// Argument slots in passing order.
	Arguments []arch.MemoryLocation
	// Return value slot; the zero location when the callee returns nothing.
	ReturnValue arch.MemoryLocation
}

// HasReturnValue reports whether the signature has a return value.
func (sig *Signature) HasReturnValue() bool {
	return sig.ReturnValue.Valid()
}

// String returns the string representation of the signature.
func (sig *Signature) String() string {
	buf := &bytes.Buffer{}
	if sig.HasReturnValue() {
		fmt.Fprintf(buf, "%v ", sig.ReturnValue)
	} else {
		buf.WriteString("void ")
	}
	buf.WriteString("(")
	for i, argLoc := range sig.Arguments {
		if i != 0 {
			buf.WriteString(", ")
		}
		fmt.Fprintf(buf, "%v", argLoc)
	}
	buf.WriteString(")")
	return buf.String()
}

// Signatures stores the reconstructed signature of each callee. The store is
// shared with Hooks and refined in place; it must not be replaced once hooks
// are built over it.
type Signatures struct {
	signatures map[CalleeID]*Signature
}

// NewSignatures returns an empty signature store.
func NewSignatures() *Signatures {
	return &Signatures{signatures: make(map[CalleeID]*Signature)}
}

// Signature returns the reconstructed signature of the given callee, or nil.
func (ss *Signatures) Signature(id CalleeID) *Signature {
	return ss.signatures[id]
}

// SetSignature records the reconstructed signature of the given callee.
func (ss *Signatures) SetSignature(id CalleeID, sig *Signature) {
	ss.signatures[id] = sig
}

// Merge copies every signature of other into ss, overwriting previous
// reconstructions; refinement of the store hooks were built over.
func (ss *Signatures) Merge(other *Signatures) {
	for id, sig := range other.signatures {
		ss.signatures[id] = sig
	}
}
