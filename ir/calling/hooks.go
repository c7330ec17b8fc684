package calling

import (
	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/ir"
)

// Hooks hands out the per-site stubs materializing the terms that represent
// call arguments and return values under the assumed calling conventions.
// Hooks holds references into the Conventions and Signatures stores it was
// built over; refinements mutate the stored contents in place.
type Hooks struct {
	conventions *Conventions
	signatures  *Signatures
	// detector is invoked on first sight of a callee identity; it may record
	// a convention for the callee.
	detector func(CalleeID)
	seen     map[CalleeID]bool

	callHooks   map[*ir.Call]*CallHook
	returnHooks map[returnKey]*ReturnHook
}

// returnKey identifies a return site of a function.
type returnKey struct {
	f   *ir.Function
	ret *ir.Return
}

// NewHooks returns hooks over the given convention and signature stores.
func NewHooks(conventions *Conventions, signatures *Signatures) *Hooks {
	return &Hooks{
		conventions: conventions,
		signatures:  signatures,
		seen:        make(map[CalleeID]bool),
		callHooks:   make(map[*ir.Call]*CallHook),
		returnHooks: make(map[returnKey]*ReturnHook),
	}
}

// Conventions returns the convention store the hooks were built over.
func (h *Hooks) Conventions() *Conventions {
	return h.conventions
}

// Signatures returns the signature store the hooks were built over.
func (h *Hooks) Signatures() *Signatures {
	return h.signatures
}

// SetConventionDetector installs the callback invoked on first sight of a
// callee identity; the callback may mutate the convention store.
func (h *Hooks) SetConventionDetector(detector func(CalleeID)) {
	h.detector = detector
}

// GetCalleeID returns the callee identity of the given function; ok is false
// for functions without an entry address.
func (h *Hooks) GetCalleeID(f *ir.Function) (CalleeID, bool) {
	addr, ok := f.Address()
	if !ok {
		return CalleeID{}, false
	}
	id := CalleeID{Kind: EntryCallee, Addr: addr}
	h.sight(id)
	return id, true
}

// GetCalleeIDOfCall returns the callee identity of the given call site; the
// entry address when the target is constant, the function pointer class of
// the site otherwise.
func (h *Hooks) GetCalleeIDOfCall(call *ir.Call) (CalleeID, bool) {
	var id CalleeID
	if target, ok := call.Target.(*ir.IntConst); ok {
		id = CalleeID{Kind: EntryCallee, Addr: bin.Addr(target.Value)}
	} else {
		id = CalleeID{Kind: SiteCallee, Site: call.ID()}
	}
	h.sight(id)
	return id, true
}

// GetCallHook returns the call hook of the given call site, creating it on
// first use.
func (h *Hooks) GetCallHook(call *ir.Call) *CallHook {
	if hook, ok := h.callHooks[call]; ok {
		return hook
	}
	hook := &CallHook{args: make(map[arch.MemoryLocation]ir.Term)}
	h.callHooks[call] = hook
	return hook
}

// GetReturnHook returns the return hook of the given return site, creating
// it on first use.
func (h *Hooks) GetReturnHook(f *ir.Function, ret *ir.Return) *ReturnHook {
	key := returnKey{f: f, ret: ret}
	if hook, ok := h.returnHooks[key]; ok {
		return hook
	}
	hook := &ReturnHook{values: make(map[arch.MemoryLocation]ir.Term)}
	h.returnHooks[key] = hook
	return hook
}

// CallSiteTerms returns the terms materialized at the given call site; part
// of the ir.HookTerms census interface.
func (h *Hooks) CallSiteTerms(call *ir.Call) []ir.Term {
	hook, ok := h.callHooks[call]
	if !ok {
		return nil
	}
	return hook.terms
}

// ReturnSiteTerms returns the terms materialized at the given return site;
// part of the ir.HookTerms census interface.
func (h *Hooks) ReturnSiteTerms(f *ir.Function, ret *ir.Return) []ir.Term {
	hook, ok := h.returnHooks[returnKey{f: f, ret: ret}]
	if !ok {
		return nil
	}
	return hook.terms
}

// sight runs the convention detector on first sight of a callee identity.
func (h *Hooks) sight(id CalleeID) {
	if h.seen[id] {
		return
	}
	h.seen[id] = true
	if h.detector != nil {
		h.detector(id)
	}
}

// CallHook materializes the terms representing the argument values flowing
// into one call site.
type CallHook struct {
	args  map[arch.MemoryLocation]ir.Term
	terms []ir.Term
}

// GetArgumentTerm returns the term representing the argument passed in the
// given slot at this call site; the same term on every lookup.
func (hook *CallHook) GetArgumentTerm(loc arch.MemoryLocation) ir.Term {
	if term, ok := hook.args[loc]; ok {
		return term
	}
	term := ir.NewMemoryLocationAccess(loc)
	hook.args[loc] = term
	hook.terms = append(hook.terms, term)
	return term
}

// ReturnHook materializes the terms representing the value returned at one
// return statement.
type ReturnHook struct {
	values map[arch.MemoryLocation]ir.Term
	terms  []ir.Term
}

// GetReturnValueTerm returns the term representing the value returned in the
// given slot at this return statement; the same term on every lookup.
func (hook *ReturnHook) GetReturnValueTerm(loc arch.MemoryLocation) ir.Term {
	if term, ok := hook.values[loc]; ok {
		return term
	}
	term := ir.NewMemoryLocationAccess(loc)
	hook.values[loc] = term
	hook.terms = append(hook.terms, term)
	return term
}
