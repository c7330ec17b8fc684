package calling

import (
	"testing"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
)

var (
	eax = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 0, Size: 32}
	ecx = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 32, Size: 32}
)

func TestGetCalleeIDOfCall(t *testing.T) {
	hooks := NewHooks(NewConventions(), NewSignatures())

	direct := ir.NewCall(ir.NewIntConst(0x401000, 32))
	id, ok := hooks.GetCalleeIDOfCall(direct)
	if !ok || id.Kind != EntryCallee || id.Addr != 0x401000 {
		t.Errorf("expected entry callee at 0x00401000, got %v (ok %v)", id, ok)
	}

	indirect := ir.NewCall(ir.NewMemoryLocationAccess(eax))
	id, ok = hooks.GetCalleeIDOfCall(indirect)
	if !ok || id.Kind != SiteCallee {
		t.Errorf("expected site callee, got %v (ok %v)", id, ok)
	}
	// The same call site yields the same identity.
	id2, _ := hooks.GetCalleeIDOfCall(indirect)
	if id != id2 {
		t.Errorf("expected stable callee identity, got %v and %v", id, id2)
	}
}

func TestGetCalleeIDOfFunction(t *testing.T) {
	hooks := NewHooks(NewConventions(), NewSignatures())
	prog := ir.NewProgram()
	entry := prog.NewBlock(0x401000)
	f := ir.NewFunction(entry, []*ir.BasicBlock{entry})
	id, ok := hooks.GetCalleeID(f)
	if !ok || id.Kind != EntryCallee || id.Addr != 0x401000 {
		t.Errorf("expected entry callee at 0x00401000, got %v (ok %v)", id, ok)
	}

	noentry := ir.NewFunction(ir.NewBasicBlock(), []*ir.BasicBlock{ir.NewBasicBlock()})
	if _, ok := hooks.GetCalleeID(noentry); ok {
		t.Error("expected no callee identity for a function without entry address")
	}
}

func TestConventionDetectorFiresOnce(t *testing.T) {
	conventions := NewConventions()
	hooks := NewHooks(conventions, NewSignatures())
	var calls int
	hooks.SetConventionDetector(func(id CalleeID) {
		calls++
		conventions.SetConvention(id, &Convention{ReturnValue: eax})
	})
	call := ir.NewCall(ir.NewIntConst(0x401000, 32))
	id, _ := hooks.GetCalleeIDOfCall(call)
	hooks.GetCalleeIDOfCall(call)
	hooks.GetCalleeIDOfCall(call)
	if calls != 1 {
		t.Errorf("expected the detector to fire once, fired %d times", calls)
	}
	if conventions.Convention(id) == nil {
		t.Error("expected the detector to record a convention")
	}
}

func TestCallHookTermIdentity(t *testing.T) {
	hooks := NewHooks(NewConventions(), NewSignatures())
	call := ir.NewCall(ir.NewIntConst(0x401000, 32))
	hook := hooks.GetCallHook(call)
	if hook == nil {
		t.Fatal("expected a call hook")
	}
	a := hook.GetArgumentTerm(ecx)
	b := hook.GetArgumentTerm(ecx)
	if a != b {
		t.Error("expected the same argument term on every lookup")
	}
	if hook.GetArgumentTerm(eax) == a {
		t.Error("expected distinct terms for distinct slots")
	}
	if hooks.GetCallHook(call) != hook {
		t.Error("expected the same hook on every lookup")
	}
	terms := hooks.CallSiteTerms(call)
	if len(terms) != 2 {
		t.Errorf("expected 2 materialized terms, got %d", len(terms))
	}
}

func TestReturnHookTermIdentity(t *testing.T) {
	hooks := NewHooks(NewConventions(), NewSignatures())
	prog := ir.NewProgram()
	entry := prog.NewBlock(0x401000)
	ret := ir.NewReturn()
	entry.Append(ret)
	f := ir.NewFunction(entry, []*ir.BasicBlock{entry})
	hook := hooks.GetReturnHook(f, ret)
	if hook == nil {
		t.Fatal("expected a return hook")
	}
	if hook.GetReturnValueTerm(eax) != hook.GetReturnValueTerm(eax) {
		t.Error("expected the same return value term on every lookup")
	}
	if got := hooks.ReturnSiteTerms(f, ret); len(got) != 1 {
		t.Errorf("expected 1 materialized term, got %d", len(got))
	}
}

func TestSignaturesMerge(t *testing.T) {
	ss := NewSignatures()
	id := CalleeID{Kind: EntryCallee, Addr: 0x401000}
	ss.SetSignature(id, &Signature{})
	fresh := NewSignatures()
	want := &Signature{Arguments: []arch.MemoryLocation{ecx}, ReturnValue: eax}
	fresh.SetSignature(id, want)
	ss.Merge(fresh)
	if got := ss.Signature(id); got != want {
		t.Errorf("expected merged signature %v, got %v", want, got)
	}
}
