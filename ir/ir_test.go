package ir

import (
	"testing"

	"github.com/mewmew/rev/arch"
)

// eax is the storage slot used as a scratch register throughout the tests.
var eax = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 0, Size: 32}

func TestAssignmentDirections(t *testing.T) {
	left := NewMemoryLocationAccess(eax)
	right := NewIntConst(1, 32)
	stmt := NewAssignment(left, right)
	if !left.IsWrite() || left.IsRead() {
		t.Error("expected the destination of an assignment to be a write term")
	}
	if !right.IsRead() || right.IsWrite() {
		t.Error("expected the stored value of an assignment to be a read term")
	}
	if left.Source() != right {
		t.Error("expected the source of the destination to be the stored value")
	}
	if left.Statement() != stmt || right.Statement() != stmt {
		t.Error("expected both terms to reference the assignment")
	}
}

func TestCompoundTermAttachment(t *testing.T) {
	addr := NewBinaryOperator(BinaryAdd, NewMemoryLocationAccess(eax), NewIntConst(8, 32), 32)
	store := NewDereference(addr, 32)
	value := NewIntConst(7, 32)
	stmt := NewAssignment(store, value)
	if addr.Statement() != stmt {
		t.Error("expected the address sub-term to reference the assignment")
	}
	if addr.Left.Statement() != stmt || addr.Right.Statement() != stmt {
		t.Error("expected the operands of the address to reference the assignment")
	}
	if !addr.IsRead() {
		t.Error("expected the address of a store to remain a read term")
	}
}

func TestStampOrder(t *testing.T) {
	a := NewIntConst(1, 32)
	b := NewIntConst(2, 32)
	stmt := NewReturn()
	if !(a.ID() < b.ID() && b.ID() < stmt.ID()) {
		t.Errorf("expected ascending stamps, got %d, %d, %d", a.ID(), b.ID(), stmt.ID())
	}
}

func TestFunctionReturns(t *testing.T) {
	prog := NewProgram()
	entry := prog.NewBlock(0x401000)
	entry.Append(NewAssignment(NewMemoryLocationAccess(eax), NewIntConst(1, 32)))
	entry.Append(NewReturn())
	exit := prog.NewBlock(0x401010)
	exit.Append(NewReturn())
	f := NewFunction(entry, []*BasicBlock{entry, exit})
	if got, want := len(f.Returns()), 2; got != want {
		t.Errorf("expected %d return statements, got %d", want, got)
	}
	addr, ok := f.Address()
	if !ok || addr != 0x401000 {
		t.Errorf("expected entry address 0x00401000, got %v (ok %v)", addr, ok)
	}
}

// stubHooks materializes a fixed extra term per call site.
type stubHooks struct {
	callTerms map[*Call][]Term
	retTerms  map[*Return][]Term
}

func (h *stubHooks) CallSiteTerms(call *Call) []Term {
	return h.callTerms[call]
}

func (h *stubHooks) ReturnSiteTerms(f *Function, ret *Return) []Term {
	return h.retTerms[ret]
}

func TestCensus(t *testing.T) {
	prog := NewProgram()
	entry := prog.NewBlock(0x401000)
	cond := NewBinaryOperator(BinaryEqual, NewMemoryLocationAccess(eax), NewIntConst(0, 32), 1)
	next := prog.NewBlock(0x401010)
	entry.Append(NewCondJump(cond, JumpTarget{Block: next}, JumpTarget{Block: next}))
	call := NewCall(NewIntConst(0x402000, 32))
	next.Append(call)
	ret := NewReturn()
	next.Append(ret)
	f := NewFunction(entry, []*BasicBlock{entry, next})

	argTerm := NewMemoryLocationAccess(eax)
	retTerm := NewMemoryLocationAccess(eax)
	hooks := &stubHooks{
		callTerms: map[*Call][]Term{call: {argTerm}},
		retTerms:  map[*Return][]Term{ret: {retTerm}},
	}
	census := NewCensus(hooks)
	census.Visit(f)

	if got, want := len(census.Statements()), 3; got != want {
		t.Errorf("expected %d statements, got %d", want, got)
	}
	for _, term := range []Term{cond, cond.Left, cond.Right, call.Target, argTerm, retTerm} {
		if !census.HasTerm(term) {
			t.Errorf("expected census to collect term %v", term)
		}
	}
	// A second visit must not duplicate.
	census.Visit(f)
	if got, want := len(census.Statements()), 3; got != want {
		t.Errorf("expected %d statements after revisit, got %d", want, got)
	}
}
