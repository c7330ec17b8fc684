package liveness

import (
	"context"
	"testing"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/cflow"
	"github.com/mewmew/rev/ir/dflow"
)

// Register slots of the tests.
var (
	eax = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 0, Size: 32}
	ebx = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 32, Size: 32}
	ecx = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 64, Size: 32}
)

// testArch treats the flat address space as global memory.
type testArch struct{}

func (testArch) BitSize() int64 { return 32 }

func (testArch) IsGlobalMemory(loc arch.MemoryLocation) bool {
	return loc.Domain == arch.MainDomain
}

// analyzeAll runs dataflow, structural and liveness analysis over the given
// function.
func analyzeAll(t *testing.T, f *ir.Function, hooks *calling.Hooks) (*Liveness, *dflow.Dataflow) {
	t.Helper()
	df := dflow.NewDataflow()
	if err := dflow.NewDataflowAnalyzer(df, testArch{}, f, hooks).Analyze(context.Background()); err != nil {
		t.Fatalf("dataflow analysis failed; %+v", err)
	}
	graph := cflow.NewGraph()
	cflow.GraphBuilder{}.Build(graph, f)
	cflow.NewStructureAnalyzer(graph, df).Analyze()
	l := NewLiveness()
	NewLivenessAnalyzer(l, f, df, testArch{}, graph, hooks, hooks.Signatures()).Analyze()
	return l, df
}

func newHooks() *calling.Hooks {
	return calling.NewHooks(calling.NewConventions(), calling.NewSignatures())
}

func TestLeafAssignmentNotLive(t *testing.T) {
	// x = 1; return; with no signature return value: nothing is observable.
	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	b.Append(ir.NewAssignment(ir.NewMemoryLocationAccess(eax), ir.NewIntConst(1, 32)))
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, _ := analyzeAll(t, f, newHooks())

	if l.Len() != 0 {
		t.Errorf("expected empty liveness, got %d live terms: %v", l.Len(), l.Terms())
	}
}

func TestGlobalStoreLive(t *testing.T) {
	// *global_addr = 1: the write and the stored constant are live.
	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	store := ir.NewDereference(ir.NewIntConst(0x500000, 32), 32)
	one := ir.NewIntConst(1, 32)
	b.Append(ir.NewAssignment(store, one))
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, df := analyzeAll(t, f, newHooks())

	if loc := df.MemoryLocation(store); !(testArch{}).IsGlobalMemory(loc) {
		t.Fatalf("expected the store to resolve to global memory, got %v", loc)
	}
	if !l.IsLive(store) {
		t.Error("expected the global store to be live")
	}
	if !l.IsLive(one) {
		t.Error("expected the stored constant to be live")
	}
}

func TestUnresolvedPointerStoreLive(t *testing.T) {
	// *p = y with p unresolved: the write, y and p are live.
	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	p := ir.NewMemoryLocationAccess(ecx)
	store := ir.NewDereference(p, 32)
	y := ir.NewMemoryLocationAccess(ebx)
	b.Append(ir.NewAssignment(store, y))
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, df := analyzeAll(t, f, newHooks())

	if df.MemoryLocation(store).Valid() {
		t.Fatal("expected the store to stay unresolved")
	}
	for _, term := range []ir.Term{store, y, p} {
		if !l.IsLive(term) {
			t.Errorf("expected %v to be live", term)
		}
	}
}

func TestCallWithSignature(t *testing.T) {
	// The call target and the argument terms of the signature are live;
	// their reaching definitions become live transitively.
	conventions := calling.NewConventions()
	signatures := calling.NewSignatures()
	hooks := calling.NewHooks(conventions, signatures)
	callee := calling.CalleeID{Kind: calling.EntryCallee, Addr: 0x402000}
	signatures.SetSignature(callee, &calling.Signature{Arguments: []arch.MemoryLocation{ecx, ebx}})

	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	ecxW := ir.NewMemoryLocationAccess(ecx)
	five := ir.NewIntConst(5, 32)
	b.Append(ir.NewAssignment(ecxW, five))
	ebxW := ir.NewMemoryLocationAccess(ebx)
	b.Append(ir.NewAssignment(ebxW, ir.NewIntConst(6, 32)))
	call := ir.NewCall(ir.NewIntConst(0x402000, 32))
	b.Append(call)
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, _ := analyzeAll(t, f, hooks)

	if !l.IsLive(call.Target) {
		t.Error("expected the call target to be live")
	}
	hook := hooks.GetCallHook(call)
	for _, argLoc := range []arch.MemoryLocation{ecx, ebx} {
		if !l.IsLive(hook.GetArgumentTerm(argLoc)) {
			t.Errorf("expected the argument term of %v to be live", argLoc)
		}
	}
	for _, term := range []ir.Term{ecxW, ebxW, five} {
		if !l.IsLive(term) {
			t.Errorf("expected %v to be live transitively", term)
		}
	}
}

func TestCallWithoutSignature(t *testing.T) {
	// Missing optional metadata degrades output; only the target is live.
	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	ecxW := ir.NewMemoryLocationAccess(ecx)
	b.Append(ir.NewAssignment(ecxW, ir.NewIntConst(5, 32)))
	call := ir.NewCall(ir.NewIntConst(0x402000, 32))
	b.Append(call)
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, _ := analyzeAll(t, f, newHooks())

	if !l.IsLive(call.Target) {
		t.Error("expected the call target to be live")
	}
	if l.IsLive(ecxW) {
		t.Error("expected the ecx store not to be live without a signature")
	}
}

func TestReturnValueSeeding(t *testing.T) {
	// eax = 1; return; with a signature return value: the chain from the
	// return value term to the constant is live.
	conventions := calling.NewConventions()
	signatures := calling.NewSignatures()
	hooks := calling.NewHooks(conventions, signatures)
	self := calling.CalleeID{Kind: calling.EntryCallee, Addr: 0x401000}
	signatures.SetSignature(self, &calling.Signature{ReturnValue: eax})

	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	eaxW := ir.NewMemoryLocationAccess(eax)
	one := ir.NewIntConst(1, 32)
	b.Append(ir.NewAssignment(eaxW, one))
	ret := ir.NewReturn()
	b.Append(ret)
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	l, _ := analyzeAll(t, f, hooks)

	retTerm := hooks.GetReturnHook(f, ret).GetReturnValueTerm(eax)
	for _, term := range []ir.Term{retTerm, eaxW, one} {
		if !l.IsLive(term) {
			t.Errorf("expected %v to be live", term)
		}
	}
}

// jumpTableFunc builds the canonical jump table pattern.
func jumpTableFunc() (f *ir.Function, cond *ir.BinaryOperator) {
	prog := ir.NewProgram()
	check := prog.NewBlock(0x401000)
	table := prog.NewBlock(0x401010)
	exit := prog.NewBlock(0x401020)

	cond = ir.NewBinaryOperator(ir.BinaryUnsignedLessOrEqual, ir.NewMemoryLocationAccess(ecx), ir.NewIntConst(4, 32), 1)
	check.Append(ir.NewCondJump(cond, ir.JumpTarget{Block: table}, ir.JumpTarget{Block: exit}))

	index := ir.NewBinaryOperator(ir.BinaryMul, ir.NewMemoryLocationAccess(ecx), ir.NewIntConst(4, 32), 32)
	addr := ir.NewBinaryOperator(ir.BinaryAdd, ir.NewIntConst(0x500000, 32), index, 32)
	table.Append(ir.NewJump(ir.JumpTarget{Address: ir.NewDereference(addr, 32)}))

	exit.Append(ir.NewReturn())

	return ir.NewFunction(check, []*ir.BasicBlock{check, table, exit}), cond
}

func TestSwitchBoundsCheckJumpDead(t *testing.T) {
	// The bounds check jump is subsumed by the switch; its condition does
	// not seed liveness.
	f, cond := jumpTableFunc()

	l, _ := analyzeAll(t, f, newHooks())

	if l.IsLive(cond) {
		t.Error("expected the bounds check condition not to be live")
	}
	if l.IsLive(cond.Left) {
		t.Error("expected the bounds check index read not to be live")
	}
}

func TestBoundsCheckLiveWithoutSwitch(t *testing.T) {
	// The same shape without the indirect jump keeps the condition live.
	prog := ir.NewProgram()
	check := prog.NewBlock(0x401000)
	then := prog.NewBlock(0x401010)
	exit := prog.NewBlock(0x401020)
	cond := ir.NewBinaryOperator(ir.BinaryUnsignedLessOrEqual, ir.NewMemoryLocationAccess(ecx), ir.NewIntConst(4, 32), 1)
	check.Append(ir.NewCondJump(cond, ir.JumpTarget{Block: then}, ir.JumpTarget{Block: exit}))
	then.Append(ir.NewJump(ir.JumpTarget{Block: exit}))
	exit.Append(ir.NewReturn())
	f := ir.NewFunction(check, []*ir.BasicBlock{check, then, exit})

	l, _ := analyzeAll(t, f, newHooks())

	if !l.IsLive(cond) {
		t.Error("expected the jump condition to be live")
	}
	if !l.IsLive(cond.Left) || !l.IsLive(cond.Right) {
		t.Error("expected both operands of the live comparison to be live")
	}
}

func TestChoicePropagation(t *testing.T) {
	preferred := ir.NewMemoryLocationAccess(eax)
	fallback := ir.NewMemoryLocationAccess(ebx)
	choice := ir.NewChoice(preferred, fallback)

	// Preferred wins when it has a reaching definition.
	df := dflow.NewDataflow()
	def := ir.NewMemoryLocationAccess(eax)
	df.SetDefinitions(preferred, dflow.ReachingDefinitions{
		Chunks: []dflow.Chunk{{Loc: eax, Definitions: []ir.Term{def}}},
	})
	l := NewLiveness()
	a := NewLivenessAnalyzer(l, nil, df, testArch{}, cflow.NewGraph(), newHooks(), calling.NewSignatures())
	a.makeLive(choice)
	if !l.IsLive(preferred) || l.IsLive(fallback) {
		t.Error("expected the preferred term to win with a definition present")
	}
	if !l.IsLive(def) {
		t.Error("expected the definition of the preferred term to be live")
	}

	// Fallback wins otherwise.
	choice2 := ir.NewChoice(ir.NewMemoryLocationAccess(eax), ir.NewMemoryLocationAccess(ebx))
	l2 := NewLiveness()
	a2 := NewLivenessAnalyzer(l2, nil, dflow.NewDataflow(), testArch{}, cflow.NewGraph(), newHooks(), calling.NewSignatures())
	a2.makeLive(choice2)
	if l2.IsLive(choice2.Preferred) || !l2.IsLive(choice2.Default) {
		t.Error("expected the default term to win with no definition present")
	}
}

func TestPreferConstants(t *testing.T) {
	// With the policy enabled, propagation stops at reads with concrete
	// values; the chain defining the constant stays dead.
	build := func() (*ir.Function, *ir.MemoryLocationAccess, *ir.MemoryLocationAccess) {
		prog := ir.NewProgram()
		b := prog.NewBlock(0x401000)
		ebxW := ir.NewMemoryLocationAccess(ebx)
		b.Append(ir.NewAssignment(ebxW, ir.NewIntConst(1, 32)))
		ebxR := ir.NewMemoryLocationAccess(ebx)
		b.Append(ir.NewAssignment(ir.NewDereference(ir.NewIntConst(0x500000, 32), 32), ebxR))
		b.Append(ir.NewReturn())
		return ir.NewFunction(b, []*ir.BasicBlock{b}), ebxW, ebxR
	}

	f, ebxW, ebxR := build()
	hooks := newHooks()
	df := dflow.NewDataflow()
	if err := dflow.NewDataflowAnalyzer(df, testArch{}, f, hooks).Analyze(context.Background()); err != nil {
		t.Fatalf("dataflow analysis failed; %+v", err)
	}
	graph := cflow.NewGraph()
	cflow.GraphBuilder{}.Build(graph, f)
	l := NewLiveness()
	a := NewLivenessAnalyzer(l, f, df, testArch{}, graph, hooks, hooks.Signatures())
	a.SetPreferConstants(true)
	a.Analyze()
	if !l.IsLive(ebxR) {
		t.Error("expected the stored read to be live")
	}
	if l.IsLive(ebxW) {
		t.Error("expected propagation to stop at the concrete read")
	}

	// Without the policy the defining store is live.
	f2, ebxW2, _ := build()
	l2, _ := analyzeAll(t, f2, newHooks())
	if !l2.IsLive(ebxW2) {
		t.Error("expected the defining store to be live without the policy")
	}
}

func TestLivenessIdempotence(t *testing.T) {
	f, _ := jumpTableFunc()
	hooks := newHooks()
	df := dflow.NewDataflow()
	if err := dflow.NewDataflowAnalyzer(df, testArch{}, f, hooks).Analyze(context.Background()); err != nil {
		t.Fatalf("dataflow analysis failed; %+v", err)
	}
	graph := cflow.NewGraph()
	cflow.GraphBuilder{}.Build(graph, f)
	cflow.NewStructureAnalyzer(graph, df).Analyze()

	l := NewLiveness()
	a := NewLivenessAnalyzer(l, f, df, testArch{}, graph, hooks, hooks.Signatures())
	a.Analyze()
	n := l.Len()
	first := append([]ir.Term(nil), l.Terms()...)

	// Running the analysis again over the same set must not change it.
	a.Analyze()
	if l.Len() != n {
		t.Errorf("expected %d live terms after re-analysis, got %d", n, l.Len())
	}
	for i, term := range l.Terms() {
		if first[i] != term {
			t.Fatalf("expected a stable liveness set, diverged at %d", i)
		}
	}
}

func TestMakeLiveIdempotent(t *testing.T) {
	l := NewLiveness()
	term := ir.NewIntConst(1, 32)
	l.MakeLive(term)
	l.MakeLive(term)
	if l.Len() != 1 {
		t.Errorf("expected 1 live term, got %d", l.Len())
	}
	if !l.IsLive(term) {
		t.Error("expected the term to be live")
	}
}

func TestOperandClosure(t *testing.T) {
	// For every live operator term, its operands are live.
	f, _ := jumpTableFunc()
	l, df := analyzeAll(t, f, newHooks())
	for _, term := range l.Terms() {
		switch term := term.(type) {
		case *ir.UnaryOperator:
			if !l.IsLive(term.Operand) {
				t.Errorf("expected the operand of live %v to be live", term)
			}
		case *ir.BinaryOperator:
			if !l.IsLive(term.Left) || !l.IsLive(term.Right) {
				t.Errorf("expected both operands of live %v to be live", term)
			}
		case *ir.MemoryLocationAccess:
			if term.IsRead() {
				for _, chunk := range df.Definitions(term).Chunks {
					for _, def := range chunk.Definitions {
						if !l.IsLive(def) {
							t.Errorf("expected reaching definition %v of live %v to be live", def, term)
						}
					}
				}
			}
		}
	}
}
