package vars

import (
	"context"
	"testing"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/dflow"
)

var (
	eax = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 0, Size: 32}
	ebx = arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: 32, Size: 32}
)

type testArch struct{}

func (testArch) BitSize() int64 { return 32 }

func (testArch) IsGlobalMemory(loc arch.MemoryLocation) bool {
	return loc.Domain == arch.MainDomain
}

func TestVariableUnification(t *testing.T) {
	prog := ir.NewProgram()
	b := prog.NewBlock(0x401000)
	eaxW := ir.NewMemoryLocationAccess(eax)
	b.Append(ir.NewAssignment(eaxW, ir.NewIntConst(1, 32)))
	eaxR := ir.NewMemoryLocationAccess(eax)
	ebxW := ir.NewMemoryLocationAccess(ebx)
	b.Append(ir.NewAssignment(ebxW, eaxR))
	b.Append(ir.NewReturn())
	f := ir.NewFunction(b, []*ir.BasicBlock{b})

	hooks := calling.NewHooks(calling.NewConventions(), calling.NewSignatures())
	df := dflow.NewDataflow()
	if err := dflow.NewDataflowAnalyzer(df, testArch{}, f, hooks).Analyze(context.Background()); err != nil {
		t.Fatalf("dataflow analysis failed; %+v", err)
	}
	functions := &ir.Functions{}
	functions.Add(f)
	dataflows := dflow.Dataflows{f: df}

	vs := NewVariables()
	NewVariableAnalyzer(vs, functions, dataflows, testArch{}).Analyze()

	// The eax store and the eax read share a variable.
	if vs.Variable(eaxW) == nil || vs.Variable(eaxW) != vs.Variable(eaxR) {
		t.Error("expected the eax store and read to share a variable")
	}
	// The ebx store has a distinct variable.
	if vs.Variable(ebxW) == nil || vs.Variable(ebxW) == vs.Variable(eaxW) {
		t.Error("expected the ebx store to have its own variable")
	}
	if loc := vs.Variable(eaxW).Loc; loc != eax {
		t.Errorf("expected variable slot %v, got %v", eax, loc)
	}
}
