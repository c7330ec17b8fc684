package irgen

import (
	"context"
	"testing"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/disasm/x86"
	"github.com/mewmew/rev/ir"
)

// lift disassembles and lifts the given code placed at 0x401000.
func lift(t *testing.T, code []byte) (*bin.Module, *ir.Program) {
	t.Helper()
	file := &bin.File{
		Entry: 0x401000,
		Sections: []*bin.Section{
			{Name: ".text", Addr: 0x401000, Data: code, Perm: bin.PermR | bin.PermX},
		},
	}
	module := bin.NewModule(file, x86.Arch{}, nil)
	insts, err := x86.Disasm(file)
	if err != nil {
		t.Fatalf("unable to disassemble; %+v", err)
	}
	prog := ir.NewProgram()
	if err := NewIRGenerator(module, insts, prog).Generate(context.Background()); err != nil {
		t.Fatalf("unable to lift; %+v", err)
	}
	return module, prog
}

func TestLiftMovRet(t *testing.T) {
	// mov eax, 1; ret
	_, prog := lift(t, []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3})
	block := prog.Block(0x401000)
	if block == nil {
		t.Fatal("expected a block at the entry point")
	}
	stmts := block.Statements()
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	assign, ok := stmts[0].(*ir.Assignment)
	if !ok {
		t.Fatalf("expected an assignment, got %v", stmts[0])
	}
	if _, ok := assign.Left.(*ir.MemoryLocationAccess); !ok {
		t.Errorf("expected a register store, got %v", assign.Left)
	}
	c, ok := assign.Right.(*ir.IntConst)
	if !ok || c.Value != 1 {
		t.Errorf("expected the constant 1, got %v", assign.Right)
	}
	if _, ok := stmts[1].(*ir.Return); !ok {
		t.Errorf("expected a return, got %v", stmts[1])
	}
}

func TestLiftCall(t *testing.T) {
	// call 0x401007; ret; xor eax, eax; ret
	code := []byte{
		0xE8, 0x02, 0x00, 0x00, 0x00, // 0x401000: call 0x401007
		0xC3,                   // 0x401005: ret
		0x90,                   // 0x401006: nop
		0x31, 0xC0,             // 0x401007: xor eax, eax
		0xC3,                   // 0x401009: ret
	}
	_, prog := lift(t, code)
	entry := prog.Block(0x401000)
	if entry == nil {
		t.Fatal("expected a block at the entry point")
	}
	call, ok := entry.Statements()[0].(*ir.Call)
	if !ok {
		t.Fatalf("expected a call, got %v", entry.Statements()[0])
	}
	target, ok := call.Target.(*ir.IntConst)
	if !ok || target.Value != 0x401007 {
		t.Errorf("expected the call target 0x00401007, got %v", call.Target)
	}
	if prog.Block(0x401007) == nil {
		t.Error("expected a block at the call target")
	}
}

func TestLiftCondJump(t *testing.T) {
	// cmp ecx, 4; jbe 0x401008; ret; ret
	code := []byte{
		0x83, 0xF9, 0x04, // 0x401000: cmp ecx, 4
		0x76, 0x03,       // 0x401003: jbe 0x401008
		0xC3,             // 0x401005: ret
		0x90,             // 0x401006: nop
		0x90,             // 0x401007: nop
		0xC3,             // 0x401008: ret
	}
	_, prog := lift(t, code)
	entry := prog.Block(0x401000)
	if entry == nil {
		t.Fatal("expected a block at the entry point")
	}
	jump := entry.Jump()
	if jump == nil || !jump.IsConditional() {
		t.Fatal("expected the block to terminate in a conditional jump")
	}
	// The condition rebuilds the comparison.
	cond, ok := jump.Condition.(*ir.BinaryOperator)
	if !ok || cond.Op != ir.BinaryUnsignedLessOrEqual {
		t.Errorf("expected an unsigned comparison, got %v", jump.Condition)
	}
	if jump.ThenTarget.Block != prog.Block(0x401008) {
		t.Errorf("expected the then target to resolve to 0x00401008")
	}
	if jump.ElseTarget.Block != prog.Block(0x401005) {
		t.Errorf("expected the else target to fall through to 0x00401005")
	}
}

func TestMakeFunctions(t *testing.T) {
	// call 0x401007; ret; xor eax, eax; ret
	code := []byte{
		0xE8, 0x02, 0x00, 0x00, 0x00,
		0xC3,
		0x90,
		0x31, 0xC0,
		0xC3,
	}
	module, prog := lift(t, code)
	functions := &ir.Functions{}
	FunctionsGenerator{}.MakeFunctions(module, prog, functions)
	if got, want := len(functions.Funcs), 2; got != want {
		t.Fatalf("expected %d functions, got %d", want, got)
	}
	addrs := make(map[bin.Addr]bool)
	for _, f := range functions.Funcs {
		addr, ok := f.Address()
		if !ok {
			t.Fatal("expected every function to have an entry address")
		}
		addrs[addr] = true
	}
	if !addrs[0x401000] || !addrs[0x401007] {
		t.Errorf("expected functions at 0x00401000 and 0x00401007, got %v", addrs)
	}
}
