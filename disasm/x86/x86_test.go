package x86

import (
	"testing"

	"golang.org/x/arch/x86/x86asm"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/bin"
)

func TestDisasm(t *testing.T) {
	// mov eax, 1; ret
	code := []byte{0xB8, 0x01, 0x00, 0x00, 0x00, 0xC3}
	file := &bin.File{
		Sections: []*bin.Section{
			{Name: ".text", Addr: 0x401000, Data: code, Perm: bin.PermR | bin.PermX},
			{Name: ".data", Addr: 0x402000, Data: []byte{0xFF}, Perm: bin.PermR | bin.PermW},
		},
	}
	is, err := Disasm(file)
	if err != nil {
		t.Fatalf("unable to disassemble; %+v", err)
	}
	if got, want := len(is.Insts), 2; got != want {
		t.Fatalf("expected %d instructions, got %d", want, got)
	}
	mov := is.Insts[0]
	if mov.Op != x86asm.MOV || mov.Addr != 0x401000 {
		t.Errorf("expected mov at 0x00401000, got %v", mov)
	}
	ret := is.Insts[1]
	if ret.Op != x86asm.RET || ret.Addr != 0x401005 {
		t.Errorf("expected ret at 0x00401005, got %v", ret)
	}
	if !IsTerm(ret) || IsTerm(mov) {
		t.Error("expected ret and only ret to terminate")
	}
	if is.Lookup(0x401005) != ret {
		t.Error("expected address lookup to find the ret")
	}
}

func TestRegLocation(t *testing.T) {
	eax, ok := RegLocation(x86asm.EAX)
	if !ok {
		t.Fatal("expected a location for eax")
	}
	if eax.Domain != arch.RegisterDomain || eax.Size != 32 {
		t.Errorf("expected a 32-bit register slot, got %v", eax)
	}
	ax, _ := RegLocation(x86asm.AX)
	al, _ := RegLocation(x86asm.AL)
	ah, _ := RegLocation(x86asm.AH)
	if !eax.Covers(ax) || !eax.Covers(al) || !eax.Covers(ah) {
		t.Error("expected the sub-registers of eax to map into its slot")
	}
	if al.Overlaps(ah) {
		t.Error("expected al and ah not to overlap")
	}
	ecx, _ := RegLocation(x86asm.ECX)
	if eax.Overlaps(ecx) {
		t.Error("expected eax and ecx not to overlap")
	}
	if _, ok := RegLocation(x86asm.R8); ok {
		t.Error("expected no location for 64-bit registers")
	}
}

func TestArchGlobalMemory(t *testing.T) {
	a := Arch{}
	if !a.IsGlobalMemory(arch.MemoryLocation{Domain: arch.MainDomain, Offset: 0, Size: 32}) {
		t.Error("expected the address space to be global")
	}
	if a.IsGlobalMemory(EAXLocation()) {
		t.Error("expected registers not to be global")
	}
	if a.IsGlobalMemory(arch.MemoryLocation{Domain: arch.StackDomain, Offset: -32, Size: 32}) {
		t.Error("expected the stack frame not to be global")
	}
}
