package x86

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir/calling"
)

// FastcallConvention returns the register based calling convention assumed
// for callees of unknown convention; arguments in ecx and edx, return value
// in eax.
func FastcallConvention() *calling.Convention {
	ecx, _ := RegLocation(x86asm.ECX)
	edx, _ := RegLocation(x86asm.EDX)
	return &calling.Convention{
		Arguments:   []arch.MemoryLocation{ecx, edx},
		ReturnValue: EAXLocation(),
	}
}
