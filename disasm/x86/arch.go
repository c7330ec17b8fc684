package x86

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/mewmew/rev/arch"
)

// Arch is the architecture metadata of 32-bit x86.
type Arch struct{}

// BitSize returns the pointer width of the architecture in bits.
func (Arch) BitSize() int64 {
	return bitSize
}

// IsGlobalMemory reports whether a store to loc is observable outside the
// function; on x86 that is any store into the flat address space or the
// heap, registers and the stack frame are function private.
func (Arch) IsGlobalMemory(loc arch.MemoryLocation) bool {
	return loc.Domain == arch.MainDomain || loc.Domain == arch.HeapDomain
}

// Pointer width of 32-bit x86.
const bitSize = 32

// RegLocation returns the memory location of the given register within the
// register file; sub-registers map onto sub-ranges of their full register so
// that overlap is visible to the analyses.
func RegLocation(reg x86asm.Reg) (arch.MemoryLocation, bool) {
	full, ok := fullReg[reg]
	if !ok {
		return arch.MemoryLocation{}, false
	}
	base := int64(regSlot[full]) * bitSize
	switch {
	case reg == full:
		return arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: base, Size: bitSize}, true
	case reg >= x86asm.AX && reg <= x86asm.DI:
		return arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: base, Size: 16}, true
	case reg >= x86asm.AL && reg <= x86asm.BL:
		return arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: base, Size: 8}, true
	case reg >= x86asm.AH && reg <= x86asm.BH:
		return arch.MemoryLocation{Domain: arch.RegisterDomain, Offset: base + 8, Size: 8}, true
	}
	return arch.MemoryLocation{}, false
}

// RegName returns the name of the full register holding the given location,
// or "" when the location does not name a register slot.
func RegName(loc arch.MemoryLocation) string {
	if loc.Domain != arch.RegisterDomain {
		return ""
	}
	slot := int(loc.Offset / bitSize)
	if slot < 0 || slot >= len(slotReg) {
		return ""
	}
	return slotReg[slot].String()
}

// EAXLocation returns the location of eax, the return value register of the
// default calling convention.
func EAXLocation() arch.MemoryLocation {
	loc, _ := RegLocation(x86asm.EAX)
	return loc
}

// ESPLocation returns the location of esp, the stack pointer.
func ESPLocation() arch.MemoryLocation {
	loc, _ := RegLocation(x86asm.ESP)
	return loc
}

// ### [ Helper data ] #########################################################

// slotReg assigns a register-file slot to each full 32-bit register.
var slotReg = [...]x86asm.Reg{
	x86asm.EAX, x86asm.ECX, x86asm.EDX, x86asm.EBX,
	x86asm.ESP, x86asm.EBP, x86asm.ESI, x86asm.EDI,
}

// regSlot is the inverse of slotReg.
var regSlot = map[x86asm.Reg]int{}

// fullReg maps each register to the full 32-bit register containing it.
var fullReg = map[x86asm.Reg]x86asm.Reg{
	x86asm.EAX: x86asm.EAX, x86asm.AX: x86asm.EAX, x86asm.AL: x86asm.EAX, x86asm.AH: x86asm.EAX,
	x86asm.ECX: x86asm.ECX, x86asm.CX: x86asm.ECX, x86asm.CL: x86asm.ECX, x86asm.CH: x86asm.ECX,
	x86asm.EDX: x86asm.EDX, x86asm.DX: x86asm.EDX, x86asm.DL: x86asm.EDX, x86asm.DH: x86asm.EDX,
	x86asm.EBX: x86asm.EBX, x86asm.BX: x86asm.EBX, x86asm.BL: x86asm.EBX, x86asm.BH: x86asm.EBX,
	x86asm.ESP: x86asm.ESP, x86asm.SP: x86asm.ESP,
	x86asm.EBP: x86asm.EBP, x86asm.BP: x86asm.EBP,
	x86asm.ESI: x86asm.ESI, x86asm.SI: x86asm.ESI,
	x86asm.EDI: x86asm.EDI, x86asm.DI: x86asm.EDI,
}

func init() {
	for slot, reg := range slotReg {
		regSlot[reg] = slot
	}
}
