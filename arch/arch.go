// Package arch describes the storage model of a target architecture; memory
// locations name storage slots uniformly across registers, stack and main
// memory.
package arch

import "fmt"

// MemoryDomain identifies an address space of the target machine.
type MemoryDomain uint8

// Memory domains.
const (
	// InvalidDomain is the domain of the zero MemoryLocation.
	InvalidDomain MemoryDomain = iota
	// RegisterDomain is the register file.
	RegisterDomain
	// StackDomain is the abstract stack frame, addressed relative to the
	// frame base.
	StackDomain
	// MainDomain is the flat address space of the module.
	MainDomain
	// HeapDomain is dynamically allocated storage.
	HeapDomain
	// FirstVirtualDomain is the first domain available for analysis-invented
	// storage (e.g. temporaries materialized by calling convention hooks).
	FirstVirtualDomain
)

// String returns the string representation of the memory domain.
func (domain MemoryDomain) String() string {
	switch domain {
	case InvalidDomain:
		return "invalid"
	case RegisterDomain:
		return "reg"
	case StackDomain:
		return "stack"
	case MainDomain:
		return "mem"
	case HeapDomain:
		return "heap"
	}
	return fmt.Sprintf("virt%d", uint8(domain-FirstVirtualDomain))
}

// MemoryLocation names a storage slot; a sub-range of a memory domain given
// by a bit offset and a bit size. The zero value denotes no location.
type MemoryLocation struct {
	// Address space of the slot.
	Domain MemoryDomain
	// Offset within the domain in bits.
	Offset int64
	// Size of the slot in bits.
	Size int64
}

// Valid reports whether loc names a storage slot.
func (loc MemoryLocation) Valid() bool {
	return loc.Domain != InvalidDomain && loc.Size > 0
}

// End returns the bit offset one past the end of the slot.
func (loc MemoryLocation) End() int64 {
	return loc.Offset + loc.Size
}

// Overlaps reports whether loc and other name overlapping sub-ranges of the
// same domain.
func (loc MemoryLocation) Overlaps(other MemoryLocation) bool {
	return loc.Domain == other.Domain && loc.Offset < other.End() && other.Offset < loc.End()
}

// Covers reports whether loc contains every bit of other.
func (loc MemoryLocation) Covers(other MemoryLocation) bool {
	return loc.Domain == other.Domain && loc.Offset <= other.Offset && other.End() <= loc.End()
}

// String returns the string representation of the memory location.
func (loc MemoryLocation) String() string {
	if !loc.Valid() {
		return "<none>"
	}
	return fmt.Sprintf("%v[%d:%d)", loc.Domain, loc.Offset, loc.End())
}

// Architecture provides the architecture metadata consulted by the analyses.
type Architecture interface {
	// BitSize returns the pointer width of the architecture in bits.
	BitSize() int64
	// IsGlobalMemory reports whether a store to loc is observable outside
	// the function; such stores are side effects the decompiled program must
	// retain.
	IsGlobalMemory(loc MemoryLocation) bool
}
