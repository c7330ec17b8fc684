// Package x86 implements a disassembler and the architecture metadata for
// 32-bit x86.
package x86

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/mewmew/rev/bin"
)

var (
	// dbg is a logger which logs debug messages with "x86:" prefix to standard
	// error.
	dbg = log.New(os.Stderr, term.MagentaBold("x86:")+" ", 0)
	// warn is a logger which logs warning messages with "warning:" prefix to
	// standard error.
	warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)
)

// Processor mode (16, 32 or 64-bit execution mode).
const cpuMode = bin.AddrSize

// Instruction is a decoded x86 instruction.
type Instruction struct {
	// Address of the instruction.
	Addr bin.Addr
	// Decoded instruction.
	x86asm.Inst
}

// String returns the string representation of the instruction.
func (inst *Instruction) String() string {
	return fmt.Sprintf("%v\t%v", inst.Addr, inst.Inst)
}

// Instructions is the decoded instruction listing of a module, in ascending
// address order.
type Instructions struct {
	// Decoded instructions.
	Insts []*Instruction
	// Index of instruction addresses.
	index map[bin.Addr]*Instruction
}

// NewInstructions returns an empty instruction listing.
func NewInstructions() *Instructions {
	return &Instructions{index: make(map[bin.Addr]*Instruction)}
}

// Add appends the given instruction to the listing.
func (is *Instructions) Add(inst *Instruction) {
	is.Insts = append(is.Insts, inst)
	is.index[inst.Addr] = inst
}

// Lookup returns the instruction at the given address, or nil.
func (is *Instructions) Lookup(addr bin.Addr) *Instruction {
	return is.index[addr]
}

// String returns the string representation of the instruction listing.
func (is *Instructions) String() string {
	buf := &bytes.Buffer{}
	for _, inst := range is.Insts {
		fmt.Fprintf(buf, "%v\n", inst)
	}
	return buf.String()
}

// Disasm decodes the instructions of every executable section of the given
// binary executable.
func Disasm(file *bin.File) (*Instructions, error) {
	is := NewInstructions()
	for _, sect := range file.Sections {
		if sect.Perm&bin.PermX == 0 {
			continue
		}
		dbg.Printf("=== [ section %q ] ===", sect.Name)
		if err := is.decodeSection(sect); err != nil {
			return nil, errors.WithStack(err)
		}
	}
	return is, nil
}

// decodeSection decodes the instructions of the given executable section.
func (is *Instructions) decodeSection(sect *bin.Section) error {
	for offset := 0; offset < len(sect.Data); {
		addr := sect.Addr + bin.Addr(offset)
		inst, err := decodeInst(addr, sect.Data[offset:])
		if err != nil {
			// Data interleaved with code; resume at the next byte.
			warn.Printf("skipping undecodable byte at %v; %v", addr, err)
			offset++
			continue
		}
		is.Add(inst)
		offset += inst.Len
	}
	return nil
}

// decodeInst decodes the first instruction of src.
func decodeInst(instAddr bin.Addr, src []byte) (*Instruction, error) {
	inst, err := x86asm.Decode(src, cpuMode)
	if err != nil {
		end := 16
		if end > len(src) {
			end = len(src)
		}
		fmt.Fprintln(os.Stderr, hex.Dump(src[:end]))
		return nil, errors.Errorf("unable to parse instruction at address %v; %v", instAddr, err)
	}
	return &Instruction{
		Addr: instAddr,
		Inst: inst,
	}, nil
}

// IsTerm reports whether the given instruction is a terminator instruction.
func IsTerm(inst *Instruction) bool {
	switch inst.Op {
	// Loop terminators.
	case x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return true
	// Conditional jump terminators.
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ, x86asm.JE, x86asm.JECXZ, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP, x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JRCXZ, x86asm.JS:
		return true
	// Unconditional jump terminators.
	case x86asm.JMP:
		return true
	// Return terminators.
	case x86asm.RET:
		return true
	}
	return false
}
