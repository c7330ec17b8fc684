// Package ir defines the typed intermediate representation the decompilation
// pipeline lifts machine code into; programs are basic blocks of statements,
// statements operate on terms.
package ir

import (
	"bytes"
	"fmt"

	"github.com/mewmew/rev/bin"
)

// prevID is the last node stamp handed out; stamps order statements and terms
// deterministically within a run.
var prevID int64

// nextID returns a fresh node stamp.
func nextID() int64 {
	prevID++
	return prevID
}

// Program is the intermediate representation of a module; a collection of
// basic blocks.
type Program struct {
	// Basic blocks of the program.
	Blocks []*BasicBlock
	// Index of basic block entry addresses.
	index map[bin.Addr]*BasicBlock
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{index: make(map[bin.Addr]*BasicBlock)}
}

// NewBlock appends a new basic block at the given address to the program.
func (p *Program) NewBlock(addr bin.Addr) *BasicBlock {
	block := &BasicBlock{addr: addr, hasAddr: true}
	p.Blocks = append(p.Blocks, block)
	p.index[addr] = block
	return block
}

// Block returns the basic block at the given address, or nil.
func (p *Program) Block(addr bin.Addr) *BasicBlock {
	return p.index[addr]
}

// BasicBlock is an ordered sequence of statements executed in order; the
// entry address is absent for synthesized blocks.
type BasicBlock struct {
	// Entry address of the basic block; valid if hasAddr is set.
	addr    bin.Addr
	hasAddr bool
	// Statements of the basic block.
	stmts []Statement
}

// NewBasicBlock returns a new basic block with no entry address.
func NewBasicBlock() *BasicBlock {
	return &BasicBlock{}
}

// Address returns the entry address of the basic block; ok is false for
// synthesized blocks.
func (block *BasicBlock) Address() (addr bin.Addr, ok bool) {
	return block.addr, block.hasAddr
}

// Statements returns the statements of the basic block.
func (block *BasicBlock) Statements() []Statement {
	return block.stmts
}

// Append appends the given statement to the basic block.
func (block *BasicBlock) Append(stmt Statement) {
	stmt.base().block = block
	block.stmts = append(block.stmts, stmt)
}

// Jump returns the terminating jump of the basic block, or nil.
func (block *BasicBlock) Jump() *Jump {
	if len(block.stmts) == 0 {
		return nil
	}
	jump, _ := block.stmts[len(block.stmts)-1].(*Jump)
	return jump
}

// Name returns the printed label of the basic block.
func (block *BasicBlock) Name() string {
	if block.hasAddr {
		return fmt.Sprintf("block_%08X", uint32(block.addr))
	}
	return "block"
}

// String returns the string representation of the basic block.
func (block *BasicBlock) String() string {
	buf := &bytes.Buffer{}
	fmt.Fprintf(buf, "%s:\n", block.Name())
	for _, stmt := range block.stmts {
		fmt.Fprintf(buf, "\t%v\n", stmt)
	}
	return buf.String()
}
