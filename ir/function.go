package ir

import (
	"bytes"
	"fmt"

	"github.com/mewmew/rev/bin"
)

// Function is a set of basic blocks with a distinguished entry block.
type Function struct {
	// Entry basic block.
	entry *BasicBlock
	// Basic blocks of the function, entry first.
	blocks []*BasicBlock
	// Name of the function; assigned by the naming policy and mutable.
	Name string
	// Comment of the function; accumulated by the analyses.
	Comment []string
}

// NewFunction returns a new function with the given entry block; blocks must
// contain entry.
func NewFunction(entry *BasicBlock, blocks []*BasicBlock) *Function {
	return &Function{entry: entry, blocks: blocks}
}

// Entry returns the entry basic block of the function.
func (f *Function) Entry() *BasicBlock {
	return f.entry
}

// Blocks returns the basic blocks of the function.
func (f *Function) Blocks() []*BasicBlock {
	return f.blocks
}

// Address returns the entry address of the function; ok is false for
// synthesized functions.
func (f *Function) Address() (addr bin.Addr, ok bool) {
	if f.entry == nil {
		return 0, false
	}
	return f.entry.Address()
}

// Returns returns the return statements of the function.
func (f *Function) Returns() []*Return {
	var rets []*Return
	for _, block := range f.blocks {
		for _, stmt := range block.Statements() {
			if ret, ok := stmt.(*Return); ok {
				rets = append(rets, ret)
			}
		}
	}
	return rets
}

// AppendComment appends a line to the comment of the function.
func (f *Function) AppendComment(line string) {
	f.Comment = append(f.Comment, line)
}

// String returns the string representation of the function; the printed form
// doubles as the function's fingerprint.
func (f *Function) String() string {
	buf := &bytes.Buffer{}
	name := f.Name
	if name == "" {
		name = "func"
	}
	fmt.Fprintf(buf, "%s() {\n", name)
	for i, block := range f.blocks {
		if i != 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(block.String())
	}
	buf.WriteString("}")
	return buf.String()
}

// Functions is the ordered list of functions of a program.
type Functions struct {
	// Functions in discovery order.
	Funcs []*Function
}

// Add appends the given function.
func (fs *Functions) Add(f *Function) {
	fs.Funcs = append(fs.Funcs, f)
}
