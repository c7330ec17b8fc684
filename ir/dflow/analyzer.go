package dflow

import (
	"context"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
)

// warn is a logger which logs warning messages with "warning:" prefix to
// standard error.
var warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)

// DataflowAnalyzer computes the dataflow results of one function; a forward
// fixed point over its basic blocks.
type DataflowAnalyzer struct {
	dataflow *Dataflow
	arch     arch.Architecture
	f        *ir.Function
	hooks    *calling.Hooks
}

// NewDataflowAnalyzer returns a dataflow analyzer storing its results into
// dataflow.
func NewDataflowAnalyzer(dataflow *Dataflow, a arch.Architecture, f *ir.Function, hooks *calling.Hooks) *DataflowAnalyzer {
	return &DataflowAnalyzer{dataflow: dataflow, arch: a, f: f, hooks: hooks}
}

// Analyze runs the analysis to a fixed point, polling cancellation between
// basic blocks.
func (a *DataflowAnalyzer) Analyze(ctx context.Context) error {
	blocks := a.f.Blocks()
	ins := make(map[*ir.BasicBlock]*defState)
	for _, block := range blocks {
		ins[block] = &defState{}
	}
	worklist := append([]*ir.BasicBlock(nil), blocks...)
	queued := make(map[*ir.BasicBlock]bool)
	for _, block := range blocks {
		queued[block] = true
	}
	for len(worklist) > 0 {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		block := worklist[0]
		worklist = worklist[1:]
		queued[block] = false
		out := ins[block].clone()
		for _, stmt := range block.Statements() {
			a.processStmt(out, stmt)
		}
		out.normalize()
		for _, succ := range successors(block) {
			in := ins[succ].clone()
			in.join(out)
			if !in.equal(ins[succ]) {
				ins[succ] = in
				if !queued[succ] {
					queued[succ] = true
					worklist = append(worklist, succ)
				}
			}
		}
	}
	return nil
}

// processStmt interprets the given statement over the definition state.
func (a *DataflowAnalyzer) processStmt(state *defState, stmt ir.Statement) {
	switch stmt := stmt.(type) {
	case *ir.Comment, *ir.InlineAssembly:
		// No dataflow effect.
	case *ir.Assignment:
		a.evalRead(state, stmt.Right)
		a.evalWrite(state, stmt.Left, stmt.Right)
	case *ir.Kill:
		if loc := a.writeLocation(state, stmt.Killed); loc.Valid() {
			state.kill(loc)
		}
	case *ir.Jump:
		if stmt.Condition != nil {
			a.evalRead(state, stmt.Condition)
		}
		if stmt.ThenTarget.Address != nil {
			a.evalRead(state, stmt.ThenTarget.Address)
		}
		if stmt.ElseTarget.Address != nil {
			a.evalRead(state, stmt.ElseTarget.Address)
		}
	case *ir.Call:
		a.evalRead(state, stmt.Target)
		a.processCall(state, stmt)
	case *ir.Return:
		a.processReturn(state, stmt)
	default:
		warn.Printf("dataflow analysis of unsupported kind of statement %v", stmt.Kind())
	}
}

// processCall materializes and evaluates the argument terms of the call site
// and applies the clobbering effect of the assumed convention.
func (a *DataflowAnalyzer) processCall(state *defState, call *ir.Call) {
	id, ok := a.hooks.GetCalleeIDOfCall(call)
	if !ok {
		return
	}
	if sig := a.hooks.Signatures().Signature(id); sig != nil && len(sig.Arguments) > 0 {
		hook := a.hooks.GetCallHook(call)
		for _, argLoc := range sig.Arguments {
			term := hook.GetArgumentTerm(argLoc)
			a.dataflow.SetMemoryLocation(term, argLoc)
			a.dataflow.SetDefinitions(term, state.lookup(argLoc))
		}
	}
	// The callee clobbers the return value slot of its convention.
	if conv := a.hooks.Conventions().Convention(id); conv != nil && conv.ReturnValue.Valid() {
		state.kill(conv.ReturnValue)
	}
}

// processReturn materializes and evaluates the return value term of the
// return site.
func (a *DataflowAnalyzer) processReturn(state *defState, ret *ir.Return) {
	id, ok := a.hooks.GetCalleeID(a.f)
	if !ok {
		return
	}
	loc := arch.MemoryLocation{}
	if sig := a.hooks.Signatures().Signature(id); sig != nil {
		loc = sig.ReturnValue
	}
	if !loc.Valid() {
		if conv := a.hooks.Conventions().Convention(id); conv != nil {
			loc = conv.ReturnValue
		}
	}
	if !loc.Valid() {
		return
	}
	hook := a.hooks.GetReturnHook(a.f, ret)
	term := hook.GetReturnValueTerm(loc)
	a.dataflow.SetMemoryLocation(term, loc)
	a.dataflow.SetDefinitions(term, state.lookup(loc))
}

// evalWrite interprets a store of source into the write term left.
func (a *DataflowAnalyzer) evalWrite(state *defState, left, source ir.Term) {
	a.dataflow.SetValue(left, a.dataflow.Value(source))
	loc := a.writeLocation(state, left)
	if loc.Valid() {
		a.dataflow.SetMemoryLocation(left, loc)
		state.define(loc, left)
	}
}

// writeLocation resolves the storage slot of a write term; the zero location
// when the slot is not statically known.
func (a *DataflowAnalyzer) writeLocation(state *defState, term ir.Term) arch.MemoryLocation {
	switch term := term.(type) {
	case *ir.MemoryLocationAccess:
		return term.Loc
	case *ir.Dereference:
		addr := a.evalRead(state, term.Addr)
		if addr.IsConcrete() {
			return arch.MemoryLocation{Domain: arch.MainDomain, Offset: int64(addr.Concrete()) * 8, Size: term.Size()}
		}
		return arch.MemoryLocation{}
	case *ir.Undefined:
		// Store into an unmodeled destination.
		return arch.MemoryLocation{}
	}
	warn.Printf("store into unsupported kind of term %v", term.Kind())
	return arch.MemoryLocation{}
}

// evalRead evaluates the given read term over the definition state, recording
// its memory location, reaching definitions and abstract value.
func (a *DataflowAnalyzer) evalRead(state *defState, term ir.Term) Value {
	switch term := term.(type) {
	case *ir.IntConst:
		v := NewConcrete(term.Value)
		a.dataflow.SetValue(term, v)
		return v
	case *ir.Intrinsic, *ir.Undefined:
		return Value{}
	case *ir.MemoryLocationAccess:
		a.dataflow.SetMemoryLocation(term, term.Loc)
		rd := state.lookup(term.Loc)
		a.dataflow.SetDefinitions(term, rd)
		v := a.defValue(term.Loc, rd)
		a.dataflow.SetValue(term, v)
		return v
	case *ir.Dereference:
		addr := a.evalRead(state, term.Addr)
		if !addr.IsConcrete() {
			return Value{}
		}
		loc := arch.MemoryLocation{Domain: arch.MainDomain, Offset: int64(addr.Concrete()) * 8, Size: term.Size()}
		a.dataflow.SetMemoryLocation(term, loc)
		rd := state.lookup(loc)
		a.dataflow.SetDefinitions(term, rd)
		v := a.defValue(loc, rd)
		a.dataflow.SetValue(term, v)
		return v
	case *ir.UnaryOperator:
		v := a.evalUnary(state, term)
		a.dataflow.SetValue(term, v)
		return v
	case *ir.BinaryOperator:
		v := a.evalBinary(state, term)
		a.dataflow.SetValue(term, v)
		return v
	case *ir.Choice:
		pref := a.evalRead(state, term.Preferred)
		fall := a.evalRead(state, term.Default)
		v := fall
		if !a.dataflow.Definitions(term.Preferred).Empty() {
			v = pref
		}
		a.dataflow.SetValue(term, v)
		return v
	}
	warn.Printf("dataflow analysis of unsupported kind of term %v", term.Kind())
	return Value{}
}

// defValue returns the constant reaching a read of loc; a read is concrete
// when a single definition covers the whole slot and stored a constant.
func (a *DataflowAnalyzer) defValue(loc arch.MemoryLocation, rd ReachingDefinitions) Value {
	if len(rd.Chunks) != 1 {
		return Value{}
	}
	chunk := rd.Chunks[0]
	if chunk.Loc != loc || len(chunk.Definitions) != 1 {
		return Value{}
	}
	def := chunk.Definitions[0]
	if a.dataflow.MemoryLocation(def) != loc {
		return Value{}
	}
	return a.dataflow.Value(def)
}

// evalUnary folds the given unary operator term.
func (a *DataflowAnalyzer) evalUnary(state *defState, term *ir.UnaryOperator) Value {
	v := a.evalRead(state, term.Operand)
	if !v.IsConcrete() {
		return Value{}
	}
	x := v.Concrete()
	switch term.Op {
	case ir.UnaryNot:
		if x == 0 {
			return NewConcrete(1)
		}
		return NewConcrete(0)
	case ir.UnaryNegation:
		return NewConcrete(mask(-x, term.Size()))
	case ir.UnaryZeroExtend, ir.UnaryTruncate:
		return NewConcrete(mask(x, term.Size()))
	}
	return Value{}
}

// evalBinary folds the given binary operator term.
func (a *DataflowAnalyzer) evalBinary(state *defState, term *ir.BinaryOperator) Value {
	l := a.evalRead(state, term.Left)
	r := a.evalRead(state, term.Right)
	if !l.IsConcrete() || !r.IsConcrete() {
		return Value{}
	}
	x, y := l.Concrete(), r.Concrete()
	switch term.Op {
	case ir.BinaryAdd:
		return NewConcrete(mask(x+y, term.Size()))
	case ir.BinarySub:
		return NewConcrete(mask(x-y, term.Size()))
	case ir.BinaryMul:
		return NewConcrete(mask(x*y, term.Size()))
	case ir.BinaryAnd:
		return NewConcrete(x & y)
	case ir.BinaryOr:
		return NewConcrete(x | y)
	case ir.BinaryXor:
		return NewConcrete(x ^ y)
	case ir.BinaryShl:
		return NewConcrete(mask(x<<y, term.Size()))
	case ir.BinaryShr:
		return NewConcrete(x >> y)
	}
	return Value{}
}

// ### [ Helper functions ] ####################################################

// successors returns the control flow successors of the given basic block.
func successors(block *ir.BasicBlock) []*ir.BasicBlock {
	jump := block.Jump()
	if jump == nil {
		return nil
	}
	var succs []*ir.BasicBlock
	if jump.ThenTarget.Block != nil {
		succs = append(succs, jump.ThenTarget.Block)
	}
	if jump.ElseTarget.Block != nil && jump.ElseTarget.Block != jump.ThenTarget.Block {
		succs = append(succs, jump.ElseTarget.Block)
	}
	return succs
}

// mask truncates x to the given bit size.
func mask(x uint64, size int64) uint64 {
	if size <= 0 || size >= 64 {
		return x
	}
	return x & (1<<uint(size) - 1)
}
