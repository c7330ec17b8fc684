// Package irgen lifts decoded machine instructions into the typed IR of the
// decompilation pipeline and partitions the lifted program into functions.
package irgen

import (
	"context"
	"log"
	"os"

	"github.com/mewkiz/pkg/term"
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/disasm/x86"
	"github.com/mewmew/rev/ir"
)

var (
	// dbg is a logger which logs debug messages with "irgen:" prefix to
	// standard error.
	dbg = log.New(os.Stderr, term.MagentaBold("irgen:")+" ", 0)
	// warn is a logger which logs warning messages with "warning:" prefix to
	// standard error.
	warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)
)

// IRGenerator lifts the decoded instructions of a module into an IR program.
type IRGenerator struct {
	module *bin.Module
	insts  *x86.Instructions
	prog   *ir.Program
	// Pending comparison; x86 conditional jumps observe the flags of the
	// preceding comparison, the lifter rebuilds the comparison at the jump.
	cmp *pendingCmp
}

// pendingCmp records the operands of the last comparison of a basic block.
type pendingCmp struct {
	inst *x86.Instruction
	left x86asm.Arg
	rght x86asm.Arg
	size int64
}

// NewIRGenerator returns an IR generator lifting the given instructions into
// prog.
func NewIRGenerator(module *bin.Module, insts *x86.Instructions, prog *ir.Program) *IRGenerator {
	return &IRGenerator{module: module, insts: insts, prog: prog}
}

// Generate lifts the instruction listing into the program, polling
// cancellation between basic blocks.
func (gen *IRGenerator) Generate(ctx context.Context) error {
	starts := gen.blockStarts()
	// Create the blocks up front so jump targets resolve.
	for _, inst := range gen.insts.Insts {
		if starts[inst.Addr] && gen.prog.Block(inst.Addr) == nil {
			gen.prog.NewBlock(inst.Addr)
		}
	}
	var block *ir.BasicBlock
	for _, inst := range gen.insts.Insts {
		if b := gen.prog.Block(inst.Addr); b != nil {
			if block != nil && block.Jump() == nil && !isExit(block) {
				// Fall through into the next block.
				block.Append(ir.NewJump(ir.JumpTarget{Block: b}))
			}
			block = b
			gen.cmp = nil
			if err := ctx.Err(); err != nil {
				return errors.WithStack(err)
			}
		}
		if block == nil {
			continue
		}
		gen.liftInst(block, inst)
	}
	return nil
}

// blockStarts returns the set of basic block entry addresses; the module
// entry point, branch targets and the addresses following terminators.
func (gen *IRGenerator) blockStarts() map[bin.Addr]bool {
	starts := make(map[bin.Addr]bool)
	if len(gen.insts.Insts) > 0 {
		starts[gen.insts.Insts[0].Addr] = true
	}
	starts[gen.module.File().Entry] = true
	for _, sym := range gen.module.File().Symbols {
		starts[sym.Addr] = true
	}
	for i, inst := range gen.insts.Insts {
		if target, ok := branchTarget(inst); ok {
			starts[target] = true
		}
		if x86.IsTerm(inst) || inst.Op == x86asm.CALL {
			if i+1 < len(gen.insts.Insts) {
				starts[gen.insts.Insts[i+1].Addr] = true
			}
		}
	}
	return starts
}

// liftInst lifts one instruction into the given basic block.
func (gen *IRGenerator) liftInst(block *ir.BasicBlock, inst *x86.Instruction) {
	switch inst.Op {
	case x86asm.MOV:
		block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]), gen.liftSrc(inst, inst.Args[1])))
	case x86asm.LEA:
		mem, ok := inst.Args[1].(x86asm.Mem)
		if !ok {
			gen.liftUnsupported(block, inst)
			return
		}
		block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]), gen.liftMemAddr(mem)))
	case x86asm.ADD, x86asm.SUB, x86asm.AND, x86asm.OR, x86asm.XOR, x86asm.SHL, x86asm.SHR, x86asm.SAR, x86asm.IMUL:
		gen.liftBinary(block, inst)
	case x86asm.INC:
		gen.liftIncDec(block, inst, ir.BinaryAdd)
	case x86asm.DEC:
		gen.liftIncDec(block, inst, ir.BinarySub)
	case x86asm.NEG:
		size := dataSize(inst)
		block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]),
			ir.NewUnaryOperator(ir.UnaryNegation, gen.liftSrc(inst, inst.Args[0]), size)))
	case x86asm.NOT:
		size := dataSize(inst)
		block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]),
			ir.NewUnaryOperator(ir.UnaryNot, gen.liftSrc(inst, inst.Args[0]), size)))
	case x86asm.CMP, x86asm.TEST:
		gen.cmp = &pendingCmp{inst: inst, left: inst.Args[0], rght: inst.Args[1], size: dataSize(inst)}
	case x86asm.PUSH:
		gen.liftPush(block, inst)
	case x86asm.POP:
		gen.liftPop(block, inst)
	case x86asm.NOP:
		// Nothing to lift.
	case x86asm.CALL:
		block.Append(ir.NewCall(gen.liftTarget(inst)))
	case x86asm.RET:
		block.Append(ir.NewReturn())
	case x86asm.JMP:
		target := gen.liftJumpTarget(inst)
		block.Append(ir.NewJump(target))
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JS, x86asm.JNS, x86asm.JO, x86asm.JNO, x86asm.JP, x86asm.JNP:
		gen.liftCondJump(block, inst)
	default:
		gen.liftUnsupported(block, inst)
	}
}

// liftUnsupported lifts an instruction the IR cannot express.
func (gen *IRGenerator) liftUnsupported(block *ir.BasicBlock, inst *x86.Instruction) {
	warn.Printf("unsupported instruction at %v; lifting to inline assembly", inst.Addr)
	block.Append(ir.NewInlineAssembly(inst.Inst.String()))
	// The instruction clobbers its destination register, if any.
	if len(inst.Args) > 0 {
		if reg, ok := inst.Args[0].(x86asm.Reg); ok {
			if loc, ok := x86.RegLocation(reg); ok {
				block.Append(ir.NewKill(ir.NewMemoryLocationAccess(loc)))
			}
		}
	}
}

// liftBinary lifts a two-operand arithmetic instruction.
func (gen *IRGenerator) liftBinary(block *ir.BasicBlock, inst *x86.Instruction) {
	op := binaryOp(inst.Op)
	size := dataSize(inst)
	rhs := ir.NewBinaryOperator(op, gen.liftSrc(inst, inst.Args[0]), gen.liftSrc(inst, inst.Args[1]), size)
	block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]), rhs))
	// Arithmetic updates the flags; conditional jumps compare against zero.
	gen.cmp = &pendingCmp{inst: inst, left: inst.Args[0], rght: nil, size: size}
}

// liftIncDec lifts an increment or decrement instruction.
func (gen *IRGenerator) liftIncDec(block *ir.BasicBlock, inst *x86.Instruction, op ir.BinaryOp) {
	size := dataSize(inst)
	rhs := ir.NewBinaryOperator(op, gen.liftSrc(inst, inst.Args[0]), ir.NewIntConst(1, size), size)
	block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]), rhs))
}

// liftPush lifts a push instruction; the stack pointer decrements and the
// operand stores through it.
func (gen *IRGenerator) liftPush(block *ir.BasicBlock, inst *x86.Instruction) {
	esp := x86.ESPLocation()
	size := dataSize(inst)
	dec := ir.NewBinaryOperator(ir.BinarySub, ir.NewMemoryLocationAccess(esp), ir.NewIntConst(uint64(size/8), esp.Size), esp.Size)
	block.Append(ir.NewAssignment(ir.NewMemoryLocationAccess(esp), dec))
	store := ir.NewDereference(ir.NewMemoryLocationAccess(esp), size)
	block.Append(ir.NewAssignment(store, gen.liftSrc(inst, inst.Args[0])))
}

// liftPop lifts a pop instruction.
func (gen *IRGenerator) liftPop(block *ir.BasicBlock, inst *x86.Instruction) {
	esp := x86.ESPLocation()
	size := dataSize(inst)
	load := ir.NewDereference(ir.NewMemoryLocationAccess(esp), size)
	block.Append(ir.NewAssignment(gen.liftDst(inst, inst.Args[0]), load))
	inc := ir.NewBinaryOperator(ir.BinaryAdd, ir.NewMemoryLocationAccess(esp), ir.NewIntConst(uint64(size/8), esp.Size), esp.Size)
	block.Append(ir.NewAssignment(ir.NewMemoryLocationAccess(esp), inc))
}

// liftCondJump lifts a conditional jump; the condition rebuilds the pending
// comparison of the basic block.
func (gen *IRGenerator) liftCondJump(block *ir.BasicBlock, inst *x86.Instruction) {
	cond := gen.liftCondition(inst)
	thenTarget := gen.liftJumpTarget(inst)
	elseAddr := inst.Addr + bin.Addr(inst.Len)
	elseTarget := ir.JumpTarget{Block: gen.prog.Block(elseAddr)}
	block.Append(ir.NewCondJump(cond, thenTarget, elseTarget))
}

// liftCondition lifts the condition of a conditional jump.
func (gen *IRGenerator) liftCondition(inst *x86.Instruction) ir.Term {
	if gen.cmp == nil {
		// No preceding comparison in the block; the condition is opaque.
		return ir.NewIntrinsic("flags", 1)
	}
	cmp := gen.cmp
	left := gen.liftSrc(cmp.inst, cmp.left)
	var right ir.Term
	if cmp.rght != nil {
		right = gen.liftSrc(cmp.inst, cmp.rght)
	} else {
		right = ir.NewIntConst(0, cmp.size)
	}
	op, negate := conditionOp(inst.Op)
	term := ir.Term(ir.NewBinaryOperator(op, left, right, 1))
	if negate {
		term = ir.NewUnaryOperator(ir.UnaryNot, term, 1)
	}
	return term
}

// liftJumpTarget lifts the target of a jump instruction.
func (gen *IRGenerator) liftJumpTarget(inst *x86.Instruction) ir.JumpTarget {
	if addr, ok := branchTarget(inst); ok {
		return ir.JumpTarget{
			Address: ir.NewIntConst(uint64(addr), bin.AddrSize),
			Block:   gen.prog.Block(addr),
		}
	}
	return ir.JumpTarget{Address: gen.liftSrc(inst, inst.Args[0])}
}

// liftTarget lifts the target of a call instruction.
func (gen *IRGenerator) liftTarget(inst *x86.Instruction) ir.Term {
	if addr, ok := branchTarget(inst); ok {
		return ir.NewIntConst(uint64(addr), bin.AddrSize)
	}
	return gen.liftSrc(inst, inst.Args[0])
}

// liftSrc lifts an operand read.
func (gen *IRGenerator) liftSrc(inst *x86.Instruction, arg x86asm.Arg) ir.Term {
	size := dataSize(inst)
	switch arg := arg.(type) {
	case x86asm.Reg:
		if loc, ok := x86.RegLocation(arg); ok {
			return ir.NewMemoryLocationAccess(loc)
		}
		return ir.NewIntrinsic(arg.String(), size)
	case x86asm.Imm:
		return ir.NewIntConst(uint64(arg), size)
	case x86asm.Mem:
		return ir.NewDereference(gen.liftMemAddr(arg), size)
	case x86asm.Rel:
		return ir.NewIntConst(uint64(inst.Addr+bin.Addr(inst.Len)+bin.Addr(arg)), bin.AddrSize)
	}
	warn.Printf("unsupported operand %v at %v", arg, inst.Addr)
	return ir.NewUndefined(size)
}

// liftDst lifts an operand write.
func (gen *IRGenerator) liftDst(inst *x86.Instruction, arg x86asm.Arg) ir.Term {
	size := dataSize(inst)
	switch arg := arg.(type) {
	case x86asm.Reg:
		if loc, ok := x86.RegLocation(arg); ok {
			return ir.NewMemoryLocationAccess(loc)
		}
		return ir.NewUndefined(size)
	case x86asm.Mem:
		return ir.NewDereference(gen.liftMemAddr(arg), size)
	}
	warn.Printf("unsupported store operand %v at %v", arg, inst.Addr)
	return ir.NewUndefined(size)
}

// liftMemAddr lifts the address computation of a memory operand.
func (gen *IRGenerator) liftMemAddr(mem x86asm.Mem) ir.Term {
	var term ir.Term
	if mem.Base != 0 {
		if loc, ok := x86.RegLocation(mem.Base); ok {
			term = ir.NewMemoryLocationAccess(loc)
		}
	}
	if mem.Index != 0 {
		if loc, ok := x86.RegLocation(mem.Index); ok {
			index := ir.Term(ir.NewMemoryLocationAccess(loc))
			if mem.Scale > 1 {
				index = ir.NewBinaryOperator(ir.BinaryMul, index, ir.NewIntConst(uint64(mem.Scale), bin.AddrSize), bin.AddrSize)
			}
			if term == nil {
				term = index
			} else {
				term = ir.NewBinaryOperator(ir.BinaryAdd, term, index, bin.AddrSize)
			}
		}
	}
	disp := ir.NewIntConst(uint64(uint32(mem.Disp)), bin.AddrSize)
	if term == nil {
		return disp
	}
	if mem.Disp == 0 {
		return term
	}
	return ir.NewBinaryOperator(ir.BinaryAdd, term, disp, bin.AddrSize)
}

// ### [ Helper functions ] ####################################################

// branchTarget returns the direct target address of a branch instruction.
func branchTarget(inst *x86.Instruction) (bin.Addr, bool) {
	switch inst.Op {
	case x86asm.JMP, x86asm.CALL,
		x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JG,
		x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JS, x86asm.JNS,
		x86asm.JO, x86asm.JNO, x86asm.JP, x86asm.JNP:
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			return inst.Addr + bin.Addr(inst.Len) + bin.Addr(rel), true
		}
	}
	return 0, false
}

// binaryOp returns the IR operator of a two-operand arithmetic instruction.
func binaryOp(op x86asm.Op) ir.BinaryOp {
	switch op {
	case x86asm.ADD:
		return ir.BinaryAdd
	case x86asm.SUB:
		return ir.BinarySub
	case x86asm.AND:
		return ir.BinaryAnd
	case x86asm.OR:
		return ir.BinaryOr
	case x86asm.XOR:
		return ir.BinaryXor
	case x86asm.SHL:
		return ir.BinaryShl
	case x86asm.SHR:
		return ir.BinaryShr
	case x86asm.SAR:
		return ir.BinarySar
	case x86asm.IMUL:
		return ir.BinaryMul
	}
	panic("irgen: not a lifted binary op")
}

// conditionOp returns the IR comparison of a conditional jump and whether
// the comparison is negated.
func conditionOp(op x86asm.Op) (cmp ir.BinaryOp, negate bool) {
	switch op {
	case x86asm.JE:
		return ir.BinaryEqual, false
	case x86asm.JNE:
		return ir.BinaryEqual, true
	case x86asm.JL:
		return ir.BinarySignedLess, false
	case x86asm.JGE:
		return ir.BinarySignedLess, true
	case x86asm.JLE:
		return ir.BinarySignedLessOrEqual, false
	case x86asm.JG:
		return ir.BinarySignedLessOrEqual, true
	case x86asm.JB:
		return ir.BinaryUnsignedLess, false
	case x86asm.JAE:
		return ir.BinaryUnsignedLess, true
	case x86asm.JBE:
		return ir.BinaryUnsignedLessOrEqual, false
	case x86asm.JA:
		return ir.BinaryUnsignedLessOrEqual, true
	}
	// Sign, overflow and parity jumps observe single flags, which the IR does
	// not model; they lift to an equality test of the pending operands.
	return ir.BinaryEqual, false
}

// dataSize returns the operand size of the instruction in bits.
func dataSize(inst *x86.Instruction) int64 {
	if inst.DataSize != 0 {
		return int64(inst.DataSize)
	}
	return bin.AddrSize
}

// isExit reports whether the given block already leaves the function.
func isExit(block *ir.BasicBlock) bool {
	stmts := block.Statements()
	if len(stmts) == 0 {
		return false
	}
	switch stmts[len(stmts)-1].(type) {
	case *ir.Return:
		return true
	}
	return false
}
