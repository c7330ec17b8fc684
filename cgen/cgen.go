// Package cgen generates the C-like abstract syntax tree of a decompiled
// module from its IR and analysis results.
package cgen

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/cflow"
	"github.com/mewmew/rev/ir/dflow"
	"github.com/mewmew/rev/ir/liveness"
	"github.com/mewmew/rev/ir/types"
	"github.com/mewmew/rev/ir/vars"
	"github.com/mewmew/rev/likec"
)

// CodeGenerator produces the abstract syntax tree of a module from the IR of
// its functions and the analysis results of the pipeline.
type CodeGenerator struct {
	tree       *likec.Tree
	module     *bin.Module
	functions  *ir.Functions
	hooks      *calling.Hooks
	signatures *calling.Signatures
	dataflows  dflow.Dataflows
	variables  *vars.Variables
	graphs     cflow.Graphs
	livenesses liveness.Livenesses
	types      *types.Types

	// Function name by entry address.
	names map[bin.Addr]string
}

// NewCodeGenerator returns a code generator storing the generated syntax
// tree into tree.
func NewCodeGenerator(tree *likec.Tree, module *bin.Module, functions *ir.Functions, hooks *calling.Hooks, signatures *calling.Signatures, dataflows dflow.Dataflows, variables *vars.Variables, graphs cflow.Graphs, livenesses liveness.Livenesses, typs *types.Types) *CodeGenerator {
	return &CodeGenerator{
		tree:       tree,
		module:     module,
		functions:  functions,
		hooks:      hooks,
		signatures: signatures,
		dataflows:  dataflows,
		variables:  variables,
		graphs:     graphs,
		livenesses: livenesses,
		types:      typs,
		names:      make(map[bin.Addr]string),
	}
}

// MakeCompilationUnit generates the compilation unit of the module, polling
// cancellation between functions.
func (gen *CodeGenerator) MakeCompilationUnit(ctx context.Context) error {
	for _, f := range gen.functions.Funcs {
		if addr, ok := f.Address(); ok {
			gen.names[addr] = f.Name
		}
	}
	for _, f := range gen.functions.Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		gen.tree.Root.Funcs = append(gen.tree.Root.Funcs, gen.makeFunc(f))
	}
	return nil
}

// makeFunc generates the definition of one function.
func (gen *CodeGenerator) makeFunc(f *ir.Function) *likec.FuncDef {
	fg := &funcGen{
		gen:      gen,
		f:        f,
		dataflow: gen.dataflows[f],
		liveness: gen.livenesses[f],
	}
	return fg.makeFunc()
}

// funcGen generates the definition of one function.
type funcGen struct {
	gen      *CodeGenerator
	f        *ir.Function
	dataflow *dflow.Dataflow
	liveness *liveness.Liveness
	// Stamps of jumps subsumed by switch regions.
	deadJumps map[int64]bool
}

// makeFunc generates the function definition.
func (fg *funcGen) makeFunc() *likec.FuncDef {
	def := &likec.FuncDef{
		Name:    fg.f.Name,
		Comment: fg.f.Comment,
		RetType: "void",
	}
	var sig *calling.Signature
	if id, ok := fg.gen.hooks.GetCalleeID(fg.f); ok {
		sig = fg.gen.signatures.Signature(id)
	}
	if sig != nil {
		if sig.HasReturnValue() {
			def.RetType = (&types.Type{Size: sig.ReturnValue.Size}).String()
		}
		for i, argLoc := range sig.Arguments {
			def.Params = append(def.Params, &likec.Param{
				Type: (&types.Type{Size: argLoc.Size}).String(),
				Name: fmt.Sprintf("a%d", i+1),
			})
		}
	}
	fg.findDeadJumps()
	for _, block := range fg.f.Blocks() {
		def.Body = append(def.Body, likec.NewLabel(block.Name()))
		for _, stmt := range block.Statements() {
			def.Body = append(def.Body, fg.makeStmts(stmt, sig)...)
		}
	}
	return def
}

// findDeadJumps records the terminating jumps of switch bounds check nodes;
// the switch subsumes their control effect.
func (fg *funcGen) findDeadJumps() {
	fg.deadJumps = make(map[int64]bool)
	graph, ok := fg.gen.graphs[fg.f]
	if !ok {
		return
	}
	for _, n := range graph.Nodes() {
		if s, ok := n.(*cflow.Switch); ok {
			if check := s.BoundsCheckNode(); check != nil {
				if jump := check.Block.Jump(); jump != nil {
					fg.deadJumps[jump.ID()] = true
				}
			}
		}
	}
}

// makeStmts generates the statements reconstructing the given IR statement.
func (fg *funcGen) makeStmts(stmt ir.Statement, sig *calling.Signature) []likec.Statement {
	switch stmt := stmt.(type) {
	case *ir.Comment:
		return []likec.Statement{likec.NewCommentStmt(stmt.Text, stmt)}
	case *ir.InlineAssembly:
		return []likec.Statement{likec.NewAsmStmt(stmt.Text, stmt)}
	case *ir.Assignment:
		if fg.liveness == nil || !fg.liveness.IsLive(stmt.Left) {
			return nil
		}
		assign := likec.NewAssign(fg.makeExpr(stmt.Left), fg.makeExpr(stmt.Right))
		return []likec.Statement{likec.NewExprStmt(assign, stmt)}
	case *ir.Kill:
		return nil
	case *ir.Jump:
		return fg.makeJump(stmt)
	case *ir.Call:
		return fg.makeCall(stmt)
	case *ir.Return:
		var value likec.Expression
		if sig != nil && sig.HasReturnValue() {
			hook := fg.gen.hooks.GetReturnHook(fg.f, stmt)
			value = fg.makeExpr(hook.GetReturnValueTerm(sig.ReturnValue))
		}
		return []likec.Statement{likec.NewRet(value, stmt)}
	}
	return []likec.Statement{likec.NewCommentStmt(fmt.Sprintf("unsupported statement kind %v", stmt.Kind()), stmt)}
}

// makeJump generates the statements reconstructing a jump; jumps subsumed by
// switch regions generate nothing.
func (fg *funcGen) makeJump(stmt *ir.Jump) []likec.Statement {
	if fg.deadJumps[stmt.ID()] {
		return nil
	}
	then := fg.makeGoto(stmt.ThenTarget, stmt)
	if !stmt.IsConditional() {
		return []likec.Statement{then}
	}
	var els *likec.Goto
	if stmt.ElseTarget.Valid() {
		els = fg.makeGoto(stmt.ElseTarget, stmt)
	}
	return []likec.Statement{likec.NewIf(fg.makeExpr(stmt.Condition), then, els, stmt)}
}

// makeGoto generates the goto of one jump target.
func (fg *funcGen) makeGoto(target ir.JumpTarget, stmt *ir.Jump) *likec.Goto {
	if target.Block != nil {
		return likec.NewGoto(target.Block.Name(), nil, stmt)
	}
	return likec.NewGoto("", fg.makeExpr(target.Address), stmt)
}

// makeCall generates the statements reconstructing a call.
func (fg *funcGen) makeCall(stmt *ir.Call) []likec.Statement {
	fun := fg.makeCallTarget(stmt.Target)
	var args []likec.Expression
	if id, ok := fg.gen.hooks.GetCalleeIDOfCall(stmt); ok {
		if sig := fg.gen.signatures.Signature(id); sig != nil {
			hook := fg.gen.hooks.GetCallHook(stmt)
			for _, argLoc := range sig.Arguments {
				args = append(args, fg.makeExpr(hook.GetArgumentTerm(argLoc)))
			}
		}
	}
	call := likec.NewCallExpr(fun, args, nil)
	return []likec.Statement{likec.NewExprStmt(call, stmt)}
}

// makeCallTarget generates the called expression; constant targets resolve
// to function names.
func (fg *funcGen) makeCallTarget(target ir.Term) likec.Expression {
	if c, ok := target.(*ir.IntConst); ok {
		if name, ok := fg.gen.names[bin.Addr(c.Value)]; ok {
			return likec.NewIdent(name, target)
		}
	}
	return fg.makeExpr(target)
}

// makeExpr generates the expression reconstructing the given term.
func (fg *funcGen) makeExpr(term ir.Term) likec.Expression {
	switch term := term.(type) {
	case *ir.IntConst:
		return likec.NewIntLit(term.Value, term)
	case *ir.Intrinsic:
		return likec.NewIdent(term.Name, term)
	case *ir.Undefined:
		return likec.NewIdent("__undefined", term)
	case *ir.MemoryLocationAccess:
		return likec.NewIdent(fg.varName(term), term)
	case *ir.Dereference:
		return likec.NewDeref(fg.makeExpr(term.Addr), term)
	case *ir.UnaryOperator:
		return likec.NewUnary(cUnaryOp(term.Op), fg.makeExpr(term.Operand), term)
	case *ir.BinaryOperator:
		return likec.NewBinary(cBinaryOp(term.Op), fg.makeExpr(term.Left), fg.makeExpr(term.Right), term)
	case *ir.Choice:
		// The preferred source wins when it has a definition.
		if fg.dataflow != nil && !fg.dataflow.Definitions(term.Preferred).Empty() {
			return fg.makeExpr(term.Preferred)
		}
		return fg.makeExpr(term.Default)
	}
	return likec.NewIdent(fmt.Sprintf("__unsupported_%v", term.Kind()), term)
}

// varName returns the printed name of the variable accessed by the given
// term.
func (fg *funcGen) varName(term *ir.MemoryLocationAccess) string {
	if v := fg.gen.variables.Variable(term); v != nil {
		return v.Name()
	}
	return likec.CleanName(term.Loc.String())
}

// ### [ Helper functions ] ####################################################

// cUnaryOp returns the C spelling of the given unary operator.
func cUnaryOp(op ir.UnaryOp) string {
	switch op {
	case ir.UnaryNot:
		return "!"
	case ir.UnaryNegation:
		return "-"
	case ir.UnarySignExtend:
		return "(int)"
	case ir.UnaryZeroExtend:
		return "(unsigned)"
	case ir.UnaryTruncate:
		return "(char)"
	}
	return op.String()
}

// cBinaryOp returns the C spelling of the given binary operator.
func cBinaryOp(op ir.BinaryOp) string {
	switch op {
	case ir.BinarySar:
		return ">>"
	case ir.BinaryUnsignedLess:
		return "<"
	case ir.BinaryUnsignedLessOrEqual:
		return "<="
	}
	return op.String()
}
