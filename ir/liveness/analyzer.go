package liveness

import (
	"log"
	"os"
	"sort"

	"github.com/mewkiz/pkg/term"

	"github.com/mewmew/rev/arch"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/cflow"
	"github.com/mewmew/rev/ir/dflow"
)

// warn is a logger which logs warning messages with "warning:" prefix to
// standard error.
var warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)

// LivenessAnalyzer computes the liveness set of one function.
//
// A term is observable if it writes to global memory or an unresolved memory
// location, flows into a call as an argument under a known signature, is the
// condition or destination address of a non-dead jump, or is the return
// value slot of a function whose signature has a return value. Liveness then
// propagates backward through reaching definitions and structurally through
// compound terms.
type LivenessAnalyzer struct {
	liveness   *Liveness
	f          *ir.Function
	dataflow   *dflow.Dataflow
	arch       arch.Architecture
	graph      *cflow.Graph
	hooks      *calling.Hooks
	signatures *calling.Signatures

	// preferConstants stops propagation at reads whose abstract value is
	// already concrete.
	preferConstants bool

	// Stamps of jumps subsumed by switch regions, in ascending order.
	deadJumps []int64
}

// NewLivenessAnalyzer returns a liveness analyzer storing its results into
// liveness.
func NewLivenessAnalyzer(liveness *Liveness, f *ir.Function, dataflow *dflow.Dataflow, a arch.Architecture, graph *cflow.Graph, hooks *calling.Hooks, signatures *calling.Signatures) *LivenessAnalyzer {
	return &LivenessAnalyzer{
		liveness:   liveness,
		f:          f,
		dataflow:   dataflow,
		arch:       a,
		graph:      graph,
		hooks:      hooks,
		signatures: signatures,
	}
}

// SetPreferConstants enables stopping propagation at reads with concrete
// abstract values; constants are preferred to the expressions computing
// them.
func (a *LivenessAnalyzer) SetPreferConstants(prefer bool) {
	a.preferConstants = prefer
}

// Analyze computes the liveness set of the function.
func (a *LivenessAnalyzer) Analyze() {
	a.findDeadJumps()

	census := ir.NewCensus(a.hooks)
	census.Visit(a.f)

	for _, stmt := range census.Statements() {
		a.seedStmt(stmt)
	}
	for _, term := range census.Terms() {
		a.seedTerm(term)
	}

	a.seedReturnValues()
}

// findDeadJumps collects the terminating jumps of switch bounds check nodes;
// the structurer has proved these jumps redundant, and marking them dead
// keeps their conditions and targets from holding unrelated values live.
func (a *LivenessAnalyzer) findDeadJumps() {
	a.deadJumps = a.deadJumps[:0]
	for _, n := range a.graph.Nodes() {
		if s, ok := n.(*cflow.Switch); ok {
			if check := s.BoundsCheckNode(); check != nil {
				if jump := check.Block.Jump(); jump != nil {
					a.deadJumps = append(a.deadJumps, jump.ID())
				}
			}
		}
	}
	sort.Slice(a.deadJumps, func(i, j int) bool { return a.deadJumps[i] < a.deadJumps[j] })
}

// isDeadJump reports whether the given jump is subsumed by a switch region.
func (a *LivenessAnalyzer) isDeadJump(jump *ir.Jump) bool {
	id := jump.ID()
	i := sort.Search(len(a.deadJumps), func(i int) bool { return a.deadJumps[i] >= id })
	return i < len(a.deadJumps) && a.deadJumps[i] == id
}

// seedStmt seeds the liveness of the observable terms of the given
// statement.
func (a *LivenessAnalyzer) seedStmt(stmt ir.Statement) {
	switch stmt := stmt.(type) {
	case *ir.Comment, *ir.InlineAssembly, *ir.Assignment, *ir.Kill, *ir.Return:
		// No seed.
	case *ir.Jump:
		if !a.isDeadJump(stmt) {
			if stmt.Condition != nil {
				a.makeLive(stmt.Condition)
			}
			if stmt.ThenTarget.Address != nil {
				a.makeLive(stmt.ThenTarget.Address)
			}
			if stmt.ElseTarget.Address != nil {
				a.makeLive(stmt.ElseTarget.Address)
			}
		}
	case *ir.Call:
		a.makeLive(stmt.Target)
		if id, ok := a.hooks.GetCalleeIDOfCall(stmt); ok {
			if sig := a.signatures.Signature(id); sig != nil {
				if hook := a.hooks.GetCallHook(stmt); hook != nil {
					for _, argLoc := range sig.Arguments {
						a.makeLive(hook.GetArgumentTerm(argLoc))
					}
				}
			}
		}
	default:
		warn.Printf("liveness analysis of unsupported kind of statement %v", stmt.Kind())
	}
}

// seedTerm seeds the liveness of the given term when it is observable in
// itself.
func (a *LivenessAnalyzer) seedTerm(term ir.Term) {
	switch term := term.(type) {
	case *ir.IntConst, *ir.Intrinsic, *ir.Undefined, *ir.UnaryOperator, *ir.BinaryOperator, *ir.Choice:
		// No seed.
	case *ir.MemoryLocationAccess:
		// A store into global memory is a side effect the program retains.
		if term.IsWrite() && a.arch.IsGlobalMemory(term.Loc) {
			a.makeLive(term)
		}
	case *ir.Dereference:
		// A store through an unknown pointer is conservatively observable.
		if term.IsWrite() {
			loc := a.dataflow.MemoryLocation(term)
			if !loc.Valid() || a.arch.IsGlobalMemory(loc) {
				a.makeLive(term)
			}
		}
	default:
		warn.Printf("liveness analysis of unsupported kind of term %v", term.Kind())
	}
}

// seedReturnValues seeds the return value terms of the function when its own
// signature has a return value.
func (a *LivenessAnalyzer) seedReturnValues() {
	id, ok := a.hooks.GetCalleeID(a.f)
	if !ok {
		return
	}
	sig := a.signatures.Signature(id)
	if sig == nil || !sig.HasReturnValue() {
		return
	}
	for _, ret := range a.f.Returns() {
		if hook := a.hooks.GetReturnHook(a.f, ret); hook != nil {
			a.makeLive(hook.GetReturnValueTerm(sig.ReturnValue))
		}
	}
}

// makeLive marks the given term and every term it observably depends on as
// live; idempotent. A nil term indicates a bug in an earlier pass.
func (a *LivenessAnalyzer) makeLive(term ir.Term) {
	if term == nil {
		panic("ir/liveness: nil term")
	}
	worklist := []ir.Term{term}
	for len(worklist) > 0 {
		t := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if a.liveness.IsLive(t) {
			continue
		}
		a.liveness.MakeLive(t)
		worklist = a.propagate(t, worklist)
	}
}

// propagate applies the propagation rules of the given live term, appending
// the terms its liveness implies to the worklist.
func (a *LivenessAnalyzer) propagate(t ir.Term, worklist []ir.Term) []ir.Term {
	if a.preferConstants && t.IsRead() && a.dataflow.Value(t).IsConcrete() {
		return worklist
	}
	push := func(term ir.Term) {
		if term == nil {
			panic("ir/liveness: nil term")
		}
		worklist = append(worklist, term)
	}
	switch t := t.(type) {
	case *ir.IntConst, *ir.Intrinsic, *ir.Undefined:
		// Terminal.
	case *ir.MemoryLocationAccess:
		if t.IsRead() {
			for _, chunk := range a.dataflow.Definitions(t).Chunks {
				for _, def := range chunk.Definitions {
					push(def)
				}
			}
		} else if t.Source() != nil {
			push(t.Source())
		}
	case *ir.Dereference:
		if t.IsRead() {
			for _, chunk := range a.dataflow.Definitions(t).Chunks {
				for _, def := range chunk.Definitions {
					push(def)
				}
			}
		} else if t.Source() != nil {
			push(t.Source())
		}
		// An unresolved pointer keeps its address expression live.
		if !a.dataflow.MemoryLocation(t).Valid() {
			push(t.Addr)
		}
	case *ir.UnaryOperator:
		push(t.Operand)
	case *ir.BinaryOperator:
		push(t.Left)
		push(t.Right)
	case *ir.Choice:
		if !a.dataflow.Definitions(t.Preferred).Empty() {
			push(t.Preferred)
		} else {
			push(t.Default)
		}
	default:
		warn.Printf("liveness propagation of unsupported kind of term %v", t.Kind())
	}
	return worklist
}
