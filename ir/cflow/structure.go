package cflow

import (
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/dflow"
)

// StructureAnalyzer recovers structured regions of a control flow graph.
type StructureAnalyzer struct {
	graph    *Graph
	dataflow *dflow.Dataflow
}

// NewStructureAnalyzer returns a structure analyzer over the given graph.
func NewStructureAnalyzer(graph *Graph, dataflow *dflow.Dataflow) *StructureAnalyzer {
	return &StructureAnalyzer{graph: graph, dataflow: dataflow}
}

// Analyze recovers regions and appends them to the graph. Recovery is
// currently limited to the jump table pattern: an unconditional indirect
// jump whose sole conditional predecessor bounds-checks the table index.
func (a *StructureAnalyzer) Analyze() {
	// Snapshot; recovered regions append to the node list.
	nodes := a.graph.Nodes()
	for _, n := range nodes {
		basic, ok := n.(*BasicNode)
		if !ok {
			continue
		}
		if s := a.recoverSwitch(basic); s != nil {
			a.graph.addNode(s)
		}
	}
}

// recoverSwitch recovers a switch region rooted at the given node, or nil.
func (a *StructureAnalyzer) recoverSwitch(n *BasicNode) *Switch {
	jump := n.Block.Jump()
	if jump == nil || jump.IsConditional() {
		return nil
	}
	// An indirect jump through a computed table address.
	if _, ok := jump.ThenTarget.Address.(*ir.Dereference); !ok {
		return nil
	}
	return NewSwitch(n, a.boundsCheck(n))
}

// boundsCheck returns the node holding the bounds check guarding the given
// switch node, or nil; the bounds check is the sole conditional predecessor
// comparing the switch index.
func (a *StructureAnalyzer) boundsCheck(n *BasicNode) *BasicNode {
	var check *ir.BasicBlock
	for _, pred := range a.graph.Preds(n.Block) {
		jump := pred.Jump()
		if jump == nil || !jump.IsConditional() {
			continue
		}
		if check != nil {
			// More than one conditional predecessor; not a bounds check.
			return nil
		}
		check = pred
	}
	if check == nil {
		return nil
	}
	if !isComparison(check.Jump().Condition) {
		return nil
	}
	return a.graph.BasicNode(check)
}

// ### [ Helper functions ] ####################################################

// isComparison reports whether the given term is a comparison; bounds checks
// compare the table index against the table size.
func isComparison(term ir.Term) bool {
	binary, ok := term.(*ir.BinaryOperator)
	if !ok {
		return false
	}
	switch binary.Op {
	case ir.BinaryEqual, ir.BinarySignedLess, ir.BinarySignedLessOrEqual,
		ir.BinaryUnsignedLess, ir.BinaryUnsignedLessOrEqual:
		return true
	}
	return false
}
