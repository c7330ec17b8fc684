package cflow

import (
	"github.com/mewmew/rev/ir"
)

// GraphBuilder builds the control flow graph of a function.
type GraphBuilder struct{}

// Build populates graph with a basic node per basic block of f and the edges
// of its terminating jumps.
func (GraphBuilder) Build(graph *Graph, f *ir.Function) {
	for _, block := range f.Blocks() {
		n := &BasicNode{Block: block}
		graph.basic[block] = n
		graph.addNode(n)
	}
	for _, block := range f.Blocks() {
		jump := block.Jump()
		if jump == nil {
			continue
		}
		for _, target := range []ir.JumpTarget{jump.ThenTarget, jump.ElseTarget} {
			if target.Block != nil {
				graph.preds[target.Block] = append(graph.preds[target.Block], block)
			}
		}
	}
}
