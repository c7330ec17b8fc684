// Package cflow builds the structured control flow graph of a function and
// recovers regions such as switches from the lifted jump patterns.
package cflow

import (
	"fmt"

	"github.com/mewmew/rev/ir"
)

// Node is a node of the structured control flow graph.
type Node interface {
	fmt.Stringer
	// isNode restricts the interface to node variants of this package.
	isNode()
}

// BasicNode wraps one basic block of the function.
type BasicNode struct {
	// Wrapped basic block.
	Block *ir.BasicBlock
}

func (*BasicNode) isNode() {}

// String returns the string representation of the node.
func (n *BasicNode) String() string {
	return n.Block.Name()
}

// RegionKind discriminates the recovered region structures.
type RegionKind uint8

// Region kinds.
const (
	// RegionCompound groups nodes with no recovered structure.
	RegionCompound RegionKind = iota + 1
	// RegionSwitch is a switch recovered from an indirect jump through a
	// jump table.
	RegionSwitch
)

// Region is a recovered control flow structure over a set of nodes.
type Region struct {
	// Kind of the region.
	Kind RegionKind
	// Nodes grouped by the region.
	Children []Node
}

func (*Region) isNode() {}

// String returns the string representation of the region.
func (r *Region) String() string {
	switch r.Kind {
	case RegionSwitch:
		return "switch region"
	}
	return "region"
}

// Switch is a region recovered from an indirect jump through a jump table;
// the bounds check node, when known, terminates in a jump made redundant by
// the switch itself.
type Switch struct {
	Region
	// Node holding the indirect jump.
	SwitchNode *BasicNode
	// Node whose terminating jump bounds-checks the switch index; nil when
	// the bounds check was not recovered.
	boundsCheckNode *BasicNode
}

// NewSwitch returns a new switch region over the given indirect jump node
// and optional bounds check node.
func NewSwitch(switchNode, boundsCheckNode *BasicNode) *Switch {
	s := &Switch{
		Region:          Region{Kind: RegionSwitch},
		SwitchNode:      switchNode,
		boundsCheckNode: boundsCheckNode,
	}
	s.Children = append(s.Children, switchNode)
	if boundsCheckNode != nil {
		s.Children = append(s.Children, boundsCheckNode)
	}
	return s
}

// BoundsCheckNode returns the node whose terminating jump is subsumed by the
// switch, or nil.
func (s *Switch) BoundsCheckNode() *BasicNode {
	return s.boundsCheckNode
}

// Graph is the structured control flow graph of one function.
type Graph struct {
	// Nodes of the graph; basic nodes first, recovered regions appended by
	// the structure analyzer.
	nodes []Node
	// Basic node of each basic block.
	basic map[*ir.BasicBlock]*BasicNode
	// Predecessor blocks of each basic block.
	preds map[*ir.BasicBlock][]*ir.BasicBlock
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		basic: make(map[*ir.BasicBlock]*BasicNode),
		preds: make(map[*ir.BasicBlock][]*ir.BasicBlock),
	}
}

// Nodes returns the nodes of the graph.
func (g *Graph) Nodes() []Node {
	return g.nodes
}

// BasicNode returns the node wrapping the given basic block, or nil.
func (g *Graph) BasicNode(block *ir.BasicBlock) *BasicNode {
	return g.basic[block]
}

// Preds returns the predecessor blocks of the given basic block.
func (g *Graph) Preds(block *ir.BasicBlock) []*ir.BasicBlock {
	return g.preds[block]
}

// addNode appends the given node to the graph.
func (g *Graph) addNode(n Node) {
	g.nodes = append(g.nodes, n)
}

// Graphs holds the structured control flow graph of each function.
type Graphs map[*ir.Function]*Graph
