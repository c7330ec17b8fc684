package irgen

import (
	"sort"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/ir"
)

// FunctionsGenerator partitions an IR program into functions.
type FunctionsGenerator struct{}

// MakeFunctions partitions the given program into functions; a function per
// call target, module entry point and named address, each spanning the
// blocks reachable from its entry through jumps.
func (FunctionsGenerator) MakeFunctions(module *bin.Module, prog *ir.Program, functions *ir.Functions) {
	entries := make(map[bin.Addr]bool)
	if entry := module.File().Entry; prog.Block(entry) != nil {
		entries[entry] = true
	}
	for _, sym := range module.File().Symbols {
		if prog.Block(sym.Addr) != nil {
			entries[sym.Addr] = true
		}
	}
	for _, block := range prog.Blocks {
		for _, stmt := range block.Statements() {
			call, ok := stmt.(*ir.Call)
			if !ok {
				continue
			}
			if target, ok := call.Target.(*ir.IntConst); ok {
				if prog.Block(bin.Addr(target.Value)) != nil {
					entries[bin.Addr(target.Value)] = true
				}
			}
		}
	}
	var addrs bin.Addrs
	for addr := range entries {
		addrs = append(addrs, addr)
	}
	sort.Sort(addrs)
	claimed := make(map[*ir.BasicBlock]bool)
	for _, addr := range addrs {
		entry := prog.Block(addr)
		blocks := reachable(entry, claimed)
		functions.Add(ir.NewFunction(entry, blocks))
	}
	dbg.Printf("created %d functions", len(functions.Funcs))
}

// ### [ Helper functions ] ####################################################

// reachable returns the blocks reachable from entry through jumps, skipping
// blocks already claimed by another function; entry first, then ascending
// address order.
func reachable(entry *ir.BasicBlock, claimed map[*ir.BasicBlock]bool) []*ir.BasicBlock {
	seen := map[*ir.BasicBlock]bool{entry: true}
	claimed[entry] = true
	worklist := []*ir.BasicBlock{entry}
	var blocks []*ir.BasicBlock
	for len(worklist) > 0 {
		block := worklist[0]
		worklist = worklist[1:]
		blocks = append(blocks, block)
		jump := block.Jump()
		if jump == nil {
			continue
		}
		for _, target := range []ir.JumpTarget{jump.ThenTarget, jump.ElseTarget} {
			if target.Block == nil || seen[target.Block] || claimed[target.Block] {
				continue
			}
			seen[target.Block] = true
			claimed[target.Block] = true
			worklist = append(worklist, target.Block)
		}
	}
	sort.Slice(blocks[1:], func(i, j int) bool {
		a, _ := blocks[1+i].Address()
		b, _ := blocks[1+j].Address()
		return a < b
	})
	return blocks
}
