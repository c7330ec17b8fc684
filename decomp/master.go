package decomp

import (
	"context"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"

	"github.com/mewmew/rev/cgen"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/cflow"
	"github.com/mewmew/rev/ir/dflow"
	"github.com/mewmew/rev/ir/liveness"
	"github.com/mewmew/rev/ir/sigrec"
	"github.com/mewmew/rev/ir/types"
	"github.com/mewmew/rev/ir/vars"
	"github.com/mewmew/rev/irgen"
	"github.com/mewmew/rev/likec"
)

// MasterAnalyzer sequences the phases of the decompilation pipeline over a
// context, logging each phase and polling cancellation between phases and
// between functions of bulk phases.
type MasterAnalyzer struct {
	// Options of the run.
	Options Options
	// DetectConvention is invoked on first sight of a callee identity and
	// may record a calling convention for it; nil detects nothing.
	DetectConvention func(c *Context, id calling.CalleeID)
}

// Decompile runs every phase of the pipeline in order. On success every
// artifact slot of the context is populated and the context holds the
// generated syntax tree.
func (m *MasterAnalyzer) Decompile(ctx context.Context, c *Context) error {
	c.Log("Decompiling.")

	phases := []func(context.Context, *Context) error{
		m.CreateProgram,
		m.CreateFunctions,
		m.DataflowAnalysis,
		m.ReconstructSignatures,
		m.DataflowAnalysis,
		m.ReconstructVariables,
		m.StructuralAnalysis,
		m.LivenessAnalysis,
		m.ReconstructTypes,
		m.GenerateTree,
	}
	if m.Options.CheckTree {
		phases = append(phases, m.CheckTree)
	}
	phases = append(phases, m.ComputeTermToFunctionMapping)

	for _, phase := range phases {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if err := phase(ctx, c); err != nil {
			return errors.WithStack(err)
		}
	}

	c.Log("Decompilation completed.")
	return nil
}

// CreateProgram lifts the decoded instructions of the module into an IR
// program.
func (m *MasterAnalyzer) CreateProgram(ctx context.Context, c *Context) error {
	c.Log("Creating intermediate representation of the program.")

	program := ir.NewProgram()
	gen := irgen.NewIRGenerator(c.Module(), c.Instructions(), program)
	if err := gen.Generate(ctx); err != nil {
		return errors.WithStack(err)
	}
	c.SetProgram(program)
	return nil
}

// CreateFunctions partitions the program into functions and names them.
func (m *MasterAnalyzer) CreateFunctions(ctx context.Context, c *Context) error {
	c.Log("Creating functions.")

	functions := &ir.Functions{}
	irgen.FunctionsGenerator{}.MakeFunctions(c.Module(), c.Program(), functions)

	taken := make(map[string]bool)
	for _, f := range functions.Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		m.pickFunctionName(c, f, taken)
	}
	c.SetFunctions(functions)
	return nil
}

// pickFunctionName names a function from the symbol at its entry address,
// from the address itself, or from a stable fingerprint for synthesized
// functions.
func (m *MasterAnalyzer) pickFunctionName(c *Context, f *ir.Function, taken map[string]bool) {
	if addr, ok := f.Address(); ok {
		if name := c.Module().Name(addr); name != "" {
			// Take the name of the corresponding symbol, if possible.
			cleanName := likec.CleanName(name)
			f.Name = cleanName
			if name != cleanName {
				f.AppendComment(name)
			}
			demangled := c.Module().Demangler().Demangle(name)
			if strings.Contains(demangled, "(") {
				// What we demangled has really something to do with a
				// function.
				f.AppendComment(demangled)
			}
		} else {
			// Invent a name based on the entry address.
			f.Name = fmt.Sprintf("func_%x", uint32(addr))
		}
	} else {
		// No entry address; stamp the function with the hash of its printed
		// form, stable across runs.
		stamp := xxhash.Sum64String(f.String())
		name := fmt.Sprintf("func_noentry_%x", stamp)
		for round := 1; taken[name]; round++ {
			stamp = xxhash.Sum64String(fmt.Sprintf("%s#%d", f.String(), round))
			name = fmt.Sprintf("func_noentry_%x", stamp)
		}
		f.Name = name
	}
	taken[f.Name] = true
}

// DataflowAnalysis computes the dataflow results of every function. The
// phase runs twice: the first pass discovers callees with no known
// signatures, the second refines the results with reconstructed signatures
// in place.
func (m *MasterAnalyzer) DataflowAnalysis(ctx context.Context, c *Context) error {
	c.Log("Dataflow analysis.")

	if !c.HasSignatures() {
		c.SetSignatures(calling.NewSignatures())
	}
	if !c.HasConventions() {
		c.SetConventions(calling.NewConventions())
	}
	if !c.HasHooks() {
		hooks := calling.NewHooks(c.Conventions(), c.Signatures())
		hooks.SetConventionDetector(func(id calling.CalleeID) {
			if m.DetectConvention != nil {
				m.DetectConvention(c, id)
			}
		})
		c.SetHooks(hooks)
	}
	if c.dataflows == nil {
		c.SetDataflows(make(dflow.Dataflows))
	}

	for _, f := range c.Functions().Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		if err := m.dataflowAnalysis(ctx, c, f); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// dataflowAnalysis computes the dataflow results of one function.
func (m *MasterAnalyzer) dataflowAnalysis(ctx context.Context, c *Context, f *ir.Function) error {
	c.Log("Dataflow analysis of %s.", f.Name)

	dataflow := dflow.NewDataflow()
	analyzer := dflow.NewDataflowAnalyzer(dataflow, c.Module().Architecture(), f, c.Hooks())
	if err := analyzer.Analyze(ctx); err != nil {
		return errors.WithStack(err)
	}
	c.Dataflows()[f] = dataflow
	return nil
}

// ReconstructSignatures reconstructs the signatures of the functions of the
// program and merges them into the hooked signature store.
func (m *MasterAnalyzer) ReconstructSignatures(ctx context.Context, c *Context) error {
	c.Log("Reconstructing function signatures.")

	signatures := calling.NewSignatures()
	analyzer := sigrec.NewSignatureAnalyzer(signatures, c.Functions(), c.Dataflows(), c.Hooks())
	if err := analyzer.Analyze(ctx); err != nil {
		return errors.WithStack(err)
	}
	// Hooks reference the installed store; refine it in place.
	c.Signatures().Merge(signatures)
	return nil
}

// ReconstructVariables unifies the terms of the program into variables.
func (m *MasterAnalyzer) ReconstructVariables(ctx context.Context, c *Context) error {
	c.Log("Reconstructing variables.")

	variables := vars.NewVariables()
	vars.NewVariableAnalyzer(variables, c.Functions(), c.Dataflows(), c.Module().Architecture()).Analyze()
	c.SetVariables(variables)
	return nil
}

// StructuralAnalysis builds the structured control flow graph of every
// function.
func (m *MasterAnalyzer) StructuralAnalysis(ctx context.Context, c *Context) error {
	c.Log("Structural analysis.")

	graphs := make(cflow.Graphs)
	for _, f := range c.Functions().Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		c.Log("Structural analysis of %s.", f.Name)
		graph := cflow.NewGraph()
		cflow.GraphBuilder{}.Build(graph, f)
		cflow.NewStructureAnalyzer(graph, c.Dataflows()[f]).Analyze()
		graphs[f] = graph
	}
	c.SetGraphs(graphs)
	return nil
}

// LivenessAnalysis computes the liveness set of every function.
func (m *MasterAnalyzer) LivenessAnalysis(ctx context.Context, c *Context) error {
	c.Log("Liveness analysis.")

	livenesses := make(liveness.Livenesses)
	for _, f := range c.Functions().Funcs {
		if err := ctx.Err(); err != nil {
			return errors.WithStack(err)
		}
		c.Log("Liveness analysis of %s.", f.Name)
		l := liveness.NewLiveness()
		analyzer := liveness.NewLivenessAnalyzer(l, f, c.Dataflows()[f], c.Module().Architecture(), c.Graphs()[f], c.Hooks(), c.Signatures())
		analyzer.SetPreferConstants(m.Options.PreferConstants)
		analyzer.Analyze()
		livenesses[f] = l
	}
	c.SetLivenesses(livenesses)
	return nil
}

// ReconstructTypes assigns reconstructed types to the terms of the program.
func (m *MasterAnalyzer) ReconstructTypes(ctx context.Context, c *Context) error {
	c.Log("Reconstructing types.")

	typs := types.NewTypes()
	analyzer := types.NewTypeAnalyzer(typs, c.Functions(), c.Dataflows(), c.Variables(), c.Livenesses(), c.Hooks(), c.Signatures())
	if err := analyzer.Analyze(ctx); err != nil {
		return errors.WithStack(err)
	}
	c.SetTypes(typs)
	return nil
}

// GenerateTree generates the C-like syntax tree of the module.
func (m *MasterAnalyzer) GenerateTree(ctx context.Context, c *Context) error {
	c.Log("Generating AST.")

	tree := likec.NewTree()
	gen := cgen.NewCodeGenerator(tree, c.Module(), c.Functions(), c.Hooks(), c.Signatures(), c.Dataflows(), c.Variables(), c.Graphs(), c.Livenesses(), c.Types())
	if err := gen.MakeCompilationUnit(ctx); err != nil {
		return errors.WithStack(err)
	}
	c.SetTree(tree)
	return nil
}

// CheckTree verifies that every IR statement and term referenced by the
// generated tree was collected by a census of the functions.
func (m *MasterAnalyzer) CheckTree(ctx context.Context, c *Context) error {
	c.Log("Checking AST.")

	census := ir.NewCensus(c.Hooks())
	for _, f := range c.Functions().Funcs {
		census.Visit(f)
	}
	var err error
	likec.Walk(c.Tree().Root, func(n likec.Node) {
		if err != nil {
			return
		}
		switch n := n.(type) {
		case likec.Statement:
			if origin := n.Origin(); origin != nil && !census.HasStatement(origin) {
				err = errors.Errorf("tree statement references IR statement %v outside the program", origin)
			}
		case likec.Expression:
			if term := n.Term(); term != nil && !census.HasTerm(term) {
				err = errors.Errorf("tree expression references IR term %v outside the program", term)
			}
		}
	})
	return err
}

// ComputeTermToFunctionMapping maps every term of the program to its
// function.
func (m *MasterAnalyzer) ComputeTermToFunctionMapping(ctx context.Context, c *Context) error {
	c.Log("Computing term to function mapping.")

	c.SetTermToFunction(NewTermToFunction(c.Functions(), c.Hooks()))
	return nil
}
