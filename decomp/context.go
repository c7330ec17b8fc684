// Package decomp sequences the decompilation pipeline; lifted IR flows
// through dataflow, signature, variable, structure, liveness and type
// analysis into a C-like syntax tree.
package decomp

import (
	"fmt"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/disasm/x86"
	"github.com/mewmew/rev/ir"
	"github.com/mewmew/rev/ir/calling"
	"github.com/mewmew/rev/ir/cflow"
	"github.com/mewmew/rev/ir/dflow"
	"github.com/mewmew/rev/ir/liveness"
	"github.com/mewmew/rev/ir/types"
	"github.com/mewmew/rev/ir/vars"
	"github.com/mewmew/rev/likec"
)

// Logger is the log sink of a decompilation run; phase labels and progress
// messages pass through it. A nil logger discards messages.
type Logger func(msg string)

// PreconditionError reports a pipeline phase run before the phases
// installing its inputs; a programmer error.
type PreconditionError struct {
	// Name of the unset artifact slot.
	Slot string
}

// Error returns the error message.
func (e *PreconditionError) Error() string {
	return fmt.Sprintf("decomp: precondition not met; artifact slot %q is unset", e.Slot)
}

// Context is the shared result store of one decompilation run. Slots are
// written once per run by their producing phase, except the conventions,
// signatures and hooks slots which bootstrap lazily and are refined in
// place. Reading an unset slot panics with *PreconditionError.
type Context struct {
	module         *bin.Module
	instructions   *x86.Instructions
	program        *ir.Program
	functions      *ir.Functions
	conventions    *calling.Conventions
	signatures     *calling.Signatures
	hooks          *calling.Hooks
	dataflows      dflow.Dataflows
	variables      *vars.Variables
	graphs         cflow.Graphs
	livenesses     liveness.Livenesses
	types          *types.Types
	tree           *likec.Tree
	termToFunction *TermToFunction

	logger Logger
}

// NewContext returns a context over the given module and its decoded
// instructions.
func NewContext(module *bin.Module, instructions *x86.Instructions) *Context {
	return &Context{module: module, instructions: instructions}
}

// SetLogger installs the log sink of the run.
func (c *Context) SetLogger(logger Logger) {
	c.logger = logger
}

// Log formats a message and passes it to the log sink of the run.
func (c *Context) Log(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger(fmt.Sprintf(format, args...))
	}
}

// Module returns the module of the run.
func (c *Context) Module() *bin.Module {
	if c.module == nil {
		panic(&PreconditionError{Slot: "module"})
	}
	return c.module
}

// Instructions returns the decoded instructions of the module.
func (c *Context) Instructions() *x86.Instructions {
	if c.instructions == nil {
		panic(&PreconditionError{Slot: "instructions"})
	}
	return c.instructions
}

// Program returns the lifted IR program.
func (c *Context) Program() *ir.Program {
	if c.program == nil {
		panic(&PreconditionError{Slot: "program"})
	}
	return c.program
}

// SetProgram installs the lifted IR program.
func (c *Context) SetProgram(program *ir.Program) {
	if c.program != nil {
		panic("decomp: program installed twice")
	}
	c.program = program
}

// Functions returns the functions of the program.
func (c *Context) Functions() *ir.Functions {
	if c.functions == nil {
		panic(&PreconditionError{Slot: "functions"})
	}
	return c.functions
}

// SetFunctions installs the functions of the program.
func (c *Context) SetFunctions(functions *ir.Functions) {
	if c.functions != nil {
		panic("decomp: functions installed twice")
	}
	c.functions = functions
}

// Conventions returns the calling convention store of the run.
func (c *Context) Conventions() *calling.Conventions {
	if c.conventions == nil {
		panic(&PreconditionError{Slot: "conventions"})
	}
	return c.conventions
}

// HasConventions reports whether the convention store is installed.
func (c *Context) HasConventions() bool {
	return c.conventions != nil
}

// SetConventions installs the calling convention store; hooks hold a
// reference into the store, refinements mutate it in place.
func (c *Context) SetConventions(conventions *calling.Conventions) {
	c.conventions = conventions
}

// Signatures returns the signature store of the run.
func (c *Context) Signatures() *calling.Signatures {
	if c.signatures == nil {
		panic(&PreconditionError{Slot: "signatures"})
	}
	return c.signatures
}

// HasSignatures reports whether the signature store is installed.
func (c *Context) HasSignatures() bool {
	return c.signatures != nil
}

// SetSignatures installs the signature store; hooks hold a reference into
// the store, refinements mutate it in place.
func (c *Context) SetSignatures(signatures *calling.Signatures) {
	c.signatures = signatures
}

// Hooks returns the calling convention hooks of the run.
func (c *Context) Hooks() *calling.Hooks {
	if c.hooks == nil {
		panic(&PreconditionError{Slot: "hooks"})
	}
	return c.hooks
}

// HasHooks reports whether the hooks are installed.
func (c *Context) HasHooks() bool {
	return c.hooks != nil
}

// SetHooks installs the calling convention hooks.
func (c *Context) SetHooks(hooks *calling.Hooks) {
	c.hooks = hooks
}

// Dataflows returns the dataflow results of the run.
func (c *Context) Dataflows() dflow.Dataflows {
	if c.dataflows == nil {
		panic(&PreconditionError{Slot: "dataflows"})
	}
	return c.dataflows
}

// SetDataflows installs the dataflow results of the run; the second dataflow
// pass refines the installed store in place.
func (c *Context) SetDataflows(dataflows dflow.Dataflows) {
	c.dataflows = dataflows
}

// Variables returns the reconstructed variables of the run.
func (c *Context) Variables() *vars.Variables {
	if c.variables == nil {
		panic(&PreconditionError{Slot: "variables"})
	}
	return c.variables
}

// SetVariables installs the reconstructed variables of the run.
func (c *Context) SetVariables(variables *vars.Variables) {
	if c.variables != nil {
		panic("decomp: variables installed twice")
	}
	c.variables = variables
}

// Graphs returns the structured control flow graphs of the run.
func (c *Context) Graphs() cflow.Graphs {
	if c.graphs == nil {
		panic(&PreconditionError{Slot: "graphs"})
	}
	return c.graphs
}

// SetGraphs installs the structured control flow graphs of the run.
func (c *Context) SetGraphs(graphs cflow.Graphs) {
	if c.graphs != nil {
		panic("decomp: graphs installed twice")
	}
	c.graphs = graphs
}

// Livenesses returns the liveness sets of the run.
func (c *Context) Livenesses() liveness.Livenesses {
	if c.livenesses == nil {
		panic(&PreconditionError{Slot: "livenesses"})
	}
	return c.livenesses
}

// SetLivenesses installs the liveness sets of the run.
func (c *Context) SetLivenesses(livenesses liveness.Livenesses) {
	if c.livenesses != nil {
		panic("decomp: livenesses installed twice")
	}
	c.livenesses = livenesses
}

// Types returns the reconstructed types of the run.
func (c *Context) Types() *types.Types {
	if c.types == nil {
		panic(&PreconditionError{Slot: "types"})
	}
	return c.types
}

// SetTypes installs the reconstructed types of the run.
func (c *Context) SetTypes(types *types.Types) {
	if c.types != nil {
		panic("decomp: types installed twice")
	}
	c.types = types
}

// Tree returns the generated syntax tree of the run.
func (c *Context) Tree() *likec.Tree {
	if c.tree == nil {
		panic(&PreconditionError{Slot: "tree"})
	}
	return c.tree
}

// SetTree installs the generated syntax tree of the run.
func (c *Context) SetTree(tree *likec.Tree) {
	if c.tree != nil {
		panic("decomp: tree installed twice")
	}
	c.tree = tree
}

// TermToFunction returns the term to function mapping of the run.
func (c *Context) TermToFunction() *TermToFunction {
	if c.termToFunction == nil {
		panic(&PreconditionError{Slot: "termToFunction"})
	}
	return c.termToFunction
}

// SetTermToFunction installs the term to function mapping of the run.
func (c *Context) SetTermToFunction(ttf *TermToFunction) {
	if c.termToFunction != nil {
		panic("decomp: term to function mapping installed twice")
	}
	c.termToFunction = ttf
}
