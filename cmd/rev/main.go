// The rev tool decompiles binary executables to C.
//
// Separation of concern is handled through reliance on oracles; a JSON file
// may supply symbol names for stripped binaries, and a TOML file configures
// the pipeline.
package main

import (
	"context"
	"flag"
	"io/ioutil"
	"log"
	"os"
	"os/signal"

	"github.com/kr/pretty"
	"github.com/mewkiz/pkg/osutil"
	"github.com/mewkiz/pkg/term"
	goterm "golang.org/x/term"

	"github.com/mewmew/rev/bin"
	"github.com/mewmew/rev/decomp"
	"github.com/mewmew/rev/disasm/x86"
	"github.com/mewmew/rev/ir/calling"
)

var (
	// dbg is a logger which logs debug messages with "rev:" prefix to standard
	// error.
	dbg = log.New(os.Stderr, term.MagentaBold("rev:")+" ", 0)
	// warn is a logger which logs warning messages with "warning:" prefix to
	// standard error.
	warn = log.New(os.Stderr, term.RedBold("warning:")+" ", 0)
)

func main() {
	// Parse command line arguments.
	var (
		// quiet specifies whether to suppress non-error messages.
		quiet bool
		// verbose specifies whether to dump reconstructed signatures.
		verbose bool
		// confPath is the path of an optional TOML configuration file.
		confPath string
		// symsPath is the path of an optional JSON symbol name file.
		symsPath string
	)
	flag.BoolVar(&quiet, "q", false, "suppress non-error messages")
	flag.BoolVar(&verbose, "v", false, "dump reconstructed signatures")
	flag.StringVar(&confPath, "config", "rev.toml", "decompilation configuration file")
	flag.StringVar(&symsPath, "syms", "syms.json", "symbol name JSON file")
	flag.Parse()

	opts := &decomp.Options{}
	if osutil.Exists(confPath) {
		var err error
		opts, err = decomp.LoadOptions(confPath)
		if err != nil {
			log.Fatalf("%+v", err)
		}
	}
	// Skip debug output if -q is set or stderr is not a terminal.
	if quiet || opts.Quiet || !goterm.IsTerminal(int(os.Stderr.Fd())) {
		dbg.SetOutput(ioutil.Discard)
	}

	// Cancel the run on interrupt.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// Decompile binary executables.
	for _, binPath := range flag.Args() {
		if err := decompile(ctx, binPath, symsPath, opts, verbose); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

// decompile decompiles the given binary executable and prints the
// reconstructed C to standard output.
func decompile(ctx context.Context, binPath, symsPath string, opts *decomp.Options, verbose bool) error {
	dbg.Printf("decompile(binPath = %q)", binPath)

	// Parse PE file.
	file, err := bin.ParsePE(binPath)
	if err != nil {
		return err
	}
	module := bin.NewModule(file, x86.Arch{}, bin.ItaniumDemangler{})
	if osutil.Exists(symsPath) {
		if err := module.AddSymbols(symsPath); err != nil {
			warn.Printf("unable to add symbols from %q; %v", symsPath, err)
		}
	}

	// Decode x86 instructions of the binary executable.
	insts, err := x86.Disasm(file)
	if err != nil {
		return err
	}

	// Run the decompilation pipeline.
	c := decomp.NewContext(module, insts)
	c.SetLogger(func(msg string) {
		dbg.Print(msg)
	})
	master := &decomp.MasterAnalyzer{
		Options: *opts,
		DetectConvention: func(c *decomp.Context, id calling.CalleeID) {
			if c.Conventions().Convention(id) == nil {
				c.Conventions().SetConvention(id, x86.FastcallConvention())
			}
		},
	}
	if err := master.Decompile(ctx, c); err != nil {
		return err
	}

	if verbose {
		dumpSignatures(c)
	}

	// Print the reconstructed C.
	return c.Tree().Print(os.Stdout)
}

// dumpSignatures prints the reconstructed signature of every function.
func dumpSignatures(c *decomp.Context) {
	for _, f := range c.Functions().Funcs {
		id, ok := c.Hooks().GetCalleeID(f)
		if !ok {
			continue
		}
		sig := c.Signatures().Signature(id)
		if sig == nil {
			continue
		}
		dbg.Printf("signature of %s:", f.Name)
		pretty.Println(sig)
	}
}
