package bin

import (
	"sort"

	"github.com/mewkiz/pkg/jsonutil"
	"github.com/mewkiz/pkg/osutil"
	"github.com/pkg/errors"

	"github.com/mewmew/rev/arch"
)

// Module is a loaded binary executable module as seen by the decompilation
// pipeline; it resolves symbol names and carries the architecture metadata
// and the demangler of the module.
type Module struct {
	// Parsed binary executable.
	file *File
	// Architecture of the module.
	arch arch.Architecture
	// Symbol demangler of the module.
	demangler Demangler
}

// NewModule returns a module wrapping the given binary executable.
func NewModule(file *File, a arch.Architecture, d Demangler) *Module {
	if d == nil {
		d = nopDemangler{}
	}
	return &Module{file: file, arch: a, demangler: d}
}

// File returns the parsed binary executable of the module.
func (m *Module) File() *File {
	return m.file
}

// Architecture returns the architecture of the module.
func (m *Module) Architecture() arch.Architecture {
	return m.arch
}

// Demangler returns the symbol demangler of the module.
func (m *Module) Demangler() Demangler {
	return m.demangler
}

// Name returns the name of the symbol at the given address, or the empty
// string if the module has no symbol there.
func (m *Module) Name(addr Addr) string {
	syms := m.file.Symbols
	i := sort.Search(len(syms), func(i int) bool {
		return syms[i].Addr >= addr
	})
	if i < len(syms) && syms[i].Addr == addr {
		return syms[i].Name
	}
	return ""
}

// AddSymbols parses the given JSON file mapping hexadecimal addresses to
// symbol names and adds the symbols to the module; external symbol oracles
// supplement stripped symbol tables.
func (m *Module) AddSymbols(jsonPath string) error {
	if !osutil.Exists(jsonPath) {
		return errors.Errorf("unable to locate JSON file %q", jsonPath)
	}
	names := make(map[Addr]string)
	if err := jsonutil.ParseFile(jsonPath, &names); err != nil {
		return errors.WithStack(err)
	}
	for addr, name := range names {
		m.file.Symbols = append(m.file.Symbols, Symbol{Name: name, Addr: addr})
	}
	m.file.sortSymbols()
	return nil
}
