package decomp

import (
	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Options configure a decompilation run.
type Options struct {
	// PreferConstants stops liveness propagation at reads with concrete
	// abstract values; constants are preferred to the expressions computing
	// them.
	PreferConstants bool `toml:"prefer_constants"`
	// CheckTree verifies, after tree generation, that every IR statement and
	// term referenced by the tree was collected by a census of the
	// functions.
	CheckTree bool `toml:"check_tree"`
	// Quiet suppresses non-error messages of the drivers.
	Quiet bool `toml:"quiet"`
}

// LoadOptions parses the given TOML configuration file.
func LoadOptions(path string) (*Options, error) {
	opts := &Options{}
	if _, err := toml.DecodeFile(path, opts); err != nil {
		return nil, errors.WithStack(err)
	}
	return opts, nil
}
