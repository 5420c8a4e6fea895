// Package config loads the TOML document described in §4.J: architecture
// and solver selection, exploration budgets, initial concrete input
// bindings, and the logging verbosity knob. CLI flags (§4.L) override
// whatever a loaded file sets, field by field.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"

	"symex/logging"
	"symex/smt"
	"symex/wcet"
)

// Config mirrors wcet.Request plus the logging knob; it is the on-disk
// shape, not the programmatic entry point's input type, so that TOML
// field names and tags stay independent of wcet.Request's Go field names.
type Config struct {
	Arch  string `toml:"arch"`
	Entry string `toml:"entry"`

	Solver string `toml:"solver"`

	MaxPaths      int    `toml:"max_paths"`
	MaxSteps      int    `toml:"max_steps"`
	SolverTimeout string `toml:"solver_timeout"` // parsed with time.ParseDuration
	FanoutLimit   int    `toml:"fanout_limit"`

	Parallel bool `toml:"parallel"`

	// Bindings fixes named symbolic inputs ("arg0", "arg1", ..., "sp") to
	// concrete values instead of leaving them free.
	Bindings map[string]uint64 `toml:"bindings"`

	LogLevel string `toml:"log_level"`
}

// Load parses a TOML file at path into a Config. A missing or malformed
// file is a fatal configuration error (§7 "EntryNotFound"/config errors
// are the only errors fatal to the run), wrapped with pkg/errors so the
// caller sees which file and what went wrong.
func Load(path string) (Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, errors.Wrapf(err, "config: loading %s", path)
	}
	return c, nil
}

// ToRequest converts a loaded (and flag-overridden) Config into the
// wcet.Request the programmatic entry point expects.
func (c Config) ToRequest(elfPath string) (wcet.Request, error) {
	req := wcet.Request{
		ELFPath:         elfPath,
		Arch:            c.Arch,
		Entry:           c.Entry,
		Solver:          smt.Backend(c.Solver),
		MaxPaths:        c.MaxPaths,
		MaxSteps:        c.MaxSteps,
		FanoutLimit:     c.FanoutLimit,
		InitialBindings: c.Bindings,
		Parallel:        c.Parallel,
	}
	if c.SolverTimeout != "" {
		d, err := time.ParseDuration(c.SolverTimeout)
		if err != nil {
			return wcet.Request{}, errors.Wrapf(err, "config: parsing solver_timeout %q", c.SolverTimeout)
		}
		req.SolverTimeout = d
	}
	return req, nil
}

// Level returns the configured logging verbosity, defaulting to info when
// unset or unrecognized.
func (c Config) Level() logging.Level {
	switch logging.Level(c.LogLevel) {
	case logging.LevelDebug:
		return logging.LevelDebug
	case logging.LevelTrace:
		return logging.LevelTrace
	default:
		return logging.LevelInfo
	}
}
