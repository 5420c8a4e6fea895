// Command symex is the CLI driver (§4.L): a thin wrapper around
// wcet.Analyze that loads configuration, builds a logger, and prints the
// result. It carries no analysis logic of its own.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"symex/config"
	"symex/logging"
	"symex/smt"
	"symex/wcet"
)

var (
	flagEntry    string
	flagArch     string
	flagSolver   string
	flagConfig   string
	flagMaxPaths int
	flagMaxSteps int
	flagFanout   int
	flagParallel bool
	flagVerbose  string
	flagJSON     bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "symex",
		Short: "Derive cycle-accurate WCET bounds for embedded binaries",
	}
	root.AddCommand(analyzeCmd())
	return root
}

func analyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <elf>",
		Short: "Analyze an ELF binary and report its worst-case execution time",
		Args:  cobra.ExactArgs(1),
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVar(&flagEntry, "entry", "", "entry function symbol name (required)")
	cmd.Flags().StringVar(&flagArch, "arch", "", "architecture: armv6m, armv7m, armv7em, rv32i")
	cmd.Flags().StringVar(&flagSolver, "solver", "", "SMT solver backend (empty selects "+string(smt.BackendReference)+")")
	cmd.Flags().StringVar(&flagConfig, "config", "", "path to a symex.toml configuration file")
	cmd.Flags().IntVar(&flagMaxPaths, "max-paths", 0, "maximum explored path count (0 = unbounded)")
	cmd.Flags().IntVar(&flagMaxSteps, "max-steps", 0, "maximum total executor steps (0 = unbounded)")
	cmd.Flags().IntVar(&flagFanout, "fanout-limit", 0, "symbolic address/target fan-out limit")
	cmd.Flags().BoolVar(&flagParallel, "parallel", false, "enable bounded-parallel exploration")
	cmd.Flags().StringVar(&flagVerbose, "verbose", "", "logging verbosity: info, debug, trace")
	cmd.Flags().BoolVar(&flagJSON, "json", false, "print the result as JSON instead of text")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	elfPath := args[0]

	var cfg config.Config
	if flagConfig != "" {
		loaded, err := config.Load(flagConfig)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	applyFlagOverrides(&cfg)

	if cfg.Entry == "" {
		return errors.New("symex: --entry (or config entry) is required")
	}
	if cfg.Arch == "" {
		return errors.New("symex: --arch (or config arch) is required")
	}

	log := logging.New(cfg.Level(), nil)

	req, err := cfg.ToRequest(elfPath)
	if err != nil {
		return err
	}
	req.Log = log.For(logging.ComponentWCET)

	res, err := wcet.Analyze(cmd.Context(), req)
	if err != nil {
		return errors.Wrap(err, "symex: analysis failed")
	}
	return printResult(res, flagJSON)
}

// applyFlagOverrides writes every non-zero-value flag into cfg, letting a
// flag explicitly passed on the command line win over the config file
// (§4.J "CLI flags override file values flag-by-flag").
func applyFlagOverrides(cfg *config.Config) {
	if flagEntry != "" {
		cfg.Entry = flagEntry
	}
	if flagArch != "" {
		cfg.Arch = flagArch
	}
	if flagSolver != "" {
		cfg.Solver = flagSolver
	}
	if flagMaxPaths != 0 {
		cfg.MaxPaths = flagMaxPaths
	}
	if flagMaxSteps != 0 {
		cfg.MaxSteps = flagMaxSteps
	}
	if flagFanout != 0 {
		cfg.FanoutLimit = flagFanout
	}
	if flagParallel {
		cfg.Parallel = true
	}
	if flagVerbose != "" {
		cfg.LogLevel = flagVerbose
	}
}

func printResult(res wcet.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Printf("WCET: %d cycles\n", res.WCETCycles)
	if res.Incomplete {
		fmt.Println("warning: analysis incomplete (a budget was exceeded)")
	}
	if len(res.Witness) > 0 {
		fmt.Println("witness:")
		for name, v := range res.Witness {
			fmt.Printf("  %s = %d\n", name, v)
		}
	}
	if res.PanicFound {
		fmt.Println("panic reachable, witness:")
		for name, v := range res.PanicWitness {
			fmt.Printf("  %s = %d\n", name, v)
		}
	}
	fmt.Printf("%d distinct terminal outcomes\n", len(res.Summaries))
	return nil
}
