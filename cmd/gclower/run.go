// run.go implements the 'gclower run' command.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"

	"github.com/docker/go-units"

	"github.com/kolkov/gclower/gcpass"
)

// runConfig holds the parsed 'run' command line.
type runConfig struct {
	common     *commonFlags
	input      string
	entry      string
	heap       string
	region     string
	safepoints bool
	pinlog     bool
	args       []uint64
}

// runCommand implements the 'gclower run' command.
//
// This command lowers a module and executes its entry function on the
// runtime simulator. Parameters named %ctx and %page receive the thread
// context and the signal page; the remaining parameters take the integer
// arguments after the module name.
//
// Example:
//
//	gclower run prog.gcir
//	gclower run -entry fib -safepoints prog.gcir 20
//	gclower run -gc cursor -pinlog -region 8KiB prog.gcir
func runCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := parseRunArgs(args, stderr)
	if err != nil {
		return err
	}
	opts, err := cfg.common.options(stderr)
	if err != nil {
		return err
	}
	heap, err := units.RAMInBytes(cfg.heap)
	if err != nil {
		return fmt.Errorf("invalid -heap: %w", err)
	}
	region, err := units.RAMInBytes(cfg.region)
	if err != nil {
		return fmt.Errorf("invalid -region: %w", err)
	}
	src, name, err := readInput(cfg.input, stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := gcpass.Run(ctx, name, src, gcpass.RunOptions{
		Options:    opts,
		Entry:      cfg.entry,
		Args:       cfg.args,
		HeapSize:   heap,
		RegionSize: region,
		Safepoints: cfg.safepoints,
		PinLog:     cfg.pinlog,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "@%s returned %d\n", cfg.entry, int64(res.Value))
	if cfg.safepoints {
		fmt.Fprintf(stdout, "deepest shadow stack: %d frame(s), %d root(s)\n", res.MaxFrames, res.MaxRoots)
	}
	if cfg.common.verbose {
		fmt.Fprintf(stderr, "runtime: %s\n", res.Runtime)
	}
	if res.Pins != nil {
		if err := res.Pins.WriteJSON(stderr); err != nil {
			return err
		}
		fmt.Fprintln(stderr, "=========================")
	}
	return nil
}

// parseRunArgs parses the flags, the module name and the integer entry
// arguments.
//
// Returns:
//   - runConfig for the run
//   - error if the flags or arguments are malformed
func parseRunArgs(args []string, stderr io.Writer) (*runConfig, error) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfg := &runConfig{common: addCommonFlags(fs)}
	fs.StringVar(&cfg.entry, "entry", "main", "function to execute")
	fs.StringVar(&cfg.heap, "heap", "64MiB", "simulated address space `size`")
	fs.StringVar(&cfg.region, "region", "32KiB", "bump region `size` handed out by the slow path")
	fs.BoolVar(&cfg.safepoints, "safepoints", false, "walk the shadow stack at every safepoint")
	fs.BoolVar(&cfg.pinlog, "pinlog", false, "record gc_pin calls and print the pinning log")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: gclower run [flags] file.gcir|- [int args...]")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args, stderr); err != nil {
		return nil, err
	}
	if fs.NArg() < 1 {
		fs.Usage()
		return nil, errUsage
	}
	cfg.input = fs.Arg(0)
	for _, a := range fs.Args()[1:] {
		v, err := parseArg(a)
		if err != nil {
			return nil, err
		}
		cfg.args = append(cfg.args, v)
	}
	return cfg, nil
}

// parseArg parses a signed or unsigned integer in Go syntax.
func parseArg(s string) (uint64, error) {
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return uint64(v), nil
	}
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid argument %q: want an integer", s)
	}
	return v, nil
}
