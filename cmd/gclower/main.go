// Package main implements the gclower CLI tool.
//
// The gclower tool lowers the GC intrinsics of a .gcir module for a chosen
// collector and target, and can run lowered modules on a simulated
// runtime. It works by:
//
//  1. Parsing the module text
//  2. Rewriting frame, safepoint, barrier and allocation intrinsics
//  3. Verifying the rewritten functions
//  4. Printing the result, or executing it against the runtime simulator
//
// Usage:
//
//	gclower lower prog.gcir            # Print the lowered module
//	gclower run -gc cursor prog.gcir   # Lower and execute @main
//	gclower catalog                    # List intrinsics and runtime entries
//
// This is the CLI entry point for the standalone lowering tool.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kolkov/gclower/gcpass"
)

const version = gcpass.Version

func main() {
	os.Exit(dispatch(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// dispatch runs one command and returns the process exit code.
func dispatch(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	command := args[0]
	var err error
	switch command {
	case "lower":
		err = lowerCommand(args[1:], stdin, stdout, stderr)
	case "run":
		err = runCommand(args[1:], stdin, stdout, stderr)
	case "catalog":
		err = catalogCommand(args[1:], stdout, stderr)
	case "version", "--version":
		fmt.Fprintf(stdout, "gclower version %s (runtime ABI %s)\n", version, gcpass.ABI)
	case "help", "--help", "-h":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, errUsage):
		return 2
	}
	fmt.Fprintf(stderr, "Error: %v\n", err)
	return 1
}

// errUsage marks flag errors the flag package has already reported.
var errUsage = errors.New("usage error")

func printUsage(w io.Writer) {
	fmt.Fprint(w, `gclower - GC frame lowering and allocation fast-path tool

USAGE:
    gclower <command> [flags] [arguments]

COMMANDS:
    lower      Lower the GC intrinsics of a module and print it
    run        Lower a module and execute it on the runtime simulator
    catalog    List intrinsics, runtime entry points and the data layout
    version    Show version information
    help       Show this help message

COMMON FLAGS:
    -gc pool|cursor    Collector the code cooperates with (default pool)
    -inline=false      Turn the allocation fast path into runtime calls
    -ptr 8|4           Target pointer size (default 8)
    -v                 Print statistics
    -debug             Trace the pass on stderr

EXAMPLES:
    # Lower for the moving collector, inlining small allocations
    gclower lower -gc cursor -o prog.lowered.gcir prog.gcir

    # Lower from stdin
    cat prog.gcir | gclower lower -

    # Run @fib(20) and check the shadow stack at every safepoint
    gclower run -entry fib -safepoints prog.gcir 20

    # Run with a pinning log report
    gclower run -pinlog -heap 16MiB -region 8KiB prog.gcir

    # Show the 32-bit data layout
    gclower catalog -ptr 4

`)
}

// commonFlags are the flags every lowering command accepts.
type commonFlags struct {
	gc      string
	inline  bool
	ptr     int
	verbose bool
	debug   bool
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	fs.StringVar(&c.gc, "gc", "pool", "collector: pool or cursor")
	fs.BoolVar(&c.inline, "inline", true, "inline the allocation fast path")
	fs.IntVar(&c.ptr, "ptr", 8, "target pointer size: 8 or 4")
	fs.BoolVar(&c.verbose, "v", false, "print statistics")
	fs.BoolVar(&c.debug, "debug", false, "trace the pass on stderr")
	return c
}

// options converts the flags to pass options. Debug tracing goes to
// stderr.
func (c *commonFlags) options(stderr io.Writer) (gcpass.Options, error) {
	collector, err := gcpass.ParseCollector(c.gc)
	if err != nil {
		return gcpass.Options{}, err
	}
	opts := gcpass.Options{
		Collector:   collector,
		NoInline:    !c.inline,
		PointerSize: c.ptr,
	}
	if c.debug {
		opts.Logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return opts, nil
}

// parseFlags parses args into fs, mapping flag errors to errUsage.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) error {
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return errUsage
	}
	return nil
}

// readInput reads the named module file, or stdin for "-".
func readInput(name string, stdin io.Reader) ([]byte, string, error) {
	if name == "-" {
		src, err := io.ReadAll(stdin)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return src, "<stdin>", nil
	}
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read module: %w", err)
	}
	return src, name, nil
}

// printResidual warns about intrinsics the collector does not lower.
func printResidual(stderr io.Writer, residual []string, collector string) {
	for _, r := range residual {
		fmt.Fprintf(stderr, "warning: not lowered for the %s collector: %s\n", collector, r)
	}
}
