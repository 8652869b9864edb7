// lower.go implements the 'gclower lower' command.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/docker/go-units"

	"github.com/kolkov/gclower/gcpass"
)

// lowerCommand implements the 'gclower lower' command.
//
// Flow:
//  1. Parse flags and read the module (a file or "-" for stdin)
//  2. Lower every function
//  3. Write the lowered module to -o or stdout
//  4. Warn about intrinsics left in place; with -v print statistics
//
// Example:
//
//	gclower lower -gc cursor -o out.gcir prog.gcir
func lowerCommand(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("lower", flag.ContinueOnError)
	common := addCommonFlags(fs)
	output := fs.String("o", "", "write the lowered module to `file` instead of stdout")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: gclower lower [flags] file.gcir|-")
		fs.PrintDefaults()
	}
	if err := parseFlags(fs, args, stderr); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	opts, err := common.options(stderr)
	if err != nil {
		return err
	}
	src, name, err := readInput(fs.Arg(0), stdin)
	if err != nil {
		return err
	}
	out, err := gcpass.Lower(context.Background(), name, src, opts)
	if err != nil {
		return err
	}

	if *output == "" {
		if _, err := io.WriteString(stdout, out.Text); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	} else if err := os.WriteFile(*output, []byte(out.Text), 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	printResidual(stderr, out.Residual, common.gc)
	if common.verbose {
		printLowerStats(stderr, out)
	}
	return nil
}

func printLowerStats(w io.Writer, out *gcpass.Output) {
	s := out.Stats
	fmt.Fprintf(w, "lowered %d function(s), skipped %d\n", out.Lowered, out.Skipped)
	fmt.Fprintf(w, "  frames:      %d new, %d push, %d pop, %d slot (%s of stack)\n",
		s.NewFrames, s.PushFrames, s.PopFrames, s.FrameSlots, units.BytesSize(float64(s.FrameBytes)))
	fmt.Fprintf(w, "  allocations: %d total, %d pool, %d big, %d typed, %d inline (%s static)\n",
		s.AllocBytes, s.PoolAllocs, s.BigAllocs, s.TypedAllocs, s.InlineAllocs, units.BytesSize(float64(s.StaticBytes)))
	fmt.Fprintf(w, "  runtime:     %d safepoints, %d queued roots, %d write barriers\n",
		s.Safepoints, s.QueueRoots, s.WriteBarriers)
}
