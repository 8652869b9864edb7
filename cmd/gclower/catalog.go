// catalog.go implements the 'gclower catalog' command.
package main

import (
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/docker/go-units"

	"github.com/kolkov/gclower/internal/catalog"
	"github.com/kolkov/gclower/internal/ir"
	"github.com/kolkov/gclower/internal/layout"
)

// catalogCommand implements the 'gclower catalog' command.
//
// It prints the intrinsics front ends may call, the runtime entry points
// lowered code calls and the data layout of the selected pointer size.
//
// Example:
//
//	gclower catalog -ptr 4
func catalogCommand(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	ptr := fs.Int("ptr", 8, "target pointer size: 8 or 4")
	if err := parseFlags(fs, args, stderr); err != nil {
		return err
	}
	l, err := layout.ForPointerSize(*ptr)
	if err != nil {
		return err
	}

	m := ir.NewModule("catalog")
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "INTRINSICS")
	for _, in := range catalog.Intrinsics() {
		ret, params := in.Signature(l)
		f, err := m.Declare(in.Name, ret, params, ir.Attrs{})
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "  %s\t; %s\n", declaration(f), in.Doc)
	}
	fmt.Fprintln(tw, "\nRUNTIME ENTRY POINTS")
	for _, rf := range catalog.RuntimeFuncs() {
		ret, params := rf.Signature(l)
		f, err := m.Declare(rf.Name, ret, params, rf.Attrs)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "  %s\t\n", declaration(f))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	t := l.Thread
	fmt.Fprintf(stdout, "\nDATA LAYOUT (ABI %s)\n", l.ABI)
	fmt.Fprintf(stdout, "  pointer size %d, header %d, alloca address space %d\n", l.PointerSize, l.HeaderSize, l.AllocaAddrSpace)
	fmt.Fprintf(stdout, "  context: stack top +%d, allocd +%d, cursor +%d, limit +%d, pools +%d stride %d\n",
		t.StackTopOffset, t.AllocdOffset, t.CursorOffset, t.LimitOffset, t.PoolTableOffset, t.PoolStride)
	fmt.Fprintf(stdout, "  max pool object %s, big object header %d\n",
		units.BytesSize(float64(l.MaxPoolSize())), l.BigHeaderSize())
	fmt.Fprintf(stdout, "  %d size classes:", len(l.SizeClasses))
	for i, c := range l.SizeClasses {
		if i%12 == 0 {
			fmt.Fprint(stdout, "\n   ")
		}
		fmt.Fprintf(stdout, " %d", c)
	}
	fmt.Fprintln(stdout)
	return nil
}

// declaration returns the declare line of f without its newline.
func declaration(f *ir.Func) string {
	s := f.String()
	return s[:len(s)-1]
}
