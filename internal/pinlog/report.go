package pinlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// reportSite and reportObject are the JSON shape of the report.
type reportSite struct {
	Filename string `json:"filename"`
	Lineno   int    `json:"lineno"`
	Count    int    `json:"count"`
}

type reportObject struct {
	PinnedObject string       `json:"pinned_object"`
	Type         string       `json:"type"`
	PinningSites []reportSite `json:"pinning_sites"`
}

// WriteJSON coalesces pending entries and writes the log as an indented
// JSON array, one element per pinned object.
//
// Example output:
//
//	[
//	  {
//	    "pinned_object": "0x10040",
//	    "type": "Vector",
//	    "pinning_sites": [
//	      {
//	        "filename": "alloc.jl",
//	        "lineno": 12,
//	        "count": 3
//	      }
//	    ]
//	  }
//	]
func (l *Log) WriteJSON(w io.Writer) error {
	objs := l.Objects()
	report := make([]reportObject, 0, len(objs))
	for _, o := range objs {
		ro := reportObject{
			PinnedObject: fmt.Sprintf("%#x", o.Addr),
			Type:         o.Type,
			PinningSites: make([]reportSite, 0, len(o.Sites)),
		}
		for _, s := range o.Sites {
			file := s.File
			if file == "" {
				file = "unknown"
			}
			ro.PinningSites = append(ro.PinningSites, reportSite{Filename: file, Lineno: s.Line, Count: s.Count})
		}
		report = append(report, ro)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write pinning log: %w", err)
	}
	return nil
}

// Print writes the report to stderr followed by a separator line. It does
// nothing while the log is disabled.
func (l *Log) Print() {
	if !l.Enabled() {
		return
	}
	if err := l.WriteJSON(os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	fmt.Fprintln(os.Stderr, "=========================")
}
