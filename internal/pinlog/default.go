package pinlog

import (
	"io"
	"runtime"
	"strings"
)

// std is the process-wide log.
var std = New(DefaultCapacity)

// Default returns the process-wide log.
func Default() *Log { return std }

// Enable starts recording into the process-wide log.
func Enable() { std.Enable() }

// Enabled reports whether the process-wide log records events.
func Enabled() bool { return std.Enabled() }

// Record logs a pin of obj at file:line into the process-wide log.
func Record(obj uint64, file string, line int) { std.Record(obj, file, line) }

// SetCheckAlive registers the process-wide liveness callback.
func SetCheckAlive(fn func(obj uint64) bool) { std.SetCheckAlive(fn) }

// SetTypeNamer registers the process-wide type-name callback.
func SetTypeNamer(fn func(obj uint64) string) { std.SetTypeNamer(fn) }

// Collect coalesces the process-wide log and drops dead objects.
func Collect() int { return std.Collect() }

// WriteJSON writes the process-wide log as JSON.
func WriteJSON(w io.Writer) error { return std.WriteJSON(w) }

// Print writes the process-wide log to stderr.
func Print() { std.Print() }

// RecordCaller logs a pin of obj at the source location of a caller.
// skip 0 names the caller of RecordCaller. Runtime-internal frames are
// skipped.
func (l *Log) RecordCaller(obj uint64, skip int) {
	if !l.Enabled() {
		return
	}
	file, line := caller(skip + 2)
	l.Record(obj, file, line)
}

// RecordCaller logs a pin of obj at the caller's location into the
// process-wide log.
func RecordCaller(obj uint64) {
	if !std.Enabled() {
		return
	}
	file, line := caller(2)
	std.Record(obj, file, line)
}

// caller resolves the first non-runtime frame at or above skip.
func caller(skip int) (string, int) {
	var pcs [8]uintptr
	n := runtime.Callers(skip+1, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if !strings.HasPrefix(frame.Function, "runtime.") {
			return frame.File, frame.Line
		}
		if !more {
			break
		}
	}
	return "", 0
}
