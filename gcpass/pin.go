package gcpass

import (
	"io"

	"github.com/kolkov/gclower/internal/interp"
	"github.com/kolkov/gclower/internal/pinlog"
)

// PinLog is a coalesced pinning log.
type PinLog = pinlog.Log

// PinnedObject is one object of a pinning log with its pin sites.
type PinnedObject = pinlog.Object

// newRunPinLog returns an enabled log whose liveness and type names come
// from the runtime's spans. file names every recorded site.
func newRunPinLog(mach *interp.Machine, file string) *pinlog.Log {
	l := pinlog.New(0)
	l.SetCheckAlive(func(obj uint64) bool {
		_, ok := mach.SpanOf(obj)
		return ok
	})
	l.SetTypeNamer(func(obj uint64) string {
		s, ok := mach.SpanOf(obj)
		switch {
		case !ok:
			return "unknown"
		case s.Big:
			return "big object"
		default:
			return "pooled object"
		}
	})
	l.Enable()
	return l
}

// EnablePinLog starts recording into the process-wide pinning log.
//
// The log records nothing until enabled, so RecordPin is cheap in
// programs that never call EnablePinLog.
func EnablePinLog() {
	pinlog.Enable()
}

// PinLogEnabled reports whether the process-wide pinning log records.
func PinLogEnabled() bool {
	return pinlog.Enabled()
}

// RecordPin logs that obj was pinned at file:line.
//
// Recording panics when the log's buffer is full; call CollectPins
// periodically in long-running programs.
func RecordPin(obj uint64, file string, line int) {
	pinlog.Record(obj, file, line)
}

// RecordPinHere logs that obj was pinned at the caller's source location.
func RecordPinHere(obj uint64) {
	pinlog.Default().RecordCaller(obj, 1)
}

// SetPinCheckAlive registers the liveness callback CollectPins uses to
// forget dead objects.
func SetPinCheckAlive(fn func(obj uint64) bool) {
	pinlog.SetCheckAlive(fn)
}

// SetPinTypeNamer registers the callback naming live objects in reports.
func SetPinTypeNamer(fn func(obj uint64) string) {
	pinlog.SetTypeNamer(fn)
}

// CollectPins coalesces the process-wide log and forgets dead objects. It
// returns the number of objects forgotten.
func CollectPins() int {
	return pinlog.Collect()
}

// WritePinLog writes the process-wide log as JSON.
func WritePinLog(w io.Writer) error {
	return pinlog.WriteJSON(w)
}

// PrintPinLog writes the process-wide log to stderr when it is enabled.
func PrintPinLog() {
	pinlog.Print()
}
