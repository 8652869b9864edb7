// Package pinlog records object pinning events for diagnosing incorrect
// pinning.
//
// Design:
//   - Record appends (object, site) to a fixed-capacity linear buffer
//     under a mutex; running out of capacity is fatal
//   - Coalesce folds the buffer into an ordered object → site → count map
//     and empties the buffer
//   - Collect coalesces and drops every object the registered liveness
//     callback reports dead
//   - WriteJSON prints the coalesced log, objects by address and sites by
//     line then file
//
// A Log records nothing until it is enabled. The package-level functions
// operate on a process-wide default log.
//
// Usage:
//
//	pinlog.Enable()
//	pinlog.Record(obj, "alloc.jl", 12)
//	pinlog.SetCheckAlive(isAlive)
//	pinlog.Collect()
//	pinlog.WriteJSON(os.Stderr)
package pinlog

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// DefaultCapacity is the linear buffer size of a log created with
// capacity zero.
const DefaultCapacity = 1 << 20

// Site is a source location that pinned an object.
type Site struct {
	File string
	Line int
}

// String formats the site as file:line.
func (s Site) String() string {
	file := s.File
	if file == "" {
		file = "unknown"
	}
	return fmt.Sprintf("%s:%d", file, s.Line)
}

func siteLess(a, b Site) bool {
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.File < b.File
}

// SiteCount is the number of pins of one object from one site.
type SiteCount struct {
	Site
	Count int
}

// pinnedObject is one object of the coalesced log with its sites.
type pinnedObject struct {
	addr  uint64
	sites *btree.BTreeG[SiteCount]
}

// Object is a snapshot of one coalesced object.
type Object struct {
	Addr  uint64
	Type  string
	Sites []SiteCount
}

type entry struct {
	obj  uint64
	site Site
}

// Log is a pinning log.
//
// Thread Safety: All methods are safe for concurrent use.
type Log struct {
	enabled atomic.Bool

	mu       sync.Mutex
	capacity int
	buf      []entry
	objects  *btree.BTreeG[*pinnedObject]
	alive    func(obj uint64) bool
	typeName func(obj uint64) string
}

// New creates a disabled log whose linear buffer holds capacity entries.
// The buffer is allocated when the log is enabled.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		objects: btree.NewG[*pinnedObject](16, func(a, b *pinnedObject) bool {
			return a.addr < b.addr
		}),
	}
}

// Enable starts recording.
func (l *Log) Enable() {
	l.mu.Lock()
	if l.buf == nil {
		l.buf = make([]entry, 0, l.capacity)
	}
	l.mu.Unlock()
	l.enabled.Store(true)
}

// Enabled reports whether the log records events.
func (l *Log) Enabled() bool { return l.enabled.Load() }

// Record logs that obj was pinned at file:line. Null objects are ignored.
//
// Record panics when the linear buffer is full; call Coalesce or Collect
// often enough to keep it drained.
func (l *Log) Record(obj uint64, file string, line int) {
	if !l.enabled.Load() || obj == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.buf) >= l.capacity {
		panic(fmt.Sprintf("pinlog: linear buffer capacity %d exceeded", l.capacity))
	}
	l.buf = append(l.buf, entry{obj: obj, site: Site{File: file, Line: line}})
}

// Pending returns the number of entries not yet coalesced.
func (l *Log) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buf)
}

// SetCheckAlive registers the liveness callback used by Collect and the
// report. With no callback every object is alive.
func (l *Log) SetCheckAlive(fn func(obj uint64) bool) {
	l.mu.Lock()
	l.alive = fn
	l.mu.Unlock()
}

// SetTypeNamer registers the callback naming the type of a live object in
// the report.
func (l *Log) SetTypeNamer(fn func(obj uint64) string) {
	l.mu.Lock()
	l.typeName = fn
	l.mu.Unlock()
}

// Coalesce folds the linear buffer into the coalesced log.
func (l *Log) Coalesce() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coalesceLocked()
}

func (l *Log) coalesceLocked() {
	for _, e := range l.buf {
		obj, ok := l.objects.Get(&pinnedObject{addr: e.obj})
		if !ok {
			obj = &pinnedObject{addr: e.obj, sites: btree.NewG[SiteCount](8, func(a, b SiteCount) bool {
				return siteLess(a.Site, b.Site)
			})}
			l.objects.ReplaceOrInsert(obj)
		}
		sc, _ := obj.sites.Get(SiteCount{Site: e.site})
		sc.Site = e.site
		sc.Count++
		obj.sites.ReplaceOrInsert(sc)
	}
	l.buf = l.buf[:0]
}

// Collect coalesces pending entries and forgets every object the liveness
// callback reports dead. It returns the number of objects dropped.
func (l *Log) Collect() int {
	if !l.enabled.Load() {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coalesceLocked()
	if l.alive == nil {
		return 0
	}
	var dead []*pinnedObject
	l.objects.Ascend(func(o *pinnedObject) bool {
		if !l.alive(o.addr) {
			dead = append(dead, o)
		}
		return true
	})
	for _, o := range dead {
		l.objects.Delete(o)
	}
	return len(dead)
}

// Objects coalesces pending entries and returns the coalesced log in
// address order.
func (l *Log) Objects() []Object {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.coalesceLocked()
	out := make([]Object, 0, l.objects.Len())
	l.objects.Ascend(func(o *pinnedObject) bool {
		obj := Object{Addr: o.addr, Type: l.typeOfLocked(o.addr)}
		o.sites.Ascend(func(sc SiteCount) bool {
			obj.Sites = append(obj.Sites, sc)
			return true
		})
		out = append(out, obj)
		return true
	})
	return out
}

func (l *Log) typeOfLocked(addr uint64) string {
	if l.alive != nil && !l.alive(addr) {
		return "unknown"
	}
	if l.typeName == nil {
		return "unknown"
	}
	return l.typeName(addr)
}

// Reset discards every pending and coalesced entry.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = l.buf[:0]
	l.objects.Clear(false)
}
