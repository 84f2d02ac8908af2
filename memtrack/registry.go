// Package memtrack records live tracked allocations so leaks, double frees and
// frees of untracked buffers can be detected, and all live allocations can be
// dumped on demand.
package memtrack

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/dianlight/scopelog/callpath"
	"github.com/dianlight/scopelog/internal/clock"
	"github.com/dianlight/scopelog/internal/gls"
)

// PathSource supplies the calling goroutine's breadcrumb.
type PathSource interface {
	Current() string
}

// LineWriter writes one complete, newline-terminated line. Implementations
// serialise lines with the rest of the log output.
type LineWriter interface {
	WriteLine(line string) bool
}

// Entry describes one live allocation.
type Entry struct {
	Addr      uintptr
	Size      int
	Millis    uint64 // allocation time, ms since the clock's epoch
	Goroutine uint64
	Path      string // provenance captured at allocation; not updated on realloc

	seq uint64
	ref unsafe.Pointer // keeps the buffer reachable while it is tracked
}

// Registry maps the current address of every live allocation to its Entry.
// Add, Update and Remove take the write lock; Dump and the read accessors take
// the read lock. None of them log while holding the lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[uintptr]*Entry
	seq     uint64

	clock clock.Clock
	paths PathSource
}

// NewRegistry returns an empty registry. paths may be nil, in which case
// provenance is the allocation site alone.
func NewRegistry(c clock.Clock, paths PathSource) *Registry {
	return &Registry{
		entries: make(map[uintptr]*Entry),
		clock:   c,
		paths:   paths,
	}
}

// Add records a new allocation. A zero address means the allocation failed
// and is ignored.
func (r *Registry) Add(addr uintptr, ref unsafe.Pointer, size int, file string, line int) {
	if addr == 0 {
		return
	}
	site := callpath.Frame{File: file, Line: line}.String()
	breadcrumb := ""
	if r.paths != nil {
		breadcrumb = r.paths.Current()
	}
	e := &Entry{
		Addr:      addr,
		Size:      size,
		Millis:    r.clock.Millis(),
		Goroutine: gls.ID(),
		Path:      callpath.Join(breadcrumb, site),
		ref:       ref,
	}

	r.mu.Lock()
	r.seq++
	e.seq = r.seq
	r.entries[addr] = e
	r.mu.Unlock()
}

// Update moves the entry for oldAddr to newAddr and records the new size.
// Every other field, the provenance path included, is preserved. Unknown
// addresses are ignored.
func (r *Registry) Update(oldAddr, newAddr uintptr, ref unsafe.Pointer, size int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[oldAddr]
	if !ok {
		return
	}
	if oldAddr != newAddr {
		delete(r.entries, oldAddr)
		e.Addr = newAddr
		r.entries[newAddr] = e
	}
	e.Size = size
	e.ref = ref
}

// Remove forgets the allocation at addr and reports whether it was tracked.
func (r *Registry) Remove(addr uintptr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[addr]; !ok {
		return false
	}
	delete(r.entries, addr)
	return true
}

// Lookup returns a copy of the entry at addr.
func (r *Registry) Lookup(addr uintptr) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[addr]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Len returns the number of live allocations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Snapshot returns copies of all live entries in allocation order.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.sortedLocked() {
		out = append(out, *e)
	}
	return out
}

// Reset drops every entry.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.entries = make(map[uintptr]*Entry)
	r.mu.Unlock()
}

// Dump writes a header, one line per live allocation and a blank line.
func (r *Registry) Dump(w LineWriter) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	w.WriteLine("\nunfreed memory:\n")
	for _, e := range r.sortedLocked() {
		w.WriteLine(FormatEntry(*e))
	}
	w.WriteLine("\n")
}

// FormatEntry renders an entry the way Dump prints it.
func FormatEntry(e Entry) string {
	return fmt.Sprintf("\t%dms | tid %d | address 0x%x | %d bytes | at %s\n",
		e.Millis, e.Goroutine, e.Addr, e.Size, e.Path)
}

func (r *Registry) sortedLocked() []*Entry {
	list := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })
	return list
}
