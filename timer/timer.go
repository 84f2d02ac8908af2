// Package timer measures nested code regions per goroutine and aggregates the
// results per call-site and, below that, per call-path.
//
// A call-site is the "file:line" where a region was started. A call-path adds
// the breadcrumbs active at start and at stop together with the stop site, so
// the same region reached through different scopes is reported separately.
package timer

import (
	"fmt"
	"strconv"

	"github.com/dianlight/scopelog/callpath"
	"github.com/dianlight/scopelog/internal/clock"
	"github.com/dianlight/scopelog/internal/gls"
)

// PathSource supplies the calling goroutine's breadcrumb.
type PathSource interface {
	Current() string
}

// LineWriter writes one complete, newline-terminated line.
type LineWriter interface {
	WriteLine(line string) bool
}

// Reporter receives start/stop mismatches and internal errors, attributed to
// the call site that detected them.
type Reporter func(file string, line int, msg string)

const (
	msgUnmatchedStop = "timer stop called without a matching start"
	msgNoTracker     = "scopelog: internal error: no tracker for start location %s"
)

type pathStat struct {
	totalMicros uint64
	count       uint64
}

type tracker struct {
	totalMicros uint64
	count       uint64
	paths       map[string]*pathStat
	pathOrder   []string
}

type pending struct {
	site  string
	path  string
	start uint64
}

// State is one goroutine's timer data.
type State struct {
	trackers map[string]*tracker
	order    []string
	pending  []pending
}

func newState() *State {
	return &State{trackers: make(map[string]*tracker)}
}

func (s *State) clear() {
	s.trackers = make(map[string]*tracker)
	s.order = nil
	s.pending = nil
}

// Engine owns the per-goroutine timer states.
type Engine struct {
	states *gls.Store[State]
	clock  clock.Clock
	paths  PathSource
	out    LineWriter
	report Reporter
}

// NewEngine returns an Engine. paths may be nil when scope tracing is off.
func NewEngine(c clock.Clock, paths PathSource, out LineWriter, report Reporter) *Engine {
	return &Engine{
		states: gls.NewStore(newState, (*State).clear),
		clock:  c,
		paths:  paths,
		out:    out,
		report: report,
	}
}

func (e *Engine) breadcrumb() string {
	if e.paths == nil {
		return ""
	}
	return e.paths.Current()
}

// Start opens a region at file:line on the calling goroutine.
func (e *Engine) Start(file string, line int) {
	st := e.states.Get()
	site := callpath.Frame{File: file, Line: line}.String()
	if _, ok := st.trackers[site]; !ok {
		st.trackers[site] = &tracker{paths: make(map[string]*pathStat)}
		st.order = append(st.order, site)
	}
	st.pending = append(st.pending, pending{
		site:  site,
		path:  e.breadcrumb(),
		start: e.clock.Micros(),
	})
}

// Stop closes the most recently opened region on the calling goroutine. A
// stop without a matching start is reported and otherwise ignored.
func (e *Engine) Stop(file string, line int) {
	end := e.clock.Micros()
	st := e.states.Get()
	n := len(st.pending)
	if n == 0 {
		e.fail(file, line, msgUnmatchedStop)
		return
	}
	top := st.pending[n-1]
	st.pending = st.pending[:n-1]

	var elapsed uint64
	if end > top.start {
		elapsed = end - top.start
	}
	stopSite := callpath.Frame{File: file, Line: line}.String()
	key := PathKey(top.path, top.site, e.breadcrumb(), stopSite)

	t, ok := st.trackers[top.site]
	if !ok {
		e.fail(file, line, fmt.Sprintf(msgNoTracker, top.site))
		return
	}
	t.totalMicros += elapsed
	t.count++
	ps, ok := t.paths[key]
	if !ok {
		ps = &pathStat{}
		t.paths[key] = ps
		t.pathOrder = append(t.pathOrder, key)
	}
	ps.totalMicros += elapsed
	ps.count++
}

// PathKey builds the call-path label for a region entered at startSite under
// startPath and left at stopSite under stopPath.
func PathKey(startPath, startSite, stopPath, stopSite string) string {
	if startPath == "" && stopPath == "" {
		return startSite + " to " + stopSite
	}
	return callpath.Join(startPath, startSite) + " to " + callpath.Join(stopPath, stopSite)
}

// Pending returns how many regions are open on the calling goroutine.
func (e *Engine) Pending() int {
	if st, ok := e.states.Lookup(); ok {
		return len(st.pending)
	}
	return 0
}

// Reset starts the calling goroutine over with empty aggregates.
func (e *Engine) Reset() {
	e.states.Get().clear()
}

// Clear discards the calling goroutine's aggregates and open regions.
func (e *Engine) Clear() {
	if st, ok := e.states.Lookup(); ok {
		st.clear()
	}
}

// Release destroys the calling goroutine's timer state. State is never freed
// implicitly, so a goroutine that used the engine must call Release before it
// returns.
func (e *Engine) Release() {
	e.states.Release()
}

// PathStats is the aggregate for one call-path.
type PathStats struct {
	Path        string
	TotalMicros uint64
	Count       uint64
}

// SiteStats is the aggregate for one call-site and its call-paths.
type SiteStats struct {
	Site        string
	TotalMicros uint64
	Count       uint64
	Paths       []PathStats
}

// AvgMillis returns the mean duration in milliseconds, or 0 when nothing was
// recorded.
func (s SiteStats) AvgMillis() float64 {
	return avgMillis(s.TotalMicros, s.Count)
}

// AvgMillis returns the mean duration in milliseconds, or 0 when nothing was
// recorded.
func (p PathStats) AvgMillis() float64 {
	return avgMillis(p.TotalMicros, p.Count)
}

func avgMillis(total, count uint64) float64 {
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count) / 1000
}

// Snapshot returns the calling goroutine's aggregates, sites and paths in the
// order they were first seen.
func (e *Engine) Snapshot() []SiteStats {
	st, ok := e.states.Lookup()
	if !ok {
		return nil
	}
	return st.snapshot()
}

func (s *State) snapshot() []SiteStats {
	out := make([]SiteStats, 0, len(s.order))
	for _, site := range s.order {
		t := s.trackers[site]
		ss := SiteStats{Site: site, TotalMicros: t.totalMicros, Count: t.count}
		for _, key := range t.pathOrder {
			p := t.paths[key]
			ss.Paths = append(ss.Paths, PathStats{Path: key, TotalMicros: p.totalMicros, Count: p.count})
		}
		out = append(out, ss)
	}
	return out
}

// Print writes the calling goroutine's report.
func (e *Engine) Print() {
	for _, line := range FormatReport(e.Snapshot()) {
		e.out.WriteLine(line)
	}
}

// PrintAll writes the report of every goroutine that has timer state. Other
// goroutines' data is read without synchronisation, so this is only meant for
// crash diagnostics.
func (e *Engine) PrintAll() {
	e.states.Range(func(id uint64, st *State) bool {
		lines := FormatReport(st.snapshot())
		if len(lines) == 0 {
			return true
		}
		e.out.WriteLine(fmt.Sprintf("timers for tid %d:\n", id))
		for _, line := range lines {
			e.out.WriteLine(line)
		}
		return true
	})
}

// ClearAll discards every goroutine's aggregates. Same caveat as PrintAll.
func (e *Engine) ClearAll() {
	e.states.Range(func(_ uint64, st *State) bool {
		st.clear()
		return true
	})
}

// FormatReport renders one line per site followed by its indented call-paths.
// Column widths fit the largest total and call count so the columns line up.
func FormatReport(stats []SiteStats) []string {
	var maxMillis, maxCalls uint64
	for _, s := range stats {
		maxMillis = max(maxMillis, s.TotalMicros/1000)
		maxCalls = max(maxCalls, s.Count)
		for _, p := range s.Paths {
			maxMillis = max(maxMillis, p.TotalMicros/1000)
			maxCalls = max(maxCalls, p.Count)
		}
	}
	tw := len(strconv.FormatUint(maxMillis, 10))
	cw := len(strconv.FormatUint(maxCalls, 10))

	var lines []string
	for _, s := range stats {
		lines = append(lines, fmt.Sprintf("%*dms | %*d calls | %.3fms avg | %s\n",
			tw, s.TotalMicros/1000, cw, s.Count, s.AvgMillis(), s.Site))
		for _, p := range s.Paths {
			lines = append(lines, fmt.Sprintf("%*dms | %*d calls | %.3fms avg |     %s\n",
				tw, p.TotalMicros/1000, cw, p.Count, p.AvgMillis(), p.Path))
		}
	}
	return lines
}

func (e *Engine) fail(file string, line int, msg string) {
	if e.report != nil {
		e.report(file, line, msg)
	}
}
