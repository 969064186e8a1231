// Package tinfo tracks per-thread kernel state: each simulated kernel
// thread is one goroutine, and Current/SetCurrent/ClearCurrent give that
// goroutine access to its own Tnote_t without passing it through every
// call — the same convenience the teacher's runtime.Gptr/Setgptr gave it
// via a patched-runtime per-g slot. This module cannot carry a patched Go
// runtime, so the per-goroutine slot is a plain map keyed by goroutine ID,
// with the ID recovered from runtime.Stack the way Go's goroutine-local-
// storage libraries do in the absence of real TLS.
package tinfo

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"

	"accnt"
	"defs"
)

/// Tnote_t stores per-thread state used by the runtime.
type Tnote_t struct {
	Tid defs.Tid_t
	// XXX "alive" should be "terminated"
	State    interface{}
	Alive    bool
	Killed   bool
	Isdoomed bool // XXX maybe don't need doomed, but can use killed?
	// protects killed, Killnaps.Cond and Kerr, and is a leaf lock
	sync.Mutex
	Killnaps struct {
		Killch chan bool
		Cond   *sync.Cond
		Kerr   defs.Err_t
	}
	// Accnt tracks this thread's accumulated kernel time, charged by
	// sched.ChargeFault whenever a page fault is resolved on its behalf.
	Accnt accnt.Accnt_t
}

/// Doomed reports whether the thread is marked as doomed.
func (t *Tnote_t) Doomed() bool {
	return t.Isdoomed
}

/// Threadinfo_t tracks all thread notes.
type Threadinfo_t struct {
	Notes map[defs.Tid_t]*Tnote_t
	sync.Mutex
}

/// Init initializes the thread info map.
func (t *Threadinfo_t) Init() {
	t.Notes = make(map[defs.Tid_t]*Tnote_t)
}

var (
	curMu  sync.Mutex
	curMap = make(map[uint64]*Tnote_t)
)

// goid parses the calling goroutine's ID out of its own stack trace header
// ("goroutine 123 [running]:..."), the standard workaround for Go's lack
// of exposed goroutine-local storage.
func goid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	const prefix = "goroutine "
	if !bytes.HasPrefix(b, []byte(prefix)) {
		panic("tinfo: unexpected stack trace header")
	}
	b = b[len(prefix):]
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		panic("tinfo: unexpected stack trace header")
	}
	id, err := strconv.ParseUint(string(b[:end]), 10, 64)
	if err != nil {
		panic("tinfo: unparseable goroutine id")
	}
	return id
}

/// Current returns the current thread note.
func Current() *Tnote_t {
	g := goid()
	curMu.Lock()
	defer curMu.Unlock()
	ret, ok := curMap[g]
	if !ok {
		panic("nuts")
	}
	return ret
}

/// SetCurrent installs p as the current thread note for this goroutine.
func SetCurrent(p *Tnote_t) {
	if p == nil {
		panic("nuts")
	}
	g := goid()
	curMu.Lock()
	defer curMu.Unlock()
	if _, ok := curMap[g]; ok {
		panic("nuts")
	}
	curMap[g] = p
}

/// ClearCurrent removes the current thread note for this goroutine.
func ClearCurrent() {
	g := goid()
	curMu.Lock()
	defer curMu.Unlock()
	if _, ok := curMap[g]; !ok {
		panic("nuts")
	}
	delete(curMap, g)
}
