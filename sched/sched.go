// Package sched is the thin scheduler-facing contract vm and devfs fault
// paths need: which thread is currently running, and how to deliver a
// fatal signal to one when a fault can't be resolved (an access outside
// every VMA, a write to a read-only mapping). It is grounded on the
// teacher's tinfo.Tnote_t/Threadinfo_t (kept as-is, see tinfo package) plus
// the Kill/Killnaps fields the teacher's own thread-teardown path already
// uses — SendSIGSEGV here is that same teardown, triggered by a fault
// instead of a syscall.
package sched

import (
	"accnt"
	"defs"
	"stats"
	"tinfo"
)

// faultStats tallies fault-resolution activity across every thread. Both
// fields are no-ops unless stats.Stats/stats.Timing are flipped on, the
// same zero-cost-when-disabled convention the teacher's stats package
// uses everywhere else.
type faultStats struct {
	Faults stats.Counter_t
	Cycles stats.Cycles_t
}

var gfaultStats faultStats

// FaultStats renders the running fault-resolution tallies, empty unless
// stats.Stats is enabled.
func FaultStats() string {
	return stats.Stats2String(gfaultStats)
}

// Task identifies one schedulable thread: its tid and its Tnote_t.
type Task interface {
	Tid() defs.Tid_t
	Note() *tinfo.Tnote_t
	Accnt() *accnt.Accnt_t
}

type task struct {
	tid  defs.Tid_t
	note *tinfo.Tnote_t
}

func (t *task) Tid() defs.Tid_t       { return t.tid }
func (t *task) Note() *tinfo.Tnote_t  { return t.note }
func (t *task) Accnt() *accnt.Accnt_t { return &t.note.Accnt }

// NewTask wraps a tid/Tnote_t pair as a Task, for a thread-creation path
// to install with tinfo.SetCurrent before it starts running.
func NewTask(tid defs.Tid_t, note *tinfo.Tnote_t) Task {
	return &task{tid: tid, note: note}
}

// CurrentTask returns the calling goroutine's Task. It panics if none was
// ever installed with tinfo.SetCurrent — every simulated kernel thread
// must do so before touching anything that calls CurrentTask.
func CurrentTask() Task {
	n := tinfo.Current()
	return &task{tid: n.Tid, note: n}
}

// ChargeFault runs resolve (expected to be a vm.Sys_pgfault call) and
// charges the wall-clock time it took to t's system-time counter, the
// same accounting the teacher's process accounting does for any other
// kernel-side work performed on a thread's behalf. Adapted from
// accnt.Accnt_t's Finish, which this calls directly instead of
// duplicating its now/delta arithmetic.
func ChargeFault(t Task, resolve func() defs.Err_t) defs.Err_t {
	a := t.Accnt()
	start := a.Now()
	tsc := stats.Rdtsc()
	err := resolve()
	a.Finish(start)
	gfaultStats.Faults.Inc()
	gfaultStats.Cycles.Add(tsc)
	return err
}

// SendSIGSEGV marks t's thread doomed and wakes anything waiting on its
// Killnaps channel, the same teardown path a syscall-level kill uses —
// a fault that can't be resolved ends the thread exactly like a received
// fatal signal would.
func SendSIGSEGV(t Task) {
	n := t.Note()
	n.Lock()
	n.Killed = true
	n.Isdoomed = true
	n.Killnaps.Kerr = -defs.EFAULT
	ch := n.Killnaps.Killch
	n.Unlock()
	if ch != nil {
		select {
		case ch <- true:
		default:
		}
	}
}
