package sched

import (
	"testing"

	"defs"
	"tinfo"
)

func TestSendSIGSEGVDoomsThread(t *testing.T) {
	note := &tinfo.Tnote_t{Tid: 7}
	note.Killnaps.Killch = make(chan bool, 1)
	tk := NewTask(7, note)

	SendSIGSEGV(tk)

	if !note.Isdoomed || !note.Killed {
		t.Fatal("expected the thread to be marked killed and doomed")
	}
	select {
	case <-note.Killnaps.Killch:
	default:
		t.Fatal("expected a wakeup on the kill channel")
	}
}

func TestCurrentTaskRoundTrips(t *testing.T) {
	note := &tinfo.Tnote_t{Tid: 42}
	tinfo.SetCurrent(note)
	defer tinfo.ClearCurrent()

	tk := CurrentTask()
	if tk.Tid() != 42 {
		t.Fatalf("expected tid 42, got %d", tk.Tid())
	}
}

func TestChargeFaultAddsSystemTime(t *testing.T) {
	note := &tinfo.Tnote_t{Tid: 1}
	tk := NewTask(1, note)

	calls := 0
	err := ChargeFault(tk, func() defs.Err_t {
		calls++
		return 0
	})
	if err != 0 {
		t.Fatalf("expected ChargeFault to pass through a success, got %d", err)
	}
	if calls != 1 {
		t.Fatalf("expected resolve to run exactly once, got %d", calls)
	}
	if tk.Accnt().Sysns < 0 {
		t.Fatalf("expected non-negative accumulated system time, got %d", tk.Accnt().Sysns)
	}
}

func TestFaultStatsIsEmptyWhenDisabled(t *testing.T) {
	// stats.Stats is a compile-time const left false by the teacher's own
	// convention; FaultStats must stay a no-op cost-wise until it's flipped.
	if s := FaultStats(); s != "" {
		t.Fatalf("expected no stats output while stats.Stats is disabled, got %q", s)
	}
}
