package tinfo

import "testing"

func TestSetCurrentThenCurrentRoundTrips(t *testing.T) {
	note := &Tnote_t{Tid: 9}
	SetCurrent(note)
	defer ClearCurrent()

	if Current() != note {
		t.Fatal("expected Current to return the installed note")
	}
}

func TestDoubleSetCurrentPanics(t *testing.T) {
	SetCurrent(&Tnote_t{Tid: 1})
	defer ClearCurrent()

	defer func() {
		if recover() == nil {
			t.Fatal("expected a second SetCurrent on the same goroutine to panic")
		}
	}()
	SetCurrent(&Tnote_t{Tid: 2})
}

func TestCurrentWithoutSetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Current with nothing installed to panic")
		}
	}()
	Current()
}

func TestClearCurrentWithoutSetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected ClearCurrent with nothing installed to panic")
		}
	}()
	ClearCurrent()
}
