package kpanic

import "testing"

func TestSetHookCapturesMessageInsteadOfPanicking(t *testing.T) {
	var got string
	SetHook(func(msg string) { got = msg })
	defer SetHook(nil)

	Panic("bad address %#x", 0xdead)

	if got == "" {
		t.Fatal("expected the hook to capture a message")
	}
}

func TestPanicWithoutHookPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Panic to panic when no hook is installed")
		}
	}()
	Panic("boom")
}
