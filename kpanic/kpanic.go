// Package kpanic is the kernel's fatal-error path: a kernel-mode fault (an
// invariant violated, a page fault taken with PTE_U clear) calls Panic
// instead of a bare Go panic, so a caller dump always precedes the crash
// and tests can install a hook to observe the panic instead of bringing
// the process down. Grounded on the teacher's caller.Callerdump, called
// from its own panic-adjacent assertion failures throughout vm/as.go and
// fs/fs.go.
package kpanic

import (
	"fmt"
	"sync"

	"caller"
)

var (
	hookMu sync.Mutex
	hook   func(msg string)
)

// SetHook installs f to run instead of panicking, for tests that need to
// observe a kernel panic without tearing down the test binary. Passing
// nil restores the default behavior of panicking.
func SetHook(f func(msg string)) {
	hookMu.Lock()
	hook = f
	hookMu.Unlock()
}

// Panic reports msg, dumps the caller chain that led to it, and then
// panics (or, under a test hook, calls the hook instead).
func Panic(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	caller.Callerdump(2)

	hookMu.Lock()
	h := hook
	hookMu.Unlock()
	if h != nil {
		h(msg)
		return
	}
	panic(msg)
}
