package defs

/// Err_t is a process-boundary error code: zero on success, a negated errno
/// value (-EXXX, see errno.go) on failure. The syscall surface and the VFS layer
/// hand these back instead of panicking; Go errors stay internal to a single
/// package boundary.
type Err_t int

/// Tid_t identifies a single thread of execution, used as the key under
/// which per-thread fault/signal state (tinfo.Tnote_t) and the scheduler's
/// current-thread pointer are tracked.
type Tid_t int

/// Pid_t identifies a process (an address space plus its threads).
type Pid_t int
