// Package fdops is the contract between an open file descriptor (fd.Fd_t)
// and whatever backs it — devfs's in-memory nodes here, a real on-disk
// inode in the teacher. It mirrors the teacher's split between a small
// Userio_i (how bytes cross the kernel/user boundary) and a larger
// per-open-file Fdops_i dispatched through a function-pointer-style struct
// of methods, one per syscall the fd supports.
package fdops

import "defs"

/// Userio_i abstracts a read or write's destination/source, so a single
/// copy routine (circbuf.Copyin/Copyout, vm's user-copy helpers) can move
/// bytes to or from userspace, a kernel buffer, or a fake in-kernel buffer
/// without caring which.
type Userio_i interface {
	Uioread(dst []uint8) (int, defs.Err_t)
	Uiowrite(src []uint8) (int, defs.Err_t)
	Remain() int
	Totalsz() int
}

/// Ready_t is a bitmask of the poll/select readiness conditions a file can
/// report.
type Ready_t uint8

const (
	R_READ  Ready_t = 1 << iota /// ready for reading
	R_WRITE                     /// ready for writing
	R_ERROR                     /// an error condition is pending
	R_HUP                       /// the peer has hung up
)

/// Pollmsg_t carries a poll request's wanted readiness conditions and, for
/// a blocking poll, the channel to notify when they become true.
type Pollmsg_t struct {
	Events Ready_t
	Notif  chan bool
}

/// Fdops_i is the set of operations a file descriptor may be asked to
/// perform; a nil method value on a concrete implementation isn't possible
/// in Go, so backers that don't support an operation return ENOSYS to
/// keep the same "missing means not implemented" contract the teacher's
/// nil function-pointer fields express in its VFS and devfs op tables.
type Fdops_i interface {
	Close() defs.Err_t
	Fstat(statbuf Statable) defs.Err_t
	Lseek(off, whence int) (int, defs.Err_t)
	Pathi() (int, defs.Err_t)
	Read(dst Userio_i) (int, defs.Err_t)
	Reopen() defs.Err_t
	Write(src Userio_i) (int, defs.Err_t)
	Truncate(size uint) defs.Err_t
	Pread(dst Userio_i, offset int) (int, defs.Err_t)
	Pwrite(src Userio_i, offset int) (int, defs.Err_t)
	Poll(pm Pollmsg_t) (Ready_t, defs.Err_t)
	Ioctl(req int, arg int) (int, defs.Err_t)
}

/// Statable is the narrow view of stat.Stat_t that a Fdops_i backer needs
/// to fill in, kept as an interface here so fdops does not import stat and
/// create an import cycle with packages stat itself depends on.
type Statable interface {
	Wdev(uint)
	Wino(uint)
	Wmode(uint)
	Wsize(uint)
	Wrdev(uint)
}
