package devfs

import (
	"sync"

	"defs"
	"fdops"
	"stat"
	"ustr"
)

// devFile wraps the driver-supplied Fdops_i for one open() call, tracking
// the entry's open count (so DestroyEntry can refuse a busy device) and
// filling in the dev/ino/mode triple on Fstat, which a driver shouldn't
// need to know about its own devfs registration to answer.
type devFile struct {
	fdops.Fdops_i
	entry *Entry
}

func (f *devFile) Close() defs.Err_t {
	err := f.Fdops_i.Close()
	if err != 0 {
		return err
	}
	f.entry.mu.Lock()
	f.entry.openCount--
	f.entry.mu.Unlock()
	return 0
}

func (f *devFile) Fstat(statbuf fdops.Statable) defs.Err_t {
	statbuf.Wdev((defs.Mkdev(f.entry.Major, f.entry.Minor)))
	statbuf.Wino(uint(f.entry.Ino))
	statbuf.Wmode(f.entry.Mode)
	statbuf.Wrdev((defs.Mkdev(f.entry.Major, f.entry.Minor)))
	return 0
}

func (f *devFile) Reopen() defs.Err_t {
	f.entry.mu.Lock()
	f.entry.openCount++
	f.entry.mu.Unlock()
	return f.Fdops_i.Reopen()
}

// Open resolves name in the namespace and returns a ready-to-use Fdops_i
// for a new file descriptor, applying the flag checks the spec's open()
// contract requires: O_CREAT|O_EXCL on an existing node is EEXIST,
// O_DIRECTORY on a non-directory is ENOTDIR, writing a directory is
// EISDIR, and — when the leaf is absent — O_CREAT creates a fresh
// regular-file node instead of failing ENOENT.
func (r *Root_t) Open(name ustr.Ustr, flags int) (fdops.Fdops_i, defs.Err_t) {
	e, ok := r.DirEntryGet(name)
	if ok {
		isdir := e.Mode&stat.S_IFDIR != 0
		if flags&defs.O_CREAT != 0 && flags&defs.O_EXCL != 0 {
			return nil, -defs.EEXIST
		}
		if flags&defs.O_DIRECTORY != 0 && !isdir {
			return nil, -defs.ENOTDIR
		}
		if isdir && flags&(defs.O_WRONLY|defs.O_RDWR) != 0 {
			return nil, -defs.EISDIR
		}
	} else {
		if flags&defs.O_CREAT == 0 {
			return nil, -defs.ENOENT
		}
		var err defs.Err_t
		e, err = r.createRegular(name)
		if err != 0 {
			return nil, err
		}
	}

	if e.Sys.Open == nil {
		return nil, -defs.ENOSYS
	}
	inner, err := e.Sys.Open(e.Minor)
	if err != 0 {
		return nil, err
	}
	e.mu.Lock()
	e.openCount++
	e.mu.Unlock()
	return &devFile{Fdops_i: inner, entry: e}, 0
}

// createRegular registers a brand-new, driver-less regular-file node
// backed by an in-memory byte buffer (memFile), for open(O_CREAT) on a
// name nothing has registered. If another caller wins the race to
// create the same name first, the now-existing entry is opened instead
// of failing EEXIST — O_CREAT without O_EXCL tolerates that race.
func (r *Root_t) createRegular(name ustr.Ustr) (*Entry, defs.Err_t) {
	e, err := r.CreateEntry(name, 0, 0, stat.S_IFREG|0644, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) {
			return &memFile{}, 0
		},
	})
	if err == -defs.EEXIST {
		if existing, ok := r.DirEntryGet(name); ok {
			return existing, 0
		}
	}
	return e, err
}

// memFile is the in-memory regular-file backing a devfs node created on
// demand by open(O_CREAT) — devfs's counterpart to a tmpfs file, with no
// physical driver behind it.
type memFile struct {
	mu   sync.Mutex
	data []byte
	off  int
}

func (f *memFile) Close() defs.Err_t               { return 0 }
func (f *memFile) Fstat(fdops.Statable) defs.Err_t { return 0 }
func (f *memFile) Pathi() (int, defs.Err_t)        { return 0, -defs.ENOSYS }
func (f *memFile) Reopen() defs.Err_t              { return 0 }
func (f *memFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ | fdops.R_WRITE, 0
}
func (f *memFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

func (f *memFile) Lseek(off, whence int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = len(f.data) + off
	default:
		return 0, -defs.EINVAL
	}
	return f.off, 0
}

func (f *memFile) Truncate(size uint) defs.Err_t {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := int(size)
	if n <= len(f.data) {
		f.data = f.data[:n]
		return 0
	}
	f.data = append(f.data, make([]byte, n-len(f.data))...)
	return 0
}

func (f *memFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n, err := f.Pread(dst, off)
	if err == 0 {
		f.mu.Lock()
		f.off += n
		f.mu.Unlock()
	}
	return n, err
}

func (f *memFile) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if off >= len(f.data) {
		return 0, 0
	}
	return dst.Uiowrite(f.data[off:])
}

func (f *memFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	f.mu.Lock()
	off := f.off
	f.mu.Unlock()
	n, err := f.Pwrite(src, off)
	if err == 0 {
		f.mu.Lock()
		f.off += n
		f.mu.Unlock()
	}
	return n, err
}

func (f *memFile) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	n := src.Remain()
	buf := make([]byte, n)
	got, err := src.Uioread(buf)
	if err != 0 {
		return got, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	end := off + got
	if end > len(f.data) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], buf[:got])
	return got, 0
}

// StatEntry fills statbuf for name without opening it, for a bare stat()
// syscall on a devfs path.
func (r *Root_t) StatEntry(name ustr.Ustr, statbuf fdops.Statable) defs.Err_t {
	e, ok := r.DirEntryGet(name)
	if !ok {
		return -defs.ENOENT
	}
	statbuf.Wdev((defs.Mkdev(e.Major, e.Minor)))
	statbuf.Wino(uint(e.Ino))
	statbuf.Wmode(e.Mode | stat.S_IFREG)
	statbuf.Wrdev((defs.Mkdev(e.Major, e.Minor)))
	return 0
}
