// Package vfs is the thin path-dispatch layer above a set of mounted
// filesystems: it owns no state of its own beyond a prefix-keyed mount
// table, and routes open/stat/unlink to whichever FileSystemType claims
// the longest matching prefix — devfs.Root_t mounted at "/dev" is the
// only filesystem this spec builds, but the dispatch is written so a
// future on-disk filesystem mounts the same way. Grounded on the
// teacher's bpath.Canonicalize for path normalization and on fd.Fd_t for
// the per-open-file object NewFileSlab caches.
package vfs

import (
	"sort"
	"sync"

	"bpath"
	"defs"
	"fd"
	"fdops"
	"mem"
	"slab"
	"ustr"
)

// FileSystemType is what a mounted filesystem must implement to answer
// path-based opens. Paths are already relative to the filesystem's mount
// point (the leading prefix is stripped by MountTable before dispatch).
type FileSystemType interface {
	Open(path ustr.Ustr, flags int) (fdops.Fdops_i, defs.Err_t)
	Stat(path ustr.Ustr, statbuf fdops.Statable) defs.Err_t
	Unlink(path ustr.Ustr) defs.Err_t
}

type mountpoint struct {
	prefix ustr.Ustr
	fs     FileSystemType
}

// MountTable dispatches an absolute path to the filesystem mounted at the
// longest prefix of it, the same way the teacher's VFS layer walks mount
// points from root down.
type MountTable struct {
	sync.RWMutex
	mounts []mountpoint
}

// NewMountTable builds an empty mount table.
func NewMountTable() *MountTable {
	return &MountTable{}
}

// Mount registers fs at prefix (e.g. "/dev"); later calls with a longer,
// more specific prefix take priority over a shorter one at lookup time.
func (mt *MountTable) Mount(prefix string, fs FileSystemType) {
	mt.Lock()
	defer mt.Unlock()
	mt.mounts = append(mt.mounts, mountpoint{prefix: bpath.Canonicalize(ustr.Ustr(prefix)), fs: fs})
	sort.Slice(mt.mounts, func(i, j int) bool {
		return len(mt.mounts[i].prefix) > len(mt.mounts[j].prefix)
	})
}

// Unmount removes the mount registered at prefix, if any.
func (mt *MountTable) Unmount(prefix string) {
	mt.Lock()
	defer mt.Unlock()
	want := bpath.Canonicalize(ustr.Ustr(prefix))
	for i, m := range mt.mounts {
		if m.prefix.Eq(want) {
			mt.mounts = append(mt.mounts[:i], mt.mounts[i+1:]...)
			return
		}
	}
}

// resolve finds the mounted filesystem claiming path's longest prefix and
// returns the remaining, filesystem-relative path.
func (mt *MountTable) resolve(path ustr.Ustr) (FileSystemType, ustr.Ustr, defs.Err_t) {
	clean := bpath.Canonicalize(path)
	mt.RLock()
	defer mt.RUnlock()
	for _, m := range mt.mounts {
		if hasPrefix(clean, m.prefix) {
			rel := clean[len(m.prefix):]
			for len(rel) > 0 && rel[0] == '/' {
				rel = rel[1:]
			}
			return m.fs, rel, 0
		}
	}
	return nil, nil, -defs.ENOENT
}

func hasPrefix(path, prefix ustr.Ustr) bool {
	if len(prefix) == 1 && prefix[0] == '/' {
		return true
	}
	if len(path) < len(prefix) {
		return false
	}
	return ustr.Ustr(path[:len(prefix)]).Eq(prefix)
}

// Open resolves path to its mounted filesystem and opens it there.
func (mt *MountTable) Open(path ustr.Ustr, flags int) (fdops.Fdops_i, defs.Err_t) {
	fs, rel, err := mt.resolve(path)
	if err != 0 {
		return nil, err
	}
	return fs.Open(rel, flags)
}

// Stat resolves path to its mounted filesystem and stats it there.
func (mt *MountTable) Stat(path ustr.Ustr, statbuf fdops.Statable) defs.Err_t {
	fs, rel, err := mt.resolve(path)
	if err != 0 {
		return err
	}
	return fs.Stat(rel, statbuf)
}

// Unlink resolves path to its mounted filesystem and removes it there.
func (mt *MountTable) Unlink(path ustr.Ustr) defs.Err_t {
	fs, rel, err := mt.resolve(path)
	if err != 0 {
		return err
	}
	return fs.Unlink(rel)
}

// NewFileSlab builds a dedicated kmem_cache for fd.Fd_t, the per-open-file
// descriptor object every syscall entry point allocates one of. Giving
// Fd_t its own cache (rather than routing it through the general kmalloc
// heap) mirrors the teacher's own convention of a dedicated cache per
// frequently-allocated kernel struct, and lets Stats() report fd churn
// independently of the rest of the kmalloc heap.
func NewFileSlab(alloc mem.Page_i) *slab.Cache_t {
	return slab.CacheCreate("fd_t", int(unsafeSizeofFd), alloc, nil, nil)
}

// unsafeSizeofFd is fd.Fd_t's size rounded up generously; fd.Fd_t is three
// words (a two-word interface value plus an int), so 64 bytes leaves slack
// without a dependency on unsafe.
const unsafeSizeofFd = 64

var _ = fd.Fd_t{}
