// Package devfs implements the in-memory device filesystem: a flat
// namespace of device entries rooted at a single hashtable.Hashtable_t
// namespace, grounded on the teacher's hashtable (lock-free-read,
// bucket-locked-write) for path lookup and on the "devfs_dir_entry_t" shape
// with sys_operations/fs_operations function tables (here, SysOps/a
// per-open Fdops_i factory) plus a magic-number integrity check, carried
// over from the original devfs implementation this spec was distilled
// from. Device drivers (null, console, kmemstat, ...) register an Entry
// with CreateEntry; Open hands back a fresh fdops.Fdops_i for every open
// call, matching the teacher's per-fd-state convention elsewhere in the
// tree (fd.Fd_t wraps one Fdops_i per open, not one shared across opens).
package devfs

import (
	"sort"
	"sync"
	"sync/atomic"

	"defs"
	"fdops"
	"hashtable"
	"stat"
	"ustr"
)

const devMagic = 0xbf1d

// SysOps is a device entry's non-file control operations: creating a
// ready-to-use Fdops_i for a fresh open, and (optionally) vetoing an
// unlink. A nil Open means the entry cannot be opened (ENOSYS); a nil
// Unlink means the driver has no veto and removal always succeeds once
// the generic checks in DestroyEntry pass.
type SysOps struct {
	Open   func(minor int) (fdops.Fdops_i, defs.Err_t)
	Unlink func(minor int) defs.Err_t
}

// Entry is one named node in the devfs namespace: a device file (major
// identifies the driver, minor the particular instance) or a plain
// directory placeholder (Mode has stat.S_IFDIR set).
type Entry struct {
	magic int
	Name  ustr.Ustr
	Ino   int
	Major int
	Minor int
	Mode  uint
	Sys   SysOps

	mu        sync.Mutex
	openCount int
}

func (e *Entry) valid() bool { return e != nil && e.magic == devMagic }

// Root_t is the devfs namespace: every live Entry keyed both by name (for
// open/unlink/getdents) and by inode number (for fstat's dev/ino pair to
// round-trip through a later open-by-handle). Both tables share entries;
// there is exactly one Entry per device, never a copy.
type Root_t struct {
	byName *hashtable.Hashtable_t
	byIno  *hashtable.Hashtable_t
	nextInode int64
	mu     sync.Mutex
}

// NewRoot builds an empty devfs namespace.
func NewRoot() *Root_t {
	return &Root_t{
		byName: hashtable.MkHash(64),
		byIno:  hashtable.MkHash(64),
	}
}

// Root is the default namespace instance every driver registers into and
// every open() resolves against, mirroring the teacher's single
// process-wide /dev.
var Root = NewRoot()

// CreateEntry registers a new device under name with the given major/minor
// and mode bits (stat.S_IFREG | permission bits), dispatching opens
// through sys.Open. It fails with EEXIST if name is already taken.
func (r *Root_t) CreateEntry(name ustr.Ustr, major, minor int, mode uint, sys SysOps) (*Entry, defs.Err_t) {
	r.mu.Lock()
	ino := int(atomic.AddInt64(&r.nextInode, 1))
	r.mu.Unlock()

	e := &Entry{magic: devMagic, Name: name, Ino: ino, Major: major, Minor: minor, Mode: mode, Sys: sys}
	if _, inserted := r.byName.Set(string(name), e); !inserted {
		return nil, -defs.EEXIST
	}
	r.byIno.Set(ino, e)
	return e, 0
}

// DirEntryGet looks up name in the namespace. Unlike the open() family it
// never fails with an error code: a missing entry is simply (nil, false).
func (r *Root_t) DirEntryGet(name ustr.Ustr) (*Entry, bool) {
	v, ok := r.byName.Get(string(name))
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	return e, e.valid()
}

func (r *Root_t) entryByIno(ino int) (*Entry, bool) {
	v, ok := r.byIno.Get(ino)
	if !ok {
		return nil, false
	}
	e := v.(*Entry)
	return e, e.valid()
}

// DestroyEntry removes a device from the namespace. It returns ENOENT
// when name is absent — checked first, before any flag or busy
// validation, since there is nothing to validate against a node that
// does not exist. Only once the entry is confirmed present does it check
// whether the entry is still open (EBUSY) or whether the driver vetoes
// removal (Sys.Unlink).
func (r *Root_t) DestroyEntry(name ustr.Ustr) defs.Err_t {
	e, ok := r.DirEntryGet(name)
	if !ok {
		return -defs.ENOENT
	}

	e.mu.Lock()
	busy := e.openCount > 0
	e.mu.Unlock()
	if busy {
		return -defs.EBUSY
	}
	if e.Sys.Unlink != nil {
		if err := e.Sys.Unlink(e.Minor); err != 0 {
			return err
		}
	}

	r.byName.Del(string(name))
	r.byIno.Del(e.Ino)
	e.magic = 0
	return 0
}

// EntrySetMask updates an entry's mode bits in place (chmod).
func (r *Root_t) EntrySetMask(name ustr.Ustr, mode uint) defs.Err_t {
	e, ok := r.DirEntryGet(name)
	if !ok {
		return -defs.ENOENT
	}
	e.mu.Lock()
	e.Mode = mode
	e.mu.Unlock()
	return 0
}

// DirentSize is the fixed on-wire size of one devfs dirent record: every
// record occupies exactly this many bytes regardless of name length,
// matching the spec's dirent layout where reclen is always the same
// constant rather than sized to the name.
const DirentSize = 64

// direntNameMax leaves room in DirentSize for the fixed ino/off/reclen/
// type header fields; a name longer than this is truncated.
const direntNameMax = DirentSize - 4*8

// Dirent_t is one fixed-size devfs directory record.
type Dirent_t struct {
	Ino    int
	Off    int
	Reclen int
	Type   uint
	Name   ustr.Ustr
}

func isDevfsRoot(dir ustr.Ustr) bool {
	return len(dir) == 0 || (len(dir) == 1 && dir[0] == '/')
}

// Getdents enumerates dir's direct children starting at byte offset
// offset, returning up to count bytes worth of fixed-size dirent
// records plus the offset the next call should resume from. devfs has
// no subdirectories below its single root, so dir must name the root
// ("" or "/"); any other name that exists is rejected with ENOTDIR
// (it names a file, not a directory), and any other name that doesn't
// exist is ENOENT.
func (r *Root_t) Getdents(dir ustr.Ustr, offset, count int) ([]Dirent_t, int, defs.Err_t) {
	if !isDevfsRoot(dir) {
		if _, ok := r.DirEntryGet(dir); ok {
			return nil, offset, -defs.ENOTDIR
		}
		return nil, offset, -defs.ENOENT
	}

	pairs := r.byName.Elems()
	entries := make([]*Entry, 0, len(pairs))
	for _, p := range pairs {
		e := p.Value.(*Entry)
		if e.valid() {
			entries = append(entries, e)
		}
	}
	// A stable order is required for offset to mean anything across
	// repeated calls; the hashtable itself makes no ordering promise.
	sort.Slice(entries, func(i, j int) bool {
		return string(entries[i].Name) < string(entries[j].Name)
	})

	skip := offset / DirentSize
	if skip < 0 {
		skip = 0
	}
	budget := count / DirentSize
	out := make([]Dirent_t, 0, budget)
	next := offset
	for i := skip; i < len(entries) && len(out) < budget; i++ {
		e := entries[i]
		name := e.Name
		if len(name) > direntNameMax {
			name = name[:direntNameMax]
		}
		typ := stat.S_IFREG
		if e.Mode&stat.S_IFDIR != 0 {
			typ = stat.S_IFDIR
		}
		next += DirentSize
		out = append(out, Dirent_t{
			Ino:    e.Ino,
			Off:    next,
			Reclen: DirentSize,
			Type:   typ,
			Name:   name,
		})
	}
	return out, next, 0
}
