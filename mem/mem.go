// Package mem holds the physical-page vocabulary shared by the slab
// allocator, the paging subsystem, and devfs: page size constants and the
// Page_i contract the concrete frame
// allocator (package pfa) implements. It carries no allocation policy of
// its own — that is pfa's job, kept deliberately separate since the core
// spec treats the page-frame allocator as an opaque, external collaborator.
package mem

import "unsafe"

/// PGSHIFT is the base-2 exponent for the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// PGOFFSET masks offsets within a page.
const PGOFFSET Pa_t = 0xfff

/// PGMASK masks the page number of an address.
const PGMASK Pa_t = ^(PGOFFSET)

/// Pa_t represents a physical address (or, for PTE/PDE words, a bit-packed
/// entry — both are plain machine words in the original kernel).
type Pa_t uintptr

/// Bytepg_t is a byte addressed page.
type Bytepg_t [PGSIZE]uint8

/// Pg_t is a generic page of machine words, used for the zero page and for
/// raw page-to-page copies during copy-on-write materialization.
type Pg_t [PGSIZE / 8]int

/// Unpin_i allows unpinning of physical pages backing a shared file mapping.
type Unpin_i interface {
	Unpin(Pa_t)
}

/// Mmapinfo_t describes a single page of an mmap'ed mapping, as handed back
/// to a caller that needs the kernel-side mapping alongside the physical
/// address (e.g. for an in-kernel device that shares memory with userspace).
type Mmapinfo_t struct {
	Pg   *Pg_t
	Phys Pa_t
}

/// Page_i abstracts physical page allocation for callers, such as circbuf
/// and vm, that only ever need single pages and refcount bookkeeping — the
/// buddy/order-aware contract used by kmalloc for oversized requests lives
/// on pfa.FrameAllocator directly.
type Page_i interface {
	Refpg_new() (*Pg_t, Pa_t, bool)
	Refpg_new_nozero() (*Pg_t, Pa_t, bool)
	Refcnt(Pa_t) int
	Dmap(Pa_t) *Pg_t
	Refup(Pa_t)
	Refdown(Pa_t) bool

	/// ZeroAddr/ZeroPage expose the allocator's permanent, never-freed
	/// zero page, shared by every zero-fill-on-demand anonymous mapping.
	ZeroAddr() Pa_t
	ZeroPage() *Pg_t
}

/// Pg2bytes converts a page of machine words to a page of bytes.
func Pg2bytes(pg *Pg_t) *Bytepg_t {
	return (*Bytepg_t)(unsafe.Pointer(pg))
}

/// Bytepg2pg converts a byte page back to a Pg_t.
func Bytepg2pg(pg *Bytepg_t) *Pg_t {
	return (*Pg_t)(unsafe.Pointer(pg))
}
