package vm

import (
	"mem"
	"unsafe"
)

// Pte_t is a single page-directory or page-table entry: a bit-packed
// machine word using the two-level x86-style layout this core's paging
// subsystem exposes — present/rw/user/write-through(unused)/cache-
// disable(unused)/accessed/dirty/reserved/global/avail(2)/cow/frame(20).
type Pte_t = uint32

const (
	PTE_P      Pte_t = 1 << 0 // present
	PTE_W      Pte_t = 1 << 1 // read/write
	PTE_U      Pte_t = 1 << 2 // user-accessible
	PTE_PWT    Pte_t = 1 << 3 // write-through, unused
	PTE_PCD    Pte_t = 1 << 4 // cache-disable, unused
	PTE_A      Pte_t = 1 << 5 // accessed
	PTE_D      Pte_t = 1 << 6 // dirty
	PTE_RSVD   Pte_t = 1 << 7 // reserved, must be zero
	PTE_G      Pte_t = 1 << 8 // global: not flushed by a plain TLB invalidate
	PTE_WASCOW Pte_t = 1 << 9 // avail: this mapping was resolved from a COW fault
	_PTE_AVAIL Pte_t = 1 << 10
	PTE_COW    Pte_t = 1 << 11 // copy-on-write: write faults must duplicate the frame
)

// PTE_ADDR masks the frame field: bits 12-31, a page-aligned physical
// address.
const PTE_ADDR Pte_t = 0xfffff000

const (
	PGSHIFT  = mem.PGSHIFT
	PGSIZE   = mem.PGSIZE
	PGOFFSET = mem.PGOFFSET
)

// Pmap_t is one level of the two-level page table: 1024 entries, each
// either a page-directory entry (pointing at a page table) or, in the
// table itself, a page-table entry (pointing at a data frame).
type Pmap_t [1024]Pte_t

func pmapFromPage(pg *mem.Pg_t) *Pmap_t {
	return (*Pmap_t)(unsafe.Pointer(pg))
}

// USERMIN is the lowest virtual address userspace mappings may occupy; the
// first page is reserved so a nil/zero pointer dereference in user code
// reliably faults.
const USERMIN = PGSIZE

// KERNMIN is the virtual address where the shared kernel region begins —
// a higher-half split, every PDE at or above this index is the same
// page-table frame in every address space (see shareKernelPmap), never
// copied. USERMAX is the highest address a user VMA (including the
// process's stack) may reach.
const KERNMIN = 0xc0000000
const USERMAX = KERNMIN

func kerneldi() uint {
	return pdeidx(KERNMIN)
}

func pdeidx(va uintptr) uint {
	return uint((va >> 22) & 0x3ff)
}

func pteidx(va uintptr) uint {
	return uint((va >> 12) & 0x3ff)
}

// pmap_walk locates the PTE for va in pmap, allocating a page table for the
// covering PDE if pgflags is nonzero and none exists yet.
// It mirrors the teacher's pmap_walk, generalized to this core's flatter
// two-level layout (the teacher walks four x86-64 levels).
func pmap_walk(alloc mem.Page_i, pmap *Pmap_t, va int, pgflags Pte_t) (*Pte_t, bool) {
	pde := &pmap[pdeidx(uintptr(va))]
	var pt *Pmap_t
	if *pde&PTE_P == 0 {
		if pgflags == 0 {
			return nil, true
		}
		pg, p_pg, ok := alloc.Refpg_new()
		if !ok {
			return nil, false
		}
		pt = pmapFromPage(pg)
		*pde = Pte_t(p_pg) | pgflags | PTE_P
	} else {
		pt = pmapFromPage(alloc.Dmap(mem.Pa_t(*pde & PTE_ADDR)))
	}
	return &pt[pteidx(uintptr(va))], true
}

// Pmap_lookup locates the PTE for va without creating any missing page
// table, returning nil if none exists.
func Pmap_lookup(alloc mem.Page_i, pmap *Pmap_t, va int) *Pte_t {
	pde := &pmap[pdeidx(uintptr(va))]
	if *pde&PTE_P == 0 {
		return nil
	}
	pt := pmapFromPage(alloc.Dmap(mem.Pa_t(*pde & PTE_ADDR)))
	return &pt[pteidx(uintptr(va))]
}
