// Package pfa implements the page-frame allocator: the "PFA" collaborator
// the core spec treats as an opaque buddy allocator (alloc_pages/free_pages/
// page_count/page_inc/page_dec). It is grounded on mem.Physmem_t's
// reference-counted free-list design in the teacher, generalized from
// single-page and single-pmap-page free lists to genuine power-of-two
// buddy orders, since kmalloc's path for requests larger than its top size
// class needs runs bigger than one page. Since this module runs hosted rather than on bare
// metal, the "physical memory" backing the allocator is a plain Go byte
// arena instead of a runtime.Get_phys/runtime.Vtop-mapped region.
package pfa

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"mem"
	"oommsg"
)

// MaxOrder bounds the largest run this allocator will hand out: 2^MaxOrder
// pages. Ten orders (1024 pages, 4MB at a 4K page size) comfortably covers
// every slab growth and VMA backing size exercised by this core.
const MaxOrder = 10

type runinfo struct {
	refcnt int32
	order  uint8
	next   int32 // next free run of the same order, or -1
}

// FrameAllocator is the concrete PFA: alloc_pages(order)/free_pages/
// page_count/page_inc/page_dec, plus the mem.Page_i single-page contract
// used by circbuf and vm for refcount-only callers.
type FrameAllocator struct {
	sync.Mutex
	arena  []byte
	npages int
	info   []runinfo
	free   [MaxOrder + 1]int32 // head index of the free list per order, -1 if empty

	zeroPg mem.Pa_t
}

// New allocates an arena of at least npages pages (rounded up to a power of
// two so every order's buddy split is exact) and returns a ready allocator.
func New(npages int) *FrameAllocator {
	if npages <= 0 {
		panic("pfa: bad size")
	}
	total := 1
	order := 0
	for total < npages {
		total <<= 1
		order++
	}
	if order > MaxOrder {
		panic("pfa: arena too large for MaxOrder")
	}
	fa := &FrameAllocator{
		arena:  make([]byte, total*mem.PGSIZE),
		npages: total,
		info:   make([]runinfo, total),
	}
	for i := range fa.free {
		fa.free[i] = -1
	}
	fa.info[0] = runinfo{order: uint8(order), next: -1}
	fa.free[order] = 0

	pg, p_pg, ok := fa.Refpg_new()
	if !ok {
		panic("pfa: out of memory initializing zero page")
	}
	_ = pg
	fa.zeroPg = p_pg
	fa.Refup(p_pg) // permanent base hold: the zero page is never freed
	return fa
}

func (fa *FrameAllocator) idx(p mem.Pa_t) int {
	i := int(p) / mem.PGSIZE
	if i < 0 || i >= fa.npages {
		panic("pfa: address out of range")
	}
	return i
}

func (fa *FrameAllocator) addr(i int) mem.Pa_t {
	return mem.Pa_t(i * mem.PGSIZE)
}

func buddyOf(i int, order uint8) int {
	return i ^ (1 << order)
}

// popFree removes and returns the head run index at the given order, or -1.
func (fa *FrameAllocator) popFree(order uint8) int {
	h := fa.free[order]
	if h < 0 {
		return -1
	}
	fa.free[order] = fa.info[h].next
	return int(h)
}

func (fa *FrameAllocator) pushFree(i int, order uint8) {
	fa.info[i] = runinfo{order: order, next: fa.free[order]}
	fa.free[order] = int32(i)
}

// removeFree splices a specific run index out of its order's free list; used
// when coalescing finds a free buddy that isn't at the list head.
func (fa *FrameAllocator) removeFree(i int, order uint8) bool {
	cur := fa.free[order]
	var prev int32 = -1
	for cur >= 0 {
		if int(cur) == i {
			if prev < 0 {
				fa.free[order] = fa.info[cur].next
			} else {
				fa.info[prev].next = fa.info[cur].next
			}
			return true
		}
		prev = cur
		cur = fa.info[cur].next
	}
	return false
}

// AllocPages implements alloc_pages(order): returns the physical address of
// a freshly carved 2^order-page run, or false if the allocator is exhausted.
func (fa *FrameAllocator) AllocPages(order uint) (mem.Pa_t, bool) {
	fa.Lock()
	defer fa.Unlock()
	return fa.allocOrderLocked(uint8(order))
}

func (fa *FrameAllocator) allocOrderLocked(order uint8) (mem.Pa_t, bool) {
	if int(order) > MaxOrder {
		return 0, false
	}
	o := order
	for o <= MaxOrder && fa.free[o] < 0 {
		o++
	}
	if o > MaxOrder {
		select {
		case oommsg.OomCh <- oommsg.Oommsg_t{Need: 1 << order}:
		default:
		}
		return 0, false
	}
	i := fa.popFree(o)
	// split the run down to the requested order, freeing the top halves.
	for o > order {
		o--
		buddy := i + (1 << o)
		fa.pushFree(buddy, o)
	}
	fa.info[i] = runinfo{order: order, refcnt: 0}
	return fa.addr(i), true
}

// FreePages implements free_pages(PageFrame*): returns a run to the
// allocator and coalesces with its buddy while possible.
func (fa *FrameAllocator) FreePages(p mem.Pa_t) {
	fa.Lock()
	defer fa.Unlock()
	fa.freeOrderLocked(fa.idx(p))
}

func (fa *FrameAllocator) freeOrderLocked(i int) {
	order := fa.info[i].order
	for order < MaxOrder {
		b := buddyOf(i, order)
		if b >= fa.npages || !fa.removeFree(b, order) {
			break
		}
		if b < i {
			i = b
		}
		order++
	}
	fa.pushFree(i, order)
}

// PageCount reports the run's order, in pages (2^order), matching
// page_count(PageFrame*).
func (fa *FrameAllocator) PageCount(p mem.Pa_t) int {
	fa.Lock()
	defer fa.Unlock()
	return 1 << fa.info[fa.idx(p)].order
}

// PageInc/PageDec are page_inc/page_dec: raw refcount nudges independent of
// the alloc/free lifecycle, used when a run is shared without a matching
// AllocPages call (e.g. installing a COW mapping).
func (fa *FrameAllocator) PageInc(p mem.Pa_t) {
	fa.Refup(p)
}

func (fa *FrameAllocator) PageDec(p mem.Pa_t) bool {
	return fa.Refdown(p)
}

// Refup increments a run's reference count (mem.Page_i).
func (fa *FrameAllocator) Refup(p mem.Pa_t) {
	i := fa.idx(p)
	c := atomic.AddInt32(&fa.info[i].refcnt, 1)
	if c <= 0 {
		panic("pfa: refup from non-positive count")
	}
}

// Refdown decrements a run's reference count and frees it on the transition
// to zero, returning whether it was freed (mem.Page_i).
func (fa *FrameAllocator) Refdown(p mem.Pa_t) bool {
	i := fa.idx(p)
	c := atomic.AddInt32(&fa.info[i].refcnt, -1)
	if c < 0 {
		panic("pfa: refdown below zero")
	}
	if c == 0 {
		fa.Lock()
		fa.freeOrderLocked(i)
		fa.Unlock()
		return true
	}
	return false
}

// Refcnt reports a run's current reference count (mem.Page_i).
func (fa *FrameAllocator) Refcnt(p mem.Pa_t) int {
	return int(atomic.LoadInt32(&fa.info[fa.idx(p)].refcnt))
}

// Refpg_new allocates a single zeroed page and bumps no refcount (mem.Page_i;
// callers that want a held reference call Refup themselves, matching the
// teacher's convention that Refpg_new's result starts at refcount 0).
func (fa *FrameAllocator) Refpg_new() (*mem.Pg_t, mem.Pa_t, bool) {
	pg, p, ok := fa.Refpg_new_nozero()
	if !ok {
		return nil, 0, false
	}
	for i := range pg {
		pg[i] = 0
	}
	return pg, p, true
}

// Refpg_new_nozero allocates a single page without zeroing it (mem.Page_i).
func (fa *FrameAllocator) Refpg_new_nozero() (*mem.Pg_t, mem.Pa_t, bool) {
	fa.Lock()
	p, ok := fa.allocOrderLocked(0)
	fa.Unlock()
	if !ok {
		return nil, 0, false
	}
	return fa.Dmap(p), p, true
}

// Dmap returns the simulated direct-mapped view of the page at p
// (mem.Page_i).
func (fa *FrameAllocator) Dmap(p mem.Pa_t) *mem.Pg_t {
	b := mem.Dmaplen(fa.arena, (p/mem.Pa_t(mem.PGSIZE))*mem.Pa_t(mem.PGSIZE), mem.PGSIZE)
	return mem.Bytepg2pg((*mem.Bytepg_t)(unsafe.Pointer(&b[0])))
}

// DmapRun returns the simulated direct-mapped view of the nbytes starting
// at the page-run base p, for callers (kmalloc's oversized-allocation
// overflow path) that need more than one page's worth of contiguous bytes
// out of a single AllocPages(order) run.
func (fa *FrameAllocator) DmapRun(p mem.Pa_t, nbytes int) []byte {
	return mem.Dmaplen(fa.arena, p, nbytes)
}

// ZeroAddr returns the physical address of the permanent, never-freed zero
// page used for zero-fill-on-demand anonymous mappings.
func (fa *FrameAllocator) ZeroAddr() mem.Pa_t { return fa.zeroPg }

// ZeroPage returns the (read-only, by convention) zero page itself.
func (fa *FrameAllocator) ZeroPage() *mem.Pg_t { return fa.Dmap(fa.zeroPg) }

// NPages reports the total number of page-sized slots the arena holds.
func (fa *FrameAllocator) NPages() int { return fa.npages }

var _ mem.Page_i = (*FrameAllocator)(nil)
