package slab

import (
	"context"

	"golang.org/x/sync/errgroup"

	"mem"
)

// sizeClasses are kmalloc's fixed bucket sizes, doubling from 16 bytes up
// to one page; a request larger than the top bucket bypasses the caches
// and is served as a run of pages straight from the buddy allocator.
var sizeClasses = []int{16, 32, 64, 128, 256, 512, 1024, 2048, 4096}

// Heap_t is the general-purpose kmalloc/kfree allocator: one Cache_t per
// size class, chosen by rounding a request up to the smallest class that
// fits it.
type Heap_t struct {
	alloc   mem.Page_i
	classes []*Cache_t
}

// NewHeap builds a kmalloc heap backed by alloc, with one cache per size
// class pre-created (caches grow lazily on first allocation of that size,
// so this is cheap).
func NewHeap(alloc mem.Page_i) *Heap_t {
	h := &Heap_t{alloc: alloc}
	for _, sz := range sizeClasses {
		h.classes = append(h.classes, CacheCreate(classname(sz), sz, alloc, nil, nil))
	}
	return h
}

func classname(sz int) string {
	return "kmalloc-" + itoa(sz)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// ClassNames lists the cache name of every size class, in ascending size
// order, for the kmemstat/kmemprofile devfs drivers to walk.
func (h *Heap_t) ClassNames() []string {
	names := make([]string, len(h.classes))
	for i, c := range h.classes {
		names[i] = c.Name()
	}
	return names
}

// ClassByName returns the size-class cache registered under name, or nil.
func (h *Heap_t) ClassByName(name string) *Cache_t {
	for _, c := range h.classes {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

func classFor(classes []*Cache_t, size int) *Cache_t {
	for _, c := range classes {
		if c.Objsize() >= size {
			return c
		}
	}
	return nil
}

// Kmalloc_handle_t is kfree's argument: either which size class the object
// came from plus the slab handle itself, or — for an oversized request
// that overflowed straight to PFA — the page-run's base address and order.
type Kmalloc_handle_t struct {
	class *Cache_t
	obj   *Obj_t

	pfa   pfaRuns
	run   mem.Pa_t
	order uint
}

// pfaRuns is the order-aware buddy contract kmalloc's overflow path needs
// beyond mem.Page_i's single-page contract; pfa.FrameAllocator is the only
// implementation, asserted out of the Heap_t's plain mem.Page_i at call
// time so NewHeap keeps accepting any mem.Page_i.
type pfaRuns interface {
	AllocPages(order uint) (mem.Pa_t, bool)
	FreePages(mem.Pa_t)
	DmapRun(p mem.Pa_t, nbytes int) []byte
}

// Kmalloc allocates size bytes from the smallest size class that fits,
// returning the zero-valued backing bytes and an opaque handle for Kfree.
// A request larger than the top size class overflows straight to the
// page-frame allocator's buddy orders instead of failing, provided the
// Heap_t was built over a pfa.FrameAllocator (the only mem.Page_i that
// exposes AllocPages); a different injected mem.Page_i without that
// capability still returns a nil handle for an oversized request.
func (h *Heap_t) Kmalloc(size int) ([]byte, *Kmalloc_handle_t) {
	c := classFor(h.classes, size)
	if c == nil {
		return h.kmallocLarge(size)
	}
	obj := c.CacheAlloc()
	if obj == nil {
		return nil, nil
	}
	for i := range obj.Bytes {
		obj.Bytes[i] = 0
	}
	return obj.Bytes[:size], &Kmalloc_handle_t{class: c, obj: obj}
}

func (h *Heap_t) kmallocLarge(size int) ([]byte, *Kmalloc_handle_t) {
	pa, ok := h.alloc.(pfaRuns)
	if !ok {
		return nil, nil
	}
	npages := (size + PGSIZE - 1) / PGSIZE
	var order uint
	for (1 << order) < npages {
		order++
	}
	run, ok := pa.AllocPages(order)
	if !ok {
		return nil, nil
	}
	buf := pa.DmapRun(run, (1<<order)*PGSIZE)
	for i := range buf {
		buf[i] = 0
	}
	return buf[:size], &Kmalloc_handle_t{pfa: pa, run: run, order: order}
}

// Kfree releases a handle obtained from Kmalloc.
func (h *Heap_t) Kfree(handle *Kmalloc_handle_t) {
	if handle == nil {
		return
	}
	if handle.pfa != nil {
		handle.pfa.FreePages(handle.run)
		return
	}
	handle.class.CacheFree(handle.obj)
}

// ReapAll concurrently reaps every size class's empty slabs back to the
// page-frame allocator, one goroutine per class, and returns the total
// page-runs freed. Concurrency here is real work, not decoration: under
// memory pressure every class's free list should be walked without one
// slow class (a large order, many slabs) delaying the others.
func (h *Heap_t) ReapAll(ctx context.Context) (int, error) {
	var g errgroup.Group
	counts := make([]int, len(h.classes))
	for i, c := range h.classes {
		i, c := i, c
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			counts[i] = c.Reap()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	return total, nil
}
