// Package slab implements the object allocator: kmem_cache-style caches of
// fixed-size objects carved out of pages from the page-frame allocator,
// plus the general-purpose kmalloc/kfree built on a fixed set of size
// classes. It is grounded on the teacher's fs.BlkList_t
// (container/list-wrapped, Bdev_block_t-bearing) residency-list idiom: a
// Cache_t keeps its slabs in the same container/list-backed full/partial/
// free lists, just holding *Slab_t instead of *Bdev_block_t. Unlike a
// freestanding C kernel, Cache_t/Slab_t bookkeeping structures themselves
// are ordinary Go-GC'd values — there is no need to bootstrap a
// cache-of-caches the way the teacher's C-flavored slab allocator would,
// since Go already supplies a general allocator for kernel metadata; only
// the objects a cache hands out live on pages drawn from mem.Page_i.
package slab

import (
	"container/list"
	"fmt"
	"sync"

	"mem"
)

const PGSIZE = mem.PGSIZE

// Ctor_f initializes a freshly carved object; Dtor_f undoes that before the
// object's page run is returned to the page-frame allocator. Either may be
// nil.
type Ctor_f func(obj []byte)
type Dtor_f func(obj []byte)

// Cache_t is one kmem_cache: a pool of equally sized objects, each carved
// from a run of pages it owns.
type Cache_t struct {
	sync.Mutex

	name    string
	objsize int
	ctor    Ctor_f
	dtor    Dtor_f
	alloc   mem.Page_i

	full    *list.List // *Slab_t with zero free objects
	partial *list.List // *Slab_t with some free objects
	free    *list.List // *Slab_t with all objects free

	ngrown int
}

// Slab_t is one page run's worth of objects belonging to a cache.
type Slab_t struct {
	pa    mem.Pa_t
	mem   []byte
	free  []bool
	inuse int
	elem  *list.Element
	owner *list.List
}

// Obj_t is a handle to a single allocated object: which slab it lives in,
// its slot index, and the backing bytes. CacheFree needs the handle (not
// just the bytes) to know which slab and slot to release.
type Obj_t struct {
	Bytes []byte
	slab  *Slab_t
	idx   int
}

// CacheCreate builds a new cache of objsize-byte objects, each slab a
// single page carved from alloc. mem.Page_i only ever hands out single
// pages (the order-aware buddy contract lives on pfa.FrameAllocator
// directly), so a slab never spans more than one page; objsize must fit.
// ctor/dtor run once per object lifetime — when a slab is grown or
// reaped, not on every Alloc/Free.
func CacheCreate(name string, objsize int, alloc mem.Page_i, ctor Ctor_f, dtor Dtor_f) *Cache_t {
	if objsize <= 0 || objsize > PGSIZE {
		panic("slab: objsize must fit in one page")
	}
	return &Cache_t{
		name: name, objsize: objsize, ctor: ctor, dtor: dtor, alloc: alloc,
		full: list.New(), partial: list.New(), free: list.New(),
	}
}

func (c *Cache_t) objsPerSlab() int {
	return PGSIZE / c.objsize
}

// growSlab carves a fresh slab out of a new page, running ctor on every
// object slot it creates.
func (c *Cache_t) growSlab() *Slab_t {
	pg, pa, ok := c.alloc.Refpg_new()
	if !ok {
		return nil
	}
	buf := mem.Pg2bytes(pg)[:]
	n := c.objsPerSlab()
	s := &Slab_t{pa: pa, mem: buf, free: make([]bool, n)}
	for i := range s.free {
		s.free[i] = true
		if c.ctor != nil {
			c.ctor(s.mem[i*c.objsize : (i+1)*c.objsize])
		}
	}
	c.ngrown++
	return s
}

func (c *Cache_t) moveTo(dst *list.List, s *Slab_t) {
	if s.owner == dst {
		return
	}
	if s.owner != nil && s.elem != nil {
		s.owner.Remove(s.elem)
	}
	s.elem = dst.PushFront(s)
	s.owner = dst
}

func (c *Cache_t) restow(s *Slab_t) {
	switch {
	case s.inuse == 0:
		c.moveTo(c.free, s)
	case s.inuse == len(s.free):
		c.moveTo(c.full, s)
	default:
		c.moveTo(c.partial, s)
	}
}

// CacheAlloc returns a handle to a free object slot, growing the cache by
// one slab run if every existing slab is full. A reused slot is not
// cleared: it holds whatever its previous user left in it.
func (c *Cache_t) CacheAlloc() *Obj_t {
	c.Lock()
	defer c.Unlock()

	e := c.partial.Front()
	if e == nil {
		e = c.free.Front()
	}
	var s *Slab_t
	if e == nil {
		s = c.growSlab()
		if s == nil {
			return nil
		}
		c.moveTo(c.free, s)
	} else {
		s = e.Value.(*Slab_t)
	}

	idx := -1
	for i, isfree := range s.free {
		if isfree {
			idx = i
			break
		}
	}
	if idx < 0 {
		panic("slab: residency list lied about free slots")
	}
	s.free[idx] = false
	s.inuse++
	c.restow(s)
	return &Obj_t{Bytes: s.mem[idx*c.objsize : (idx+1)*c.objsize], slab: s, idx: idx}
}

// CacheFree returns o to the cache, running dtor and releasing the slab's
// page run if this was its last live object and a spare empty slab is
// already on hand.
func (c *Cache_t) CacheFree(o *Obj_t) {
	c.Lock()
	defer c.Unlock()

	s := o.slab
	if s.free[o.idx] {
		panic("slab: double free")
	}
	s.free[o.idx] = true
	s.inuse--
	c.restow(s)
	if s.inuse == 0 && c.free.Len() > 1 {
		c.reapOne()
	}
}

func (c *Cache_t) reapSlab(s *Slab_t, lst *list.List) {
	if c.dtor != nil {
		for i := range s.free {
			c.dtor(s.mem[i*c.objsize : (i+1)*c.objsize])
		}
	}
	lst.Remove(s.elem)
	c.alloc.Refdown(s.pa)
}

func (c *Cache_t) reapOne() {
	for e := c.free.Front(); e != nil; e = e.Next() {
		s := e.Value.(*Slab_t)
		if s.inuse == 0 {
			c.reapSlab(s, c.free)
			return
		}
	}
}

// Reap releases every empty slab back to the page-frame allocator,
// leaving partial/full slabs intact. Called by the concurrent cache
// reaper under memory pressure.
func (c *Cache_t) Reap() int {
	c.Lock()
	defer c.Unlock()
	freed := 0
	for e := c.free.Front(); e != nil; {
		s := e.Value.(*Slab_t)
		next := e.Next()
		c.reapSlab(s, c.free)
		e = next
		freed++
	}
	return freed
}

// CacheDestroy releases every slab the cache owns; it panics if any object
// is still allocated, since that would silently invalidate a live pointer.
func (c *Cache_t) CacheDestroy() {
	c.Lock()
	defer c.Unlock()
	if c.partial.Len() != 0 || c.full.Len() != 0 {
		panic(fmt.Sprintf("slab: cache %q destroyed with live objects", c.name))
	}
	for e := c.free.Front(); e != nil; {
		s := e.Value.(*Slab_t)
		next := e.Next()
		c.reapSlab(s, c.free)
		e = next
	}
}

// Stats reports the number of full/partial/free slabs and how many times
// this cache has grown, for the kmemstat devfs driver.
func (c *Cache_t) Stats() (full, partial, free, grown int) {
	c.Lock()
	defer c.Unlock()
	return c.full.Len(), c.partial.Len(), c.free.Len(), c.ngrown
}

// Name reports the cache's label.
func (c *Cache_t) Name() string { return c.name }

// Objsize reports the cache's fixed object size in bytes.
func (c *Cache_t) Objsize() int { return c.objsize }
