package slab

import (
	"testing"

	"pfa"
)

func TestCacheAllocFreeReuse(t *testing.T) {
	fa := pfa.New(64)
	c := CacheCreate("test-64", 64, fa, nil, nil)

	o1 := c.CacheAlloc()
	if o1 == nil {
		t.Fatal("alloc failed")
	}
	full, partial, free, grown := c.Stats()
	if grown != 1 || full != 0 || partial != 1 || free != 0 {
		t.Fatalf("unexpected stats after first alloc: %d %d %d %d", full, partial, free, grown)
	}

	c.CacheFree(o1)
	_, _, free, _ = c.Stats()
	if free != 1 {
		t.Fatalf("slab should be back on the free list, got free=%d", free)
	}

	o2 := c.CacheAlloc()
	if o2 == nil {
		t.Fatal("realloc failed")
	}
	_, _, _, grown = c.Stats()
	if grown != 1 {
		t.Fatalf("reallocating should reuse the existing slab, grown=%d", grown)
	}
}

func TestCacheFillsSlabBeforeGrowing(t *testing.T) {
	fa := pfa.New(64)
	c := CacheCreate("test-2048", 2048, fa, nil, nil)
	perslab := PGSIZE / 2048

	objs := make([]*Obj_t, 0, perslab)
	for i := 0; i < perslab; i++ {
		o := c.CacheAlloc()
		if o == nil {
			t.Fatalf("alloc %d failed", i)
		}
		objs = append(objs, o)
	}
	_, _, _, grown := c.Stats()
	if grown != 1 {
		t.Fatalf("expected exactly one slab grown so far, got %d", grown)
	}

	c.CacheAlloc()
	_, _, _, grown = c.Stats()
	if grown != 2 {
		t.Fatalf("expected a second slab once the first filled up, got %d", grown)
	}
}

func TestCacheDestroyPanicsOnLiveObjects(t *testing.T) {
	fa := pfa.New(64)
	c := CacheCreate("test-leak", 32, fa, nil, nil)
	c.CacheAlloc()

	defer func() {
		if recover() == nil {
			t.Fatal("expected CacheDestroy to panic with a live object outstanding")
		}
	}()
	c.CacheDestroy()
}

func TestHeapKmallocKfree(t *testing.T) {
	fa := pfa.New(64)
	h := NewHeap(fa)

	b, handle := h.Kmalloc(100)
	if len(b) != 100 {
		t.Fatalf("expected 100 bytes, got %d", len(b))
	}
	for _, v := range b {
		if v != 0 {
			t.Fatal("kmalloc'd memory must start zeroed")
		}
	}
	h.Kfree(handle)
}

func TestHeapKmallocOverflowsToPfaForLargeRequests(t *testing.T) {
	fa := pfa.New(64)
	h := NewHeap(fa)

	size := 3 * PGSIZE
	b, handle := h.Kmalloc(size)
	if b == nil || handle == nil {
		t.Fatal("expected an oversized request to overflow to the page-frame allocator")
	}
	if len(b) != size {
		t.Fatalf("expected %d bytes, got %d", size, len(b))
	}
	for _, v := range b {
		if v != 0 {
			t.Fatal("kmalloc'd memory must start zeroed")
		}
	}
	b[0] = 0xff
	b[len(b)-1] = 0xff

	h.Kfree(handle)
}
