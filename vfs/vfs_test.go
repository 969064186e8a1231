package vfs

import (
	"testing"

	"defs"
	"devfs"
	"drivers"
	"pfa"
	"slab"
	"ustr"
)

type fakeStat struct{ mode uint }

func (f *fakeStat) Wdev(uint)    {}
func (f *fakeStat) Wino(uint)    {}
func (f *fakeStat) Wmode(v uint) { f.mode = v }
func (f *fakeStat) Wsize(uint)   {}
func (f *fakeStat) Wrdev(uint)   {}

func TestMountDispatchesToDevfs(t *testing.T) {
	fa := pfa.New(64)
	heap := slab.NewHeap(fa)
	root := devfs.NewRoot()
	drivers.RegisterAll(root, heap)

	mt := NewMountTable()
	mt.Mount("/dev", NewDevfsMount(root))

	f, err := mt.Open(ustr.Ustr("/dev/null"), 0)
	if err != 0 {
		t.Fatalf("open /dev/null failed: %d", err)
	}
	if err := f.Close(); err != 0 {
		t.Fatalf("close failed: %d", err)
	}

	var st fakeStat
	if err := mt.Stat(ustr.Ustr("/dev/console"), &st); err != 0 {
		t.Fatalf("stat /dev/console failed: %d", err)
	}
}

func TestMountUnknownPrefixIsENOENT(t *testing.T) {
	mt := NewMountTable()
	if _, err := mt.Open(ustr.Ustr("/dev/null"), 0); err != -defs.ENOENT {
		t.Fatal("expected ENOENT with no mounts registered")
	}
}

func TestMountLongestPrefixWins(t *testing.T) {
	fa := pfa.New(64)
	heap := slab.NewHeap(fa)
	root := devfs.NewRoot()
	drivers.RegisterAll(root, heap)

	other := devfs.NewRoot()

	mt := NewMountTable()
	mt.Mount("/", NewDevfsMount(other))
	mt.Mount("/dev", NewDevfsMount(root))

	if _, err := mt.Open(ustr.Ustr("/dev/null"), 0); err != 0 {
		t.Fatalf("expected the /dev mount to win over /, got %d", err)
	}
}

func TestNewFileSlabAllocatesFdObjects(t *testing.T) {
	fa := pfa.New(64)
	c := NewFileSlab(fa)

	objs := make([]*slab.Obj_t, 0, 4)
	defer func() {
		for _, o := range objs {
			c.CacheFree(o)
		}
	}()

	for i := 0; i < 4; i++ {
		o := c.CacheAlloc()
		if o == nil {
			t.Fatalf("alloc %d failed", i)
		}
		objs = append(objs, o)
	}

	full, partial, free, _ := c.Stats()
	if full+partial+free == 0 {
		t.Fatal("expected at least one slab to back the allocations")
	}
}
