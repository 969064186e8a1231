package vm

import (
	"testing"

	"defs"
	"kpanic"
	"mem"
	"pfa"
)

func TestMmapAnonZeroFillOnDemand(t *testing.T) {
	fa := pfa.New(256)
	as := CreateBlankProcessImage(fa, PGSIZE)

	base, err := as.Mmap(USERMIN, PGSIZE, PTE_U|PTE_W, nil, 0, false, nil)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}

	if err := as.Pgfault(defs.Tid_t(1), uintptr(base), uintptr(PTE_U)); err != 0 {
		t.Fatalf("page fault resolution failed: %d", err)
	}

	as.Lock_pmap()
	pte := Pmap_lookup(fa, as.Pmap, base)
	as.Unlock_pmap()
	if pte == nil || *pte&PTE_P == 0 {
		t.Fatal("expected a present PTE after fault resolution")
	}
	if *pte&PTE_COW == 0 {
		t.Fatal("a fresh writable anon page should start out COW-on-the-zero-page")
	}
}

func TestCloneProcessImageSharesCOWThenDiverges(t *testing.T) {
	fa := pfa.New(256)
	parent := CreateBlankProcessImage(fa, PGSIZE)

	base, err := parent.Mmap(USERMIN, PGSIZE, PTE_U|PTE_W, nil, 0, false, nil)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}
	if err := parent.Pgfault(defs.Tid_t(1), uintptr(base), uintptr(PTE_U|PTE_W)); err != 0 {
		t.Fatalf("initial write fault failed: %d", err)
	}

	child := CloneProcessImage(parent)

	parent.Lock_pmap()
	ppte := Pmap_lookup(fa, parent.Pmap, base)
	parent.Unlock_pmap()
	child.Lock_pmap()
	cpte := Pmap_lookup(fa, child.Pmap, base)
	child.Unlock_pmap()

	if ppte == nil || cpte == nil {
		t.Fatal("both address spaces should have a mapping at base after clone")
	}
	if *ppte&PTE_W != 0 || *cpte&PTE_W != 0 {
		t.Fatal("a writable mapping must be downgraded to COW in both parent and child")
	}
	if *ppte&PTE_COW == 0 || *cpte&PTE_COW == 0 {
		t.Fatal("both sides should be marked COW after clone")
	}
	if fa.Refcnt(mem.Pa_t(*ppte&PTE_ADDR)) != 2 {
		t.Fatalf("frame should be shared by exactly parent+child, refcnt=%d", fa.Refcnt(mem.Pa_t(*ppte&PTE_ADDR)))
	}

	if err := child.Pgfault(defs.Tid_t(2), uintptr(base), uintptr(PTE_U|PTE_W)); err != 0 {
		t.Fatalf("child write fault failed: %d", err)
	}
	if *cpte&PTE_ADDR == *ppte&PTE_ADDR || *cpte&PTE_W == 0 {
		t.Fatal("a write by the child should give it its own writable copy of the frame")
	}
	if fa.Refcnt(mem.Pa_t(*ppte&PTE_ADDR)) != 1 {
		t.Fatalf("after the child diverges the parent's frame should have one holder, refcnt=%d", fa.Refcnt(mem.Pa_t(*ppte&PTE_ADDR)))
	}
}

func TestCreateBlankProcessImageInstallsStackVma(t *testing.T) {
	fa := pfa.New(256)
	as := CreateBlankProcessImage(fa, 2*PGSIZE)

	vmi, ok := as.Vmregion.Lookup(uintptr(USERMAX - 1))
	if !ok {
		t.Fatal("expected a stack vma at the top of the user area")
	}
	if int(vmi.Pglen)*PGSIZE != 2*PGSIZE {
		t.Fatalf("expected a 2-page stack, got %d pages", vmi.Pglen)
	}
	if vmi.Perms&uint(PTE_W) == 0 {
		t.Fatal("stack vma must be writable")
	}

	if err := as.Pgfault(defs.Tid_t(1), uintptr(USERMAX-1), uintptr(PTE_U)); err != 0 {
		t.Fatalf("stack fault resolution failed: %d", err)
	}
	as.Lock_pmap()
	pte := Pmap_lookup(fa, as.Pmap, USERMAX-PGSIZE)
	as.Unlock_pmap()
	if pte == nil || *pte&PTE_P == 0 {
		t.Fatal("expected the stack's first page to be present after a touch")
	}
}

func TestCreateBlankProcessImageSharesKernelPmap(t *testing.T) {
	fa := pfa.New(256)

	// The kernel's own PDEs are established once, before any process
	// exists, the same way a real kernel pre-populates its page
	// directory slots at boot; every later blank image inherits them.
	kdi := kerneldi()
	kpmap := kernelPmap(fa)
	kpmap[kdi] = Pte_t(0x1000) | PTE_P

	a := CreateBlankProcessImage(fa, PGSIZE)
	b := CreateBlankProcessImage(fa, PGSIZE)

	a.Lock_pmap()
	defer a.Unlock_pmap()
	if a.Pmap[kdi]&PTE_ADDR != kpmap[kdi]&PTE_ADDR {
		t.Fatal("a's kernel PDE should track the shared kernel page directory")
	}
	if a.Pmap[kdi]&PTE_G == 0 {
		t.Fatal("a shared kernel PDE must be marked global")
	}
	b.Lock_pmap()
	defer b.Unlock_pmap()
	if b.Pmap[kdi]&PTE_ADDR != kpmap[kdi]&PTE_ADDR {
		t.Fatal("b should see the exact same kernel mapping as a, not a copy")
	}
}

func TestPgfaultKernelModeMissingVmaPanics(t *testing.T) {
	fa := pfa.New(256)
	as := CreateBlankProcessImage(fa, PGSIZE)

	var got string
	kpanic.SetHook(func(msg string) { got = msg })
	defer kpanic.SetHook(nil)

	as.Pgfault(defs.Tid_t(1), 0, 0)
	if got == "" {
		t.Fatal("expected a kernel-mode fault on an unmapped address to panic")
	}
}

func TestMunmapRequiresExactBounds(t *testing.T) {
	fa := pfa.New(256)
	as := CreateBlankProcessImage(fa, PGSIZE)
	base, err := as.Mmap(USERMIN, 2*PGSIZE, PTE_U|PTE_W, nil, 0, false, nil)
	if err != 0 {
		t.Fatalf("mmap failed: %d", err)
	}

	if err := as.Munmap(base, PGSIZE); err != -defs.EINVAL {
		t.Fatalf("expected EINVAL unmapping a partial VMA, got %d", err)
	}
	if err := as.Munmap(base, 2*PGSIZE); err != 0 {
		t.Fatalf("expected exact-bounds unmap to succeed, got %d", err)
	}
}
