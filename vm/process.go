package vm

import (
	"sync"

	"defs"
	"fdops"
	"mem"
	"util"
)

var (
	kpmapMu sync.Mutex
	kpmaps  = map[mem.Page_i]*Pmap_t{}
)

// kernelPmap returns the page-table frames shared by every address space
// built over alloc, allocating them the first time alloc is seen. Every
// address space sharing one alloc therefore sees the exact same kernel
// mappings without ever copying them.
func kernelPmap(alloc mem.Page_i) *Pmap_t {
	kpmapMu.Lock()
	defer kpmapMu.Unlock()
	if pm, ok := kpmaps[alloc]; ok {
		return pm
	}
	pg, _, ok := alloc.Refpg_new()
	if !ok {
		panic("vm: out of memory allocating kernel page directory")
	}
	pm := pmapFromPage(pg)
	kpmaps[alloc] = pm
	return pm
}

// shareKernelPmap installs as's slice of the shared kernel page directory:
// every present PDE at or above KERNMIN is pointed at the same page-table
// frame as every other address space over the same alloc, marked global
// so a context switch's TLB flush never has to re-walk them.
func shareKernelPmap(as *AddressSpace) {
	kpmap := kernelPmap(as.Alloc)
	lo := kerneldi()
	for pdi := lo; pdi < uint(len(as.Pmap)); pdi++ {
		pde := kpmap[pdi]
		if pde&PTE_P != 0 {
			pde |= PTE_G
		}
		as.Pmap[pdi] = pde
	}
}

// CreateBlankProcessImage builds a fresh address space: the kernel half of
// its page directory is shared by reference with every other address
// space (shareKernelPmap), and a user-space stack VMA of stackSize bytes
// is installed at the top of the user area with USER|RW permissions. Its
// pages are demand-paged like any other fresh anonymous mapping: a first
// read maps the shared zero page present, user and COW (not writable); a
// first write installs a private zero-filled page present, user and RW.
func CreateBlankProcessImage(alloc mem.Page_i, stackSize int) *AddressSpace {
	as := NewAddressSpace(alloc)
	if as == nil {
		return nil
	}
	shareKernelPmap(as)

	if stackSize <= 0 {
		stackSize = PGSIZE
	}
	stackSize = util.Roundup(stackSize, PGSIZE)
	stackTop := USERMAX
	stackBase := stackTop - stackSize

	as.Lock_pmap()
	vmi := as._mkvmi(VANON, stackBase, stackSize, PTE_U|PTE_W, 0, nil, nil)
	as.Vmregion.insert(vmi)
	as.Unlock_pmap()
	return as
}

// CloneProcessImage duplicates an address space for fork(): every
// present, writable PTE in the user half of the page directory is
// remapped copy-on-write in both the parent and the child and the
// frame's refcount is bumped so neither teardown frees it while the
// other still maps it. Non-writable and not-yet-present mappings are
// shared as-is (read-only pages need no copy; absent pages fault in
// independently on each side later). The kernel half is never copied —
// the child shares it by reference exactly like a freshly created
// process, via shareKernelPmap.
func CloneProcessImage(parent *AddressSpace) *AddressSpace {
	parent.Lock_pmap()
	defer parent.Unlock_pmap()

	child := NewAddressSpace(parent.Alloc)
	child.Vmregion = parent.Vmregion.Copy()
	shareKernelPmap(child)

	lo := kerneldi()
	for pdi := uint(0); pdi < lo; pdi++ {
		pde := parent.Pmap[pdi]
		if pde&PTE_P == 0 {
			continue
		}
		srcpt := pmapFromPage(parent.Alloc.Dmap(mem.Pa_t(pde & PTE_ADDR)))

		dstpg, p_dstpt, ok := parent.Alloc.Refpg_new()
		if !ok {
			panic("vm: out of memory cloning address space")
		}
		dstpt := pmapFromPage(dstpg)
		child.Pmap[pdi] = Pte_t(p_dstpt) | (pde &^ PTE_ADDR)

		for i, spte := range srcpt {
			if spte&PTE_P == 0 {
				continue
			}
			npte := spte
			if spte&PTE_W != 0 {
				npte = (spte &^ (PTE_W | PTE_WASCOW)) | PTE_COW
				srcpt[i] = npte
				parent.Tlbshoot(uintptr(pdi)<<22|uintptr(i)<<12, 1)
			}
			dstpt[i] = npte
			parent.Alloc.Refup(mem.Pa_t(npte & PTE_ADDR))
		}
	}
	return child
}

// DestroyProcessImage tears down an address space: every mapped frame's
// refcount is dropped (freeing it if this was the last holder) and the
// page directory itself is released.
func DestroyProcessImage(as *AddressSpace) {
	as.Lock_pmap()
	as.Uvmfree()
	as.Unlock_pmap()
}

// mmap reserves length bytes of address space starting at or after hint
// (0 lets the kernel choose) and installs a VMA of the requested kind,
// returning the chosen base address. A shared anonymous mapping is backed
// with present pages immediately; every other kind is left to be faulted
// in on first touch.
func (as *AddressSpace) Mmap(hint, length int, perms Pte_t, fops fdops.Fdops_i, foff int, shared bool, unpin mem.Unpin_i) (int, defs.Err_t) {
	if length <= 0 {
		return 0, -defs.EINVAL
	}
	length = util.Roundup(length, PGSIZE)

	as.Lock_pmap()
	defer as.Unlock_pmap()
	base := as.Unusedva_inner(hint, length)

	switch {
	case fops == nil && !shared:
		as.Vmregion.insert(as._mkvmi(VANON, base, length, perms, 0, nil, nil))
	case fops == nil && shared:
		as.Vmregion.insert(as._mkvmi(VSANON, base, length, perms, 0, nil, nil))
		// shared anonymous pages are always present: back them now.
		for va := base; va < base+length; va += PGSIZE {
			pg, p_pg, ok := as.Alloc.Refpg_new()
			if !ok {
				return 0, -defs.ENOMEM
			}
			_ = pg
			if _, ok := as.Page_insert(va, p_pg, perms|PTE_P, true, nil); !ok {
				as.Alloc.Refdown(p_pg)
				return 0, -defs.ENOMEM
			}
		}
	case shared:
		as.Vmregion.insert(as._mkvmi(VFILE, base, length, perms, foff, fops, unpin))
	default:
		as.Vmregion.insert(as._mkvmi(VFILE, base, length, perms, foff, fops, nil))
	}
	return base, 0
}

// munmap removes the mapping covering [start, start+length), which must
// exactly match the bounds of a single existing VMA (the spec's munmap
// does not support splitting a larger mapping).
func (as *AddressSpace) Munmap(start, length int) defs.Err_t {
	length = util.Roundup(length, PGSIZE)
	as.Lock_pmap()
	defer as.Unlock_pmap()

	vmi, ok := as.Vmregion.Lookup(uintptr(start))
	if !ok {
		return -defs.EINVAL
	}
	if vmi.start() != uintptr(start) || int(vmi.Pglen)*PGSIZE != length {
		return -defs.EINVAL
	}
	for va := start; va < start+length; va += PGSIZE {
		as.Page_remove(va)
	}
	as.Tlbshoot(uintptr(start), length/PGSIZE)
	as.Vmregion.remove(vmi)
	if vmi.Mtype == VFILE && vmi.file.mfile != nil {
		vmi.file.mfile.mapcount--
		if vmi.file.mfile.mapcount <= 0 {
			if vmi.file.mfile.unpin != nil {
				vmi.file.mfile.unpin.Unpin(0)
			}
			if vmi.file.mfile.mfops != nil {
				vmi.file.mfile.mfops.Close()
			}
		}
	}
	return 0
}
