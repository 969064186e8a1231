package vm

import (
	"sync/atomic"

	"defs"
	"kpanic"
	"mem"
)

// Sys_pgfault resolves a page fault for address space as at faultaddr, with
// ecode describing the access (PTE_U set for a user-mode access, clear for
// a kernel-mode one, which goes to kpanic.Panic; PTE_W set for a write
// fault). It implements the spec's copy-on-write resolution: a COW page
// mapped into exactly one address space is claimed in place; otherwise the
// frame is duplicated. Zero-fill-on-demand anonymous pages and file-backed
// pages are both materialized here too, on first touch.
func Sys_pgfault(as *AddressSpace, vmi *Vminfo_t, faultaddr uintptr, ecode Pte_t) defs.Err_t {
	isguard := vmi.Perms == 0
	iswrite := ecode&PTE_W != 0
	writeok := vmi.Perms&uint(PTE_W) != 0
	if isguard || (iswrite && !writeok) {
		return -defs.EFAULT
	}
	if ecode&PTE_U == 0 {
		kpanic.Panic("kernel-mode page fault at %#x", faultaddr)
		return -defs.EFAULT
	}
	if vmi.Mtype == VSANON {
		panic("shared anon pages should always be mapped")
	}

	pte, ok := vmi.Ptefor(as.Alloc, as.Pmap, faultaddr)
	if !ok {
		return -defs.ENOMEM
	}
	if (iswrite && *pte&PTE_WASCOW != 0) || (!iswrite && *pte&PTE_P != 0) {
		// another fault already resolved this race
		return 0
	}

	var p_pg mem.Pa_t
	isblockpage := false
	perms := PTE_U | PTE_P
	isempty := true

	switch {
	case vmi.Mtype == VFILE && vmi.file.shared:
		var err defs.Err_t
		_, p_pg, err = vmi.Filepage(as.Alloc, faultaddr)
		if err != 0 {
			return err
		}
		isblockpage = true
		if vmi.Perms&uint(PTE_W) != 0 {
			perms |= PTE_W
		}
	case iswrite:
		if *pte&PTE_W != 0 {
			panic("bad state")
		}
		var pgsrc *mem.Pg_t
		cow := *pte&PTE_COW != 0
		if cow {
			phys := mem.Pa_t(*pte & PTE_ADDR)
			if vmi.Mtype == VANON && as.Alloc.Refcnt(phys) == 1 && phys != as.Alloc.ZeroAddr() {
				// sole owner of this COW frame: claim it in place.
				tmp := *pte &^ PTE_COW
				tmp |= PTE_W | PTE_WASCOW
				*pte = tmp
				as.Tlbshoot(faultaddr, 1)
				return 0
			}
			pgsrc = as.Alloc.Dmap(phys)
			isempty = false
		} else {
			if *pte != 0 {
				panic("no")
			}
			switch vmi.Mtype {
			case VANON:
				pgsrc = as.Alloc.ZeroPage()
			case VFILE:
				var p_bpg mem.Pa_t
				var err defs.Err_t
				pgsrc, p_bpg, err = vmi.Filepage(as.Alloc, faultaddr)
				if err != 0 {
					return err
				}
				defer as.Alloc.Refdown(p_bpg)
			default:
				panic("wut")
			}
		}
		pg, np, ok := as.Alloc.Refpg_new_nozero()
		if !ok {
			return -defs.ENOMEM
		}
		*pg = *pgsrc
		p_pg = np
		perms |= PTE_WASCOW | PTE_W
	default:
		if *pte != 0 {
			panic("must be 0")
		}
		switch vmi.Mtype {
		case VANON:
			p_pg = as.Alloc.ZeroAddr()
		case VFILE:
			var err defs.Err_t
			_, p_pg, err = vmi.Filepage(as.Alloc, faultaddr)
			if err != 0 {
				return err
			}
			isblockpage = true
		default:
			panic("wut")
		}
		if vmi.Perms&uint(PTE_W) != 0 {
			perms |= PTE_COW
		}
	}
	if perms&PTE_W != 0 {
		perms |= PTE_D
	}
	perms |= PTE_A

	var tshoot, inserted bool
	if isblockpage {
		tshoot, inserted = as.Blockpage_insert(int(faultaddr), p_pg, perms, isempty, pte)
	} else {
		tshoot, inserted = as.Page_insert(int(faultaddr), p_pg, perms, isempty, pte)
	}
	if !inserted {
		as.Alloc.Refdown(p_pg)
		return -defs.ENOMEM
	}
	if tshoot {
		as.Tlbshoot(faultaddr, 1)
	}
	return 0
}

// Page_insert maps p_pg at va with perms, bumping p_pg's refcount. Returns
// whether an existing present mapping was replaced (needs a TLB flush) and
// whether the insertion succeeded.
func (as *AddressSpace) Page_insert(va int, p_pg mem.Pa_t, perms Pte_t, vempty bool, pte *Pte_t) (bool, bool) {
	return as._page_insert(va, p_pg, perms, vempty, true, pte)
}

// Blockpage_insert is like Page_insert but does not take a reference on
// p_pg: the mapping takes over a reference the caller already holds (the
// one Filepage returns).
func (as *AddressSpace) Blockpage_insert(va int, p_pg mem.Pa_t, perms Pte_t, vempty bool, pte *Pte_t) (bool, bool) {
	return as._page_insert(va, p_pg, perms, vempty, false, pte)
}

func (as *AddressSpace) _page_insert(va int, p_pg mem.Pa_t, perms Pte_t, vempty, refup bool, pte *Pte_t) (bool, bool) {
	as.Lockassert_pmap()
	if refup {
		as.Alloc.Refup(p_pg)
	}
	if pte == nil {
		var ok bool
		pte, ok = pmap_walk(as.Alloc, as.Pmap, va, PTE_U|PTE_W)
		if !ok {
			return false, false
		}
	}
	ninval := false
	var p_old mem.Pa_t
	if *pte&PTE_P != 0 {
		if vempty {
			panic("pte not empty")
		}
		if *pte&PTE_U == 0 {
			panic("replacing kernel page")
		}
		ninval = true
		p_old = mem.Pa_t(*pte & PTE_ADDR)
	}
	*pte = Pte_t(p_pg) | perms | PTE_P
	if ninval {
		as.Alloc.Refdown(p_old)
	}
	return ninval, true
}

// Page_remove unmaps the page at va, if any, and returns whether a mapping
// was removed.
func (as *AddressSpace) Page_remove(va int) bool {
	as.Lockassert_pmap()
	pte := Pmap_lookup(as.Alloc, as.Pmap, va)
	if pte == nil || *pte&PTE_P == 0 {
		return false
	}
	if *pte&PTE_U == 0 {
		panic("removing kernel page")
	}
	p_old := mem.Pa_t(*pte & PTE_ADDR)
	as.Alloc.Refdown(p_old)
	*pte = 0
	return true
}

// Pgfault handles a page fault taken by thread tid at fa with error code
// ecode, acquiring the pmap lock itself.
func (as *AddressSpace) Pgfault(tid defs.Tid_t, fa, ecode uintptr) defs.Err_t {
	as.Lock_pmap()
	vmi, ok := as.Vmregion.Lookup(fa)
	if !ok {
		as.Unlock_pmap()
		if Pte_t(ecode)&PTE_U == 0 {
			kpanic.Panic("kernel-mode page fault at %#x: no vma", fa)
			return -defs.EFAULT
		}
		return -defs.EFAULT
	}
	ret := Sys_pgfault(as, vmi, fa, Pte_t(ecode))
	as.Unlock_pmap()
	return ret
}

// Tlbshoot invalidates pgcount pages starting at startva. This core runs
// hosted with a single simulated CPU per address space, so there is no
// cross-CPU shootdown to broadcast; the generation counter exists so tests
// can observe that an invalidation happened.
func (as *AddressSpace) Tlbshoot(startva uintptr, pgcount int) {
	if pgcount == 0 {
		return
	}
	as.Lockassert_pmap()
	atomic.AddUint64(&as.tlbgen, 1)
}

// Tlbgen reports how many TLB invalidations this address space has issued,
// for tests asserting that a COW resolution or unmap actually shot down
// the stale mapping.
func (as *AddressSpace) Tlbgen() uint64 {
	return atomic.LoadUint64(&as.tlbgen)
}

// uvmfree_inner releases every user-half page table and the frames they
// map. The kernel half (pdi >= kerneldi()) is never walked here: those
// PDEs point at page-table frames shared by reference across every
// address space (see shareKernelPmap), which were never refup'd on
// behalf of this address space and so must never be refdown'd by it
// either — only the process-wide allocator that owns them outlives any
// one address space's teardown.
func uvmfree_inner(alloc mem.Page_i, pmap *Pmap_t, vr *Vmregion_t) {
	lo := int(kerneldi())
	for pdi := 0; pdi < lo && pdi < len(pmap); pdi++ {
		pde := pmap[pdi]
		if pde&PTE_P == 0 {
			continue
		}
		pt := pmapFromPage(alloc.Dmap(mem.Pa_t(pde & PTE_ADDR)))
		for _, pte := range pt {
			if pte&PTE_P != 0 {
				alloc.Refdown(mem.Pa_t(pte & PTE_ADDR))
			}
		}
		alloc.Refdown(mem.Pa_t(pde & PTE_ADDR))
	}
}
