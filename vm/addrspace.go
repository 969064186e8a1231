// Package vm implements this kernel core's paging subsystem: the
// AddressSpace (a process's page directory plus its list of VMAs), demand
// paging, copy-on-write fork, and the page-fault handler. It is grounded on
// the teacher's vm.Vm_t/as.go, generalized from the teacher's real
// bare-metal four-level x86-64 walk (which depends on a patched Go runtime
// this module cannot target — runtime.Get_phys, runtime.Vtop, a recursive
// page-map slot) to a two-level, hosted simulation: page tables live in
// ordinary Go-allocated pages handed out by an injected mem.Page_i, and
// TLB shootdown is a local invalidation counter instead of an IPI
// broadcast, since this core never runs on more than one simulated CPU.
package vm

import (
	"sync"
	"time"

	"defs"
	"fdops"
	"mem"
	"ustr"
	"util"
)

// AddressSpace represents a process address space: its page directory and
// the VMAs describing how each region of it should be faulted in. The
// mutex serializes modifications to Vmregion, Pmap, and P_pmap with page
// fault handling, exactly as the teacher's Vm_t does.
type AddressSpace struct {
	sync.Mutex

	Vmregion Vmregion_t

	Alloc  mem.Page_i
	Pmap   *Pmap_t
	P_pmap mem.Pa_t

	pgfltaken bool
	tlbgen    uint64
}

// NewAddressSpace allocates a fresh, empty address space backed by alloc.
func NewAddressSpace(alloc mem.Page_i) *AddressSpace {
	pg, p_pmap, ok := alloc.Refpg_new()
	if !ok {
		return nil
	}
	as := &AddressSpace{Alloc: alloc}
	as.Pmap = pmapFromPage(pg)
	as.P_pmap = p_pmap
	return as
}

// Lock_pmap acquires the address space mutex and marks that a page fault
// may now safely walk the page table.
func (as *AddressSpace) Lock_pmap() {
	as.Lock()
	as.pgfltaken = true
}

// Unlock_pmap releases the address space mutex after page table
// manipulation is complete.
func (as *AddressSpace) Unlock_pmap() {
	as.pgfltaken = false
	as.Unlock()
}

// Lockassert_pmap panics if the address space mutex is not held.
func (as *AddressSpace) Lockassert_pmap() {
	if !as.pgfltaken {
		panic("pgfl lock must be held")
	}
}

// Userdmap8_inner returns a slice mapping of the user address at va,
// faulting the page in first if necessary. When k2u is true the memory is
// prepared for a kernel write into user memory.
func (as *AddressSpace) Userdmap8_inner(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lockassert_pmap()

	voff := va & int(PGOFFSET)
	uva := uintptr(va)
	vmi, ok := as.Vmregion.Lookup(uva)
	if !ok {
		return nil, -defs.EFAULT
	}
	pte, ok := vmi.Ptefor(as.Alloc, as.Pmap, uva)
	if !ok {
		return nil, -defs.ENOMEM
	}
	ecode := Pte_t(PTE_U)
	needfault := true
	isp := *pte&PTE_P != 0
	if k2u {
		ecode |= PTE_W
		iscow := *pte&PTE_COW != 0
		if isp && !iscow {
			needfault = false
		}
	} else if isp {
		needfault = false
	}

	if needfault {
		if err := Sys_pgfault(as, vmi, uva, ecode); err != 0 {
			return nil, err
		}
	}

	pg := as.Alloc.Dmap(mem.Pa_t(*pte & PTE_ADDR))
	bpg := mem.Pg2bytes(pg)
	return bpg[voff:], 0
}

func (as *AddressSpace) _userdmap8(va int, k2u bool) ([]uint8, defs.Err_t) {
	as.Lock_pmap()
	ret, err := as.Userdmap8_inner(va, k2u)
	as.Unlock_pmap()
	return ret, err
}

// Userdmap8r maps the user address for reading and returns the resulting
// slice or an error.
func (as *AddressSpace) Userdmap8r(va int) ([]uint8, defs.Err_t) {
	return as._userdmap8(va, false)
}

func (as *AddressSpace) usermapped(va, n int) bool {
	as.Lock_pmap()
	defer as.Unlock_pmap()
	_, ok := as.Vmregion.Lookup(uintptr(va))
	return ok
}

// Userreadn reads n (<=8) bytes from user address va as a little-endian
// integer.
func (as *AddressSpace) Userreadn(va, n int) (int, defs.Err_t) {
	as.Lock_pmap()
	a, b := as.userreadn_inner(va, n)
	as.Unlock_pmap()
	return a, b
}

func (as *AddressSpace) userreadn_inner(va, n int) (int, defs.Err_t) {
	as.Lockassert_pmap()
	if n > 8 {
		panic("large n")
	}
	var ret int
	var src []uint8
	var err defs.Err_t
	for i := 0; i < n; i += len(src) {
		src, err = as.Userdmap8_inner(va+i, false)
		if err != 0 {
			return 0, err
		}
		l := n - i
		if len(src) < l {
			l = len(src)
		}
		v := util.Readn(src, l, 0)
		ret |= v << (8 * uint(i))
	}
	return ret, 0
}

// Userwriten writes the low n bytes of val to user address va.
func (as *AddressSpace) Userwriten(va, n, val int) defs.Err_t {
	if n > 8 {
		panic("large n")
	}
	as.Lock_pmap()
	defer as.Unlock_pmap()
	var dst []uint8
	for i := 0; i < n; i += len(dst) {
		v := val >> (8 * uint(i))
		t, err := as.Userdmap8_inner(va+i, true)
		dst = t
		if err != 0 {
			return err
		}
		util.Writen(dst, n-i, 0, v)
	}
	return 0
}

// Userstr copies a NUL-terminated string from user space, at most lenmax
// bytes.
func (as *AddressSpace) Userstr(uva int, lenmax int) (ustr.Ustr, defs.Err_t) {
	if lenmax < 0 {
		return nil, 0
	}
	as.Lock_pmap()
	i := 0
	s := ustr.MkUstr()
	for {
		str, err := as.Userdmap8_inner(uva+i, false)
		if err != 0 {
			as.Unlock_pmap()
			return s, err
		}
		for j, c := range str {
			if c == 0 {
				s = append(s, str[:j]...)
				as.Unlock_pmap()
				return s, 0
			}
		}
		s = append(s, str...)
		i += len(str)
		if len(s) >= lenmax {
			as.Unlock_pmap()
			return nil, -defs.ENAMETOOLONG
		}
	}
}

// Usertimespec reads a {secs, nsecs} pair from user memory at va.
func (as *AddressSpace) Usertimespec(va int) (time.Duration, time.Time, defs.Err_t) {
	var zt time.Time
	secs, err := as.Userreadn(va, 8)
	if err != 0 {
		return 0, zt, err
	}
	nsecs, err := as.Userreadn(va+8, 8)
	if err != 0 {
		return 0, zt, err
	}
	if secs < 0 || nsecs < 0 {
		return 0, zt, -defs.EINVAL
	}
	tot := time.Duration(secs)*time.Second + time.Duration(nsecs)*time.Nanosecond
	t := time.Unix(int64(secs), int64(nsecs))
	return tot, t, 0
}

// K2user copies src into user memory starting at uva.
func (as *AddressSpace) K2user(src []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.K2user_inner(src, uva)
	as.Unlock_pmap()
	return ret
}

func (as *AddressSpace) K2user_inner(src []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	l := len(src)
	for cnt != l {
		dst, err := as.Userdmap8_inner(uva+cnt, true)
		if err != 0 {
			return err
		}
		ub := len(src)
		if ub > len(dst) {
			ub = len(dst)
		}
		copy(dst, src)
		src = src[ub:]
		cnt += ub
	}
	return 0
}

// User2k copies len(dst) bytes from user memory at uva into dst.
func (as *AddressSpace) User2k(dst []uint8, uva int) defs.Err_t {
	as.Lock_pmap()
	ret := as.User2k_inner(dst, uva)
	as.Unlock_pmap()
	return ret
}

func (as *AddressSpace) User2k_inner(dst []uint8, uva int) defs.Err_t {
	as.Lockassert_pmap()
	cnt := 0
	for len(dst) != 0 {
		src, err := as.Userdmap8_inner(uva+cnt, false)
		if err != 0 {
			return err
		}
		did := copy(dst, src)
		dst = dst[did:]
		cnt += did
	}
	return 0
}

// Unusedva_inner finds an unused virtual address range of at least len
// bytes at or after startva.
func (as *AddressSpace) Unusedva_inner(startva, length int) int {
	as.Lockassert_pmap()
	if length < 0 {
		panic("weird len")
	}
	startva = util.Rounddown(startva, PGSIZE)
	if startva < USERMIN {
		startva = USERMIN
	}
	ret, l := as.Vmregion.empty(uintptr(startva), uintptr(length))
	r := int(ret)
	if startva > r && startva < r+int(l) {
		r = startva
	}
	return r
}

// Uvmfree releases all user mappings and page tables associated with this
// address space.
func (as *AddressSpace) Uvmfree() {
	uvmfree_inner(as.Alloc, as.Pmap, &as.Vmregion)
	as.Alloc.Refdown(as.P_pmap)
	as.Vmregion.Clear()
}

// Vmadd_anon creates a private anonymous mapping.
func (as *AddressSpace) Vmadd_anon(start, length int, perms Pte_t) {
	vmi := as._mkvmi(VANON, start, length, perms, 0, nil, nil)
	as.Vmregion.insert(vmi)
}

// Vmadd_file maps a region backed by fops at the given file offset.
func (as *AddressSpace) Vmadd_file(start, length int, perms Pte_t, fops fdops.Fdops_i, foff int) {
	vmi := as._mkvmi(VFILE, start, length, perms, foff, fops, nil)
	as.Vmregion.insert(vmi)
}

// Vmadd_shareanon inserts a shared anonymous mapping.
func (as *AddressSpace) Vmadd_shareanon(start, length int, perms Pte_t) {
	vmi := as._mkvmi(VSANON, start, length, perms, 0, nil, nil)
	as.Vmregion.insert(vmi)
}

// Vmadd_sharefile creates a shared file-backed mapping; unpin is invoked
// when the last mapping of the file is torn down.
func (as *AddressSpace) Vmadd_sharefile(start, length int, perms Pte_t, fops fdops.Fdops_i, foff int, unpin mem.Unpin_i) {
	vmi := as._mkvmi(VFILE, start, length, perms, foff, fops, unpin)
	as.Vmregion.insert(vmi)
}

// _mkvmi builds a Vminfo_t. perms should only carry PTE_U/PTE_W — the page
// fault handler installs the correct COW flags; perms == 0 marks a guard
// region that can never be mapped.
func (as *AddressSpace) _mkvmi(mt mtype_t, start, length int, perms Pte_t, foff int,
	fops fdops.Fdops_i, unpin mem.Unpin_i) *Vminfo_t {
	if length <= 0 {
		panic("bad vmi len")
	}
	if (start|length)&int(PGOFFSET) != 0 {
		panic("start and len must be aligned")
	}
	pm := PTE_W | PTE_COW | PTE_WASCOW | PTE_PCD | PTE_P | PTE_U
	if r := perms & pm; r != 0 && r != PTE_U && r != (PTE_W|PTE_U) {
		panic("bad perms")
	}
	ret := &Vminfo_t{}
	ret.Mtype = mt
	ret.Pgn = uintptr(start) >> PGSHIFT
	ret.Pglen = util.Roundup(length, PGSIZE) >> PGSHIFT
	ret.Perms = uint(perms)
	if mt == VFILE {
		ret.file.foff = foff
		ret.file.mfile = &Mfile_t{mfops: fops, unpin: unpin, mapcount: ret.Pglen}
		ret.file.shared = unpin != nil
	}
	return ret
}

// Mkuserbuf allocates and initializes a Userbuf_t referencing user memory
// starting at userva.
func (as *AddressSpace) Mkuserbuf(userva, length int) *Userbuf_t {
	ret := &Userbuf_t{}
	ret.ub_init(as, userva, length)
	return ret
}
