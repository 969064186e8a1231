package vm

import (
	"sort"

	"defs"
	"fdops"
	"mem"
)

// mtype_t distinguishes the three kinds of backing a VMA can have.
type mtype_t uint8

const (
	VANON  mtype_t = iota // private anonymous memory, zero-filled on demand
	VFILE                 // file-backed, private (COW) or shared
	VSANON                // shared anonymous memory, always present
)

// Mfile_t is the file backing shared by every VMA that maps the same open
// file region; mapcount lets the last unmapper unpin the pages.
type Mfile_t struct {
	mfops    fdops.Fdops_i
	unpin    mem.Unpin_i
	mapcount int
}

type vfileinfo_t struct {
	foff   int
	mfile  *Mfile_t
	shared bool
}

// Vminfo_t describes one virtual memory area: a page-aligned run of
// [Pgn, Pgn+Pglen) with one backing type and one permission set. The page
// fault handler consults it to decide how to materialize a page; it never
// stores the PTEs themselves.
type Vminfo_t struct {
	Mtype mtype_t
	Pgn   uintptr
	Pglen int
	Perms uint
	file  vfileinfo_t
}

func (vmi *Vminfo_t) start() uintptr { return vmi.Pgn << PGSHIFT }
func (vmi *Vminfo_t) end() uintptr   { return (vmi.Pgn + uintptr(vmi.Pglen)) << PGSHIFT }

// Ptefor locates (creating page tables as needed) the PTE that would back
// virtual address va within this VMA.
func (vmi *Vminfo_t) Ptefor(alloc mem.Page_i, pmap *Pmap_t, va uintptr) (*Pte_t, bool) {
	return pmap_walk(alloc, pmap, int(va), PTE_U|PTE_W)
}

// Filepage reads the page of the backing file covering faultaddr, returning
// a freshly allocated physical page holding its contents, with one
// reference held for the caller.
func (vmi *Vminfo_t) Filepage(alloc mem.Page_i, faultaddr uintptr) (*mem.Pg_t, mem.Pa_t, defs.Err_t) {
	if vmi.file.mfile == nil || vmi.file.mfile.mfops == nil {
		return nil, 0, -defs.EINVAL
	}
	pg, p_pg, ok := alloc.Refpg_new()
	if !ok {
		return nil, 0, -defs.ENOMEM
	}
	alloc.Refup(p_pg)
	pgn := (faultaddr >> PGSHIFT) - vmi.Pgn
	off := vmi.file.foff + int(pgn)*PGSIZE
	fb := &Fakeubuf_t{}
	fb.Fake_init(mem.Pg2bytes(pg)[:])
	if _, err := vmi.file.mfile.mfops.Pread(fb, off); err != 0 {
		alloc.Refdown(p_pg)
		return nil, 0, err
	}
	return pg, p_pg, 0
}

// Vmregion_t is the sorted, disjoint list of VMAs making up one address
// space's user-reachable memory.
type Vmregion_t struct {
	areas []*Vminfo_t
}

// Lookup returns the VMA covering va, if any.
func (vr *Vmregion_t) Lookup(va uintptr) (*Vminfo_t, bool) {
	i := sort.Search(len(vr.areas), func(i int) bool {
		return vr.areas[i].end() > va
	})
	if i < len(vr.areas) && vr.areas[i].start() <= va {
		return vr.areas[i], true
	}
	return nil, false
}

// insert adds vmi to the region list, keeping it sorted by start address.
// Overlap with an existing VMA is a programming error: the caller (empty,
// mmap) must have already reserved the range.
func (vr *Vmregion_t) insert(vmi *Vminfo_t) {
	if vmi.Mtype == VFILE && vmi.file.mfile != nil {
		vmi.file.mfile.mapcount = 1
	}
	i := sort.Search(len(vr.areas), func(i int) bool {
		return vr.areas[i].start() >= vmi.start()
	})
	if i < len(vr.areas) && vr.areas[i].start() < vmi.end() {
		panic("vm: overlapping VMA insert")
	}
	vr.areas = append(vr.areas, nil)
	copy(vr.areas[i+1:], vr.areas[i:])
	vr.areas[i] = vmi
}

// remove deletes vmi from the list.
func (vr *Vmregion_t) remove(vmi *Vminfo_t) {
	for i, a := range vr.areas {
		if a == vmi {
			vr.areas = append(vr.areas[:i], vr.areas[i+1:]...)
			return
		}
	}
}

// empty finds a gap of at least len bytes at or after startva and returns
// its start address and length (the requested length, not the size of the
// whole gap).
func (vr *Vmregion_t) empty(startva, length uintptr) (uintptr, uintptr) {
	cur := startva
	for _, a := range vr.areas {
		if a.start() >= cur+length {
			break
		}
		if a.end() > cur {
			cur = a.end()
		}
	}
	return cur, length
}

// Clear drops every VMA, unpinning shared file backings whose mapcount
// reaches zero.
func (vr *Vmregion_t) Clear() {
	for _, a := range vr.areas {
		if a.Mtype == VFILE && a.file.mfile != nil {
			a.file.mfile.mapcount--
			if a.file.mfile.mapcount <= 0 {
				if a.file.mfile.unpin != nil {
					a.file.mfile.unpin.Unpin(0)
				}
				if a.file.mfile.mfops != nil {
					a.file.mfile.mfops.Close()
				}
			}
		}
	}
	vr.areas = nil
}

// Copy deep-copies the region list for address-space cloning; each VMA is
// duplicated but the two lists reference the same Mfile_t (mapcount is
// bumped accordingly) so file-backed mappings stay consistent across fork.
func (vr *Vmregion_t) Copy() Vmregion_t {
	var nr Vmregion_t
	nr.areas = make([]*Vminfo_t, len(vr.areas))
	for i, a := range vr.areas {
		cp := *a
		if a.Mtype == VFILE && a.file.mfile != nil {
			a.file.mfile.mapcount++
		}
		nr.areas[i] = &cp
	}
	return nr
}
