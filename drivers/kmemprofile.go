package drivers

import (
	"bytes"
	"sync"

	"github.com/google/pprof/profile"

	"defs"
	"fdops"
	"slab"
)

// memProfile is the slab heap this driver reports on, set once at
// RegisterAll time.
var memProfile struct {
	sync.Mutex
	heap *slab.Heap_t
}

// SetHeap tells /dev/kmemprofile which heap to snapshot. Call once during
// kernel init, before the device is ever opened.
func SetHeap(h *slab.Heap_t) {
	memProfile.Lock()
	memProfile.heap = h
	memProfile.Unlock()
}

// buildProfile renders the current kmalloc size-class occupancy as a
// gperftools-style heap profile: one pprof.Sample per size class, valued
// in live-object count and live bytes, so `go tool pprof` can be pointed
// straight at /dev/kmemprofile.
func buildProfile(h *slab.Heap_t) []byte {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{
			{Type: "objects", Unit: "count"},
			{Type: "space", Unit: "bytes"},
		},
		PeriodType: &profile.ValueType{Type: "space", Unit: "bytes"},
		Period:     1,
	}
	if h == nil {
		var buf bytes.Buffer
		p.Write(&buf)
		return buf.Bytes()
	}
	fid := uint64(1)
	lid := uint64(1)
	for _, name := range h.ClassNames() {
		c := h.ClassByName(name)
		if c == nil {
			continue
		}
		full, partial, _, _ := c.Stats()
		live := (full + partial) * c.Objsize()
		liveObjs := full + partial
		fn := &profile.Function{ID: fid, Name: name}
		p.Function = append(p.Function, fn)
		loc := &profile.Location{ID: lid, Line: []profile.Line{{Function: fn}}}
		p.Location = append(p.Location, loc)
		p.Sample = append(p.Sample, &profile.Sample{
			Location: []*profile.Location{loc},
			Value:    []int64{int64(liveObjs), int64(live)},
		})
		fid++
		lid++
	}
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil
	}
	return buf.Bytes()
}

type kmemprofileFile struct {
	data []byte
	off  int
}

func (f *kmemprofileFile) Close() defs.Err_t               { return 0 }
func (f *kmemprofileFile) Fstat(fdops.Statable) defs.Err_t  { return 0 }
func (f *kmemprofileFile) Lseek(off, whence int) (int, defs.Err_t) {
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = len(f.data) + off
	default:
		return 0, -defs.EINVAL
	}
	return f.off, 0
}
func (f *kmemprofileFile) Pathi() (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (f *kmemprofileFile) Reopen() defs.Err_t       { return 0 }
func (f *kmemprofileFile) Truncate(uint) defs.Err_t { return -defs.EINVAL }
func (f *kmemprofileFile) Write(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *kmemprofileFile) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *kmemprofileFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ, 0
}
func (f *kmemprofileFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

func (f *kmemprofileFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return f.Pread(dst, f.off)
}

func (f *kmemprofileFile) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if off >= len(f.data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(f.data[off:])
	if err == 0 && off == f.off {
		f.off += n
	}
	return n, err
}

// NewKmemProfile snapshots the registered heap's per-class occupancy at
// open time; the resulting handle's contents don't change across reads
// within one open, matching /proc-style snapshot semantics.
func NewKmemProfile(minor int) (fdops.Fdops_i, defs.Err_t) {
	memProfile.Lock()
	h := memProfile.heap
	memProfile.Unlock()
	return &kmemprofileFile{data: buildProfile(h)}, 0
}
