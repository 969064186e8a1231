package drivers

import (
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"defs"
	"fdops"
	"slab"
)

// statPrinter formats occupancy counts with thousand separators so a
// heap with a busy cache (tens of thousands of live objects) still reads
// as a column of digits at a glance, not a run-on number.
var statPrinter = message.NewPrinter(language.English)

var kmemstat struct {
	sync.Mutex
	heap *slab.Heap_t
}

// SetStatHeap tells /dev/kmemstat which heap to report on.
func SetStatHeap(h *slab.Heap_t) {
	kmemstat.Lock()
	kmemstat.heap = h
	kmemstat.Unlock()
}

func renderStats(h *slab.Heap_t) []byte {
	var b strings.Builder
	statPrinter.Fprintf(&b, "%-16s %8s %8s %8s %8s\n", "cache", "full", "partial", "free", "grown")
	if h != nil {
		for _, name := range h.ClassNames() {
			c := h.ClassByName(name)
			if c == nil {
				continue
			}
			full, partial, free, grown := c.Stats()
			statPrinter.Fprintf(&b, "%-16s %8d %8d %8d %8d\n", name, full, partial, free, grown)
		}
	}
	return []byte(b.String())
}

type kmemstatFile struct {
	data []byte
	off  int
}

func (f *kmemstatFile) Close() defs.Err_t               { return 0 }
func (f *kmemstatFile) Fstat(fdops.Statable) defs.Err_t { return 0 }
func (f *kmemstatFile) Lseek(off, whence int) (int, defs.Err_t) {
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
func (f *kmemstatFile) Pathi() (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (f *kmemstatFile) Reopen() defs.Err_t       { return 0 }
func (f *kmemstatFile) Truncate(uint) defs.Err_t { return -defs.EINVAL }
func (f *kmemstatFile) Write(fdops.Userio_i) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *kmemstatFile) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.EINVAL
}
func (f *kmemstatFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ, 0
}
func (f *kmemstatFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

func (f *kmemstatFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return f.Pread(dst, f.off)
}

func (f *kmemstatFile) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if off >= len(f.data) {
		return 0, 0
	}
	n, err := dst.Uiowrite(f.data[off:])
	if err == 0 && off == f.off {
		f.off += n
	}
	return n, err
}

// NewKmemStat renders a fresh snapshot of every size class's residency
// counts at open time.
func NewKmemStat(minor int) (fdops.Fdops_i, defs.Err_t) {
	kmemstat.Lock()
	h := kmemstat.heap
	kmemstat.Unlock()
	return &kmemstatFile{data: renderStats(h)}, 0
}
