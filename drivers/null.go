// Package drivers holds the concrete devfs device backers: /dev/null,
// /dev/console, /dev/kmemstat, /dev/kmemprofile and /dev/disasm. Each
// registers itself into a devfs.Root_t with RegisterAll and implements
// fdops.Fdops_i directly, in the teacher's one-type-per-device style.
package drivers

import (
	"defs"
	"fdops"
)

// nullFile backs /dev/null: every write succeeds and discards its input,
// every read returns EOF immediately.
type nullFile struct{}

func (nullFile) Close() defs.Err_t                                 { return 0 }
func (nullFile) Fstat(fdops.Statable) defs.Err_t                   { return 0 }
func (nullFile) Lseek(int, int) (int, defs.Err_t)                  { return 0, 0 }
func (nullFile) Pathi() (int, defs.Err_t)                          { return 0, -defs.ENOSYS }
func (nullFile) Read(fdops.Userio_i) (int, defs.Err_t)             { return 0, 0 }
func (nullFile) Reopen() defs.Err_t                                { return 0 }
func (nullFile) Truncate(uint) defs.Err_t                          { return 0 }
func (nullFile) Pread(fdops.Userio_i, int) (int, defs.Err_t)       { return 0, 0 }
func (nullFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t)  { return fdops.R_READ | fdops.R_WRITE, 0 }
func (nullFile) Ioctl(int, int) (int, defs.Err_t)                  { return 0, -defs.ENOSYS }

func (nullFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	n := src.Remain()
	buf := make([]byte, 4096)
	total := 0
	for total < n {
		want := n - total
		if want > len(buf) {
			want = len(buf)
		}
		got, err := src.Uioread(buf[:want])
		total += got
		if err != 0 {
			return total, err
		}
		if got == 0 {
			break
		}
	}
	return total, 0
}

func (nullFile) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return nullFile{}.Write(src)
}

// NewNull constructs a fresh /dev/null handle; minor is unused since there
// is only ever one null sink.
func NewNull(minor int) (fdops.Fdops_i, defs.Err_t) {
	return nullFile{}, 0
}
