package drivers

import (
	"fmt"
	"sync"

	"circbuf"
	"defs"
	"fdops"
	"mem"
)

// consoleHub is the single shared console backing every /dev/console
// open: writes go straight to the host's stdout (there is no real serial
// port under this hosted core), and reads drain a circbuf.Circbuf_t that
// Feed fills from whatever stands in for a keyboard/serial driver here
// (tests, or a future line discipline).
type consoleHub struct {
	sync.Mutex
	in circbuf.Circbuf_t
}

var console = newConsoleHub()

func newConsoleHub() *consoleHub {
	c := &consoleHub{}
	return c
}

// Feed injects bytes as if typed at the console, for tests and for a
// future keyboard interrupt handler to call.
func Feed(alloc mem.Page_i, b []byte) defs.Err_t {
	console.Lock()
	defer console.Unlock()
	if console.in.Bufsz() == 0 {
		if err := console.in.Cb_init(int(mem.PGSIZE), alloc); err != 0 {
			return err
		}
	}
	_, err := console.in.Copyin(byteReader(b))
	return err
}

type byteReader []byte

func (b byteReader) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b)
	return n, 0
}
func (b byteReader) Uiowrite([]uint8) (int, defs.Err_t) { return 0, -defs.EINVAL }
func (b byteReader) Remain() int                        { return len(b) }
func (b byteReader) Totalsz() int                       { return len(b) }

// consoleFile is one open /dev/console descriptor.
type consoleFile struct{}

func (consoleFile) Close() defs.Err_t               { return 0 }
func (consoleFile) Fstat(fdops.Statable) defs.Err_t { return 0 }
func (consoleFile) Lseek(int, int) (int, defs.Err_t) { return 0, -defs.ESPIPE }
func (consoleFile) Pathi() (int, defs.Err_t)        { return 0, -defs.ENOSYS }
func (consoleFile) Reopen() defs.Err_t              { return 0 }
func (consoleFile) Truncate(uint) defs.Err_t        { return -defs.EINVAL }
func (consoleFile) Pread(fdops.Userio_i, int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}
func (consoleFile) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return 0, -defs.ESPIPE
}

func (consoleFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	console.Lock()
	defer console.Unlock()
	if console.in.Bufsz() == 0 || console.in.Empty() {
		return 0, 0
	}
	return console.in.Copyout(dst)
}

func (consoleFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	got, err := src.Uioread(buf)
	if err != 0 {
		return got, err
	}
	fmt.Print(string(buf[:got]))
	return got, 0
}

func (consoleFile) Poll(pm fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	console.Lock()
	defer console.Unlock()
	var r fdops.Ready_t
	if console.in.Bufsz() != 0 && !console.in.Empty() {
		r |= fdops.R_READ
	}
	r |= fdops.R_WRITE
	return r, 0
}

func (consoleFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

// NewConsole constructs a handle onto the single shared console.
func NewConsole(minor int) (fdops.Fdops_i, defs.Err_t) {
	return consoleFile{}, 0
}
