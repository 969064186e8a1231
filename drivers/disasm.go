package drivers

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"

	"defs"
	"fdops"
)

// disasmFile is a tiny disassembler service: write raw x86 machine code to
// it, then read back one GNU-syntax instruction listing line per decoded
// instruction. Each open gets its own scratch buffer, so concurrent opens
// never see each other's input.
type disasmFile struct {
	mode int
	raw  []byte
	text []byte
	off  int
}

func (f *disasmFile) Close() defs.Err_t               { return 0 }
func (f *disasmFile) Fstat(fdops.Statable) defs.Err_t { return 0 }
func (f *disasmFile) Lseek(off, whence int) (int, defs.Err_t) {
	switch whence {
	case defs.SEEK_SET:
		f.off = off
	case defs.SEEK_CUR:
		f.off += off
	case defs.SEEK_END:
		f.off = len(f.text) + off
	default:
		return 0, -defs.EINVAL
	}
	return f.off, 0
}
func (f *disasmFile) Pathi() (int, defs.Err_t) { return 0, -defs.ENOSYS }
func (f *disasmFile) Reopen() defs.Err_t       { return 0 }
func (f *disasmFile) Truncate(uint) defs.Err_t {
	f.raw = nil
	f.text = nil
	f.off = 0
	return 0
}
func (f *disasmFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ | fdops.R_WRITE, 0
}
func (f *disasmFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

// decode renders f.raw as a GNU-syntax listing, one instruction per line,
// tolerating a trailing partial instruction by stopping there.
func (f *disasmFile) decode() {
	var b strings.Builder
	pc := uint64(0)
	buf := f.raw
	for len(buf) > 0 {
		inst, err := x86asm.Decode(buf, f.mode)
		if err != nil {
			fmt.Fprintf(&b, "%04x: (bad)\n", pc)
			break
		}
		fmt.Fprintf(&b, "%04x: %s\n", pc, x86asm.GNUSyntax(inst, pc, nil))
		buf = buf[inst.Len:]
		pc += uint64(inst.Len)
	}
	f.text = []byte(b.String())
}

func (f *disasmFile) Write(src fdops.Userio_i) (int, defs.Err_t) {
	buf := make([]byte, src.Remain())
	n, err := src.Uioread(buf)
	if err != 0 {
		return n, err
	}
	f.raw = append(f.raw, buf[:n]...)
	f.decode()
	return n, 0
}

func (f *disasmFile) Pwrite(src fdops.Userio_i, off int) (int, defs.Err_t) {
	return f.Write(src)
}

func (f *disasmFile) Read(dst fdops.Userio_i) (int, defs.Err_t) {
	return f.Pread(dst, f.off)
}

func (f *disasmFile) Pread(dst fdops.Userio_i, off int) (int, defs.Err_t) {
	if off >= len(f.text) {
		return 0, 0
	}
	n, err := dst.Uiowrite(f.text[off:])
	if err == 0 && off == f.off {
		f.off += n
	}
	return n, err
}

// NewDisasm constructs a disassembler handle in 32-bit mode, matching this
// core's two-level x86-32-style page tables.
func NewDisasm(minor int) (fdops.Fdops_i, defs.Err_t) {
	return &disasmFile{mode: 32}, 0
}
