package drivers

import (
	"testing"

	"defs"
	"devfs"
	"pfa"
	"slab"
	"ustr"
)

type buf struct {
	b   []byte
	pos int
}

func (b *buf) Uioread(dst []uint8) (int, defs.Err_t) {
	n := copy(dst, b.b[b.pos:])
	b.pos += n
	return n, 0
}
func (b *buf) Uiowrite(src []uint8) (int, defs.Err_t) {
	b.b = append(b.b, src...)
	return len(src), 0
}
func (b *buf) Remain() int  { return len(b.b) - b.pos }
func (b *buf) Totalsz() int { return len(b.b) }

func TestNullDiscardsWritesAndReadsEmpty(t *testing.T) {
	f, err := NewNull(0)
	if err != 0 {
		t.Fatal(err)
	}
	in := &buf{b: []byte("hello")}
	n, err := f.Write(in)
	if err != 0 || n != 5 {
		t.Fatalf("write failed: n=%d err=%d", n, err)
	}
	out := &buf{}
	n, err = f.Read(out)
	if err != 0 || n != 0 {
		t.Fatalf("expected EOF read from /dev/null, got n=%d err=%d", n, err)
	}
}

func TestKmemStatReportsSizeClasses(t *testing.T) {
	fa := pfa.New(64)
	h := slab.NewHeap(fa)
	h.Kmalloc(64)
	SetStatHeap(h)

	f, err := NewKmemStat(0)
	if err != 0 {
		t.Fatal(err)
	}
	out := &buf{}
	n, _ := f.Read(out)
	if n == 0 {
		t.Fatal("expected non-empty kmemstat report")
	}
}

func TestRegisterAllPopulatesNamespace(t *testing.T) {
	fa := pfa.New(64)
	h := slab.NewHeap(fa)
	root := devfs.NewRoot()
	RegisterAll(root, h)

	for _, name := range []string{"null", "console", "kmemstat", "kmemprofile", "disasm"} {
		if _, ok := root.DirEntryGet(ustr.Ustr(name)); !ok {
			t.Fatalf("expected %q to be registered", name)
		}
	}
}

func TestDisasmDecodesNop(t *testing.T) {
	f, err := NewDisasm(0)
	if err != 0 {
		t.Fatal(err)
	}
	in := &buf{b: []byte{0x90}} // NOP
	if _, err := f.Write(in); err != 0 {
		t.Fatal(err)
	}
	out := &buf{}
	n, _ := f.Read(out)
	if n == 0 {
		t.Fatal("expected a decoded instruction line")
	}
}
