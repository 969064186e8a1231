package devfs

import (
	"testing"

	"defs"
	"fdops"
	"stat"
	"ustr"
)

type fakeStat struct {
	dev, ino, mode, size, rdev uint
}

func (f *fakeStat) Wdev(v uint)  { f.dev = v }
func (f *fakeStat) Wino(v uint)  { f.ino = v }
func (f *fakeStat) Wmode(v uint) { f.mode = v }
func (f *fakeStat) Wsize(v uint) { f.size = v }
func (f *fakeStat) Wrdev(v uint) { f.rdev = v }

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

type fakeFile struct{ closed bool }

func (f *fakeFile) Close() defs.Err_t               { f.closed = true; return 0 }
func (f *fakeFile) Fstat(fdops.Statable) defs.Err_t { return 0 }
func (f *fakeFile) Lseek(int, int) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFile) Pathi() (int, defs.Err_t)        { return 0, -defs.ENOSYS }
func (f *fakeFile) Read(fdops.Userio_i) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFile) Reopen() defs.Err_t              { return 0 }
func (f *fakeFile) Write(fdops.Userio_i) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFile) Truncate(uint) defs.Err_t        { return 0 }
func (f *fakeFile) Pread(fdops.Userio_i, int) (int, defs.Err_t)  { return 0, 0 }
func (f *fakeFile) Pwrite(fdops.Userio_i, int) (int, defs.Err_t) { return 0, 0 }
func (f *fakeFile) Poll(fdops.Pollmsg_t) (fdops.Ready_t, defs.Err_t) {
	return fdops.R_READ, 0
}
func (f *fakeFile) Ioctl(int, int) (int, defs.Err_t) { return 0, -defs.ENOSYS }

func TestCreateOpenClose(t *testing.T) {
	r := NewRoot()
	backing := &fakeFile{}
	_, err := r.CreateEntry(ustr.Ustr("probe"), 9, 0, 0666, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) { return backing, 0 },
	})
	if err != 0 {
		t.Fatalf("create failed: %d", err)
	}

	f, err := r.Open(ustr.Ustr("probe"), defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("open failed: %d", err)
	}
	var st fakeStat
	if err := f.Fstat(&st); err != 0 {
		t.Fatalf("fstat failed: %d", err)
	}
	if st.mode != 0666 {
		t.Fatalf("expected mode 0666, got %o", st.mode)
	}

	if err := f.Close(); err != 0 {
		t.Fatalf("close failed: %d", err)
	}
	if !backing.closed {
		t.Fatal("backing Fdops_i was never closed")
	}
}

func TestOpenMissingIsENOENT(t *testing.T) {
	r := NewRoot()
	if _, err := r.Open(ustr.Ustr("nope"), defs.O_RDONLY); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT, got %d", err)
	}
}

func TestDestroyMissingIsENOENT(t *testing.T) {
	r := NewRoot()
	if err := r.DestroyEntry(ustr.Ustr("nope")); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT for missing entry, got %d", err)
	}
}

func TestDestroyBusyEntryFails(t *testing.T) {
	r := NewRoot()
	backing := &fakeFile{}
	r.CreateEntry(ustr.Ustr("busy"), 9, 0, 0666, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) { return backing, 0 },
	})
	f, _ := r.Open(ustr.Ustr("busy"), defs.O_RDONLY)
	if err := r.DestroyEntry(ustr.Ustr("busy")); err != -defs.EBUSY {
		t.Fatalf("expected EBUSY while open, got %d", err)
	}
	f.Close()
	if err := r.DestroyEntry(ustr.Ustr("busy")); err != 0 {
		t.Fatalf("expected destroy to succeed once closed, got %d", err)
	}
}

func TestGetdentsListsEntries(t *testing.T) {
	r := NewRoot()
	r.CreateEntry(ustr.Ustr("a"), 1, 0, 0666, SysOps{})
	r.CreateEntry(ustr.Ustr("b"), 2, 0, 0666, SysOps{})
	ents, _, err := r.Getdents(ustr.Ustr(""), 0, 4096)
	if err != 0 {
		t.Fatalf("getdents failed: %d", err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(ents))
	}
}

func TestGetdentsPaginatesByOffset(t *testing.T) {
	r := NewRoot()
	r.CreateEntry(ustr.Ustr("a"), 1, 0, 0666, SysOps{})
	r.CreateEntry(ustr.Ustr("b"), 2, 0, 0666, SysOps{})
	r.CreateEntry(ustr.Ustr("c"), 3, 0, 0666, SysOps{})

	first, next, err := r.Getdents(ustr.Ustr("/"), 0, DirentSize)
	if err != 0 {
		t.Fatalf("getdents failed: %d", err)
	}
	if len(first) != 1 || string(first[0].Name) != "a" {
		t.Fatalf("expected [a], got %v", first)
	}
	if next != DirentSize {
		t.Fatalf("expected next offset %d, got %d", DirentSize, next)
	}

	second, next, err := r.Getdents(ustr.Ustr("/"), next, DirentSize)
	if err != 0 {
		t.Fatalf("getdents failed: %d", err)
	}
	if len(second) != 1 || string(second[0].Name) != "b" {
		t.Fatalf("expected [b], got %v", second)
	}

	third, _, err := r.Getdents(ustr.Ustr("/"), next, DirentSize)
	if err != 0 {
		t.Fatalf("getdents failed: %d", err)
	}
	if len(third) != 1 || string(third[0].Name) != "c" {
		t.Fatalf("expected [c], got %v", third)
	}
}

func TestGetdentsOnNonDirIsENOTDIR(t *testing.T) {
	r := NewRoot()
	r.CreateEntry(ustr.Ustr("a"), 1, 0, 0666, SysOps{})
	if _, _, err := r.Getdents(ustr.Ustr("a"), 0, 4096); err != -defs.ENOTDIR {
		t.Fatalf("expected ENOTDIR, got %d", err)
	}
}

func TestGetdentsOnMissingDirIsENOENT(t *testing.T) {
	r := NewRoot()
	if _, _, err := r.Getdents(ustr.Ustr("nope"), 0, 4096); err != -defs.ENOENT {
		t.Fatalf("expected ENOENT, got %d", err)
	}
}

func TestDuplicateCreateFails(t *testing.T) {
	r := NewRoot()
	r.CreateEntry(ustr.Ustr("dup"), 1, 0, 0666, SysOps{})
	if _, err := r.CreateEntry(ustr.Ustr("dup"), 1, 0, 0666, SysOps{}); err != -defs.EEXIST {
		t.Fatalf("expected EEXIST, got %d", err)
	}
}

func TestOpenExclOnExistingIsEEXIST(t *testing.T) {
	r := NewRoot()
	backing := &fakeFile{}
	r.CreateEntry(ustr.Ustr("dup"), 1, 0, 0666, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) { return backing, 0 },
	})
	if _, err := r.Open(ustr.Ustr("dup"), defs.O_CREAT|defs.O_EXCL); err != -defs.EEXIST {
		t.Fatalf("expected EEXIST, got %d", err)
	}
}

func TestOpenDirectoryOnNonDirIsENOTDIR(t *testing.T) {
	r := NewRoot()
	backing := &fakeFile{}
	r.CreateEntry(ustr.Ustr("plain"), 1, 0, 0666, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) { return backing, 0 },
	})
	if _, err := r.Open(ustr.Ustr("plain"), defs.O_DIRECTORY); err != -defs.ENOTDIR {
		t.Fatalf("expected ENOTDIR, got %d", err)
	}
}

func TestOpenWriteOnDirectoryIsEISDIR(t *testing.T) {
	r := NewRoot()
	r.CreateEntry(ustr.Ustr("adir"), 0, 0, stat.S_IFDIR|0755, SysOps{
		Open: func(minor int) (fdops.Fdops_i, defs.Err_t) { return &fakeFile{}, 0 },
	})
	if _, err := r.Open(ustr.Ustr("adir"), defs.O_WRONLY); err != -defs.EISDIR {
		t.Fatalf("expected EISDIR, got %d", err)
	}
}

func TestOpenCreatMakesWritableNode(t *testing.T) {
	r := NewRoot()
	f, err := r.Open(ustr.Ustr("fresh"), defs.O_CREAT|defs.O_RDWR)
	if err != 0 {
		t.Fatalf("open create failed: %d", err)
	}
	src := &buf{b: []byte("hello")}
	n, err := f.Write(src)
	if err != 0 || n != 5 {
		t.Fatalf("write failed: n=%d err=%d", n, err)
	}
	if _, err := f.Lseek(0, defs.SEEK_SET); err != 0 {
		t.Fatalf("lseek failed: %d", err)
	}
	dst := &buf{}
	n, err = f.Read(dst)
	if err != 0 || n != 5 {
		t.Fatalf("read failed: n=%d err=%d", n, err)
	}

	reopened, err := r.Open(ustr.Ustr("fresh"), defs.O_RDONLY)
	if err != 0 {
		t.Fatalf("reopen failed: %d", err)
	}
	if _, ok := r.DirEntryGet(ustr.Ustr("fresh")); !ok {
		t.Fatal("expected node to persist in namespace")
	}
	reopened.Close()
	f.Close()
}
