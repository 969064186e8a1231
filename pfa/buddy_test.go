package pfa

import "testing"

func TestDmapRunCoversWholeOrderRun(t *testing.T) {
	fa := New(64)

	p, ok := fa.AllocPages(2) // 4 pages
	if !ok {
		t.Fatal("alloc failed")
	}
	buf := fa.DmapRun(p, 4*pgsize)
	if len(buf) != 4*pgsize {
		t.Fatalf("expected %d bytes, got %d", 4*pgsize, len(buf))
	}
	buf[0] = 1
	buf[len(buf)-1] = 2

	again := fa.DmapRun(p, 4*pgsize)
	if again[0] != 1 || again[len(again)-1] != 2 {
		t.Fatal("DmapRun should alias the same underlying arena bytes across calls")
	}
	fa.FreePages(p)
}

const pgsize = 4096
