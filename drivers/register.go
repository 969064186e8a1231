package drivers

import (
	"defs"
	"devfs"
	"slab"
	"stat"
	"ustr"
)

// RegisterAll populates root with every built-in device this core ships:
// /dev/null, /dev/console, /dev/kmemstat, /dev/kmemprofile, /dev/disasm.
// heap is wired into the two memory-introspection devices so their reads
// reflect the live kmalloc heap.
func RegisterAll(root *devfs.Root_t, heap *slab.Heap_t) {
	SetStatHeap(heap)
	SetHeap(heap)

	mode := stat.S_IFREG | 0666
	root.CreateEntry(ustr.Ustr("null"), defs.D_DEVNULL, 0, mode, devfs.SysOps{Open: NewNull})
	root.CreateEntry(ustr.Ustr("console"), defs.D_CONSOLE, 0, mode, devfs.SysOps{Open: NewConsole})
	root.CreateEntry(ustr.Ustr("kmemstat"), defs.D_STAT, 0, mode&^0222, devfs.SysOps{Open: NewKmemStat})
	root.CreateEntry(ustr.Ustr("kmemprofile"), defs.D_PROF, 0, mode&^0222, devfs.SysOps{Open: NewKmemProfile})
	root.CreateEntry(ustr.Ustr("disasm"), defs.D_DISASM, 0, mode, devfs.SysOps{Open: NewDisasm})
}
