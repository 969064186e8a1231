package vfs

import (
	"defs"
	"devfs"
	"fdops"
	"ustr"
)

// DevfsMount adapts a *devfs.Root_t to FileSystemType so it can be
// registered in a MountTable like any other filesystem. devfs has no
// notion of subdirectories, so every path it is handed is treated as a
// single device name.
type DevfsMount struct {
	root *devfs.Root_t
}

// NewDevfsMount wraps root for mounting.
func NewDevfsMount(root *devfs.Root_t) *DevfsMount {
	return &DevfsMount{root: root}
}

func (d *DevfsMount) Open(path ustr.Ustr, flags int) (fdops.Fdops_i, defs.Err_t) {
	return d.root.Open(path, flags)
}

func (d *DevfsMount) Stat(path ustr.Ustr, statbuf fdops.Statable) defs.Err_t {
	return d.root.StatEntry(path, statbuf)
}

func (d *DevfsMount) Unlink(path ustr.Ustr) defs.Err_t {
	return d.root.DestroyEntry(path)
}
