package defs

/// Process-boundary error codes. The syscall surface and the VFS layer
/// return these as negative Err_t values; never panics cross this boundary.
const (
	EPERM   Err_t = 1
	ENOENT  Err_t = 2
	EACCES  Err_t = 13
	EEXIST  Err_t = 17
	ENOTDIR Err_t = 20
	EISDIR  Err_t = 21
	EINVAL  Err_t = 22
	ENFILE  Err_t = 23
	EFAULT  Err_t = 14
	ENOMEM  Err_t = 12
	EBUSY   Err_t = 16
	ENOSYS  Err_t = 38
	// ENAMETOOLONG and ENOHEAP are used internally by vm's user-copy paths,
	// kept from the teacher's error vocabulary (vm.Userstr/vm.K2user_inner).
	ENAMETOOLONG Err_t = 36
	ENOHEAP      Err_t = 61
	ESPIPE       Err_t = 29
)

/// Open-call flags, the subset the VFS/devfs open path inspects.
const (
	O_RDONLY    int = 0
	O_WRONLY    int = 1
	O_RDWR      int = 2
	O_CREAT     int = 0100
	O_EXCL      int = 0200
	O_TRUNC     int = 01000
	O_APPEND    int = 02000
	O_DIRECTORY int = 0200000
)

/// Lseek whence values.
const (
	SEEK_SET int = 0
	SEEK_CUR int = 1
	SEEK_END int = 2
)
