// Package defs holds the error codes, identifiers, and system limits
// shared by every kernel subsystem, the way the teacher's defs package
// groups device identifiers and the teacher's limits package groups
// system-wide limits.
package defs

// Err_t is the kernel-wide error code. Domain-expected failures are
// returned as negative Err_t values rather than the Go error interface,
// matching the teacher's defs.Err_t convention used throughout vm/as.go.
type Err_t int

// Error codes. Negative, POSIX-errno flavored, returned by value (0 means
// success) rather than wrapped in Go's error interface.
const (
	EFAULT     Err_t = -1  // bad user pointer / unmapped address
	ENOMEM     Err_t = -2  // out of frames or kernel memory
	ENOSPC     Err_t = -3  // out of clusters
	ENOENT     Err_t = -4  // path component missing
	EEXIST     Err_t = -5  // name already present in directory
	ENOTDIR    Err_t = -6  // expected a directory, found a file
	EISDIR     Err_t = -7  // expected a file, found a directory
	ENOTEMPTY  Err_t = -8  // directory removal with live entries
	ENAMETOOLONG Err_t = -9  // path component longer than NAME_MAX
	EINVAL     Err_t = -10 // bad argument (alignment, zero length, ...)
	EMFILE     Err_t = -11 // per-process descriptor table full
	EBADF      Err_t = -12 // bad file descriptor
	ENOSWAP    Err_t = -13 // swap disk exhausted (caller treats as fatal)
	ELOOP      Err_t = -14 // too many symlink indirections
)

// Tid_t identifies a kernel thread. The scheduler that assigns these is
// out of scope (spec.md §1); this repo only needs the type to key
// per-thread structures such as fd tables.
type Tid_t int

// System limits, grouped the way the teacher's limits.Syslimit_t groups
// system-wide resource limits.
const (
	NAME_MAX = 14  // max bytes in one path component
	PATH_MAX = 496 // max bytes in an absolute path
	MAXFD    = 135 // max open file descriptors per process
)

// On-disk and in-memory geometry constants.
const (
	SectorSize        = 512 // bytes per disk sector (the block device collaborator's unit)
	SectorsPerCluster = 1   // default cluster size in sectors
	PageSize          = 4096
	SectorsPerPage    = PageSize / SectorSize // swap slot size in sectors (8)

	FATMagic       uint32 = 0xEB3C9000
	EOChain        uint32 = 0x0FFFFFFF
	FreeCluster    uint32 = 0
	FATStartSector        = 1
	RootDirCluster uint32 = 1
)

// KernelBase is the simulated user/kernel address split, mirroring
// PintOS's PHYS_BASE (is_user_vaddr/is_kernel_vaddr): addresses at or
// above this are kernel space and never valid as an mmap/fault target.
const KernelBase = uintptr(0xC0000000)

// InodeType distinguishes the three kinds of on-disk inode.
type InodeType int

const (
	FileType InodeType = iota
	DirType
	LinkType
)
