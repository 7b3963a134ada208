// Package filehandle holds the open file/directory handle types from
// spec.md's Data Model, grounded on the teacher's fd/fd.go Fd_t/Cwd_t
// (the Copyfd reopen-on-duplicate idiom, and an embedded sync.Mutex
// on the handle that must serialize position updates).
package filehandle

import (
	"sync"

	"directory"
	"inode"
)

// Ofile_t is an open file handle: a ref to the open inode, a byte
// position, and the deny-write-on-executing-files flag spec.md's
// Data Model carries for parity with the original filesys_open.
type Ofile_t struct {
	sync.Mutex
	Inode     *inode.Inode_t
	Pos       uint32
	DenyWrite bool
}

// Copy reopens the same inode for a duplicated fd (fork's fd table
// copy), bumping the open-inode refcount rather than sharing *Ofile_t,
// the way the teacher's Fd_t.Copyfd reopens rather than aliases.
func (o *Ofile_t) Copy(cache *inode.Cache_t) *Ofile_t {
	return &Ofile_t{
		Inode:     cache.Open(o.Inode.Sector),
		Pos:       o.Pos,
		DenyWrite: o.DenyWrite,
	}
}

// Odir_t is an open directory handle: a ref to the open inode plus
// the directory package's own readdir cursor.
type Odir_t struct {
	sync.Mutex
	Dir *directory.Dir_t
}

// Copy reopens the same inode for a duplicated directory fd.
func (d *Odir_t) Copy(cache *inode.Cache_t) *Odir_t {
	return &Odir_t{Dir: directory.Open(cache.Open(d.Dir.Inode.Sector))}
}
