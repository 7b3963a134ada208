// Package kstat holds the stat-like introspection structure
// referenced by spec.md's inumber/isdir calls, supplemented beyond
// the distilled spec per SPEC_FULL.md: a single Stat_t a caller can
// fill in from either an open file or directory handle, grounded on
// the teacher's stat/stat.go field layout (inode number, size, type)
// trimmed to what this repo's inode/directory layers actually track.
package kstat

import "defs"

// Stat_t mirrors a POSIX-ish stat result scoped to what spec.md's
// Data Model carries: no timestamps or permission bits exist in this
// on-disk format.
type Stat_t struct {
	Inumber uint32
	Size    uint32
	Type    defs.InodeType
}

// Fill populates st from an inode's own fields.
func (st *Stat_t) Fill(sector, length uint32, typ defs.InodeType) {
	st.Inumber = sector
	st.Size = length
	st.Type = typ
}

// IsDir reports whether st describes a directory.
func (st *Stat_t) IsDir() bool { return st.Type == defs.DirType }

// IsSymlink reports whether st describes a symlink.
func (st *Stat_t) IsSymlink() bool { return st.Type == defs.LinkType }
